// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Catalog Errors (CAT001-CAT099)
//
//	CAT001 - Catalog integrity: The indicator catalog contains conflicting entries
//	         Action: Fix the catalog document and restart the service
//	         Patterns: "catalog integrity"
//
//	CAT002 - Catalog schema: The catalog document does not match the expected format
//	         Action: Check the catalog document against the schema
//	         Patterns: "catalog schema"
//
//	CAT003 - Catalog version: The catalog document version is not supported
//	         Action: Upgrade the catalog document
//	         Patterns: "unsupported catalog version"
//
// # Selection Errors (SEL001-SEL099)
//
//	SEL001 - Unknown indicator: The indicator is not in the catalog
//	         Action: Refresh the indicator list and try again
//	         Patterns: "unknown indicator"
//
//	SEL002 - Not selectable: The indicator is restricted
//	         Action: Ask an administrator to select this indicator
//	         Patterns: "indicator not selectable"
//
//	SEL003 - Invalid filter: The filter expression could not be compiled
//	         Action: Check the expression syntax and variable names
//	         Patterns: "invalid filter expression"
//
//	SEL004 - Invalid request body: The request body could not be read
//	         Action: Send a JSON body in the documented format
//	         Patterns: "invalid request body"
//
// # Project Errors (PRJ001-PRJ099)
//
//	PRJ001 - Unknown sector: The sector does not exist
//	         Action: Choose one of the catalog sectors
//	         Patterns: "unknown sector"
//
//	PRJ002 - Sector not in project: The sector is not part of this project
//	         Action: Add the sector to the project first
//	         Patterns: "sector not in project"
//
//	PRJ003 - Invalid project: The project id is not a valid UUID
//	         Action: Check the project link
//	         Patterns: "invalid project id"
//
//	PRJ004 - Project locked: Another change to this project is in progress
//	         Action: Please try again
//	         Patterns: "state file locked"
//
// # Layer Errors (LYR001-LYR099)
//
//	LYR001 - Unknown layer: The selection layer does not exist
//	         Action: Use project, reporting or beneficiary
//	         Patterns: "unknown layer"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	DB002 - Connection reset: Database connection was interrupted
//	DB003 - Deadlock: Database was busy with conflicting operations
//	DB004 - Timeout: Operation timed out
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled        Patterns: "context canceled"
//	REQ002 - Request timeout          Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Support staff should check
// application logs for the original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Catalog Errors (CAT001-CAT003)
	// =========================================================================
	{
		pattern: "catalog integrity",
		msg: UserMessage{
			Message: "The indicator catalog contains conflicting entries",
			Action:  "Fix the catalog document and restart the service",
			Code:    "CAT001",
		},
	},
	{
		pattern: "catalog schema",
		msg: UserMessage{
			Message: "The catalog document does not match the expected format",
			Action:  "Check the catalog document against the schema",
			Code:    "CAT002",
		},
	},
	{
		pattern: "unsupported catalog version",
		msg: UserMessage{
			Message: "The catalog document version is not supported",
			Action:  "Upgrade the catalog document",
			Code:    "CAT003",
		},
	},

	// =========================================================================
	// Selection Errors (SEL001-SEL004)
	// =========================================================================
	{
		pattern: "unknown indicator",
		msg: UserMessage{
			Message: "The indicator is not in the catalog",
			Action:  "Refresh the indicator list and try again",
			Code:    "SEL001",
		},
	},
	{
		pattern: "indicator not selectable",
		msg: UserMessage{
			Message: "This indicator is restricted",
			Action:  "Ask an administrator to select this indicator",
			Code:    "SEL002",
		},
	},
	{
		pattern: "invalid filter expression",
		msg: UserMessage{
			Message: "The filter expression could not be compiled",
			Action:  "Check the expression syntax and variable names",
			Code:    "SEL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send a JSON body in the documented format",
			Code:    "SEL004",
		},
	},

	// =========================================================================
	// Project Errors (PRJ001-PRJ004)
	// "sector not in project" must come before "unknown sector".
	// =========================================================================
	{
		pattern: "sector not in project",
		msg: UserMessage{
			Message: "The sector is not part of this project",
			Action:  "Add the sector to the project first",
			Code:    "PRJ002",
		},
	},
	{
		pattern: "unknown sector",
		msg: UserMessage{
			Message: "The sector does not exist",
			Action:  "Choose one of the catalog sectors",
			Code:    "PRJ001",
		},
	},
	{
		pattern: "invalid project id",
		msg: UserMessage{
			Message: "The project id is not valid",
			Action:  "Check the project link",
			Code:    "PRJ003",
		},
	},
	{
		pattern: "state file locked",
		msg: UserMessage{
			Message: "Another change to this project is in progress",
			Action:  "Please try again",
			Code:    "PRJ004",
		},
	},

	// =========================================================================
	// Layer Errors (LYR001)
	// =========================================================================
	{
		pattern: "unknown layer",
		msg: UserMessage{
			Message: "The selection layer does not exist",
			Action:  "Use project, reporting or beneficiary",
			Code:    "LYR001",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ002)
	// Checked before DB004 so deadline errors are not reported as timeouts.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB001-DB004)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// Rate Limiting Errors (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match, or a generic fallback with code ERR000.
//
//	err := fmt.Errorf("select: %w", ErrNotSelectable)
//	msg := MapError(err)
//	// msg.Code == "SEL002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
