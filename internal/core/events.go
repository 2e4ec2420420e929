package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventAction represents the kind of selection change being recorded.
type EventAction string

const (
	ActionSelect     EventAction = "select"
	ActionReplace    EventAction = "replace"
	ActionSetSectors EventAction = "set_sectors"
)

// EventSeverity represents how far-reaching a recorded change is.
type EventSeverity string

const (
	SeverityLow    EventSeverity = "low"
	SeverityMedium EventSeverity = "medium"
	SeverityHigh   EventSeverity = "high"
)

// SelectionEvent is one entry of a project's selection history.
type SelectionEvent struct {
	ID        uuid.UUID     `json:"id" yaml:"id"`
	ProjectID uuid.UUID     `json:"projectId" yaml:"projectId"`
	Layer     string        `json:"layer,omitempty" yaml:"layer,omitempty"`
	Action    EventAction   `json:"action" yaml:"action"`
	Severity  EventSeverity `json:"severity" yaml:"severity"`
	SectorID  string        `json:"sectorId,omitempty" yaml:"sectorId,omitempty"`
	Requested []string      `json:"requested,omitempty" yaml:"requested,omitempty"`
	Result    SelectionMap  `json:"result,omitempty" yaml:"result,omitempty"`
	Messages  []string      `json:"messages,omitempty" yaml:"messages,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty" yaml:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	CreatedAt time.Time     `json:"createdAt" yaml:"createdAt"`
}

// eventParams contains parameters for creating a selection event.
type eventParams struct {
	ProjectID uuid.UUID
	Layer     string
	Action    EventAction
	SectorID  string
	Requested []string
	Result    SelectionMap
	Messages  []string
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action EventAction, layer string) EventSeverity {
	switch action {
	case ActionSetSectors:
		return SeverityHigh
	case ActionReplace:
		return SeverityMedium
	}
	if len(Dependents(layer)) > 0 {
		return SeverityMedium
	}
	return SeverityLow
}

// recordEvent stores a selection event. A failure is logged and does not
// undo the selection change it describes.
func (s *Service) recordEvent(ctx context.Context, params eventParams) uuid.UUID {
	event := SelectionEvent{
		ID:        uuid.New(),
		ProjectID: params.ProjectID,
		Layer:     params.Layer,
		Action:    params.Action,
		Severity:  determineSeverity(params.Action, params.Layer),
		SectorID:  params.SectorID,
		Requested: params.Requested,
		Result:    params.Result,
		Messages:  params.Messages,
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.RecordEvent(ctx, event); err != nil {
		s.logger.Error("failed to record selection event",
			"project_id", params.ProjectID,
			"action", params.Action,
			"error", err,
		)
		return uuid.Nil
	}
	return event.ID
}

// Events returns the most recent selection events of a project, newest first.
func (s *Service) Events(ctx context.Context, projectID uuid.UUID, limit int) ([]SelectionEvent, error) {
	if limit <= 0 {
		limit = s.eventLimit
	}
	events, err := s.store.ListEvents(ctx, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
