package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress  contextKey = "event_ip"
	ctxKeyUserAgent  contextKey = "event_ua"
	ctxKeyPrivileged contextKey = "privileged"
)

// ContextWithIPAddress adds IP address to context for selection events.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds User-Agent to context for selection events.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// ContextWithPrivileged marks the caller as allowed to see and select
// restricted indicators.
func ContextWithPrivileged(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyPrivileged, true)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}

// GetUserAgentFromContext extracts User-Agent from context.
func GetUserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// IsPrivileged reports whether ctx was marked with ContextWithPrivileged.
func IsPrivileged(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyPrivileged).(bool)
	return v
}
