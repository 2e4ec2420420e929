package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/indicators/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for selection events.
// RemoteAddr has already been resolved by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
