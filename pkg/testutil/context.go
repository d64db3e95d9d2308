package testutil

import (
	"context"
	"net/http"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
