package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID  contextKey = "request_id"
	ContextKeySourceInfo contextKey = "source_info"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithSourceInfo tags the context with a description of the document being
// processed (file path or batch item label) for logging.
func WithSourceInfo(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ContextKeySourceInfo, source)
}

// SourceInfoFromContext extracts the source description from context
func SourceInfoFromContext(ctx context.Context) string {
	if source, ok := ctx.Value(ContextKeySourceInfo).(string); ok {
		return source
	}
	return "unknown"
}
