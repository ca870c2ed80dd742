package services

import "context"

type contextKey string

const (
	rowIDKey      contextKey = "row_id"
	mutationIDKey contextKey = "mutation_id"
	passIDKey     contextKey = "pass_id"
	requestIDKey  contextKey = "request_id"
)

// WithRowID annotates context with the row identifier.
func WithRowID(ctx context.Context, rowID string) context.Context {
	if rowID == "" {
		return ctx
	}
	return context.WithValue(ctx, rowIDKey, rowID)
}

// RowIDFromContext returns the row identifier if present.
func RowIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(rowIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMutationID annotates context with the queued mutation identifier.
func WithMutationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, mutationIDKey, id)
}

// MutationIDFromContext returns the mutation identifier if present.
func MutationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(mutationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPassID annotates context with the sync pass identifier.
func WithPassID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, passIDKey, id)
}

// PassIDFromContext returns the sync pass identifier if present.
func PassIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(passIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
