package logging

import (
	"context"
	"log/slog"

	"fieldscan/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRowID is the standardized structured logging key for row identifiers.
	FieldRowID = "row_id"
	// FieldMutationID is the standardized structured logging key for queued mutation identifiers.
	FieldMutationID = "mutation_id"
	// FieldPassID is the standardized structured logging key for sync pass identifiers.
	FieldPassID = "pass_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies warnings and errors for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldMutationKind is ADD, UPDATE or DELETE.
	FieldMutationKind = "kind"
	FieldSynced       = "synced"
	FieldFailed       = "failed"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.PassIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPassID, id))
	}
	if id, ok := services.MutationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMutationID, id))
	}
	if id, ok := services.RowIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRowID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
