package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTransferID is the standardized structured logging key for queued transfer identifiers.
	FieldTransferID = "transfer_id"
	// FieldPropertyID is the standardized structured logging key for tracked property identifiers.
	FieldPropertyID = "property_id"
	// FieldTrigger names the event that started a sync pass.
	FieldTrigger = "trigger"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

type contextKey int

const (
	transferIDKey contextKey = iota
	propertyIDKey
	requestIDKey
)

// WithTransfer tags ctx with the transfer and property being processed.
func WithTransfer(ctx context.Context, transferID, propertyID string) context.Context {
	ctx = context.WithValue(ctx, transferIDKey, transferID)
	return context.WithValue(ctx, propertyIDKey, propertyID)
}

// WithRequestID tags ctx with an inbound request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := ctx.Value(transferIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldTransferID, id))
	}
	if id, ok := ctx.Value(propertyIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldPropertyID, id))
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
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
