package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent names the subsystem that emitted the line.
	FieldComponent = "component"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldSource is the platform id (reddit, twitter, ...).
	FieldSource = "source"
	// FieldSurface identifies one open surface of a source.
	FieldSurface = "surface"
	// FieldItemID is a classified item identifier.
	FieldItemID = "item_id"
	// FieldClassification is the classification assigned to an item.
	FieldClassification = "classification"
	// FieldRequestID correlates log lines of one IPC or HTTP request.
	FieldRequestID = "request_id"
)

type contextKey int

const (
	sourceKey contextKey = iota
	surfaceKey
	requestIDKey
)

// WithSource tags ctx with the source id.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// WithSurface tags ctx with the surface id.
func WithSurface(ctx context.Context, surface string) context.Context {
	return context.WithValue(ctx, surfaceKey, surface)
}

// WithRequestID tags ctx with a request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts the standard attributes stored in ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, entry := range []struct {
		key   contextKey
		field string
	}{{sourceKey, FieldSource}, {surfaceKey, FieldSurface}, {requestIDKey, FieldRequestID}} {
		if value, ok := ctx.Value(entry.key).(string); ok && strings.TrimSpace(value) != "" {
			fields = append(fields, slog.String(entry.field, value))
		}
	}
	return fields
}

// WithContext returns logger augmented with the fields stored in ctx.
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
