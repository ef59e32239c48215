package services

import "context"

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	imageIDKey     contextKey = "image_id"
	bottleIndexKey contextKey = "bottle_index"
)

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

// WithImageID annotates context with the identifier of the image being scanned.
func WithImageID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, imageIDKey, id)
}

// ImageIDFromContext returns the image identifier if present.
func ImageIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(imageIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBottleIndex annotates context with the bottle currently being processed.
func WithBottleIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, bottleIndexKey, index)
}

// BottleIndexFromContext extracts the bottle index if present.
func BottleIndexFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(bottleIndexKey).(int)
	return v, ok
}
