package logger

import (
	"context"
)

// ContextKey is used for context values
type ContextKey string

const (
	// UserIDKey is the context key for the querying user
	UserIDKey ContextKey = "user_id"
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// ObjectKey is the context key for the query's base object
	ObjectKey ContextKey = "object"
)

// WithContextValue adds a value to the context for logging
func WithContextValue(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// ExtractContextValues extracts logging-relevant values from context
func ExtractContextValues(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var args []any

	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		args = append(args, "user_id", userID)
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		args = append(args, "request_id", requestID)
	}

	if object, ok := ctx.Value(ObjectKey).(string); ok {
		args = append(args, "object", object)
	}

	return args
}
