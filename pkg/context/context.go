package context

import (
	"context"
	"time"
)

// Default timeouts for different operations
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// ShortTimeout is for quick operations like cache lookups
	ShortTimeout = 5 * time.Second

	// MediumTimeout is for database queries
	MediumTimeout = 10 * time.Second
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID binds the acting user to the context.
func WithUserID(parent context.Context, userID string) context.Context {
	return context.WithValue(parent, userIDKey, userID)
}

// UserID returns the acting user, or "" when the request is not attributed to anyone
// (server side actions such as the startup sweep).
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// WithDefaultTimeout creates a context with the default timeout
func WithDefaultTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithShortTimeout creates a context with a short timeout
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithMediumTimeout creates a context with a medium timeout
func WithMediumTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, MediumTimeout)
}
