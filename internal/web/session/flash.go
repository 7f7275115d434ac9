package session

import (
	"context"
)

// Flash message kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// AddFlash queues a message on the request's session
func AddFlash(ctx context.Context, kind, message string) {
	if sess := FromContext(ctx); sess != nil {
		sess.AddFlash(kind, message)
	}
}

// Success queues a success message
func Success(ctx context.Context, message string) {
	AddFlash(ctx, FlashSuccess, message)
}

// Error queues an error message
func Error(ctx context.Context, message string) {
	AddFlash(ctx, FlashError, message)
}

// Flashes returns and clears the queued messages
func Flashes(ctx context.Context) []Flash {
	sess := FromContext(ctx)
	if sess == nil {
		return nil
	}
	return sess.PopFlashes()
}
