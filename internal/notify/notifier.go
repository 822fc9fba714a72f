// Package notify delivers best-effort human notifications about entries and
// exits. Delivery failures are the caller's to log, never to act on.
package notify

import "context"

// Notifier sends a human-readable message.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Nop discards all messages. Used when no notification channel is configured.
type Nop struct{}

// Send does nothing.
func (Nop) Send(ctx context.Context, message string) error {
	return nil
}
