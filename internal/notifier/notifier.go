// Package notifier is the outbound notification channel. Delivery is
// best-effort: batch-level callers log and swallow per-recipient failures.
package notifier

import "context"

// Notifier sends a single notification to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}
