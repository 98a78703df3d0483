package ports

import "context"

// Mailer delivers transactional mail. Delivery failures are logged and
// swallowed by callers: the triggering mutation has already succeeded and
// must not be rolled back over a notification.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, resetToken string) error
}
