// Package mail delivers one-time codes and verification messages to users.
package mail

import "context"

// Mailer sends a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, body string) error
}
