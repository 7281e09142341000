// internal/message/message.go
//
// Outbound messaging.
//
// Context
//   The relay turns every accepted contact submission into one Email for the
//   studio mailbox and, when configured, one webhook call.  Mailer is the
//   seam: SMTPMailer talks to a real server, LogMailer only records the
//   envelope so a dev box without SMTP credentials still runs end to end.
//
//   WebhookSender lives in webhook.go.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Email is one outbound message.  HTML is optional; Text is always sent.
type Email struct {
	To      []string
	ReplyTo string // submitter address, so “Reply” in the mailbox reaches them
	Subject string
	Text    string
	HTML    string
}

// ErrNoRecipients is returned for an Email without To addresses.
var ErrNoRecipients = errors.New("message: no recipients")

// Mailer delivers an Email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer logs the envelope and returns nil.
type LogMailer struct {
	Log *zap.SugaredLogger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, e Email) error {
	if len(e.To) == 0 {
		return ErrNoRecipients
	}
	log := m.Log
	if log == nil {
		log = zap.S()
	}
	log.Infow("mail (log only)",
		"to", e.To,
		"reply_to", e.ReplyTo,
		"subject", e.Subject,
		"text_len", len(e.Text),
		"html_len", len(e.HTML),
	)
	return nil
}
