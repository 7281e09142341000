// internal/message/smtp.go
//
// SMTP delivery.
//
// Context
//   SMTPMailer renders a multipart/alternative MIME message (text first,
//   HTML second) and hands it to net/smtp.SendMail with PLAIN auth when a
//   username is configured.  Header values that come from the public form
//   (Reply-To, Subject) are encoded through net/mail and mime so a crafted
//   value cannot inject extra headers.  A Reply-To net/mail rejects is left
//   out; the message still goes through.
//
//------------------------------------------------------------------------------

package message

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer is safe for concurrent use.
type SMTPMailer struct {
	cfg  SMTPConfig
	send SendFunc
	now  func() time.Time
}

// NewSMTPMailer returns a mailer for cfg.  send may be nil, in which case
// smtp.SendMail is used.
func NewSMTPMailer(cfg SMTPConfig, send SendFunc) *SMTPMailer {
	if send == nil {
		send = smtp.SendMail
	}
	return &SMTPMailer{cfg: cfg, send: send, now: time.Now}
}

// Send implements Mailer.  net/smtp has no context support, so ctx is only
// checked before dialling.
func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if len(e.To) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.build(e)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, e.To, msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	return nil
}

// build renders the full RFC 5322 message.
func (m *SMTPMailer) build(e Email) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	from := &mail.Address{Address: m.cfg.From}
	hdr("From", from.String())
	to := make([]string, 0, len(e.To))
	for _, a := range e.To {
		to = append(to, (&mail.Address{Address: a}).String())
	}
	hdr("To", strings.Join(to, ", "))
	if rt, ok := ReplyTo(e.ReplyTo); ok {
		hdr("Reply-To", rt)
	}
	hdr("Subject", mime.QEncoding.Encode("utf-8", oneLine(e.Subject)))
	hdr("Date", m.now().Format(time.RFC1123Z))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	if err := writePart(mw, "text/plain; charset=utf-8", e.Text); err != nil {
		return nil, err
	}
	if e.HTML != "" {
		if err := writePart(mw, "text/html; charset=utf-8", e.HTML); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReplyTo formats addr as a Reply-To header value.  It reports false for an
// empty address or one net/mail cannot parse; the header is then omitted.
func ReplyTo(addr string) (string, bool) {
	if addr == "" {
		return "", false
	}
	a, err := mail.ParseAddress(addr)
	if err != nil {
		return "", false
	}
	return a.String(), true
}

func writePart(mw *multipart.Writer, ctype, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", ctype)
	h.Set("Content-Transfer-Encoding", "8bit")
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(body))
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
