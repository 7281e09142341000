// internal/relay/actions.go
//
// Mail relay: post-submit actions.
//
// Context
//   An accepted submission is dispatched to a list of Actions.  The email
//   action is Required: if it fails the visitor is told to try again.  The
//   store and webhook actions are best effort.  They run after the reply
//   is written, and a failure is logged and counted, never surfaced.
//
// Actions
//   •  email    renders a text and an HTML body and hands them to a Mailer,
//               with Reply-To set to the visitor.
//   •  store    inserts one row into the submission table (sqlx, MySQL).
//   •  webhook  posts the submission as JSON with retries.
//
//------------------------------------------------------------------------------

package relay

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"regexp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ruthram360/site/internal/form"
	"github.com/ruthram360/site/internal/logger"
	"github.com/ruthram360/site/internal/message"
	"github.com/ruthram360/site/internal/requestinfo"
)

// Submission is one accepted form post plus request metadata.
type Submission struct {
	form.Values
	Info       *requestinfo.RequestInfo
	ReceivedAt time.Time
}

// Action is one post-submit step.
type Action interface {
	Name() string
	Required() bool
	Run(ctx context.Context, s Submission) error
}

// -----------------------------------------------------------------------------
// Email action
// -----------------------------------------------------------------------------

const textBody = `New enquiry from the website contact form.

Name:     {{.Name}}
Email:    {{.Email}}
Phone:    {{or .Phone "-"}}
Company:  {{or .Company "-"}}
Service:  {{or .Service "-"}}
Project:  {{or .Project "-"}}

Message:
{{.Message}}
{{with .Info}}
--
IP {{.Geo.IP}}{{with .Geo.CountryISO}} ({{.}}){{end}}, {{.UA.Browser}} on {{.UA.OS}}{{end}}
Received {{.ReceivedAt.Format "2006-01-02 15:04 MST"}}
`

const htmlBody = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>New enquiry</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2 style="margin: 0 0 16px;">New enquiry from the website</h2>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><td><b>Name</b></td><td>{{.Name}}</td></tr>
    <tr><td><b>Email</b></td><td><a href="mailto:{{.Email}}">{{.Email}}</a></td></tr>
    {{with .Phone}}<tr><td><b>Phone</b></td><td>{{.}}</td></tr>{{end}}
    {{with .Company}}<tr><td><b>Company</b></td><td>{{.}}</td></tr>{{end}}
    {{with .Service}}<tr><td><b>Service</b></td><td>{{.}}</td></tr>{{end}}
    {{with .Project}}<tr><td><b>Project</b></td><td>{{.}}</td></tr>{{end}}
  </table>
  <div style="background: #f6f6f6; padding: 12px; border-left: 4px solid #c8102e; white-space: pre-wrap;">{{.Message}}</div>
  <p style="color: #888; font-size: 12px;">Reply to this email to answer {{.Name}} directly.</p>
</body>
</html>`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// EmailAction sends the submission to the studio mailbox.
type EmailAction struct {
	Mailer        message.Mailer
	To            []string
	SubjectPrefix string
}

func (EmailAction) Name() string   { return "email" }
func (EmailAction) Required() bool { return true }

// Run implements Action.
func (a EmailAction) Run(ctx context.Context, s Submission) error {
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, s); err != nil {
		return fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, s); err != nil {
		return fmt.Errorf("render html body: %w", err)
	}

	replyTo := s.Email
	if _, ok := message.ReplyTo(replyTo); !ok {
		// The address is still in the body; the lead is not lost.
		logger.FromContext(ctx).Warnw("contact reply-to unusable, omitted", "email", replyTo)
		replyTo = ""
	}

	return a.Mailer.Send(ctx, message.Email{
		To:      a.To,
		ReplyTo: replyTo,
		Subject: a.subject(s),
		Text:    text.String(),
		HTML:    html.String(),
	})
}

func (a EmailAction) subject(s Submission) string {
	topic := s.Service
	if topic == "" {
		topic = "General"
	}
	prefix := a.SubjectPrefix
	if prefix == "" {
		prefix = "New enquiry"
	}
	return fmt.Sprintf("%s: %s from %s", prefix, topic, strings.TrimSpace(s.Name))
}

// -----------------------------------------------------------------------------
// Store action
// -----------------------------------------------------------------------------

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// submissionRow is the column set of the submission table.
type submissionRow struct {
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	Company   string    `db:"company"`
	Service   string    `db:"service"`
	Project   string    `db:"project"`
	Message   string    `db:"message"`
	ClientIP  string    `db:"client_ip"`
	UserAgent string    `db:"user_agent"`
	Country   string    `db:"country"`
	CreatedAt time.Time `db:"created_at"`
}

// StoreAction persists submissions.
type StoreAction struct {
	db    *sqlx.DB
	query string
}

// NewStoreAction prepares the insert for table.  The table name is checked
// against an identifier pattern because it is spliced into the SQL text.
func NewStoreAction(db *sqlx.DB, table string) (*StoreAction, error) {
	if !identRx.MatchString(table) {
		return nil, fmt.Errorf("relay: invalid table name %q", table)
	}
	q := `INSERT INTO ` + table + ` (name, email, phone, company, service, project, message, client_ip, user_agent, country, created_at)
VALUES (:name, :email, :phone, :company, :service, :project, :message, :client_ip, :user_agent, :country, :created_at)`
	return &StoreAction{db: db, query: q}, nil
}

func (*StoreAction) Name() string   { return "store" }
func (*StoreAction) Required() bool { return false }

// Run implements Action.
func (a *StoreAction) Run(ctx context.Context, s Submission) error {
	row := submissionRow{
		Name:      s.Name,
		Email:     s.Email,
		Phone:     s.Phone,
		Company:   s.Company,
		Service:   s.Service,
		Project:   s.Project,
		Message:   s.Message,
		CreatedAt: s.ReceivedAt.UTC(),
	}
	if s.Info != nil {
		if s.Info.Geo.IP != nil {
			row.ClientIP = s.Info.Geo.IP.String()
		}
		row.UserAgent = truncate(s.Info.UA.Raw, 512)
		row.Country = s.Info.Geo.CountryISO
	}

	if _, err := a.db.NamedExecContext(ctx, a.query, row); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Webhook action
// -----------------------------------------------------------------------------

// Poster is satisfied by *message.WebhookSender.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

// webhookPayload omits the honeypot and raw UA.
type webhookPayload struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Company    string    `json:"company,omitempty"`
	Service    string    `json:"service,omitempty"`
	Project    string    `json:"project,omitempty"`
	Message    string    `json:"message"`
	Country    string    `json:"country,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// WebhookAction mirrors submissions to an external endpoint.
type WebhookAction struct {
	Sender Poster
}

func (WebhookAction) Name() string   { return "webhook" }
func (WebhookAction) Required() bool { return false }

// Run implements Action.
func (a WebhookAction) Run(ctx context.Context, s Submission) error {
	p := webhookPayload{
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Company:    s.Company,
		Service:    s.Service,
		Project:    s.Project,
		Message:    s.Message,
		ReceivedAt: s.ReceivedAt.UTC(),
	}
	if s.Info != nil {
		p.Country = s.Info.Geo.CountryISO
	}
	return a.Sender.Post(ctx, p)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
