// cmd/contact/main.go
//
// Command-line contact form.
//
// Drives the same form pipeline the site runs: values are set field by
// field, every field is blurred so messages surface, and Submit posts to the
// relay.  Operators use it as a smoke test after a deploy:
//
//	contact --url https://ruthram360.example --name "Asha Raman" \
//	        --email asha@example.com --message "Testing the relay end to end."
//
// Exit status: 0 sent, 1 relay or transport failure, 2 invalid input.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/ruthram360/site/internal/form"
)

// Exit codes.
const (
	exitSent    = 0
	exitFailed  = 1
	exitInvalid = 2
)

// CLI is the flag set.  Each form input has its own flag; the honeypot does not.
type CLI struct {
	URL      string        `help:"Site base URL." default:"http://localhost:8080"`
	Endpoint string        `help:"Relay path." default:"${endpoint}"`
	Timeout  time.Duration `help:"Request timeout." default:"20s"`
	Verbose  bool          `short:"v" help:"Log state transitions."`

	Name    string `help:"Sender's full name."`
	Email   string `help:"Reply address."`
	Phone   string `help:"Phone number."`
	Company string `help:"Company."`
	Service string `help:"Service of interest."`
	Project string `help:"Project details."`
	Message string `help:"Message body."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("contact"),
		kong.Description("Submit the contact form to a running relay."),
		kong.UsageOnError(),
		kong.Vars{"endpoint": form.DefaultEndpoint},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.run(ctx, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// values returns the flag inputs in declaration order.
func (c *CLI) values() []struct {
	f form.Field
	v string
} {
	return []struct {
		f form.Field
		v string
	}{
		{form.FieldName, c.Name},
		{form.FieldEmail, c.Email},
		{form.FieldPhone, c.Phone},
		{form.FieldCompany, c.Company},
		{form.FieldService, c.Service},
		{form.FieldProject, c.Project},
		{form.FieldMessage, c.Message},
	}
}

// run submits the form once and returns the process exit code.
func (c *CLI) run(ctx context.Context, stdout, stderr io.Writer) int {
	log := zap.NewNop().Sugar()
	if c.Verbose {
		if z, err := zap.NewDevelopment(); err == nil {
			log = z.Sugar()
			defer func() { _ = z.Sync() }()
		}
	}

	tr, err := form.NewHTTPTransport(c.URL, c.Endpoint, nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}

	store := form.NewStore()
	ctl := form.NewController(store, tr, form.WithLogger(log))
	defer ctl.Close()
	ctl.Subscribe(func(st form.State) { log.Debugw("state", "status", st.Status, "label", ctl.Label()) })

	for _, in := range c.values() {
		if err := store.SetField(in.f, in.v); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInvalid
		}
		if err := store.Blur(in.f); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInvalid
		}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	res := ctl.Submit(ctx)
	switch res.Outcome {
	case form.OutcomeSent:
		fmt.Fprintln(stdout, form.LabelSubmitted)
		return exitSent
	case form.OutcomeInvalid:
		for _, f := range form.Fields {
			if msg := res.Errors[f]; msg != "" {
				fmt.Fprintf(stderr, "%s: %s\n", f, msg)
			}
		}
		return exitInvalid
	default:
		fmt.Fprintf(stderr, "%s: %s\n", res.Outcome, res.Err)
		return exitFailed
	}
}
