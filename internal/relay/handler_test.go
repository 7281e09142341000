// internal/relay/handler_test.go
//
// Relay handler tests.  The last test drives the real form controller
// through HTTPTransport against the relay, so the reply contract is checked
// from both ends.

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ruthram360/site/internal/form"
	"github.com/ruthram360/site/internal/message"
)

type fakeAction struct {
	name     string
	required bool
	err      error

	mu    sync.Mutex
	calls []Submission
}

func (a *fakeAction) Name() string   { return a.name }
func (a *fakeAction) Required() bool { return a.required }
func (a *fakeAction) Run(_ context.Context, s Submission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, s)
	return a.err
}

func (a *fakeAction) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *fakeAction) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func validBody() form.Values {
	return form.Values{
		Name:    "Asha Raman",
		Email:   "asha@example.com",
		Service: "Virtual Tours",
		Message: "We would like a 360 tour of our new showroom.",
	}
}

func post(t *testing.T, h http.Handler, body any) (int, form.Reply) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/send-email", &buf)
	req.RemoteAddr = "203.0.113.7:4444"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type = %q", ct)
	}
	var rep form.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("reply not JSON: %q", rec.Body.String())
	}
	return rec.Code, rep
}

func newTestHandler(actions []Action, opts ...Option) *Handler {
	opts = append([]Option{WithLogger(zap.NewNop().Sugar())}, opts...)
	return NewHandler(actions, opts...)
}

func TestHandler_Success(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	store := &fakeAction{name: "store"}
	h := newTestHandler([]Action{email, store})

	code, rep := post(t, h, validBody())
	h.Wait()

	if code != http.StatusOK || !rep.OK || rep.Error != "" {
		t.Fatalf("reply = %d %+v, want 200 ok", code, rep)
	}
	if email.count() != 1 || store.count() != 1 {
		t.Fatalf("calls email=%d store=%d, want 1/1", email.count(), store.count())
	}
	if got := email.calls[0]; got.Values != validBody() || got.Info == nil {
		t.Fatalf("submission = %+v", got)
	}
	if ip := email.calls[0].Info.Geo.IP.String(); ip != "203.0.113.7" {
		t.Fatalf("client ip = %s", ip)
	}
}

func TestHandler_OddEmailStillDelivered(t *testing.T) {
	var sent []byte
	mailer := message.NewSMTPMailer(message.SMTPConfig{Host: "localhost", Port: 25, From: "site@x.example"},
		func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
			sent = msg
			return nil
		})
	h := newTestHandler([]Action{EmailAction{Mailer: mailer, To: []string{"studio@x.example"}}})

	body := validBody()
	body.Email = "john.@x.com"
	code, rep := post(t, h, body)
	if code != http.StatusOK || !rep.OK {
		t.Fatalf("reply = %d %+v, want 200 ok", code, rep)
	}
	if sent == nil || bytes.Contains(sent, []byte("Reply-To:")) {
		t.Fatalf("message not sent or carries a Reply-To:\n%s", sent)
	}
}

func TestHandler_Malformed(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email})

	code, rep := post(t, h, "{not json")
	if code != http.StatusBadRequest || rep.OK || rep.Error != MsgBadRequest {
		t.Fatalf("reply = %d %+v", code, rep)
	}

	big := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	if code, _ := post(t, h, big); code != http.StatusBadRequest {
		t.Fatalf("oversized body = %d, want 400", code)
	}
	if email.count() != 0 {
		t.Fatal("action ran on malformed input")
	}
}

func TestHandler_HoneypotIsSilent(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email})

	body := form.Values{Honeypot: "http://spam.example"}
	code, rep := post(t, h, body)
	if code != http.StatusOK || !rep.OK {
		t.Fatalf("reply = %d %+v, want 200 ok", code, rep)
	}
	if email.count() != 0 {
		t.Fatal("honeypot submission reached an action")
	}
}

func TestHandler_Invalid(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email})

	body := validBody()
	body.Email = "foo@bar"
	body.Message = "short"
	code, rep := post(t, h, body)

	if code != http.StatusUnprocessableEntity || rep.Error != form.MsgEmail {
		t.Fatalf("reply = %d %+v, want 422 %q", code, rep, form.MsgEmail)
	}
	if email.count() != 0 {
		t.Fatal("invalid submission reached an action")
	}
}

func TestHandler_Throttled(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email}, WithThrottle(NewThrottle(1, time.Minute, 0)))

	if code, _ := post(t, h, validBody()); code != http.StatusOK {
		t.Fatalf("first post = %d", code)
	}
	code, rep := post(t, h, validBody())
	if code != http.StatusTooManyRequests || rep.Error != MsgThrottled {
		t.Fatalf("second post = %d %+v", code, rep)
	}
	if email.count() != 1 {
		t.Fatalf("email calls = %d, want 1", email.count())
	}
}

func TestHandler_ThrottleIgnoresForwardedFor(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email}, WithThrottle(NewThrottle(2, time.Minute, 0)))

	codes := make([]int, 0, 4)
	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3", "198.51.100.4"} {
		body, _ := json.Marshal(validBody())
		req := httptest.NewRequest(http.MethodPost, "/api/send-email", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.7:4444"
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-Ip", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if i >= 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("post %d with XFF %s = %d, want 429 (codes %v)", i+1, xff, rec.Code, codes)
		}
	}
	if email.count() != 2 {
		t.Fatalf("email calls = %d, want 2", email.count())
	}
}

func TestHandler_RequiredActionFails(t *testing.T) {
	email := &fakeAction{name: "email", required: true, err: errors.New("smtp down")}
	webhook := &fakeAction{name: "webhook"}
	h := newTestHandler([]Action{email, webhook})

	code, rep := post(t, h, validBody())
	h.Wait()

	if code != http.StatusBadGateway || rep.Error != MsgSendFailed {
		t.Fatalf("reply = %d %+v", code, rep)
	}
	if webhook.count() != 0 {
		t.Fatal("optional action ran after required failure")
	}
}

func TestHandler_OptionalFailureIgnored(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	store := &fakeAction{name: "store", err: errors.New("db gone")}
	h := newTestHandler([]Action{email, store})

	code, rep := post(t, h, validBody())
	h.Wait()
	if code != http.StatusOK || !rep.OK {
		t.Fatalf("reply = %d %+v", code, rep)
	}
}

func TestHandler_UnknownServiceAccepted(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email}, WithServices([]string{"Virtual Tours"}))

	body := validBody()
	body.Service = "Wedding Films"
	if code, _ := post(t, h, body); code != http.StatusOK {
		t.Fatalf("unknown service = %d, want 200", code)
	}
}

func TestHandler_FormControllerRoundTrip(t *testing.T) {
	email := &fakeAction{name: "email", required: true}
	h := newTestHandler([]Action{email})

	r := chi.NewRouter()
	h.Mount(r, form.DefaultEndpoint)
	srv := httptest.NewServer(r)
	defer srv.Close()

	tr, err := form.NewHTTPTransport(srv.URL, "", srv.Client())
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	c := form.NewController(form.NewStore(), tr, form.WithRevertDelay(time.Hour))
	defer c.Close()

	for f, v := range map[form.Field]string{
		form.FieldName:    "Asha Raman",
		form.FieldEmail:   "asha@example.com",
		form.FieldMessage: "We would like a 360 tour of our new showroom.",
	} {
		if err := c.Store().SetField(f, v); err != nil {
			t.Fatal(err)
		}
	}

	res := c.Submit(context.Background())
	if res.Outcome != form.OutcomeSent {
		t.Fatalf("outcome = %s (%s), want sent", res.Outcome, res.Err)
	}
	if email.count() != 1 {
		t.Fatalf("email calls = %d", email.count())
	}

	// A relay-side failure surfaces as the banner message.
	email.fail(errors.New("smtp down"))
	_ = c.Store().SetField(form.FieldName, "Asha Raman")
	_ = c.Store().SetField(form.FieldEmail, "asha@example.com")
	_ = c.Store().SetField(form.FieldMessage, "Second attempt at a long enough message.")
	res = c.Submit(context.Background())
	if res.Outcome != form.OutcomeFailed || res.Err != MsgSendFailed {
		t.Fatalf("result = %+v, want failed %q", res, MsgSendFailed)
	}
	if c.State().LastError != MsgSendFailed {
		t.Fatalf("LastError = %q", c.State().LastError)
	}
}
