// internal/form/submit_test.go
//
// Unit-tests for Controller.  A fake transport stands in for the relay and a
// manual clock replaces time.AfterFunc so the revert can be fired on demand.

package form

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeTransport struct {
	mu    sync.Mutex
	calls []Values
	resp  *Response
	err   error

	// block, when set, holds Send until it is closed or ctx ends.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeTransport) Send(ctx context.Context, v Values) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, v)
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
	delays []time.Duration
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fn: f}
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// fire runs timer i even if it was stopped, modelling a callback that lost
// the race with Stop.
func (c *manualClock) fire(i int) {
	c.mu.Lock()
	t := c.timers[i]
	c.mu.Unlock()
	t.fn()
}

func (c *manualClock) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func okReply() *Response { return &Response{StatusCode: 200, Body: []byte(`{"ok":true}`)} }

func newTestController(t *testing.T, tr Transport) (*Controller, *manualClock) {
	t.Helper()
	clk := &manualClock{}
	c := NewController(NewStore(), tr, WithAfterFunc(clk.AfterFunc))
	t.Cleanup(c.Close)
	return c, clk
}

func fill(t *testing.T, s *Store, v Values) {
	t.Helper()
	for _, f := range Fields {
		if err := s.SetField(f, v.Get(f)); err != nil {
			t.Fatalf("SetField(%s): %v", f, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Scenarios
// -----------------------------------------------------------------------------

func TestSubmit_InvalidMakesNoRequest(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, _ := newTestController(t, tr)

	v := validValues()
	v.Name = "A"
	v.Email = "foo@bar"
	fill(t, c.Store(), v)

	res := c.Submit(context.Background())
	if res.Outcome != OutcomeInvalid {
		t.Fatalf("outcome = %s, want invalid", res.Outcome)
	}
	if res.Focus != FieldName {
		t.Fatalf("focus = %s, want name", res.Focus)
	}
	if tr.count() != 0 {
		t.Fatalf("transport called %d times, want 0", tr.count())
	}

	snap := c.Store().Snapshot()
	for _, f := range Fields {
		if !snap.Touched[f] {
			t.Fatalf("field %s not touched after submit attempt", f)
		}
	}
	if snap.VisibleError(FieldEmail) != MsgEmail {
		t.Fatalf("email error = %q", snap.VisibleError(FieldEmail))
	}
	if c.State().Status != StatusIdle {
		t.Fatalf("status = %s, want idle", c.State().Status)
	}
}

func TestSubmit_FocusFollowsDeclarationOrder(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, _ := newTestController(t, tr)

	v := validValues()
	v.Message = "short"
	v.Phone = "abc"
	fill(t, c.Store(), v)

	if res := c.Submit(context.Background()); res.Focus != FieldPhone {
		t.Fatalf("focus = %s, want phone", res.Focus)
	}
}

func TestSubmit_HoneypotFakesSuccess(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, clk := newTestController(t, tr)

	v := validValues()
	v.Honeypot = "http://spam.example"
	fill(t, c.Store(), v)

	res := c.Submit(context.Background())
	if res.Outcome != OutcomeTrapped {
		t.Fatalf("outcome = %s, want trapped", res.Outcome)
	}
	if tr.count() != 0 {
		t.Fatalf("honeypot submission reached the transport")
	}
	if c.State().Status != StatusSubmitted || c.Label() != LabelSubmitted {
		t.Fatalf("state = %+v label = %q", c.State(), c.Label())
	}
	if c.Store().Values() != (Values{}) {
		t.Fatalf("values not cleared: %+v", c.Store().Values())
	}

	clk.fire(0)
	if c.State().Status != StatusIdle {
		t.Fatalf("status after revert = %s, want idle", c.State().Status)
	}
}

func TestSubmit_HoneypotSkipsValidation(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, _ := newTestController(t, tr)

	_ = c.Store().SetField(FieldHoneypot, "x")
	if res := c.Submit(context.Background()); res.Outcome != OutcomeTrapped {
		t.Fatalf("outcome = %s, want trapped", res.Outcome)
	}
}

func TestSubmit_HoneypotClearsFailureBanner(t *testing.T) {
	tr := &fakeTransport{resp: &Response{StatusCode: 502}}
	c, _ := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	c.Submit(context.Background())
	if c.State().LastError == "" {
		t.Fatal("first submit left no banner")
	}

	_ = c.Store().SetField(FieldHoneypot, "x")
	if res := c.Submit(context.Background()); res.Outcome != OutcomeTrapped {
		t.Fatalf("outcome = %s, want trapped", res.Outcome)
	}
	if st := c.State(); st.LastError != "" {
		t.Fatalf("LastError = %q after trapped submit, want empty", st.LastError)
	}
}

func TestSubmit_SuccessResetsAndReverts(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, clk := newTestController(t, tr)

	var labels []string
	c.Subscribe(func(State) { labels = append(labels, c.Label()) })

	fill(t, c.Store(), validValues())
	res := c.Submit(context.Background())

	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome = %s, want sent", res.Outcome)
	}
	if tr.count() != 1 {
		t.Fatalf("transport called %d times, want 1", tr.count())
	}
	if got := tr.calls[0]; got != validValues() {
		t.Fatalf("payload = %+v", got)
	}
	if c.Store().Values() != (Values{}) {
		t.Fatalf("values not cleared")
	}
	if len(c.Store().Snapshot().Touched) != 0 {
		t.Fatalf("touched set not cleared")
	}
	if clk.len() != 1 || clk.delays[0] != DefaultRevertDelay {
		t.Fatalf("revert timer = %v, want one at %v", clk.delays, DefaultRevertDelay)
	}

	clk.fire(0)
	want := []string{LabelSending, LabelSubmitted, LabelIdle}
	if strings.Join(labels, "|") != strings.Join(want, "|") {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
}

func TestSubmit_FailureKeepsValues(t *testing.T) {
	tr := &fakeTransport{resp: &Response{StatusCode: 500, Body: []byte(`{"ok":false,"error":"boom"}`)}}
	c, clk := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	res := c.Submit(context.Background())

	if res.Outcome != OutcomeFailed || res.Err != "boom" {
		t.Fatalf("result = %+v, want failed/boom", res)
	}
	st := c.State()
	if st.Status != StatusIdle || st.LastError != "boom" {
		t.Fatalf("state = %+v", st)
	}
	if c.Store().Values() != validValues() {
		t.Fatalf("values lost after failure")
	}
	if clk.len() != 0 {
		t.Fatalf("revert armed after failure")
	}
}

func TestSubmit_TransportErrorIsCaptured(t *testing.T) {
	tr := &fakeTransport{err: errors.New("dial tcp: connection refused")}
	c, _ := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	res := c.Submit(context.Background())
	if res.Outcome != OutcomeFailed || res.Err != "dial tcp: connection refused" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSubmit_RetryClearsLastError(t *testing.T) {
	tr := &fakeTransport{resp: &Response{StatusCode: 502}}
	c, _ := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	c.Submit(context.Background())
	if c.State().LastError != "HTTP 502" {
		t.Fatalf("LastError = %q", c.State().LastError)
	}

	tr.resp = okReply()
	var sawCleared bool
	c.Subscribe(func(st State) {
		if st.Status == StatusSending && st.LastError == "" {
			sawCleared = true
		}
	})
	if res := c.Submit(context.Background()); res.Outcome != OutcomeSent {
		t.Fatalf("retry outcome = %s", res.Outcome)
	}
	if !sawCleared {
		t.Fatalf("banner not cleared on entering sending")
	}
}

func TestSubmit_BusyWhileSending(t *testing.T) {
	tr := &fakeTransport{
		resp:    okReply(),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	c, _ := newTestController(t, tr)
	fill(t, c.Store(), validValues())

	done := make(chan Result, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-tr.entered

	if !c.Disabled() || c.Label() != LabelSending {
		t.Fatalf("control not disabled while sending")
	}
	if res := c.Submit(context.Background()); res.Outcome != OutcomeBusy {
		t.Fatalf("second submit = %s, want busy", res.Outcome)
	}

	close(tr.block)
	if res := <-done; res.Outcome != OutcomeSent {
		t.Fatalf("first submit = %s, want sent", res.Outcome)
	}
	if tr.count() != 1 {
		t.Fatalf("transport called %d times, want 1", tr.count())
	}
}

func TestSubmit_NewSubmitSupersedesRevert(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, clk := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	c.Submit(context.Background())
	fill(t, c.Store(), validValues())
	c.Submit(context.Background())

	if clk.len() != 2 {
		t.Fatalf("timers = %d, want 2", clk.len())
	}
	if !clk.timers[0].stopped {
		t.Fatalf("first revert timer not stopped")
	}

	clk.fire(0)
	if c.State().Status != StatusSubmitted {
		t.Fatalf("stale timer reverted the status")
	}
	clk.fire(1)
	if c.State().Status != StatusIdle {
		t.Fatalf("live timer did not revert")
	}
}

func TestClose_StopsRevertTimer(t *testing.T) {
	tr := &fakeTransport{resp: okReply()}
	c, clk := newTestController(t, tr)

	fill(t, c.Store(), validValues())
	c.Submit(context.Background())
	c.Close()

	if !clk.timers[0].stopped {
		t.Fatalf("revert timer not stopped on close")
	}
	clk.fire(0)
	if c.State().Status != StatusSubmitted {
		t.Fatalf("transition applied after close")
	}
	if res := c.Submit(context.Background()); res.Outcome != OutcomeClosed {
		t.Fatalf("submit after close = %s, want closed", res.Outcome)
	}
}

func TestClose_CancelsInFlight(t *testing.T) {
	tr := &fakeTransport{
		resp:    okReply(),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	c, _ := newTestController(t, tr)
	fill(t, c.Store(), validValues())

	done := make(chan Result, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-tr.entered

	c.Close()
	select {
	case res := <-done:
		if res.Outcome != OutcomeClosed {
			t.Fatalf("outcome = %s, want closed", res.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight submit not cancelled by Close")
	}

	if st := c.State(); st.Status != StatusIdle {
		t.Fatalf("status after Close = %s, want idle", st.Status)
	}
	if c.Disabled() || c.Label() != LabelIdle {
		t.Fatalf("disabled = %v label = %q after Close", c.Disabled(), c.Label())
	}
}

// -----------------------------------------------------------------------------
// Reply interpretation
// -----------------------------------------------------------------------------

func TestFailureMessage(t *testing.T) {
	long := strings.Repeat("x", 250)

	cases := []struct {
		name string
		resp *Response
		err  error
		want string
	}{
		{"ok", &Response{200, []byte(`{"ok":true}`)}, nil, ""},
		{"ok false with error", &Response{200, []byte(`{"ok":false,"error":"nope"}`)}, nil, "nope"},
		{"ok false bare", &Response{200, []byte(`{"ok":false}`)}, nil, `{"ok":false}`},
		{"2xx without json", &Response{200, []byte(`sent`)}, nil, "sent"},
		{"2xx empty", &Response{204, nil}, nil, "HTTP 204"},
		{"500 with error", &Response{500, []byte(`{"ok":false,"error":"boom"}`)}, nil, "boom"},
		{"500 ok true", &Response{500, []byte(`{"ok":true}`)}, nil, `{"ok":true}`},
		{"502 empty", &Response{502, nil}, nil, "HTTP 502"},
		{"html body", &Response{503, []byte("<h1>down</h1>")}, nil, "<h1>down</h1>"},
		{"long body", &Response{500, []byte(long)}, nil, long[:maxRawError]},
		{"transport error", nil, errors.New("timeout"), "timeout"},
		{"nil response", nil, nil, genericFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := failureMessage(tc.resp, tc.err); got != tc.want {
				t.Fatalf("failureMessage = %q, want %q", got, tc.want)
			}
		})
	}
}
