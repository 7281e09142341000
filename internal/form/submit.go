// internal/form/submit.go
//
// Contact form subsystem: submission controller.
//
// Context
//   Controller drives one form through its submit life-cycle:
//
//       Idle → Validating → (Invalid | Sending) → (Success | Failure) → Idle
//
//   Only one request may be in flight.  While Sending the control is inert
//   and a second Submit returns OutcomeBusy without touching the network.
//
// Workflow
//   1.  Honeypot filled → pretend success, no request, revert after delay.
//   2.  ValidateAll, touch every field.  Any error → OutcomeInvalid with the
//       first failing field (declaration order) as Focus.
//   3.  Cancel a pending revert, clear LastError, enter Sending.
//   4.  Transport.Send with every field.
//   5.  Success → reset store, enter Submitted, arm the revert timer.
//       Failure → LastError set, back to Idle, values kept for a retry.
//
//   Transport errors never escape Submit.  Close tears the controller down:
//   the revert timer is stopped, an in-flight request is cancelled, and no
//   later transition is applied.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRevertDelay is how long the “sent” confirmation stays up.
const DefaultRevertDelay = 3500 * time.Millisecond

const (
	genericFailure = "Something went wrong"
	maxRawError    = 200
)

// Submit control labels.
const (
	LabelIdle      = "Send Message"
	LabelSending   = "Sending..."
	LabelSubmitted = "Message Sent!"
)

// Status is the visible submission state.
type Status int

const (
	StatusIdle Status = iota
	StatusSending
	StatusSubmitted
)

func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSubmitted:
		return "submitted"
	default:
		return "idle"
	}
}

// State is what a view renders: the status plus the top-level banner.
type State struct {
	Status    Status
	LastError string
}

// Outcome classifies the result of one Submit call.
type Outcome int

const (
	OutcomeSent    Outcome = iota // relay accepted the message
	OutcomeInvalid                // blocked by validation, no request made
	OutcomeTrapped                // honeypot filled, success shown, no request
	OutcomeFailed                 // transport or relay failure, see Err
	OutcomeBusy                   // a request is already in flight
	OutcomeClosed                 // controller torn down
)

func (o Outcome) String() string {
	return [...]string{"sent", "invalid", "trapped", "failed", "busy", "closed"}[o]
}

// Result reports what Submit did.
type Result struct {
	Outcome Outcome
	Focus   Field  // first invalid field, OutcomeInvalid only
	Errors  Errors // full validation result, OutcomeInvalid only
	Err     string // banner message, OutcomeFailed only
}

// Timer is the handle returned by an AfterFunc.
type Timer interface{ Stop() bool }

// AfterFunc schedules f after d.  time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a Controller.
type Option func(*Controller)

// WithRevertDelay overrides DefaultRevertDelay.
func WithRevertDelay(d time.Duration) Option { return func(c *Controller) { c.delay = d } }

// WithLogger attaches a sugared zap logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(c *Controller) { c.log = l } }

// WithAfterFunc swaps the timer factory, mainly for tests.
func WithAfterFunc(fn AfterFunc) Option { return func(c *Controller) { c.afterFunc = fn } }

// Controller is safe for concurrent use.
type Controller struct {
	store     *Store
	transport Transport
	log       *zap.SugaredLogger
	delay     time.Duration
	afterFunc AfterFunc

	mu        sync.Mutex
	status    Status
	lastError string
	revert    Timer
	revertGen uint64
	cancel    context.CancelFunc
	closed    bool
	observers map[int]func(State)
	nextID    int
}

// NewController wires a store to a transport.
func NewController(store *Store, t Transport, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		transport: t,
		log:       zap.NewNop().Sugar(),
		delay:     DefaultRevertDelay,
		afterFunc: stdAfterFunc,
		observers: make(map[int]func(State)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the form state the controller operates on.
func (c *Controller) Store() *Store { return c.store }

// State returns the current status and banner message.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Status: c.status, LastError: c.lastError}
}

// Disabled reports whether the submit control must ignore input.
func (c *Controller) Disabled() bool { return c.State().Status == StatusSending }

// Label returns the submit control caption for the current status.
func (c *Controller) Label() string {
	switch c.State().Status {
	case StatusSending:
		return LabelSending
	case StatusSubmitted:
		return LabelSubmitted
	default:
		return LabelIdle
	}
}

// Subscribe registers fn to receive the State after every transition.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Submit runs one submit attempt to completion.  It blocks for the duration
// of the transport call.
func (c *Controller) Submit(ctx context.Context) Result {
	if r, stop := c.gate(); stop {
		return r
	}

	vals := c.store.Values()

	if vals.Trapped() {
		c.log.Infow("contact honeypot tripped, faking success")
		c.store.reset()
		c.enterSubmitted()
		return Result{Outcome: OutcomeTrapped}
	}

	errs := ValidateAll(vals)
	c.store.touchAll(errs)
	if f, msg, ok := errs.First(); ok {
		c.log.Debugw("contact submit blocked by validation", "field", f, "msg", msg)
		return Result{Outcome: OutcomeInvalid, Focus: f, Errors: errs}
	}

	reqCtx, r, stop := c.begin(ctx)
	if stop {
		return r
	}

	resp, err := c.transport.Send(reqCtx, vals)
	return c.finish(failureMessage(resp, err))
}

// Close stops the revert timer and cancels any in-flight request.  It is
// idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopRevertLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// -----------------------------------------------------------------------------
// Transitions
// -----------------------------------------------------------------------------

// gate rejects a submit on a closed or busy controller.
func (c *Controller) gate() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gateLocked()
}

// begin moves to Sending and derives the cancellable request context.
func (c *Controller) begin(ctx context.Context) (context.Context, Result, bool) {
	c.mu.Lock()
	if r, stop := c.gateLocked(); stop {
		c.mu.Unlock()
		return nil, r, true
	}
	c.stopRevertLocked()
	c.lastError = ""
	c.status = StatusSending
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.notify()
	return reqCtx, Result{}, false
}

func (c *Controller) gateLocked() (Result, bool) {
	switch {
	case c.closed:
		return Result{Outcome: OutcomeClosed}, true
	case c.status == StatusSending:
		return Result{Outcome: OutcomeBusy}, true
	}
	return Result{}, false
}

// finish leaves Sending.  msg == "" means the relay accepted the message.
func (c *Controller) finish(msg string) Result {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.closed {
		// No observer is notified after teardown, but State stays truthful.
		c.status = StatusIdle
		c.mu.Unlock()
		return Result{Outcome: OutcomeClosed}
	}
	if msg != "" {
		c.status = StatusIdle
		c.lastError = msg
		c.mu.Unlock()

		c.log.Warnw("contact submit failed", "error", msg)
		c.notify()
		return Result{Outcome: OutcomeFailed, Err: msg}
	}
	c.mu.Unlock()

	c.store.reset()
	c.enterSubmitted()
	c.log.Infow("contact submit accepted")
	return Result{Outcome: OutcomeSent}
}

// enterSubmitted shows the confirmation and arms a fresh revert timer.
func (c *Controller) enterSubmitted() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopRevertLocked()
	c.lastError = ""
	c.status = StatusSubmitted
	c.revertGen++
	gen := c.revertGen
	c.revert = c.afterFunc(c.delay, func() { c.revertIdle(gen) })
	c.mu.Unlock()

	c.notify()
}

// revertIdle is the timer callback.  A superseded or torn-down timer is a
// no-op even if Stop lost the race with the callback.
func (c *Controller) revertIdle(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.revertGen || c.status != StatusSubmitted {
		c.mu.Unlock()
		return
	}
	c.status = StatusIdle
	c.revert = nil
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) stopRevertLocked() {
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
	c.revertGen++
}

func (c *Controller) notify() {
	c.mu.Lock()
	st := State{Status: c.status, LastError: c.lastError}
	fns := make([]func(State), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// -----------------------------------------------------------------------------
// Reply interpretation
// -----------------------------------------------------------------------------

// failureMessage returns "" when the relay accepted the submission, or the
// banner text otherwise.  Preference: relay error field, raw body (capped),
// then the HTTP status.
func failureMessage(resp *Response, err error) string {
	if err != nil {
		if m := err.Error(); m != "" {
			return m
		}
		return genericFailure
	}
	if resp == nil {
		return genericFailure
	}

	var reply *Reply
	if len(resp.Body) > 0 {
		var r Reply
		if json.Unmarshal(resp.Body, &r) == nil {
			reply = &r
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if success && reply != nil && reply.OK {
		return ""
	}

	switch {
	case reply != nil && reply.Error != "":
		return reply.Error
	case len(resp.Body) > 0:
		return truncate(string(resp.Body), maxRawError)
	default:
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
