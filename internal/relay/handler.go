// internal/relay/handler.go
//
// Mail relay: the endpoint the contact form posts to.
//
// Context
//   The browser already validated the form, but the relay trusts nothing.
//   It decodes the JSON body, silently accepts honeypot posts, throttles
//   per client, re-runs the same field rules, and only then dispatches
//   the actions.  Every reply is JSON `{ "ok": bool, "error"?: string }`,
//   the shape the form controller interprets.
//
// Workflow
//   1.  Body capped at 64 KiB.  Malformed JSON → 400.
//   2.  Honeypot filled → 200 ok, nothing runs.
//   3.  Client over budget → 429.
//   4.  form.ValidateAll.  First message (declaration order) → 422.
//   5.  Required actions in order.  Any failure → 502.
//   6.  200 ok.  Optional actions continue in the background.
//
//------------------------------------------------------------------------------

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ruthram360/site/internal/form"
	"github.com/ruthram360/site/internal/logger"
	"github.com/ruthram360/site/internal/metrics"
	"github.com/ruthram360/site/internal/requestinfo"
)

// MaxBodyBytes caps the request body.
const MaxBodyBytes = 64 << 10

// Reply messages.
const (
	MsgBadRequest = "Invalid request body."
	MsgThrottled  = "Too many requests. Please try again later."
	MsgSendFailed = "Failed to send message. Please try again later."
)

// DefaultActionTimeout bounds each background action.
const DefaultActionTimeout = 30 * time.Second

// Option configures a Handler.
type Option func(*Handler)

// WithServices sets the offered service names.  Posts naming anything else
// are accepted and logged.
func WithServices(names []string) Option {
	return func(h *Handler) {
		h.services = make(map[string]struct{}, len(names))
		for _, n := range names {
			h.services[n] = struct{}{}
		}
	}
}

// WithThrottle attaches a per-client throttle.
func WithThrottle(t *Throttle) Option { return func(h *Handler) { h.throttle = t } }

// WithLogger sets the logger used when no request logger is in context and
// by background actions.
func WithLogger(l *zap.SugaredLogger) Option { return func(h *Handler) { h.log = l } }

// WithActionTimeout overrides DefaultActionTimeout.
func WithActionTimeout(d time.Duration) Option { return func(h *Handler) { h.timeout = d } }

// Handler serves the relay endpoint.
type Handler struct {
	actions  []Action
	services map[string]struct{}
	throttle *Throttle
	log      *zap.SugaredLogger
	timeout  time.Duration
	now      func() time.Time

	bg sync.WaitGroup
}

// NewHandler returns a relay dispatching to actions in order.
func NewHandler(actions []Action, opts ...Option) *Handler {
	h := &Handler{
		actions: actions,
		log:     zap.S(),
		timeout: DefaultActionTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the relay on r at endpoint.
func (h *Handler) Mount(r chi.Router, endpoint string) {
	r.Post(endpoint, h.ServeHTTP)
}

// Wait blocks until background actions finish.  Call during shutdown.
func (h *Handler) Wait() { h.bg.Wait() }

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.requestLog(ctx)

	var vals form.Values
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&vals); err != nil {
		h.reject(w, log, "malformed", http.StatusBadRequest, MsgBadRequest, "err", err)
		return
	}

	info := requestinfo.FromContext(ctx)
	if info == nil {
		info = &requestinfo.RequestInfo{
			UA:        requestinfo.ParseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
			Geo:       requestinfo.Geo{IP: requestinfo.ClientIP(r)},
			Timestamp: h.now().UTC(),
		}
	}

	if vals.Trapped() {
		metrics.RelaySubmissionsTotal.WithLabelValues("trapped").Inc()
		log.Infow("contact honeypot tripped", "ip", info.Geo.IP, "bot", info.UA.IsBot)
		writeReply(w, http.StatusOK, form.Reply{OK: true})
		return
	}

	if err := h.throttle.Hit(info.Geo.IP.String()); errors.Is(err, ErrThrottled) {
		h.reject(w, log, "throttled", http.StatusTooManyRequests, MsgThrottled, "ip", info.Geo.IP)
		return
	}

	if f, msg, bad := form.ValidateAll(vals).First(); bad {
		h.reject(w, log, "invalid", http.StatusUnprocessableEntity, msg, "field", f)
		return
	}

	if h.services != nil && vals.Service != "" {
		if _, ok := h.services[vals.Service]; !ok {
			log.Warnw("contact unknown service", "service", vals.Service)
		}
	}

	sub := Submission{Values: vals, Info: info, ReceivedAt: h.now()}

	var optional []Action
	for _, a := range h.actions {
		if !a.Required() {
			optional = append(optional, a)
			continue
		}
		if err := a.Run(ctx, sub); err != nil {
			metrics.RelayActionErrorsTotal.WithLabelValues(a.Name()).Inc()
			h.reject(w, log, "failed", http.StatusBadGateway, MsgSendFailed, "action", a.Name(), "err", err)
			return
		}
	}

	metrics.RelaySubmissionsTotal.WithLabelValues("sent").Inc()
	log.Infow("contact submission accepted",
		"service", vals.Service,
		"ip", info.Geo.IP,
		"country", info.Geo.CountryISO,
	)
	writeReply(w, http.StatusOK, form.Reply{OK: true})

	h.runBackground(context.WithoutCancel(ctx), log, sub, optional)
}

// runBackground executes best-effort actions after the reply is written.
func (h *Handler) runBackground(ctx context.Context, log *zap.SugaredLogger, sub Submission, actions []Action) {
	for _, a := range actions {
		h.bg.Add(1)
		go func(a Action) {
			defer h.bg.Done()
			actx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			if err := a.Run(actx, sub); err != nil {
				metrics.RelayActionErrorsTotal.WithLabelValues(a.Name()).Inc()
				log.Errorw("contact action failed", "action", a.Name(), "err", err)
			}
		}(a)
	}
}

func (h *Handler) reject(w http.ResponseWriter, log *zap.SugaredLogger, outcome string, status int, msg string, kv ...any) {
	metrics.RelaySubmissionsTotal.WithLabelValues(outcome).Inc()
	log.Infow("contact submission rejected", append([]any{"outcome", outcome, "status", status}, kv...)...)
	writeReply(w, status, form.Reply{OK: false, Error: msg})
}

func (h *Handler) requestLog(ctx context.Context) *zap.SugaredLogger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return h.log
}

func writeReply(w http.ResponseWriter, status int, rep form.Reply) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rep)
}
