// internal/form/transport.go
//
// Contact form subsystem: network boundary.
//
// Context
//   The controller never talks HTTP directly.  It hands the full Values
//   record (honeypot included, so the relay can cross-check) to a Transport
//   and receives the raw status and body back.  Interpreting that reply is
//   the controller’s job, see failureMessage in submit.go.
//
//   HTTPTransport is the production implementation: a JSON POST to the
//   same-origin relay endpoint.  Tests substitute a fake.
//
//------------------------------------------------------------------------------

package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultEndpoint is the relay path the form posts to.
const DefaultEndpoint = "/api/send-email"

// maxReplyBytes caps how much of a reply body we keep.
const maxReplyBytes = 1 << 20

// Reply is the JSON body the relay answers with.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Response is the raw outcome of one Transport call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport delivers a submission to the mail relay.
type Transport interface {
	Send(ctx context.Context, v Values) (*Response, error)
}

// HTTPTransport posts submissions as JSON.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport resolves endpoint against baseURL.  A nil client gets a
// 15 s timeout default.
func NewHTTPTransport(baseURL, endpoint string, client *http.Client) (*HTTPTransport, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPTransport{
		endpoint: base.ResolveReference(ref).String(),
		client:   client,
	}, nil
}

// Endpoint returns the absolute URL requests are sent to.
func (t *HTTPTransport) Endpoint() string { return t.endpoint }

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, v Values) (*Response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Body: body}, nil
}
