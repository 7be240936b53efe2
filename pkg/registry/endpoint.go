package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/itsneelabh/eureka/core"
	"github.com/itsneelabh/eureka/pkg/telemetry"
)

// maxResponseBody caps how much of a registry response is read
const maxResponseBody = 16 << 20

// Doer performs a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a completed registry exchange. Any status code is a valid
// response; only failures to exchange at all are errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the status code is 2xx
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Endpoint is one registry server: the service URL joined with the service path
type Endpoint struct {
	baseURL string
	index   int
	doer    Doer
	timeout time.Duration
}

// URL returns the base URL requests are made against
func (e *Endpoint) URL() string {
	return e.baseURL
}

// Index returns the position of the endpoint in failover order
func (e *Endpoint) Index() int {
	return e.index
}

// Do sends one request to this endpoint, bounded by the per-attempt timeout.
// body, when non-nil, is sent as JSON.
//
// A returned error always wraps core.ErrTransport: the endpoint could not be
// reached or did not answer in time.
func (e *Endpoint) Do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	target := e.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, e.transportError(method, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	telemetry.InjectCorrelationHeaders(ctx, req.Header)

	resp, err := e.doer.Do(req)
	if err != nil {
		return nil, e.transportError(method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, e.transportError(method, fmt.Errorf("read response: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (e *Endpoint) transportError(method string, err error) error {
	return &core.ClientError{
		Op:   "registry.Endpoint." + method,
		Kind: core.KindTransport,
		ID:   e.baseURL,
		Err:  fmt.Errorf("%w: %w", core.ErrTransport, err),
	}
}

// EndpointSet is the ordered, immutable list of registry endpoints.
// Requests try endpoints in configured order and stop at the first one
// that answers.
type EndpointSet struct {
	endpoints []*Endpoint
	logger    core.Logger
	telemetry core.Telemetry
}

type setOptions struct {
	doer      Doer
	timeout   time.Duration
	logger    core.Logger
	telemetry core.Telemetry
}

// SetOption customizes NewEndpointSet
type SetOption func(*setOptions)

// WithDoer sets the HTTP transport shared by all endpoints
func WithDoer(doer Doer) SetOption {
	return func(o *setOptions) {
		o.doer = doer
	}
}

// WithAttemptTimeout bounds each endpoint attempt
func WithAttemptTimeout(timeout time.Duration) SetOption {
	return func(o *setOptions) {
		o.timeout = timeout
	}
}

// WithSetLogger sets the logger for attempt failures
func WithSetLogger(logger core.Logger) SetOption {
	return func(o *setOptions) {
		o.logger = logger
	}
}

// WithSetTelemetry sets the telemetry used for per-attempt spans and counters
func WithSetTelemetry(t core.Telemetry) SetOption {
	return func(o *setOptions) {
		o.telemetry = t
	}
}

// NewEndpointSet builds an endpoint per service URL, each joined with servicePath.
// A single URL yields a one-element set.
func NewEndpointSet(serviceURLs []string, servicePath string, opts ...SetOption) (*EndpointSet, error) {
	o := &setOptions{timeout: core.DefaultRequestTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.doer == nil {
		o.doer = telemetry.NewTracedHTTPClient(nil)
	}
	if o.telemetry == nil {
		o.telemetry = &core.NoOpTelemetry{}
	}

	if len(serviceURLs) == 0 {
		return nil, core.ConfigError("registry.NewEndpointSet", "at least one registry service URL is required", core.ErrMissingConfiguration)
	}

	path := "/" + strings.Trim(servicePath, "/")
	if path == "/" {
		path = ""
	}

	endpoints := make([]*Endpoint, 0, len(serviceURLs))
	for i, raw := range serviceURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, core.ConfigError("registry.NewEndpointSet", fmt.Sprintf("invalid registry service URL: %q", raw), core.ErrInvalidConfiguration)
		}
		endpoints = append(endpoints, &Endpoint{
			baseURL: strings.TrimRight(u.String(), "/") + path,
			index:   i,
			doer:    o.doer,
			timeout: o.timeout,
		})
	}

	return &EndpointSet{
		endpoints: endpoints,
		logger:    core.ComponentLogger(o.logger, "registry/endpoints"),
		telemetry: o.telemetry,
	}, nil
}

// Len returns the number of endpoints
func (s *EndpointSet) Len() int {
	return len(s.endpoints)
}

// URLs returns the endpoint base URLs in failover order
func (s *EndpointSet) URLs() []string {
	urls := make([]string, len(s.endpoints))
	for i, e := range s.endpoints {
		urls[i] = e.baseURL
	}
	return urls
}
