package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClient creates an HTTP client whose requests are traced and
// carry W3C trace context to the registry.
//
// If transport is nil a pooled transport suited to a handful of registry
// hosts is used. The client has no overall timeout; callers bound each
// request through its context.
func NewTracedHTTPClient(transport *http.Transport, opts ...otelhttp.Option) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport, opts...),
	}
}
