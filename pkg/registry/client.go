// Package registry talks to a set of Eureka-compatible registry servers on
// behalf of one local instance.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/eureka/core"
	"github.com/itsneelabh/eureka/pkg/instance"
	"github.com/itsneelabh/eureka/pkg/telemetry"
)

// Operation names used in errors, spans and metrics
const (
	OpRegister      = "registry.Register"
	OpQueryAll      = "registry.QueryAll"
	OpQueryByApp    = "registry.QueryByApp"
	OpQueryInstance = "registry.QueryInstance"
	OpHeartbeat     = "registry.Heartbeat"
	OpDeregister    = "registry.Deregister"
	OpUpdateStatus  = "registry.UpdateStatus"
)

// Client performs registry operations for a single instance descriptor
// against an endpoint set.
//
// Register and Heartbeat report success as a bool and never return errors;
// the query operations and Deregister propagate failures. The client holds
// no lock and may be used from several goroutines.
type Client struct {
	endpoints *EndpointSet
	instance  *instance.Descriptor
	lastDirty atomic.Int64
	logger    core.Logger
	telemetry core.Telemetry
	now       func() time.Time
}

// ClientOption customizes NewClient
type ClientOption func(*Client)

// WithLogger sets the client logger
func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.logger = core.ComponentLogger(logger, "registry/client")
	}
}

// WithTelemetry sets the telemetry used for operation spans and metrics
func WithTelemetry(t core.Telemetry) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.telemetry = t
		}
	}
}

// WithClock sets the time source used for heartbeat timestamps
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient binds a descriptor to an endpoint set
func NewClient(endpoints *EndpointSet, desc *instance.Descriptor, opts ...ClientOption) (*Client, error) {
	if endpoints == nil || endpoints.Len() == 0 {
		return nil, core.ConfigError("registry.NewClient", "registry endpoints are required", core.ErrMissingConfiguration)
	}
	if desc == nil {
		return nil, core.ConfigError("registry.NewClient", "instance descriptor is required", core.ErrMissingConfiguration)
	}

	c := &Client{
		endpoints: endpoints,
		instance:  desc,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	lastDirty, err := strconv.ParseInt(desc.LastDirtyTimestamp, 10, 64)
	if err != nil {
		lastDirty = c.now().UnixMilli()
	}
	c.lastDirty.Store(lastDirty)

	return c, nil
}

// Instance returns a copy of the bound descriptor carrying the current
// last-dirty timestamp
func (c *Client) Instance() *instance.Descriptor {
	return c.instance.WithLastDirty(c.lastDirty.Load())
}

// App returns the upper-cased application name
func (c *Client) App() string {
	return c.instance.App
}

// InstanceID returns the instance identifier
func (c *Client) InstanceID() string {
	return c.instance.InstanceID
}

// LeaseDuration returns how long the registry keeps the lease without a heartbeat
func (c *Client) LeaseDuration() time.Duration {
	return time.Duration(c.instance.LeaseInfo.DurationInSecs) * time.Second
}

// Endpoints returns the endpoint set
func (c *Client) Endpoints() *EndpointSet {
	return c.endpoints
}

func (c *Client) appPath() string {
	return "/" + url.PathEscape(c.instance.App)
}

func (c *Client) instancePath() string {
	return c.appPath() + "/" + url.PathEscape(c.instance.InstanceID)
}

// Register announces the instance to the first reachable registry.
// It returns true only when that registry answers 204.
func (c *Client) Register(ctx context.Context) bool {
	ctx, op := c.begin(ctx, OpRegister)

	body, err := json.Marshal(instance.Registration{Instance: c.Instance()})
	if err != nil {
		op.finish(nil, err, false)
		return false
	}

	resp, err := ForEach(ctx, c.endpoints, OpRegister, func(ctx context.Context, ep *Endpoint) (*Response, error) {
		return ep.Do(ctx, http.MethodPost, c.appPath(), nil, body)
	})
	ok := err == nil && resp.StatusCode == http.StatusNoContent
	op.finish(resp, err, ok)
	return ok
}

// QueryAll fetches the full application registry from the first reachable
// registry. The payload is returned undecoded.
func (c *Client) QueryAll(ctx context.Context) (json.RawMessage, error) {
	return c.query(ctx, OpQueryAll, "")
}

// QueryByApp fetches the instances registered under this instance's app
func (c *Client) QueryByApp(ctx context.Context) (json.RawMessage, error) {
	return c.query(ctx, OpQueryByApp, c.appPath())
}

// QueryInstance fetches the registry's view of this instance
func (c *Client) QueryInstance(ctx context.Context) (json.RawMessage, error) {
	return c.query(ctx, OpQueryInstance, c.instancePath())
}

func (c *Client) query(ctx context.Context, name, path string) (json.RawMessage, error) {
	ctx, op := c.begin(ctx, name)

	resp, err := ForEach(ctx, c.endpoints, name, func(ctx context.Context, ep *Endpoint) (*Response, error) {
		return ep.Do(ctx, http.MethodGet, path, nil, nil)
	})
	if err != nil {
		op.finish(nil, err, false)
		return nil, err
	}
	if !resp.Success() {
		statusErr := newStatusError(name, resp)
		op.finish(resp, statusErr, false)
		return nil, statusErr
	}

	op.finish(resp, nil, true)
	return json.RawMessage(resp.Body), nil
}

// Heartbeat renews the lease. The last-dirty timestamp is updated to now
// before sending. It returns true only when the registry answers 200; a 404
// means the registry no longer knows the instance.
func (c *Client) Heartbeat(ctx context.Context) bool {
	ctx, op := c.begin(ctx, OpHeartbeat)

	now := c.now().UnixMilli()
	c.lastDirty.Store(now)

	query := url.Values{}
	query.Set("status", string(instance.StatusUp))
	query.Set("lastDirtyTimestamp", strconv.FormatInt(now, 10))

	resp, err := ForEach(ctx, c.endpoints, OpHeartbeat, func(ctx context.Context, ep *Endpoint) (*Response, error) {
		return ep.Do(ctx, http.MethodPut, c.instancePath(), query, nil)
	})
	ok := err == nil && resp.StatusCode == http.StatusOK
	op.finish(resp, err, ok)
	return ok
}

// Deregister removes the instance from the first reachable registry and
// returns the status code it answered with. An error is returned only when
// no registry could be reached.
func (c *Client) Deregister(ctx context.Context) (int, error) {
	ctx, op := c.begin(ctx, OpDeregister)

	resp, err := ForEach(ctx, c.endpoints, OpDeregister, func(ctx context.Context, ep *Endpoint) (*Response, error) {
		return ep.Do(ctx, http.MethodDelete, c.instancePath(), nil, nil)
	})
	if err != nil {
		op.finish(nil, err, false)
		return 0, err
	}
	op.finish(resp, nil, resp.Success())
	return resp.StatusCode, nil
}

// UpdateStatus sets the instance's overridden status in the registry,
// e.g. OUT_OF_SERVICE to take it out of rotation without deregistering.
func (c *Client) UpdateStatus(ctx context.Context, status instance.Status) error {
	status, err := instance.ParseStatus(string(status))
	if err != nil {
		return core.ConfigError(OpUpdateStatus, err.Error(), core.ErrInvalidConfiguration)
	}

	ctx, op := c.begin(ctx, OpUpdateStatus)

	query := url.Values{}
	query.Set("value", string(status))

	resp, err := ForEach(ctx, c.endpoints, OpUpdateStatus, func(ctx context.Context, ep *Endpoint) (*Response, error) {
		return ep.Do(ctx, http.MethodPut, c.instancePath()+"/status", query, nil)
	})
	if err != nil {
		op.finish(nil, err, false)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := newStatusError(OpUpdateStatus, resp)
		op.finish(resp, statusErr, false)
		return statusErr
	}
	op.finish(resp, nil, true)
	return nil
}

// operation tracks one client call for logging, tracing and metrics
type operation struct {
	c     *Client
	ctx   context.Context
	name  string
	span  core.Span
	start time.Time
}

func (c *Client) begin(ctx context.Context, name string) (context.Context, *operation) {
	if telemetry.GetRequestID(ctx) == "" {
		ctx, _ = telemetry.WithRequestID(ctx)
	}
	ctx, span := c.telemetry.StartSpan(ctx, spanName(name))
	span.SetAttribute("eureka.app", c.instance.App)
	span.SetAttribute("eureka.instance_id", c.instance.InstanceID)
	span.SetAttribute("request.id", telemetry.GetRequestID(ctx))

	return ctx, &operation{c: c, ctx: ctx, name: name, span: span, start: time.Now()}
}

func (o *operation) finish(resp *Response, err error, ok bool) {
	defer o.span.End()

	elapsed := time.Since(o.start)
	outcome := "success"
	switch {
	case core.IsUnreachable(err) || core.IsTransportError(err):
		outcome = "unreachable"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case err != nil || !ok:
		outcome = "rejected"
	}

	fields := telemetry.EnrichLogFields(o.ctx, map[string]interface{}{
		"operation":   o.name,
		"app":         o.c.instance.App,
		"instance_id": o.c.instance.InstanceID,
		"duration_ms": elapsed.Milliseconds(),
		"outcome":     outcome,
	})
	if resp != nil {
		fields["status_code"] = resp.StatusCode
		o.span.SetAttribute("http.status_code", resp.StatusCode)
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_type"] = fmt.Sprintf("%T", err)
		o.span.RecordError(err)
	}
	o.span.SetAttribute("eureka.outcome", outcome)

	switch outcome {
	case "success":
		o.c.logger.Debug("Registry operation succeeded", fields)
	case "canceled":
		o.c.logger.Info("Registry operation canceled", fields)
	case "unreachable":
		o.c.logger.Error("Registry operation failed: no endpoint reachable", fields)
	default:
		o.c.logger.Warn("Registry operation rejected", fields)
	}

	o.c.telemetry.RecordMetric("eureka.registry.requests", 1, map[string]string{
		"operation": o.name,
		"outcome":   outcome,
	})
	o.c.telemetry.RecordMetric("eureka.registry.request.duration_ms", float64(elapsed.Microseconds())/1000, map[string]string{
		"operation": o.name,
	})
}

func spanName(op string) string {
	switch op {
	case OpRegister:
		return "eureka.register"
	case OpQueryAll:
		return "eureka.query_all"
	case OpQueryByApp:
		return "eureka.query_app"
	case OpQueryInstance:
		return "eureka.query_instance"
	case OpHeartbeat:
		return "eureka.heartbeat"
	case OpDeregister:
		return "eureka.deregister"
	case OpUpdateStatus:
		return "eureka.update_status"
	default:
		return op
	}
}
