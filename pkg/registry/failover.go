package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/itsneelabh/eureka/core"
	"github.com/itsneelabh/eureka/pkg/telemetry"
)

// AttemptFunc performs an operation against a single endpoint. Returning an
// error moves on to the next endpoint; any result returned with a nil error
// ends the iteration, whatever the registry answered.
type AttemptFunc[T any] func(ctx context.Context, endpoint *Endpoint) (T, error)

// ForEach runs attempt against the endpoints of set in order and returns
// the result of the first attempt that does not fail.
//
// Every failed attempt is logged. When all endpoints fail, the zero value
// and an error wrapping core.ErrRegistryUnreachable plus each attempt error
// are returned. Cancelling ctx stops the iteration and is reported as the context error,
// not as an unreachable registry.
// There is no retry within an endpoint and no backoff.
func ForEach[T any](ctx context.Context, set *EndpointSet, op string, attempt AttemptFunc[T]) (T, error) {
	var zero T
	errs := make([]error, 0, len(set.endpoints))

	for _, ep := range set.endpoints {
		if err := ctx.Err(); err != nil {
			return zero, &core.ClientError{
				Op:   op,
				Kind: core.KindTransport,
				Err:  err,
			}
		}

		attemptCtx, span := set.telemetry.StartSpan(ctx, "eureka.endpoint.attempt")
		span.SetAttribute("eureka.operation", op)
		span.SetAttribute("eureka.endpoint", ep.baseURL)
		span.SetAttribute("eureka.endpoint.index", ep.index)

		result, err := attempt(attemptCtx, ep)
		if err == nil {
			span.End()
			set.recordAttempt(op, ep, "answered")
			return result, nil
		}

		span.RecordError(err)
		span.End()
		set.recordAttempt(op, ep, "failed")

		set.logger.Warn("Registry endpoint attempt failed", telemetry.EnrichLogFields(ctx, map[string]interface{}{
			"operation":      op,
			"endpoint":       ep.baseURL,
			"endpoint_index": ep.index,
			"endpoints":      len(set.endpoints),
			"error":          err.Error(),
			"error_type":     fmt.Sprintf("%T", err),
		}))
		errs = append(errs, err)
	}

	// A cancellation during the last attempt is not an outage.
	if err := ctx.Err(); err != nil {
		return zero, &core.ClientError{
			Op:   op,
			Kind: core.KindTransport,
			Err:  err,
		}
	}

	set.logger.Error("All registry endpoints failed", telemetry.EnrichLogFields(ctx, map[string]interface{}{
		"operation": op,
		"endpoints": len(set.endpoints),
	}))

	return zero, &core.ClientError{
		Op:   op,
		Kind: core.KindTransport,
		Err:  fmt.Errorf("%w after %d endpoint(s): %w", core.ErrRegistryUnreachable, len(errs), errors.Join(errs...)),
	}
}

func (s *EndpointSet) recordAttempt(op string, ep *Endpoint, outcome string) {
	s.telemetry.RecordMetric("eureka.endpoint.attempts", 1, map[string]string{
		"operation": op,
		"endpoint":  strconv.Itoa(ep.index),
		"outcome":   outcome,
	})
}
