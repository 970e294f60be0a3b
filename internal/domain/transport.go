package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError classifies a failed round trip to service. Caller
// cancellation is returned unchanged so the orchestrator can recognise it.
func TransportError(ctx context.Context, service string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s: %w", ErrUpstreamTimeout, service, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, service, err)
}
