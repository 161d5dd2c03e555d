package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// nodeTimeout picks the per-attempt timeout: the node policy first, then the
// engine default. Zero means unbounded.
func nodeTimeout(policy *NodePolicy, fallback time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

// runWithTimeout executes one attempt of node. When the attempt's own
// deadline fired (and not the caller's), it returns a NODE_TIMEOUT error
// alongside whatever the node produced.
func runWithTimeout[S any](ctx context.Context, node Node[S], nodeID string, state S, timeout time.Duration) (NodeResult[S], error) {
	if timeout <= 0 {
		return node.Run(ctx, state), nil
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(attemptCtx, state)

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    CodeNodeTimeout,
			Cause:   context.DeadlineExceeded,
		}
	}
	return result, nil
}
