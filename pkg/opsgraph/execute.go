package opsgraph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph/observability"
)

// Run executes the graph with the given initial state.
// Returns the final accumulated state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure (useful for debugging).
//
// Execution is single-threaded per run: nodes never execute concurrently
// within one call, because later nodes depend on state written by earlier
// ones. The engine itself does no blocking work; suspension happens only
// inside node handlers when they call out to collaborators.
//
// Execution flow:
//  1. Start at the entry point node
//  2. Check for cancellation
//  3. Execute the current node's handler and merge its update
//  4. Determine the next node (fixed edge, router decision, or the forced
//     exhausted target of a capped self-retry)
//  5. Repeat until END is reached, an error propagates, or the step
//     ceiling is exceeded
//
// A handler error routes to the node's declared failure edge with the
// "error" state key set; without one it propagates as a *NodeError.
func (cg *CompiledGraph) Run(ctx Context, initial State, opts ...RunOption) (result State, runErr error) {
	if ctx == nil {
		return initial, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	state := initial.Clone()
	if state == nil {
		state = make(State)
	}

	runID := ctx.RunID()
	logger := ctx.Logger()
	startTime := time.Now()

	observability.LogRunStart(logger, runID)

	var execCtx context.Context = ctx
	var runSpan trace.Span
	if cfg.tracing {
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, cg.entryPoint, runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	var nodeCount int
	result, nodeCount, runErr = cg.runLoop(execCtx, ctx, state, &cfg)

	duration := time.Since(startTime)
	cfg.metrics.RecordGraphRun(ctx, runErr == nil, duration)

	if runErr != nil {
		observability.LogRunError(logger, runID, runErr, float64(duration.Milliseconds()), lastNodeOf(runErr))
	} else {
		observability.LogRunComplete(logger, runID, float64(duration.Milliseconds()), nodeCount)
	}

	return result, runErr
}

// runLoop drives the engine loop. tracingCtx carries span context; ec is
// the graph Context. Returns the final state, executed node count, and any
// error.
func (cg *CompiledGraph) runLoop(tracingCtx context.Context, ec Context, state State, cfg *runConfig) (State, int, error) {
	logger := ec.Logger()
	current := cg.entryPoint
	steps := 0
	nodeCount := 0

	// Per-run retry context: executions per node, consulted by routing and
	// enforced against capped self-retry edges.
	attempts := make(map[string]int)

	for current != END {
		steps++
		if steps > cfg.maxSteps {
			return state, nodeCount, &StepLimitError{
				Max:        cfg.maxSteps,
				LastNodeID: current,
				State:      state,
			}
		}

		// Check for cancellation before executing the node.
		select {
		case <-ec.Done():
			return state, nodeCount, &CancellationError{
				NodeID: current,
				State:  state,
				Cause:  context.Cause(ec),
			}
		default:
		}

		attempt := attempts[current] + 1
		observability.LogNodeStart(logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracing {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		update, nodeErr := cg.executeNode(ec, current, attempt, state)
		attempts[current] = attempt
		nodeDuration := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)
		if cfg.tracing {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		if nodeErr != nil {
			// Cancellation is never recoverable via failure edges.
			if errors.Is(nodeErr, context.Canceled) || errors.Is(nodeErr, context.DeadlineExceeded) {
				return state, nodeCount, &CancellationError{
					NodeID:       current,
					State:        state,
					Cause:        context.Cause(ec),
					WasExecuting: true,
				}
			}

			if failTo, ok := cg.failure[current]; ok {
				observability.LogFailureRoute(logger, current, failTo, nodeErr)
				state[ErrorKey] = handlerMessage(nodeErr)
				nodeCount++
				current = failTo
				continue
			}

			observability.LogNodeError(logger, current, nodeErr)
			return state, nodeCount, nodeErr
		}

		state.apply(update)
		observability.LogNodeComplete(logger, current, float64(nodeDuration.Milliseconds()))
		nodeCount++

		next, err := cg.nextNode(ec, state, current, attempts, cfg)
		if err != nil {
			return state, nodeCount, err
		}

		current = next
	}

	return state, nodeCount, nil
}

// executeNode executes a single node with panic recovery.
// Errors are returned wrapped as *NodeError (or *PanicError for panics).
func (cg *CompiledGraph) executeNode(ctx Context, nodeID string, attempt int, state State) (result Update, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// Unreachable after a successful Compile.
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	nodeCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		nodeCtx = ec.withNode(nodeID, attempt)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	result, err = fn(nodeCtx, state)
	if err != nil {
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return result, nil
}

// nextNode determines the next node to execute.
func (cg *CompiledGraph) nextNode(ctx Context, state State, current string, attempts map[string]int, cfg *runConfig) (string, error) {
	if edge, exists := cg.getConditional(current); exists {
		routerCtx := ctx
		if ec, ok := ctx.(*executionContext); ok {
			routerCtx = ec.withNode(current, attempts[current])
		}

		next := edge.router(routerCtx, state)

		if next == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrEmptyRoute,
			}
		}
		if !edge.targetSet[next] {
			return "", &RouterError{
				FromNode: current,
				Returned: next,
				Err:      ErrUndeclaredRoute,
			}
		}

		// Bounded self-retry: the engine, not the router, has the last word
		// once the attempt cap is reached.
		if next == current && edge.maxAttempts > 0 && attempts[current] >= edge.maxAttempts {
			observability.LogRetryExhausted(ctx.Logger(), current, attempts[current], edge.exhausted)
			cfg.metrics.RecordRetryExhausted(ctx, current)
			return edge.exhausted, nil
		}

		return next, nil
	}

	if to, ok := cg.edges[current]; ok {
		return to, nil
	}

	// Unreachable after a successful Compile: every non-terminal node has an
	// outgoing edge or compilation failed with ErrNoPathToEnd.
	return "", &NodeError{
		NodeID: current,
		Op:     "routing",
		Err:    fmt.Errorf("no outgoing edge from node %s", current),
	}
}

// handlerMessage extracts the handler's own error message for the "error"
// state key, without the engine's wrapping.
func handlerMessage(err error) string {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Err.Error()
	}
	return err.Error()
}

// lastNodeOf pulls the failing node ID out of a run error, if it has one.
func lastNodeOf(err error) string {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.NodeID
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.NodeID
	}
	var se *StepLimitError
	if errors.As(err, &se) {
		return se.LastNodeID
	}
	var ce *CancellationError
	if errors.As(err, &ce) {
		return ce.NodeID
	}
	var re *RouterError
	if errors.As(err, &re) {
		return re.FromNode
	}
	return ""
}
