package opsgraph

import (
	"context"
)

// Helper node functions used across tests.

// increment bumps the "count" state key by one.
func increment(ctx Context, s State) (Update, error) {
	return Update{"count": s.Int("count") + 1}, nil
}

// passthrough returns no update.
func passthrough(ctx Context, s State) (Update, error) {
	return nil, nil
}

// makeTrackingNode creates a node that records its execution order.
func makeTrackingNode(name string, tracker *[]string) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		*tracker = append(*tracker, name)
		return Update{name: true}, nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		return nil, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc {
	return func(ctx Context, s State) (Update, error) {
		panic(value)
	}
}

// routeOn returns a router that reads its decision from a state key.
func routeOn(key string) RouterFunc {
	return func(ctx Context, s State) string {
		return s.String(key)
	}
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}
