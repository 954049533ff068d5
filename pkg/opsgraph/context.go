package opsgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/kv"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
)

// Context provides execution context to node handlers and routers.
// It extends context.Context with the collaborators workflows need plus
// per-run metadata.
//
// Capabilities are injected once at context construction (dependency
// injection), so handlers stay decoupled from concrete clients and can be
// tested against mocks. Context is immutable; the executor derives per-node
// contexts with updated NodeID, Attempt, and an enriched logger.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with run and node
	// context. Never returns nil; defaults to slog.Default().
	Logger() *slog.Logger

	// LLM returns the language-model client, or nil if not configured.
	// Nodes should check for nil before using.
	LLM() llm.Client

	// Store returns the record store, or nil if not configured.
	Store() kv.Store

	// Events returns the event bus, or nil if not configured.
	Events() event.Bus

	// Metadata

	// RunID returns the unique identifier for this run.
	// Auto-generated if not configured.
	RunID() string

	// NodeID returns the node currently executing.
	// Empty string outside node execution.
	NodeID() string

	// Attempt returns how many times the current node has executed in this
	// run, including the execution in progress (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger  *slog.Logger
	llm     llm.Client
	store   kv.Store
	events  event.Bus
	runID   string
	nodeID  string
	attempt int
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// LLM returns the language-model client.
func (c *executionContext) LLM() llm.Client {
	return c.llm
}

// Store returns the record store.
func (c *executionContext) Store() kv.Store {
	return c.store
}

// Events returns the event bus.
func (c *executionContext) Events() event.Bus {
	return c.events
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Attempt returns the attempt number of the current node.
func (c *executionContext) Attempt() int {
	return c.attempt
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The executor enriches it with run_id, node_id, and attempt fields.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithLLM sets the language-model client for the context.
func WithLLM(client llm.Client) ContextOption {
	return func(c *executionContext) {
		c.llm = client
	}
}

// WithStore sets the record store for the context.
func WithStore(store kv.Store) ContextOption {
	return func(c *executionContext) {
		c.store = store
	}
}

// WithEvents sets the event bus for the context.
func WithEvents(bus event.Bus) ContextOption {
	return func(c *executionContext) {
		c.events = bus
	}
}

// WithRunID sets the run identifier for the context.
// If not set, a UUID is auto-generated.
func WithRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext creates an execution context from a standard context.
//
// Example:
//
//	ctx := opsgraph.NewContext(context.Background(),
//	    opsgraph.WithLogger(logger),
//	    opsgraph.WithLLM(client))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNode returns a derived context for one node execution.
func (c *executionContext) withNode(nodeID string, attempt int) *executionContext {
	return &executionContext{
		Context: c.Context,
		logger:  c.logger.With("run_id", c.runID, "node_id", nodeID, "attempt", attempt),
		llm:     c.llm,
		store:   c.store,
		events:  c.events,
		runID:   c.runID,
		nodeID:  nodeID,
		attempt: attempt,
	}
}
