package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics{}
	ctx := context.Background()

	// Must never panic or record anywhere.
	m.RecordNodeExecution(ctx, "node", time.Second, nil)
	m.RecordNodeExecution(ctx, "node", time.Second, errors.New("boom"))
	m.RecordGraphRun(ctx, true, time.Second)
	m.RecordRetryExhausted(ctx, "node")
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	runCtx, runSpan := sm.StartRunSpan(ctx, "graph", "run-1")
	assert.Equal(t, ctx, runCtx)
	assert.NotNil(t, runSpan)
	assert.False(t, runSpan.SpanContext().IsValid())

	nodeCtx, nodeSpan := sm.StartNodeSpan(ctx, "node")
	assert.Equal(t, ctx, nodeCtx)

	sm.EndSpanWithError(nodeSpan, errors.New("boom"))
	sm.EndSpanWithError(runSpan, nil)
	sm.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
}
