// Package event provides pub/sub notifications for workflow lifecycle
// moments such as task creation and run completion.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Well-known event types published by the agent workflows.
const (
	TypeTaskCreated    = "task.created"
	TypeRunCompleted   = "run.completed"
	TypeRunFailed      = "run.failed"
	TypePolicyViolated = "policy.violated"
)

// Event is an immutable workflow notification.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	RunID     string         `json:"run_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an event with a generated ID and current timestamp.
func New(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithRunID returns a copy of the event tagged with a run ID.
func (e Event) WithRunID(runID string) Event {
	e.RunID = runID
	return e
}

// Bytes returns the JSON encoding of the event.
func (e Event) Bytes() []byte {
	b, _ := json.Marshal(e)
	return b
}
