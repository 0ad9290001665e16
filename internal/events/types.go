// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// EventType represents the type of event.
type EventType string

const (
	// Probe events
	ProbeSucceeded EventType = "probe.succeeded"
	ProbeFailed    EventType = "probe.failed"

	// Health events
	StateChanged EventType = "health.state_changed"

	// Ranking events
	RankingUpdated EventType = "ranking.updated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event header with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// ProbeSucceededEvent is emitted after a full probe batch completed.
type ProbeSucceededEvent struct {
	BaseEvent
	EndpointID endpoint.ID
	URL        string
	Calls      int
	LatencyNs  float64 // mean of the batch
}

// ProbeFailedEvent is emitted when a probe batch was aborted.
type ProbeFailedEvent struct {
	BaseEvent
	EndpointID endpoint.ID
	URL        string
	Kind       string // unreachable, protocol_error, timeout
	Call       int    // 1-based index of the failed call
	Error      error
}

// StateChangedEvent is emitted on every liveness transition.
type StateChangedEvent struct {
	BaseEvent
	EndpointID          endpoint.ID
	URL                 string
	From                endpoint.Liveness
	To                  endpoint.Liveness
	ConsecutiveFailures int
}

// RankingUpdatedEvent is emitted after a ranking batch.
type RankingUpdatedEvent struct {
	BaseEvent
	Ranking []endpoint.ID
	Probed  int
	Reason  string // "startup", "rerank"
}
