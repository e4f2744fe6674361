package domain

import "time"

// EventType names an engine notification.
type EventType string

const (
	EventTypeRunStarted        EventType = "run.started"
	EventTypeRunCompleted      EventType = "run.completed"
	EventTypeRunFailed         EventType = "run.failed"
	EventTypeBundleCommitted   EventType = "bundle.committed"
	EventTypeWatermarkAdvanced EventType = "watermark.advanced"
	EventTypeWorkRetried       EventType = "work.retried"
	EventTypeWorkFailed        EventType = "work.failed"
)

// EventsTopic is the topic all engine events are published on.
const EventsTopic = "engine.events"

// Event is a best-effort notification about the progress of a run.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	NodeID    NodeID                 `json:"node_id,omitempty"`
	BundleID  string                 `json:"bundle_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
