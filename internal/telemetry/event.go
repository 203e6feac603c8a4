package telemetry

import "time"

// Event is the wire form of one audit entry as it leaves the process.
// It is JSON-encoded for Kafka and read back by the worker.
type Event struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Action       string         `json:"action"`
	ActorID      string         `json:"actorId,omitempty"`
	ActorRole    string         `json:"actorRole,omitempty"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
