package model

import "time"

type EventType string

const (
	EventSessionCreated       EventType = "session-created"
	EventSessionUpdated       EventType = "session-updated"
	EventSessionDeleted       EventType = "session-deleted"
	EventAssignedShiftCreated EventType = "assigned-shift-created"
	EventAssignedShiftUpdated EventType = "assigned-shift-updated"
	EventAssignedShiftDeleted EventType = "assigned-shift-deleted"
	EventLocationsUpdated     EventType = "locations-updated"
)

// Event is a state change pushed to real-time subscribers.
type Event struct {
	Type     EventType `json:"type"`
	WorkerID string    `json:"workerId,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
	// Relayed marks an event that another instance published. Local only.
	Relayed bool `json:"-"`
}

// DeletedRef is the payload of deletion events.
type DeletedRef struct {
	ID string `json:"id"`
}
