package interfaces

import (
	"context"
	"time"
)

type EventType string

const (
	EventDirectoryUpdated EventType = "directory_updated"
	EventEmailDeleted     EventType = "email_deleted"
	EventSendCompleted    EventType = "send_completed"
)

// Event is a typed notification emitted by the facade toward the
// presentation layer.
type Event struct {
	ID        string
	Type      EventType
	ProfileID string
	Directory string
	UID       uint32
	EmailID   string
	Success   bool
	Detail    string
	At        time.Time
}

// EventDispatcher is the in-process observer channel between the engine and
// its presentation shell. Subscribers receive every event published after
// they subscribed; a slow subscriber drops events rather than blocking the
// publisher.
type EventDispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(buffer int) (<-chan Event, func())
	Close()
}
