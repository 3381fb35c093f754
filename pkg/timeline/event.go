// Package timeline holds the normalized event model and the derived views
// computed over a room's event log on every read.
package timeline

import (
	"time"

	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/pkg/content"
)

type SendStatus string

const (
	StatusSent      SendStatus = "sent"
	StatusPending   SendStatus = "pending"
	StatusFailed    SendStatus = "failed"
	StatusCancelled SendStatus = "cancelled"
)

// Event is one timeline entry. Locally authored events carry only LocalID
// until the remote acknowledges them with a durable event id; either
// identifier may be empty but never both.
type Event struct {
	ID        id.EventID
	LocalID   string
	RoomID    id.RoomID
	Sender    id.UserID
	Timestamp time.Time
	Status    SendStatus
	Content   content.Content
	// SendError carries the failure detail when Status is failed.
	SendError string
}

// Key returns the identifier rendering code should address the event by.
func (e *Event) Key() string {
	if e.ID != "" {
		return e.ID.String()
	}
	return e.LocalID
}
