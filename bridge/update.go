package bridge

import (
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/pkg/timeline"
)

// Update is one normalized notification to the application. Consumers
// type-switch on Data.
type Update struct {
	Type string
	Data interface{}
}

type RoomListUpdate struct {
	// Rooms is the full post-diff list; nil entries are placeholders for
	// rooms the remote hasn't loaded yet.
	Rooms []*RoomSummary
}

type TimelineUpdate struct {
	RoomID id.RoomID
	// Events is the consolidated view of the room's timeline window; nil
	// entries are placeholders for events filtered out upstream.
	Events []*timeline.Event
}

type RoomMemberUpdate struct {
	RoomID  id.RoomID
	Members []*RoomMember
}

type RoomInfoUpdate struct {
	RoomID id.RoomID
	Room   *RoomSummary
}

type PowerLevelsUpdate struct {
	RoomID id.RoomID
	Levels *PowerLevels
}

type SyncStatusUpdate struct {
	Status SyncStatus
}

// ProcessingError reports a non-fatal data error (Fatal false) or a
// subscription that died on a protocol violation (Fatal true).
type ProcessingError struct {
	Target Target
	Err    error
	Fatal  bool
}
