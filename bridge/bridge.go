// Package bridge defines the narrow contract between the sync engine and its
// collaborators: the Transport it consumes diffs and RPCs from, and the
// normalized update structs it emits to the application.
package bridge

import (
	"context"
	"time"

	"maunium.net/go/mautrix/id"
)

// Handle is the opaque numeric identifier of one remote subscription.
type Handle uint64

// TargetKind selects which remote resource a subscription observes.
type TargetKind string

const (
	TargetRoomList    TargetKind = "room_list"
	TargetTimeline    TargetKind = "timeline"
	TargetRoomInfo    TargetKind = "room_info"
	TargetRoomMembers TargetKind = "room_members"
	TargetPowerLevels TargetKind = "power_levels"
	TargetSyncStatus  TargetKind = "sync_status"
)

type Target struct {
	Kind   TargetKind
	RoomID id.RoomID
}

func (t Target) String() string {
	if t.RoomID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + "/" + t.RoomID.String()
}

// DiffBatch is one ordered group of diff payloads delivered for a
// subscription. Diffs are raw objects; the engine decodes and projects them.
// Token, when set, is the stream position after this batch; a later
// subscription can resume from it.
type DiffBatch struct {
	Handle Handle
	Diffs  []map[string]any
	Token  string
}

// Subscription is a snapshot-plus-incremental-diff stream. Snapshot holds
// the initial values; Batches yields every later change in strict arrival
// order for this subscription (ordering across subscriptions is not
// guaranteed). The transport closes Batches when the subscription dies.
type Subscription struct {
	Handle   Handle
	Snapshot []any
	Batches  <-chan *DiffBatch
}

// Transport is the RPC/bridge channel the engine drives. Implementations
// deliver already-deserialized structured values; serialization details stay
// behind this interface.
type Transport interface {
	// Subscribe opens the diff stream for target. since, when non-empty, is
	// a resume token from an earlier stream; the remote may honor it and
	// skip the full snapshot, or ignore it.
	Subscribe(ctx context.Context, target Target, since string) (*Subscription, error)
	// CancelSubscription releases the remote resource for handle. Cancelling
	// a handle the remote already released must not fail.
	CancelSubscription(handle Handle) error

	ListRooms(ctx context.Context) ([]map[string]any, error)
	JoinRoom(ctx context.Context, roomID id.RoomID) error
	LeaveRoom(ctx context.Context, roomID id.RoomID) error
	CreateRoom(ctx context.Context, name string, invite []id.UserID) (id.RoomID, error)

	SendEvent(ctx context.Context, roomID id.RoomID, content map[string]any) (id.EventID, error)
	SendReadReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) error
	PaginateBack(ctx context.Context, roomID id.RoomID, count int) error

	SetDisplayName(ctx context.Context, name string) error
	SetAvatarURL(ctx context.Context, url string) error
	SetRoomName(ctx context.Context, roomID id.RoomID, name string) error
	SetPowerLevels(ctx context.Context, roomID id.RoomID, levels *PowerLevels) error

	SearchUsers(ctx context.Context, query string) ([]*UserProfile, error)

	Close() error
}

// RoomSummary is one room-list entry. A nil *RoomSummary in the held list is
// a "not yet loaded" placeholder.
type RoomSummary struct {
	ID                id.RoomID `json:"id"`
	Name              string    `json:"name,omitempty"`
	Membership        string    `json:"membership,omitempty"`
	Direct            bool      `json:"direct,omitempty"`
	NotificationCount int64     `json:"notification_count,omitempty"`
	LastActivity      time.Time `json:"-" mapstructure:"-"`
}

type RoomMember struct {
	ID          id.UserID `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Membership  string    `json:"membership,omitempty"`
	PowerLevel  int       `json:"power_level,omitempty"`
}

// PowerLevels holds the per-room numeric permission thresholds.
type PowerLevels struct {
	UsersDefault  int            `json:"users_default"`
	EventsDefault int            `json:"events_default"`
	StateDefault  int            `json:"state_default"`
	Users         map[string]int `json:"users,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
}

type UserProfile struct {
	ID          id.UserID `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

type SyncStatus string

const (
	SyncInitial SyncStatus = "initialSync"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncStopped SyncStatus = "stopped"
)
