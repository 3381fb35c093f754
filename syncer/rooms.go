package syncer

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/bridge"
	"github.com/chatlab/fedisync/pkg/diff"
)

var roomTargetKinds = []bridge.TargetKind{
	bridge.TargetRoomInfo,
	bridge.TargetPowerLevels,
	bridge.TargetRoomMembers,
	bridge.TargetTimeline,
}

func (s *Syncer) applyRoomList(raw []map[string]any) error {
	ds := make([]diff.Diff[*bridge.RoomSummary], 0, len(raw))
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		ds = append(ds, diff.Map(d, decodeRoom))
	}

	s.mu.Lock()
	before := make(map[id.RoomID]bool, len(s.rooms))
	for _, r := range s.rooms {
		if r != nil {
			before[r.ID] = true
		}
	}

	next, err := diff.ApplyAll(s.rooms, ds)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.rooms = next

	var discovered, invites []id.RoomID
	for _, r := range next {
		if r == nil {
			continue
		}
		if !before[r.ID] && r.Membership == "join" {
			discovered = append(discovered, r.ID)
		}
		if r.Membership == "invite" {
			invites = append(invites, r.ID)
		}
	}

	list := make([]*bridge.RoomSummary, len(next))
	copy(list, next)
	s.mu.Unlock()

	// fan-out must not block processing of the room-list update itself;
	// failures are logged, not surfaced. Stop waits for these goroutines,
	// a late one must not touch the update channel after it closes.
	for _, roomID := range discovered {
		s.wg.Add(1)
		go func(roomID id.RoomID) {
			defer s.wg.Done()
			s.watchRoom(roomID)
		}(roomID)
	}
	if s.autoJoinEnabled() {
		for _, roomID := range invites {
			s.wg.Add(1)
			go func(roomID id.RoomID) {
				defer s.wg.Done()
				s.autoJoin(roomID)
			}(roomID)
		}
	}

	s.emit("room_list", &bridge.RoomListUpdate{Rooms: list})
	return nil
}

func (s *Syncer) autoJoinEnabled() bool {
	if s.v != nil && s.v.IsSet("autojoin") {
		return s.v.GetBool("autojoin")
	}
	return true
}

// watchRoom subscribes the per-room streams for a newly discovered room.
func (s *Syncer) watchRoom(roomID id.RoomID) {
	for _, kind := range roomTargetKinds {
		if err := s.subscribe(bridge.Target{Kind: kind, RoomID: roomID}); err != nil {
			logger.Warnf("watch %s for %s: %v", kind, roomID, err)
		}
	}
}

// CreateRoom asks the bridge for a new room. Its streams attach once the
// room-list update announces it, like any other discovered room.
func (s *Syncer) CreateRoom(ctx context.Context, name string, invite []id.UserID) (id.RoomID, error) {
	return s.tr.CreateRoom(ctx, name, invite)
}

// LeaveRoom leaves roomID and releases its per-room subscriptions and held
// state. The room disappears from the list through a later room-list diff.
func (s *Syncer) LeaveRoom(ctx context.Context, roomID id.RoomID) error {
	if err := s.tr.LeaveRoom(ctx, roomID); err != nil {
		return err
	}

	for _, kind := range roomTargetKinds {
		s.Unsubscribe(bridge.Target{Kind: kind, RoomID: roomID})
	}

	s.mu.Lock()
	delete(s.timelines, roomID)
	delete(s.members, roomID)
	delete(s.levels, roomID)
	s.mu.Unlock()

	return nil
}

func (s *Syncer) SetRoomName(ctx context.Context, roomID id.RoomID, name string) error {
	return s.tr.SetRoomName(ctx, roomID, name)
}

func (s *Syncer) SetPowerLevels(ctx context.Context, roomID id.RoomID, levels *bridge.PowerLevels) error {
	return s.tr.SetPowerLevels(ctx, roomID, levels)
}

func (s *Syncer) SetDisplayName(ctx context.Context, name string) error {
	return s.tr.SetDisplayName(ctx, name)
}

func (s *Syncer) SetAvatarURL(ctx context.Context, url string) error {
	return s.tr.SetAvatarURL(ctx, url)
}

// SearchUsers queries the federation user directory, typically to build a
// room invite list.
func (s *Syncer) SearchUsers(ctx context.Context, query string) ([]*bridge.UserProfile, error) {
	return s.tr.SearchUsers(ctx, query)
}

// autoJoin joins an invited room at most once per invite, tracked so one
// failing invite doesn't block the others. A failed attempt is forgotten so
// the next invite-list update retries it.
func (s *Syncer) autoJoin(roomID id.RoomID) {
	if s.inviteAttempted(roomID) {
		return
	}
	s.markInviteAttempted(roomID)

	if err := s.tr.JoinRoom(s.ctx, roomID); err != nil {
		logger.Warnf("auto-join %s failed: %v", roomID, err)
		s.clearInviteAttempt(roomID)
		return
	}

	logger.Infof("auto-joined %s", roomID)
}

func (s *Syncer) inviteAttempted(roomID id.RoomID) bool {
	s.mu.RLock()
	attempted := s.attempted[roomID]
	s.mu.RUnlock()
	if attempted {
		return true
	}
	if s.db != nil {
		persisted, err := s.db.InviteAttempted(roomID)
		if err != nil {
			logger.Warnf("invite lookup %s: %v", roomID, err)
		}
		return persisted
	}
	return false
}

func (s *Syncer) markInviteAttempted(roomID id.RoomID) {
	s.mu.Lock()
	s.attempted[roomID] = true
	s.mu.Unlock()
	if s.db != nil {
		if err := s.db.MarkInviteAttempted(roomID); err != nil {
			logger.Warnf("invite mark %s: %v", roomID, err)
		}
	}
}

func (s *Syncer) clearInviteAttempt(roomID id.RoomID) {
	s.mu.Lock()
	delete(s.attempted, roomID)
	s.mu.Unlock()
	if s.db != nil {
		if err := s.db.ClearInviteAttempt(roomID); err != nil {
			logger.Warnf("invite clear %s: %v", roomID, err)
		}
	}
}

func (s *Syncer) applyMembers(roomID id.RoomID, raw []map[string]any) error {
	ds := make([]diff.Diff[*bridge.RoomMember], 0, len(raw))
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		ds = append(ds, diff.Map(d, decodeMember))
	}

	s.mu.Lock()
	next, err := diff.ApplyAll(s.members[roomID], ds)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.members[roomID] = next

	list := make([]*bridge.RoomMember, len(next))
	copy(list, next)
	s.mu.Unlock()

	for _, m := range list {
		if m != nil && m.DisplayName != "" {
			s.nameCache.Add(m.ID, m.DisplayName)
		}
	}

	s.emit("room_members", &bridge.RoomMemberUpdate{RoomID: roomID, Members: list})
	return nil
}

func (s *Syncer) applyPowerLevels(roomID id.RoomID, raw []map[string]any) error {
	ds := make([]diff.Diff[*bridge.PowerLevels], 0, len(raw))
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		ds = append(ds, diff.Map(d, decodeValue[bridge.PowerLevels]))
	}

	s.mu.Lock()
	held := []*bridge.PowerLevels{}
	if l := s.levels[roomID]; l != nil {
		held = append(held, l)
	}
	next, err := diff.ApplyAll(held, ds)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	var levels *bridge.PowerLevels
	if len(next) > 0 {
		levels = next[len(next)-1]
	}
	s.levels[roomID] = levels
	s.mu.Unlock()

	s.emit("power_levels", &bridge.PowerLevelsUpdate{RoomID: roomID, Levels: levels})
	return nil
}

func (s *Syncer) applyRoomInfo(roomID id.RoomID, raw []map[string]any) error {
	var room *bridge.RoomSummary
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		md := diff.Map(d, decodeRoom)
		if md.Value != nil {
			room = md.Value
		}
		for _, v := range md.Values {
			if v != nil {
				room = v
			}
		}
	}
	if room == nil {
		return nil
	}

	s.emit("room_info", &bridge.RoomInfoUpdate{RoomID: roomID, Room: room})
	return nil
}

func (s *Syncer) applySyncStatus(raw []map[string]any) error {
	status := ""
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		if v, ok := d.Value.(string); ok {
			status = v
		}
		for _, v := range d.Values {
			if sv, ok := v.(string); ok {
				status = sv
			}
		}
	}
	if status == "" {
		return nil
	}

	s.mu.Lock()
	s.status = bridge.SyncStatus(status)
	s.mu.Unlock()

	s.emit("sync_status", &bridge.SyncStatusUpdate{Status: bridge.SyncStatus(status)})
	return nil
}

// Status reports the last sync-status signal seen from the bridge.
func (s *Syncer) Status() bridge.SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func decodeRoom(v any) *bridge.RoomSummary {
	return decodeValue[bridge.RoomSummary](v)
}

func decodeMember(v any) *bridge.RoomMember {
	return decodeValue[bridge.RoomMember](v)
}

// decodeValue projects one raw diff value into a typed struct; nil stays nil
// (a placeholder element) and an undecodable value degrades to nil too, the
// list shape itself must stay intact.
func decodeValue[T any](v any) *T {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil
	}
	out := new(T)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return nil
	}
	if err := dec.Decode(m); err != nil {
		logger.Debugf("decode value: %v", err)
		return nil
	}
	return out
}
