package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/bridge"
	"github.com/chatlab/fedisync/pkg/content"
	"github.com/chatlab/fedisync/pkg/diff"
	"github.com/chatlab/fedisync/pkg/mention"
	"github.com/chatlab/fedisync/pkg/timeline"
)

func (s *Syncer) applyTimeline(roomID id.RoomID, raw []map[string]any) error {
	ds := make([]diff.Diff[*timeline.Event], 0, len(raw))
	for _, m := range raw {
		d, err := diff.Decode(m)
		if err != nil {
			return err
		}
		ds = append(ds, diff.Map(d, func(v any) *timeline.Event {
			return decodeEvent(roomID, v)
		}))
	}

	s.mu.Lock()
	next, err := diff.ApplyAll(s.timelines[roomID], ds)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.timelines[roomID] = next
	s.mu.Unlock()

	s.emitTimeline(roomID)
	return nil
}

// Timeline returns the room's consolidated timeline view. The view is
// derived on every read from the raw event log, never cached, so it can't
// drift.
func (s *Syncer) Timeline(roomID id.RoomID) []*timeline.Event {
	s.mu.RLock()
	list := make([]*timeline.Event, len(s.timelines[roomID]))
	copy(list, s.timelines[roomID])
	s.mu.RUnlock()

	return consolidatedView(list)
}

func consolidatedView(list []*timeline.Event) []*timeline.Event {
	return timeline.FilterMultispend(timeline.ConsolidatePayments(list))
}

func (s *Syncer) emitTimeline(roomID id.RoomID) {
	s.emit("timeline", &bridge.TimelineUpdate{RoomID: roomID, Events: s.Timeline(roomID)})
}

// decodeEvent normalizes one raw timeline value. A nil value is a
// placeholder for an event filtered out upstream and stays nil; content
// validation never fails, it degrades to unknown.
func decodeEvent(roomID id.RoomID, v any) *timeline.Event {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil
	}

	ev := &timeline.Event{
		RoomID: roomID,
		Status: timeline.StatusSent,
	}

	if s, ok := m["id"].(string); ok {
		ev.ID = id.EventID(s)
	}
	if s, ok := m["local_id"].(string); ok {
		ev.LocalID = s
	}
	if s, ok := m["sender"].(string); ok {
		ev.Sender = id.UserID(s)
	}
	if s, ok := m["status"].(string); ok {
		ev.Status = timeline.SendStatus(s)
	}
	if s, ok := m["error"].(string); ok {
		ev.SendError = s
	}
	switch ts := m["timestamp"].(type) {
	case float64:
		ev.Timestamp = time.UnixMilli(int64(ts))
	case int64:
		ev.Timestamp = time.UnixMilli(ts)
	}

	ev.Content = content.Validate(m["content"])

	return ev
}

// mentionDirectory builds the member directory the mention parser matches
// against, filling display names from the cache when the member list hasn't
// delivered them yet.
func (s *Syncer) mentionDirectory(roomID id.RoomID) []mention.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []mention.Member
	for _, m := range s.members[roomID] {
		if m == nil {
			continue
		}
		name := m.DisplayName
		if name == "" {
			if v, ok := s.nameCache.Get(m.ID); ok {
				name, _ = v.(string)
			}
		}
		out = append(out, mention.Member{ID: m.ID, DisplayName: name})
	}
	return out
}

// SendText parses text for mentions against the room's member directory and
// sends it, tracking delivery on a local pending event so the caller can
// observe completion without blocking the sync loop.
func (s *Syncer) SendText(ctx context.Context, roomID id.RoomID, text string) (*timeline.Event, error) {
	parsed := mention.Parse(text, s.mentionDirectory(roomID))

	c := content.Text{Body: text}
	payload := parsed.Payload()
	if payload != nil {
		c.Format = "rich"
		c.FormattedBody = parsed.RichText
	}

	raw := content.Encode(c)
	if payload != nil {
		raw["mentions"] = payload["mentions"]
	}

	return s.send(ctx, roomID, c, raw)
}

// SendContent sends an already-built payload (polls, forms, multispend).
func (s *Syncer) SendContent(ctx context.Context, roomID id.RoomID, c content.Content) (*timeline.Event, error) {
	return s.send(ctx, roomID, c, content.Encode(c))
}

// SendPaymentPush mints a bearer token for amount through the custody
// service and pushes it to recipient. The pushed event initiates the payment
// chain every later status event folds onto.
func (s *Syncer) SendPaymentPush(ctx context.Context, roomID id.RoomID, recipient id.UserID, amount uint64, federationID string) (*timeline.Event, error) {
	if s.minter == nil {
		return nil, fmt.Errorf("send payment: no ecash minter configured")
	}

	token, err := s.minter.Mint(ctx, amount, federationID)
	if err != nil {
		return nil, fmt.Errorf("send payment: mint: %w", err)
	}

	c := content.Payment{
		Body:              fmt.Sprintf("Sent a payment of %d msats", amount),
		Status:            content.PaymentPushed,
		PaymentID:         uuid.NewString(),
		Amount:            amount,
		SenderID:          s.me.String(),
		RecipientID:       recipient.String(),
		FederationID:      federationID,
		BearerToken:       token,
		SenderOperationID: uuid.NewString(),
	}

	return s.SendContent(ctx, roomID, c)
}

// SendPaymentRequest asks recipient to pay amount; no token is minted until
// the counterparty accepts.
func (s *Syncer) SendPaymentRequest(ctx context.Context, roomID id.RoomID, from id.UserID, amount uint64, federationID string) (*timeline.Event, error) {
	c := content.Payment{
		Body:         fmt.Sprintf("Requested a payment of %d msats", amount),
		Status:       content.PaymentRequested,
		PaymentID:    uuid.NewString(),
		Amount:       amount,
		SenderID:     from.String(),
		RecipientID:  s.me.String(),
		FederationID: federationID,
	}

	return s.SendContent(ctx, roomID, c)
}

// RespondPayment appends a status event to an existing payment chain;
// consolidation folds it onto the initiating event for rendering.
func (s *Syncer) RespondPayment(ctx context.Context, roomID id.RoomID, p content.Payment, status content.PaymentStatus) (*timeline.Event, error) {
	p.Status = status
	p.Consolidated = false
	if status == content.PaymentReceived && p.ReceiverOperationID == "" {
		p.ReceiverOperationID = uuid.NewString()
	}

	return s.SendContent(ctx, roomID, p)
}

// SendMultispendVote casts a vote on a group invitation.
func (s *Syncer) SendMultispendVote(ctx context.Context, roomID id.RoomID, invitationID, vote string) (*timeline.Event, error) {
	c := content.Multispend{
		Body:         "Voted on a multispend invitation",
		SubKind:      content.MultispendGroupInvitationVote,
		InvitationID: invitationID,
		Vote:         vote,
	}

	return s.SendContent(ctx, roomID, c)
}

func (s *Syncer) send(ctx context.Context, roomID id.RoomID, c content.Content, raw map[string]any) (*timeline.Event, error) {
	ev := &timeline.Event{
		LocalID:   uuid.NewString(),
		RoomID:    roomID,
		Sender:    s.me,
		Timestamp: time.Now(),
		Status:    timeline.StatusPending,
		Content:   c,
	}
	s.appendLocal(ev)

	eventID, err := s.tr.SendEvent(ctx, roomID, raw)
	if err != nil {
		s.resolveLocal(ev.LocalID, roomID, func(e *timeline.Event) {
			e.Status = timeline.StatusFailed
			e.SendError = err.Error()
		})
		return ev, fmt.Errorf("send to %s: %w", roomID, err)
	}

	s.resolveLocal(ev.LocalID, roomID, func(e *timeline.Event) {
		e.ID = eventID
		e.Status = timeline.StatusSent
	})
	return ev, nil
}

func (s *Syncer) appendLocal(ev *timeline.Event) {
	s.mu.Lock()
	s.timelines[ev.RoomID] = append(s.timelines[ev.RoomID], ev)
	s.mu.Unlock()
	s.emitTimeline(ev.RoomID)
}

func (s *Syncer) resolveLocal(localID string, roomID id.RoomID, update func(*timeline.Event)) {
	s.mu.Lock()
	for i, ev := range s.timelines[roomID] {
		if ev != nil && ev.LocalID == localID {
			copied := *ev
			update(&copied)
			s.timelines[roomID][i] = &copied
			break
		}
	}
	s.mu.Unlock()
	s.emitTimeline(roomID)
}

// PaginateBack asks the bridge to extend the timeline window backward by
// count events; the extension arrives as ordinary diffs.
func (s *Syncer) PaginateBack(ctx context.Context, roomID id.RoomID, count int) error {
	return s.tr.PaginateBack(ctx, roomID, count)
}

// MarkRead sends a read receipt for the given event.
func (s *Syncer) MarkRead(ctx context.Context, roomID id.RoomID, eventID id.EventID) error {
	return s.tr.SendReadReceipt(ctx, roomID, eventID)
}
