// Package syncer owns the per-list subscriptions against the bridge and
// keeps the local ordered collections consistent with the remote by applying
// its diff stream. Normalized updates fan out to the application over a
// single channel of typed payloads.
package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/bridge"
	"github.com/chatlab/fedisync/pkg/content"
	"github.com/chatlab/fedisync/pkg/store"
	"github.com/chatlab/fedisync/pkg/timeline"
)

var logger *logrus.Entry

func init() {
	l := logrus.New()
	l.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = l.WithFields(logrus.Fields{"prefix": "syncer"})
}

func SetLogger(l *logrus.Entry) {
	logger = l
	content.SetLogger(l)
	timeline.SetLogger(l)
}

// State is the lifecycle of one subscription. Unsubscribed is terminal until
// a new subscribe request restarts the cycle.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateActive       State = "active"
	StateError        State = "error"
)

type subscription struct {
	target bridge.Target
	state  State
	handle bridge.Handle
	// cancelled guards the remote release so it happens exactly once
	cancelled bool
}

// EcashMinter is the opaque custody service behind payment pushes: given an
// amount and federation it returns a bearer token the recipient can redeem.
type EcashMinter interface {
	Mint(ctx context.Context, amount uint64, federationID string) (string, error)
}

type Syncer struct {
	tr     bridge.Transport
	v      *viper.Viper
	db     *store.Store
	minter EcashMinter
	me     id.UserID

	updates chan *bridge.Update

	mu        sync.RWMutex
	subs      map[string]*subscription
	rooms     []*bridge.RoomSummary
	timelines map[id.RoomID][]*timeline.Event
	members   map[id.RoomID][]*bridge.RoomMember
	levels    map[id.RoomID]*bridge.PowerLevels
	status    bridge.SyncStatus
	attempted map[id.RoomID]bool

	// display names resolved through member-list updates, used when a
	// room's member list isn't subscribed yet
	nameCache *lru.Cache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Syncer over tr. db may be nil, in which case the
// attempted-invite set only lives in memory. minter may be nil when the
// application never pushes payments.
func New(tr bridge.Transport, v *viper.Viper, db *store.Store, minter EcashMinter, me id.UserID) *Syncer {
	s := &Syncer{
		tr:        tr,
		v:         v,
		db:        db,
		minter:    minter,
		me:        me,
		updates:   make(chan *bridge.Update, 1000),
		subs:      make(map[string]*subscription),
		timelines: make(map[id.RoomID][]*timeline.Event),
		members:   make(map[id.RoomID][]*bridge.RoomMember),
		levels:    make(map[id.RoomID]*bridge.PowerLevels),
		status:    bridge.SyncStopped,
		attempted: make(map[id.RoomID]bool),
		// local sends may happen before Start; Start swaps in the
		// cancellable context
		ctx: context.Background(),
	}
	s.nameCache, _ = lru.New(1000)
	return s
}

// Updates is the fan-out channel to the application; consumers type-switch
// on Update.Data the way the rest of the app expects.
func (s *Syncer) Updates() <-chan *bridge.Update {
	return s.updates
}

// Start subscribes the root lists (sync status, room list). Per-room
// subscriptions follow from room-list updates.
func (s *Syncer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.subscribe(bridge.Target{Kind: bridge.TargetSyncStatus}); err != nil {
		return err
	}
	if err := s.subscribe(bridge.Target{Kind: bridge.TargetRoomList}); err != nil {
		return err
	}
	return nil
}

// Stop cancels every active subscription and closes the update channel once
// all stream readers have drained.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	targets := make([]bridge.Target, 0, len(s.subs))
	for _, sub := range s.subs {
		targets = append(targets, sub.target)
	}
	s.mu.Unlock()

	for _, t := range targets {
		s.Unsubscribe(t)
	}

	s.wg.Wait()
	close(s.updates)
}

func (s *Syncer) emit(typ string, data interface{}) {
	select {
	case s.updates <- &bridge.Update{Type: typ, Data: data}:
	case <-s.ctx.Done():
	}
}

func (s *Syncer) emitError(target bridge.Target, err error, fatal bool) {
	s.emit("processing_error", &bridge.ProcessingError{Target: target, Err: err, Fatal: fatal})
}

// StateOf reports the current state of the subscription for target.
func (s *Syncer) StateOf(target bridge.Target) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.subs[target.String()]; ok {
		return sub.state
	}
	return StateUnsubscribed
}

func (s *Syncer) subscribe(target bridge.Target) error {
	key := target.String()

	s.mu.Lock()
	if sub, ok := s.subs[key]; ok && (sub.state == StateSubscribing || sub.state == StateActive) {
		s.mu.Unlock()
		logger.Debugf("subscribe %s: already %s", key, sub.state)
		return nil
	}
	sub := &subscription{target: target, state: StateSubscribing}
	s.subs[key] = sub
	s.mu.Unlock()

	remote, err := s.tr.Subscribe(s.ctx, target, s.resumeToken(key))
	if err != nil {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", key, err)
	}

	logger.Debugf("subscribed %s, handle %d", key, remote.Handle)
	logger.Tracef("snapshot %s %s", key, spew.Sdump(remote.Snapshot))

	// the initial snapshot is a synthetic reset over the empty collection
	if err := s.applySnapshot(target, remote.Snapshot); err != nil {
		s.failSubscription(sub, err)
		return nil
	}

	s.mu.Lock()
	sub.state = StateActive
	sub.handle = remote.Handle
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readBatches(sub, remote.Batches)

	return nil
}

func (s *Syncer) readBatches(sub *subscription, batches <-chan *bridge.DiffBatch) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				logger.Debugf("stream %s closed by transport", sub.target)
				return
			}
			logger.Tracef("batch %s %s", sub.target, spew.Sdump(batch.Diffs))
			if err := s.applyBatch(sub.target, batch.Diffs); err != nil {
				s.failSubscription(sub, err)
				return
			}
			if batch.Token != "" {
				s.saveResumeToken(sub.target.String(), batch.Token)
			}
		}
	}
}

// resumeToken looks up the last persisted stream position for a target key;
// empty when there is none or no db is configured.
func (s *Syncer) resumeToken(key string) string {
	if s.db == nil {
		return ""
	}
	token, err := s.db.ResumeToken(key)
	if err != nil {
		logger.Warnf("resume token %s: %v", key, err)
		return ""
	}
	return token
}

func (s *Syncer) saveResumeToken(key, token string) {
	if s.db == nil {
		return
	}
	if err := s.db.SetResumeToken(key, token); err != nil {
		logger.Warnf("save resume token %s: %v", key, err)
	}
}

// failSubscription handles a protocol violation: fatal for this subscription
// only, never for the engine. The remote resource is released and the
// application is offered the Resubscribe recovery path.
func (s *Syncer) failSubscription(sub *subscription, err error) {
	logger.Errorf("subscription %s failed: %v", sub.target, err)

	s.mu.Lock()
	sub.state = StateError
	handle := sub.handle
	released := sub.cancelled
	sub.cancelled = true
	s.mu.Unlock()

	if !released {
		if cerr := s.tr.CancelSubscription(handle); cerr != nil {
			logger.Warnf("cancel %s after failure: %v", sub.target, cerr)
		}
	}

	s.emitError(sub.target, err, true)
}

// Unsubscribe releases target's remote subscription exactly once. Targets
// that were never subscribed, or already unsubscribed, are a logged no-op.
func (s *Syncer) Unsubscribe(target bridge.Target) {
	key := target.String()

	s.mu.Lock()
	sub, ok := s.subs[key]
	if !ok || sub.state == StateUnsubscribed {
		s.mu.Unlock()
		logger.Debugf("unsubscribe %s: not subscribed, ignoring", key)
		return
	}
	sub.state = StateUnsubscribed
	handle := sub.handle
	released := sub.cancelled
	sub.cancelled = true
	s.mu.Unlock()

	if released {
		return
	}
	if err := s.tr.CancelSubscription(handle); err != nil {
		// the remote side may have released it already; not fatal
		logger.Warnf("unsubscribe %s: %v", key, err)
	}
}

// Resubscribe is the recovery path after a protocol error: drop whatever we
// hold for target and start over from a fresh snapshot.
func (s *Syncer) Resubscribe(target bridge.Target) error {
	s.Unsubscribe(target)

	s.mu.Lock()
	delete(s.subs, target.String())
	switch target.Kind {
	case bridge.TargetRoomList:
		s.rooms = nil
	case bridge.TargetTimeline:
		delete(s.timelines, target.RoomID)
	case bridge.TargetRoomMembers:
		delete(s.members, target.RoomID)
	case bridge.TargetPowerLevels:
		delete(s.levels, target.RoomID)
	}
	s.mu.Unlock()

	return s.subscribe(target)
}

func (s *Syncer) applySnapshot(target bridge.Target, snapshot []any) error {
	raw := make([]map[string]any, 0, len(snapshot)+1)
	raw = append(raw, map[string]any{"kind": "reset", "values": snapshot})
	return s.applyBatch(target, raw)
}

func (s *Syncer) applyBatch(target bridge.Target, diffs []map[string]any) error {
	switch target.Kind {
	case bridge.TargetRoomList:
		return s.applyRoomList(diffs)
	case bridge.TargetTimeline:
		return s.applyTimeline(target.RoomID, diffs)
	case bridge.TargetRoomMembers:
		return s.applyMembers(target.RoomID, diffs)
	case bridge.TargetPowerLevels:
		return s.applyPowerLevels(target.RoomID, diffs)
	case bridge.TargetRoomInfo:
		return s.applyRoomInfo(target.RoomID, diffs)
	case bridge.TargetSyncStatus:
		return s.applySyncStatus(diffs)
	default:
		return fmt.Errorf("applyBatch: no handler for target kind %q", target.Kind)
	}
}
