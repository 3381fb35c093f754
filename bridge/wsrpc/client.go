// Package wsrpc implements bridge.Transport over a websocket JSON-RPC
// channel: request/response calls with numeric ids, and server-pushed diff
// notifications routed to per-handle subscription streams.
package wsrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix/id"

	"github.com/chatlab/fedisync/bridge"
)

var logger *logrus.Entry

func init() {
	l := logrus.New()
	l.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = l.WithFields(logrus.Fields{"prefix": "bridge/wsrpc"})
}

func SetLogger(l *logrus.Entry) {
	logger = l
}

// ErrClosed is returned for calls issued after Close.
var ErrClosed = errors.New("wsrpc: client closed")

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("wsrpc: remote error %d: %s", e.Code, e.Message)
}

// message is both request and response; notifications carry Method with no
// ID.
type message struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// subStream owns one subscription's batch channel. Delivery and release can
// race (server batch vs local cancel), so the channel is only ever closed
// after every in-flight deliver has finished, and a deliver never touches a
// released channel.
type subStream struct {
	ch chan *bridge.DiffBatch
	// done unblocks a deliver stuck on a full buffer once released
	done chan struct{}

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

func newSubStream(buffer int) *subStream {
	return &subStream{
		ch:   make(chan *bridge.DiffBatch, buffer),
		done: make(chan struct{}),
	}
}

func (s *subStream) deliver(b *bridge.DiffBatch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.ch <- b:
	case <-s.done:
	}
}

// release closes the stream exactly once; the consumer observes the channel
// closing.
func (s *subStream) release() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.inflight.Wait()
	close(s.ch)
}

type Client struct {
	url   string
	token string

	mu      sync.Mutex // guards conn writes and the maps below
	conn    *websocket.Conn
	pending map[uint64]chan *message
	subs    map[bridge.Handle]*subStream
	closed  bool

	nextID atomic.Uint64
}

// Dial connects to the bridge endpoint, retrying with jittered backoff until
// ctx is done.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	c := &Client{
		url:     url,
		token:   token,
		pending: make(map[uint64]chan *message),
		subs:    make(map[bridge.Handle]*subStream),
	}

	b := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    15 * time.Second,
		Jitter: true,
	}

	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			c.conn = conn
			break
		}

		d := b.Duration()
		logger.Warnf("dial %s failed: %v, retrying in %s", url, err, d)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wsrpc: dial %s: %w", url, ctx.Err())
		case <-time.After(d):
		}
	}

	go c.readLoop()

	if token != "" {
		if err := c.call(ctx, "auth", map[string]any{"token": token}, nil); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Errorf("unparseable frame: %v", err)
			continue
		}

		switch {
		case msg.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			delete(c.pending, *msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- &msg
			}
		case msg.Method == "subscription.update":
			c.routeBatch(msg.Params)
		case msg.Method == "subscription.closed":
			c.closeSub(msg.Params)
		default:
			logger.Debugf("ignoring notification %q", msg.Method)
		}
	}
}

type batchParams struct {
	Handle bridge.Handle    `json:"handle"`
	Diffs  []map[string]any `json:"diffs"`
	Token  string           `json:"token,omitempty"`
}

func (c *Client) routeBatch(params json.RawMessage) {
	var p batchParams
	if err := json.Unmarshal(params, &p); err != nil {
		logger.Errorf("bad subscription.update params: %v", err)
		return
	}

	c.mu.Lock()
	st, ok := c.subs[p.Handle]
	c.mu.Unlock()
	if !ok {
		// update raced with a cancel; already released, drop it
		logger.Debugf("batch for released handle %d", p.Handle)
		return
	}

	st.deliver(&bridge.DiffBatch{Handle: p.Handle, Diffs: p.Diffs, Token: p.Token})
}

func (c *Client) closeSub(params json.RawMessage) {
	var p struct {
		Handle bridge.Handle `json:"handle"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}

	c.mu.Lock()
	st, ok := c.subs[p.Handle]
	delete(c.subs, p.Handle)
	c.mu.Unlock()
	if ok {
		st.release()
	}
}

// fail tears down all in-flight calls and subscription streams after a read
// error. Subscribers observe their Batches channel closing and may
// resubscribe over a fresh client.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if !c.closed {
		logger.Errorf("connection lost: %v", err)
	}

	for rpcID, ch := range c.pending {
		delete(c.pending, rpcID)
		close(ch)
	}
	streams := make([]*subStream, 0, len(c.subs))
	for handle, st := range c.subs {
		delete(c.subs, handle)
		streams = append(streams, st)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for _, st := range streams {
		st.release()
	}
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	rpcID := c.nextID.Add(1)

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("wsrpc: marshal %s params: %w", method, err)
	}

	ch := make(chan *message, 1)

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[rpcID] = ch
	err = c.conn.WriteJSON(&message{ID: &rpcID, Method: method, Params: raw})
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, rpcID)
		c.mu.Unlock()
		return fmt.Errorf("wsrpc: send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, rpcID)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("wsrpc: decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) Subscribe(ctx context.Context, target bridge.Target, since string) (*bridge.Subscription, error) {
	var result struct {
		Handle   bridge.Handle `json:"handle"`
		Snapshot []any         `json:"snapshot"`
	}

	params := map[string]any{"kind": string(target.Kind)}
	if target.RoomID != "" {
		params["room_id"] = target.RoomID.String()
	}
	if since != "" {
		params["since"] = since
	}

	if err := c.call(ctx, "subscribe", params, &result); err != nil {
		return nil, err
	}

	st := newSubStream(64)
	c.mu.Lock()
	c.subs[result.Handle] = st
	c.mu.Unlock()

	logger.Debugf("subscribed %s -> handle %d (%d snapshot values)", target, result.Handle, len(result.Snapshot))

	return &bridge.Subscription{Handle: result.Handle, Snapshot: result.Snapshot, Batches: st.ch}, nil
}

func (c *Client) CancelSubscription(handle bridge.Handle) error {
	c.mu.Lock()
	st, ok := c.subs[handle]
	delete(c.subs, handle)
	c.mu.Unlock()
	if ok {
		st.release()
	}

	err := c.call(context.Background(), "unsubscribe", map[string]any{"handle": handle}, nil)
	if err != nil && strings.Contains(err.Error(), "unknown subscription") {
		// already released remotely, not an error
		return nil
	}
	return err
}

func (c *Client) ListRooms(ctx context.Context) ([]map[string]any, error) {
	var rooms []map[string]any
	err := c.call(ctx, "room.list", map[string]any{}, &rooms)
	return rooms, err
}

func (c *Client) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	return c.call(ctx, "room.join", map[string]any{"room_id": roomID.String()}, nil)
}

func (c *Client) LeaveRoom(ctx context.Context, roomID id.RoomID) error {
	return c.call(ctx, "room.leave", map[string]any{"room_id": roomID.String()}, nil)
}

func (c *Client) CreateRoom(ctx context.Context, name string, invite []id.UserID) (id.RoomID, error) {
	var result struct {
		RoomID string `json:"room_id"`
	}
	err := c.call(ctx, "room.create", map[string]any{"name": name, "invite": invite}, &result)
	return id.RoomID(result.RoomID), err
}

func (c *Client) SendEvent(ctx context.Context, roomID id.RoomID, content map[string]any) (id.EventID, error) {
	var result struct {
		EventID string `json:"event_id"`
	}
	err := c.call(ctx, "room.send", map[string]any{
		"room_id": roomID.String(),
		"content": content,
	}, &result)
	return id.EventID(result.EventID), err
}

func (c *Client) SendReadReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) error {
	return c.call(ctx, "room.read_receipt", map[string]any{
		"room_id":  roomID.String(),
		"event_id": eventID.String(),
	}, nil)
}

func (c *Client) PaginateBack(ctx context.Context, roomID id.RoomID, count int) error {
	return c.call(ctx, "room.paginate_back", map[string]any{
		"room_id": roomID.String(),
		"count":   count,
	}, nil)
}

func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	return c.call(ctx, "profile.set_display_name", map[string]any{"name": name}, nil)
}

func (c *Client) SetAvatarURL(ctx context.Context, url string) error {
	return c.call(ctx, "profile.set_avatar_url", map[string]any{"url": url}, nil)
}

func (c *Client) SetRoomName(ctx context.Context, roomID id.RoomID, name string) error {
	return c.call(ctx, "room.set_name", map[string]any{
		"room_id": roomID.String(),
		"name":    name,
	}, nil)
}

func (c *Client) SetPowerLevels(ctx context.Context, roomID id.RoomID, levels *bridge.PowerLevels) error {
	return c.call(ctx, "room.set_power_levels", map[string]any{
		"room_id": roomID.String(),
		"levels":  levels,
	}, nil)
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]*bridge.UserProfile, error) {
	var users []*bridge.UserProfile
	err := c.call(ctx, "user.search", map[string]any{"query": query}, &users)
	return users, err
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
	c.fail(ErrClosed)
	return nil
}
