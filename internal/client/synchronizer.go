/*
Package client implements the synchronizer side of the realtime protocol.

This file defines the Synchronizer: it owns the roster, the capped message log,
the typing set, and the idempotent login guard, and turns the server's event
stream into a consistent local view. Inbound handling runs on one goroutine;
the mutators are safe to call concurrently from a view layer.
*/
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"aquahub/internal/app/chat"
	"aquahub/internal/app/user"
	"aquahub/internal/pkg/logx"
	"aquahub/internal/pkg/randx"
)

// Status is the connection state surfaced to the view layer.
type Status string

const (
	// StatusDisconnected means no live connection and no further automatic
	// retry. Terminal until Connect is called again.
	StatusDisconnected Status = "disconnected"

	// StatusConnecting means a reconnect attempt is in progress.
	StatusConnecting Status = "connecting"

	// StatusConnected means the transport is up.
	StatusConnected Status = "connected"
)

const (
	defaultMaxMessages       = 500
	defaultMoveInterval      = 100 * time.Millisecond
	defaultReconnectAttempts = 5
	defaultReconnectBackoff  = time.Second
	defaultHandshakeTimeout  = 5 * time.Second
	defaultWriteWait         = 10 * time.Second

	// defaultSpaceWidth/Height bound the random starting position of a new avatar.
	defaultSpaceWidth  = 600
	defaultSpaceHeight = 400
)

// ErrNotConnected is returned by Connect-dependent operations after the retry
// budget is exhausted or before Connect is called.
var ErrNotConnected = errors.New("not connected")

// Config carries the explicit bounds of a Synchronizer. Zero values fall back
// to the reference defaults (100ms throttle, 5 reconnect attempts with 1s
// backoff, 500 retained messages).
type Config struct {
	// URL is the ws:// or wss:// endpoint of the hub.
	URL string

	// MaxMessages caps the local message log; the oldest entries are dropped.
	MaxMessages int

	// MoveInterval is the minimum interval between forwarded drag positions.
	MoveInterval time.Duration

	// ReconnectAttempts is the fixed retry budget after a transport drop.
	ReconnectAttempts int

	// ReconnectBackoff is the fixed delay between reconnect attempts.
	ReconnectBackoff time.Duration

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration

	// SpaceWidth and SpaceHeight bound the random starting position.
	SpaceWidth  int
	SpaceHeight int

	// OnStatus, OnOffer and OnAnswer surface connection state and relayed
	// signaling payloads to the view layer. All optional.
	OnStatus func(Status)
	OnOffer  func(chat.OfferNotice)
	OnAnswer func(chat.AnswerNotice)
}

func (c *Config) withDefaults() {
	if c.MaxMessages == 0 {
		c.MaxMessages = defaultMaxMessages
	}
	if c.MoveInterval == 0 {
		c.MoveInterval = defaultMoveInterval
	}
	if c.ReconnectAttempts == 0 {
		c.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = defaultReconnectBackoff
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.SpaceWidth == 0 {
		c.SpaceWidth = defaultSpaceWidth
	}
	if c.SpaceHeight == 0 {
		c.SpaceHeight = defaultSpaceHeight
	}
}

// Synchronizer reconciles the hub's event stream into local state and exposes
// the protocol's mutating entry points.
type Synchronizer struct {
	cfg      Config
	throttle *moveThrottle
	logger   zerolog.Logger

	// writeMu serializes frame writes to the connection.
	writeMu sync.Mutex

	// mu guards everything below.
	mu       sync.RWMutex
	conn     *websocket.Conn
	status   Status
	closed   bool
	connID   string
	name     string
	loggedIn string // connection id the login event was emitted for
	users    []user.UserRecord
	messages []chat.Message
	typing   map[string]struct{}

	// optimistic drag state: while active, the local position wins over
	// server echoes in the rendered view.
	dragActive bool
	dragPos    user.Position
}

// NewSynchronizer creates a Synchronizer for the given config. Call Connect to
// establish the transport.
func NewSynchronizer(cfg Config) *Synchronizer {
	cfg.withDefaults()

	s := &Synchronizer{
		cfg:    cfg,
		status: StatusDisconnected,
		typing: make(map[string]struct{}),
		logger: logx.Logger().With().Str("component", "synchronizer").Logger(),
	}
	s.throttle = newMoveThrottle(cfg.MoveInterval, s.emitMove)

	return s
}

// Connect dials the hub and starts the inbound loop. Subsequent transport
// drops are retried with the configured budget; exhaustion leaves the
// synchronizer in the terminal Disconnected state.
func (s *Synchronizer) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		s.setStatus(StatusDisconnected)
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.mu.Unlock()
	s.setStatus(StatusConnected)

	go s.run(ctx, conn)
	return nil
}

func (s *Synchronizer) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// run drives the read loop and the bounded reconnect cycle.
func (s *Synchronizer) run(ctx context.Context, conn *websocket.Conn) {
	for {
		s.readLoop(conn)

		// reconnection tears down all local state unconditionally
		s.resetState()

		if s.isClosed() || ctx.Err() != nil {
			s.setStatus(StatusDisconnected)
			return
		}

		next, ok := s.reconnect(ctx)
		if !ok {
			s.logger.Warn().Int("attempts", s.cfg.ReconnectAttempts).Msg("Reconnect budget exhausted.")
			s.setStatus(StatusDisconnected)
			return
		}

		s.mu.Lock()
		s.conn = next
		s.mu.Unlock()
		s.setStatus(StatusConnected)
		conn = next
	}
}

// reconnect retries the dial with fixed backoff until the budget runs out.
func (s *Synchronizer) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	s.setStatus(StatusConnecting)

	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.cfg.ReconnectBackoff):
		}

		if s.isClosed() {
			return nil, false
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect attempt failed.")
			continue
		}

		s.logger.Info().Int("attempt", attempt).Msg("Reconnected.")
		return conn, true
	}

	return nil, false
}

// readLoop consumes frames until the transport fails or closes.
func (s *Synchronizer) readLoop(conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				s.logger.Info().Err(err).Msg("Connection read loop ended.")
			}
			return
		}

		s.handleFrame(frame)
	}
}

// handleFrame decodes one server frame and applies it to local state.
// Malformed frames are dropped; state mutations are serialized because only
// the read loop calls this.
func (s *Synchronizer) handleFrame(frame []byte) {
	var env chat.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed server frame.")
		return
	}

	switch env.Type {
	case chat.EventSession:
		var info chat.SessionInfo
		if err := json.Unmarshal(env.Payload, &info); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed session payload.")
			return
		}
		s.handleSession(info)

	case chat.EventMessageNew:
		var msg chat.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed message payload.")
			return
		}
		s.appendMessage(msg)

	case chat.EventUsersUpdate:
		var roster []user.UserRecord
		if err := json.Unmarshal(env.Payload, &roster); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed roster payload.")
			return
		}
		s.mu.Lock()
		s.users = roster
		s.mu.Unlock()

	case chat.EventTyping:
		var notice chat.TypingNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed typing payload.")
			return
		}
		s.mu.Lock()
		if notice.IsTyping {
			s.typing[notice.Name] = struct{}{}
		} else {
			delete(s.typing, notice.Name)
		}
		s.mu.Unlock()

	case chat.EventOffer:
		var notice chat.OfferNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed offer payload.")
			return
		}
		if s.cfg.OnOffer != nil {
			s.cfg.OnOffer(notice)
		}

	case chat.EventAnswer:
		var notice chat.AnswerNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed answer payload.")
			return
		}
		if s.cfg.OnAnswer != nil {
			s.cfg.OnAnswer(notice)
		}

	default:
		s.logger.Warn().Str("event_type", string(env.Type)).Msg("Dropping server frame of unknown type.")
	}
}

// handleSession records the server-assigned connection id and triggers the
// pending login, if a name was already set.
func (s *Synchronizer) handleSession(info chat.SessionInfo) {
	s.mu.Lock()
	s.connID = info.ID
	s.mu.Unlock()

	s.logger.Debug().Str("conn_id", info.ID).Msg("Session id assigned.")
	s.maybeLogin()
}

// Login sets the display name and emits the login event once the connection id
// is known. Idempotent per connection id: repeated calls, and reconnect races,
// produce exactly one login event per live connection.
func (s *Synchronizer) Login(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	s.maybeLogin()
}

// maybeLogin emits a login event if a name and a connection id are present and
// this connection has not logged in yet.
func (s *Synchronizer) maybeLogin() {
	s.mu.Lock()

	if s.name == "" || s.connID == "" || s.loggedIn == s.connID {
		s.mu.Unlock()
		return
	}

	x, y, err := randx.StartPosition(s.cfg.SpaceWidth, s.cfg.SpaceHeight)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("Failed to generate start position.")
		return
	}

	color, err := randx.AvatarColor()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("Failed to generate avatar color.")
		return
	}

	record := user.UserRecord{
		ID:       s.connID,
		Name:     s.name,
		Status:   user.StatusOnline,
		Position: user.Position{X: x, Y: y},
		Color:    color,
		Avatar:   randx.AvatarURL(s.name),
	}

	s.loggedIn = s.connID
	s.mu.Unlock()

	if err := s.emit(chat.EventLogin, record); err != nil {
		s.logger.Error().Err(err).Msg("Failed to emit login.")
	}
}

// SendMessage submits a chat message draft. Sending also clears the local
// user's typing state. Refuses silently when not logged in or content is empty.
func (s *Synchronizer) SendMessage(content string) {
	if content == "" || !s.isLoggedIn() {
		return
	}

	s.mu.RLock()
	name := s.name
	s.mu.RUnlock()

	draft := chat.MessageDraft{
		Type:      chat.MessageTypeUser,
		Sender:    name,
		Content:   content,
		Timestamp: chat.Timestamp(),
	}

	if err := s.emit(chat.EventMessageSend, draft); err != nil {
		s.logger.Error().Err(err).Msg("Failed to emit message.")
		return
	}

	s.SendTyping(false)
}

// SendTyping announces the local typing state. Refuses silently before login.
func (s *Synchronizer) SendTyping(isTyping bool) {
	if !s.isLoggedIn() {
		return
	}

	if err := s.emit(chat.EventTyping, isTyping); err != nil {
		s.logger.Error().Err(err).Msg("Failed to emit typing update.")
	}
}

// SendPosition forwards a position immediately, outside any drag throttling.
func (s *Synchronizer) SendPosition(pos user.Position) {
	if !s.isLoggedIn() {
		return
	}

	s.emitMove(pos)
}

// DragPosition records an in-progress drag position. The local view renders it
// immediately; forwarding to the server is throttled.
func (s *Synchronizer) DragPosition(pos user.Position) {
	if !s.isLoggedIn() {
		return
	}

	s.mu.Lock()
	s.dragActive = true
	s.dragPos = pos
	s.mu.Unlock()

	s.throttle.Send(pos)
}

// EndDrag finishes the drag: the terminal position is always forwarded, even
// inside the throttle window, and the rendered view reconciles back to server
// state.
func (s *Synchronizer) EndDrag() {
	s.mu.Lock()
	if !s.dragActive {
		s.mu.Unlock()
		return
	}
	final := s.dragPos
	s.dragActive = false
	s.mu.Unlock()

	s.throttle.Flush(final)
}

// SendOffer relays an opaque session description to one peer.
func (s *Synchronizer) SendOffer(targetID, sdp string) {
	if !s.isLoggedIn() {
		return
	}

	if err := s.emit(chat.EventOffer, chat.OfferEvent{Target: targetID, SDP: sdp}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to emit offer.")
	}
}

// SendAnswer relays an opaque answer back through the hub.
func (s *Synchronizer) SendAnswer(sdp string) {
	if err := s.emit(chat.EventAnswer, chat.AnswerEvent{SDP: sdp}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to emit answer.")
	}
}

// Logout closes the connection deliberately; no reconnect follows.
func (s *Synchronizer) Logout() {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Connection close on logout.")
	}
}

// Users returns the rendered roster. While a drag is active the locally
// optimistic position wins over whatever the last server echo carried.
func (s *Synchronizer) Users() []user.UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.users, func(u user.UserRecord, _ int) user.UserRecord {
		if s.dragActive && u.ID == s.connID {
			u.Position = s.dragPos
		}
		return u
	})
}

// Messages returns a copy of the local message log.
func (s *Synchronizer) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingUsers returns the names currently flagged as typing, sorted for a
// stable rendering order.
func (s *Synchronizer) TypingUsers() []string {
	s.mu.RLock()
	names := lo.Keys(s.typing)
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Status returns the current connection state.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// ConnectionID returns the server-assigned connection id, or "" before the
// session event arrives.
func (s *Synchronizer) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connID
}

// IsInitialized reports whether the login event was emitted for the current
// connection.
func (s *Synchronizer) IsInitialized() bool {
	return s.isLoggedIn()
}

func (s *Synchronizer) isLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn != "" && s.loggedIn == s.connID
}

func (s *Synchronizer) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Synchronizer) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()

	if changed && s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}

// resetState wipes all reconciled state after a transport drop. The next
// users:update rebuilds the roster; the server keeps no message backlog.
func (s *Synchronizer) resetState() {
	s.mu.Lock()
	s.conn = nil
	s.connID = ""
	s.loggedIn = ""
	s.users = nil
	s.messages = nil
	s.typing = make(map[string]struct{})
	s.dragActive = false
	s.mu.Unlock()
}

// appendMessage accumulates one inbound message, dropping the oldest entries
// beyond the configured cap.
func (s *Synchronizer) appendMessage(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if len(s.messages) > s.cfg.MaxMessages {
		overflow := len(s.messages) - s.cfg.MaxMessages
		s.messages = append([]chat.Message(nil), s.messages[overflow:]...)
	}
}

// emitMove sends one position update. Used directly and as the throttle's sink.
func (s *Synchronizer) emitMove(pos user.Position) {
	if err := s.emit(chat.EventMove, pos); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to emit move.")
	}
}

// emit encodes and writes one frame to the live connection.
func (s *Synchronizer) emit(eventType chat.EventType, payload any) error {
	frame, err := chat.EncodeEvent(eventType, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conn := s.conn
	status := s.status
	s.mu.RUnlock()

	if conn == nil || status != StatusConnected {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
