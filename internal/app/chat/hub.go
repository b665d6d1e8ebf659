/*
Package chat contains the core logic of the realtime presence-and-chat hub.

This file defines the Hub, the single router through which every inbound event
flows. One run-loop goroutine owns the registry and the connection set and
processes each command to completion, including its fan-out, before dequeuing
the next. All commands travel through one queue, so a connection's registration,
its events, and its teardown are handled strictly in the order they were issued.
*/
package chat

import (
	"github.com/rs/zerolog"

	"aquahub/internal/app/user"
	"aquahub/internal/pkg/errs"
	"aquahub/internal/pkg/logx"
	"aquahub/internal/pkg/randx"
)

// commandChannelBuffer absorbs bursts from many connections feeding one loop.
const commandChannelBuffer = 1024

// command is the closed set of inputs to the hub run loop.
type command interface {
	isCommand()
}

type registerCmd struct{ c *Client }

type unregisterCmd struct{ c *Client }

// envelope pairs an inbound event with the connection it arrived on.
type envelope struct {
	from  *Client
	event Event
}

type rosterCmd struct{ reply chan []user.UserRecord }

func (registerCmd) isCommand()   {}
func (unregisterCmd) isCommand() {}
func (envelope) isCommand()      {}
func (rosterCmd) isCommand()     {}

// Hub routes every inbound event: presence and chat fan-out, plus the
// store-and-forward signaling relay. All state it owns is mutated only from
// the Run loop.
type Hub struct {
	// registry is the authoritative connection-id-to-record map, injected so
	// the routing logic is testable without a live transport.
	registry *Registry

	// clients holds every live connection keyed by connection id, logged in or not.
	clients map[string]*Client

	// commands is the single FIFO queue feeding the run loop.
	commands chan command

	stop chan struct{}
	done chan struct{}

	// maxContentBytes caps chat message content; oversized drafts are dropped.
	maxContentBytes int

	logger zerolog.Logger
}

// NewHub constructs a Hub around the given registry.
func NewHub(registry *Registry, maxContentBytes int) *Hub {
	hubLogger := logx.Logger().With().Str("component", "hub").Logger()

	return &Hub{
		registry:        registry,
		clients:         make(map[string]*Client),
		commands:        make(chan command, commandChannelBuffer),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		maxContentBytes: maxContentBytes,
		logger:          hubLogger,
	}
}

// Run executes the hub event loop until Shutdown is called.
func (h *Hub) Run() {
	defer func() {
		for _, c := range h.clients {
			c.closeSend()
		}
		h.clients = nil
		close(h.done)
		h.logger.Info().Msg("Hub loop stopped.")
	}()

	h.logger.Info().Msg("Hub loop started.")

	for {
		select {
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) handleCommand(cmd command) {
	switch v := cmd.(type) {
	case registerCmd:
		h.handleRegister(v.c)

	case unregisterCmd:
		h.handleDisconnect(v.c)

	case envelope:
		// a frame may race with its connection's teardown
		if current, ok := h.clients[v.from.id]; !ok || current != v.from {
			h.logger.Debug().Str("conn_id", v.from.id).Msg("Dropping event from closed connection.")
			return
		}
		h.dispatch(v.from, v.event)

	case rosterCmd:
		v.reply <- h.registry.Snapshot()
	}
}

// Shutdown stops the run loop and closes every connection's send queue.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down hub...")
	close(h.stop)
	<-h.done
}

// enqueueCommand queues one command unless the hub is stopped.
func (h *Hub) enqueueCommand(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.stop:
	}
}

// Register hands a freshly upgraded connection to the hub.
func (h *Hub) Register(c *Client) {
	h.enqueueCommand(registerCmd{c: c})
}

// Unregister removes a connection from the hub after its transport closed.
func (h *Hub) Unregister(c *Client) {
	h.enqueueCommand(unregisterCmd{c: c})
}

// Dispatch queues one decoded inbound event for processing.
func (h *Hub) Dispatch(from *Client, event Event) {
	h.enqueueCommand(envelope{from: from, event: event})
}

// Roster returns a consistent registry snapshot, or nil if the hub is stopped.
func (h *Hub) Roster() []user.UserRecord {
	reply := make(chan []user.UserRecord, 1)

	select {
	case h.commands <- rosterCmd{reply: reply}:
	case <-h.done:
		return nil
	}

	select {
	case roster := <-reply:
		return roster
	case <-h.done:
		return nil
	}
}

// handleRegister adds the connection and tells the client its assigned id.
// No presence broadcast happens until the connection logs in.
func (h *Hub) handleRegister(c *Client) {
	if existing, ok := h.clients[c.id]; ok && existing != c {
		// connection ids are unique per transport; a collision means a bug upstream
		h.logger.Error().Str("conn_id", c.id).Msg("Connection id collision on register.")
		existing.closeSend()
	}

	h.clients[c.id] = c
	h.unicast(c, EventSession, SessionInfo{ID: c.id})

	h.logger.Info().
		Str("conn_id", c.id).
		Int("total_connections", len(h.clients)).
		Msg("Connection registered.")
}

// handleDisconnect removes the connection and, if it had logged in, broadcasts
// a leave notice followed by a fresh roster snapshot. A connection that never
// logged in leaves silently.
func (h *Hub) handleDisconnect(c *Client) {
	current, ok := h.clients[c.id]
	if !ok || current != c {
		h.logger.Debug().Str("conn_id", c.id).Msg("Ignoring unregister for unknown or stale connection.")
		return
	}

	delete(h.clients, c.id)
	c.closeSend()

	record, had := h.registry.Remove(c.id)
	if !had {
		h.logger.Info().Str("conn_id", c.id).Msg("Unauthenticated connection closed.")
		return
	}

	h.logger.Info().
		Str("conn_id", c.id).
		Str("name", record.Name).
		Int("total_users", h.registry.Len()).
		Msg("User disconnected.")

	h.broadcast(EventMessageNew, NewSystemMessage(LeaveNotice(record.Name)))
	h.broadcast(EventUsersUpdate, h.registry.Snapshot())
}

// dispatch routes one decoded event. Every case runs to completion, fan-out
// included, before the loop dequeues the next command.
func (h *Hub) dispatch(from *Client, event Event) {
	switch ev := event.(type) {
	case *LoginEvent:
		h.handleLogin(from, ev)
	case *MessageSendEvent:
		h.handleMessageSend(from, ev)
	case *MoveEvent:
		h.handleMove(from, ev)
	case *TypingEvent:
		h.handleTyping(from, ev)
	case *OfferEvent:
		h.handleOffer(from, ev)
	case *AnswerEvent:
		h.handleAnswer(from, ev)
	default:
		h.logger.Warn().Str("conn_id", from.id).Msgf("Unhandled event type %T.", event)
	}
}

// handleLogin moves the connection to the Active state: the record's identity
// is stamped with the server-assigned connection id (never the client-supplied
// one), then a join notice and a fresh roster go out, in that order, so clients
// can correlate the join text with the updated roster.
func (h *Hub) handleLogin(from *Client, ev *LoginEvent) {
	record := ev.Record
	record.ID = from.id
	record.Status = user.StatusOnline

	h.registry.Put(from.id, record)

	h.logger.Info().
		Str("conn_id", from.id).
		Str("name", record.Name).
		Int("total_users", h.registry.Len()).
		Msg("User logged in.")

	h.broadcast(EventMessageNew, NewSystemMessage(JoinNotice(record.Name)))
	h.broadcast(EventUsersUpdate, h.registry.Snapshot())
}

// handleMessageSend assigns a fresh message id, binds the sender to the
// connection's registered name, and echoes the message to every connection
// including the sender. A draft from a connection that never logged in is a
// protocol violation and is dropped.
func (h *Hub) handleMessageSend(from *Client, ev *MessageSendEvent) {
	record, ok := h.registry.Get(from.id)
	if !ok {
		h.logger.Warn().
			Int("code", errs.ErrNotLoggedIn).
			Str("conn_id", from.id).
			Msg("Dropping message:send before login.")
		return
	}

	if len(ev.Draft.Content) > h.maxContentBytes {
		h.logger.Warn().
			Int("code", errs.ErrMessageContentTooLong).
			Str("conn_id", from.id).
			Int("content_bytes", len(ev.Draft.Content)).
			Msg("Dropping oversized message content.")
		return
	}

	timestamp := ev.Draft.Timestamp
	if timestamp == "" {
		timestamp = Timestamp()
	}

	message := Message{
		ID:        randx.MessageID(),
		Type:      MessageTypeUser,
		Sender:    record.Name,
		Content:   ev.Draft.Content,
		Timestamp: timestamp,
	}

	h.broadcast(EventMessageNew, message)
}

// handleMove overwrites the sender's position and rebroadcasts the roster.
// An absent record means move raced a disconnect or preceded login; either way
// it is discarded without a broadcast.
func (h *Hub) handleMove(from *Client, ev *MoveEvent) {
	updated := h.registry.Update(from.id, func(record *user.UserRecord) {
		record.Position = ev.Position
	})

	if !updated {
		h.logger.Debug().Str("conn_id", from.id).Msg("Dropping user:move for unknown connection.")
		return
	}

	h.broadcast(EventUsersUpdate, h.registry.Snapshot())
}

// handleTyping relays the typing flag to every connection except the typist.
// The hub stores nothing: the typing set exists only on clients.
func (h *Hub) handleTyping(from *Client, ev *TypingEvent) {
	record, ok := h.registry.Get(from.id)
	if !ok {
		h.logger.Debug().Str("conn_id", from.id).Msg("Dropping user:typing for unknown connection.")
		return
	}

	h.broadcastExcept(from, EventTyping, TypingNotice{
		UserID:   record.ID,
		Name:     record.Name,
		IsTyping: ev.IsTyping,
	})
}

// handleOffer forwards an opaque session description to exactly one peer,
// attaching the sender's id and display name. Offers from connections that
// never logged in, or to unknown targets, are dropped with a warning.
func (h *Hub) handleOffer(from *Client, ev *OfferEvent) {
	record, ok := h.registry.Get(from.id)
	if !ok {
		h.logger.Warn().
			Int("code", errs.ErrNotLoggedIn).
			Str("conn_id", from.id).
			Msg("Dropping offer before login.")
		return
	}

	target, ok := h.clients[ev.Target]
	if !ok {
		h.logger.Warn().
			Int("code", errs.ErrPeerNotFound).
			Str("conn_id", from.id).
			Str("target", ev.Target).
			Msg("Dropping offer to unknown target.")
		return
	}

	h.unicast(target, EventOffer, OfferNotice{
		From:     from.id,
		SDP:      ev.SDP,
		FromName: record.Name,
	})
}

// handleAnswer broadcasts the answer to every connection, tagged with the
// answering connection's id. Receivers filter by cid against offers they sent.
func (h *Hub) handleAnswer(from *Client, ev *AnswerEvent) {
	h.broadcast(EventAnswer, AnswerNotice{
		CID: from.id,
		SDP: ev.SDP,
	})
}

// broadcast delivers one event to every live connection.
func (h *Hub) broadcast(eventType EventType, payload any) {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode broadcast frame.")
		return
	}

	for _, c := range h.clients {
		c.enqueue(frame)
	}
}

// broadcastExcept delivers one event to every live connection except sender.
func (h *Hub) broadcastExcept(sender *Client, eventType EventType, payload any) {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode broadcast frame.")
		return
	}

	for id, c := range h.clients {
		if id == sender.id {
			continue
		}
		c.enqueue(frame)
	}
}

// unicast delivers one event to a single connection.
func (h *Hub) unicast(target *Client, eventType EventType, payload any) {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode unicast frame.")
		return
	}

	target.enqueue(frame)
}
