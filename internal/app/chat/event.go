/*
Package chat contains the core logic of the realtime presence-and-chat hub: the
event protocol, the session registry, the hub router, and the server side of a
WebSocket connection.

This file defines the wire protocol: a fixed vocabulary of named events carried
as JSON frames of the form {"type": ..., "payload": ...}. Inbound frames decode
into a closed set of event values dispatched through a single switch, which keeps
per-connection ordering and the login state machine explicit.
*/
package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"aquahub/internal/app/user"
)

// EventType names one protocol event. The same name can appear in both
// directions with different payload shapes (user:typing, offer, answer).
type EventType string

// Client-to-server event types.
const (
	EventLogin       EventType = "user:login"
	EventMessageSend EventType = "message:send"
	EventMove        EventType = "user:move"
	EventTyping      EventType = "user:typing"
	EventOffer       EventType = "offer"
	EventAnswer      EventType = "answer"
)

// Server-to-client event types.
const (
	EventSession     EventType = "session"
	EventMessageNew  EventType = "message:new"
	EventUsersUpdate EventType = "users:update"
)

// Envelope is the outer frame shape shared by every event in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the closed set of inbound client events. Exactly one concrete type
// exists per client-to-server EventType.
type Event interface {
	eventType() EventType
}

// LoginEvent announces the client's identity. The contained record's ID is
// client-supplied and untrusted; the hub overwrites it with the connection id.
type LoginEvent struct {
	Record user.UserRecord
}

// MessageSendEvent carries a chat message draft. The hub assigns the id and
// binds the sender to the connection's registered name.
type MessageSendEvent struct {
	Draft MessageDraft
}

// MoveEvent carries an avatar position update.
type MoveEvent struct {
	Position user.Position
}

// TypingEvent flags the sender as typing or not typing.
type TypingEvent struct {
	IsTyping bool
}

// OfferEvent asks the relay to forward an opaque session description to one peer.
type OfferEvent struct {
	Target string `json:"target"`
	SDP    string `json:"sdp"`
}

// AnswerEvent carries an opaque session description answered back through the relay.
type AnswerEvent struct {
	SDP string `json:"sdp"`
}

func (LoginEvent) eventType() EventType       { return EventLogin }
func (MessageSendEvent) eventType() EventType { return EventMessageSend }
func (MoveEvent) eventType() EventType        { return EventMove }
func (TypingEvent) eventType() EventType      { return EventTyping }
func (OfferEvent) eventType() EventType       { return EventOffer }
func (AnswerEvent) eventType() EventType      { return EventAnswer }

// SessionInfo tells a freshly connected client its server-assigned connection id.
type SessionInfo struct {
	ID string `json:"id"`
}

// TypingNotice is the fan-out payload for a typing state change, sent to every
// connection except the typist.
type TypingNotice struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

// OfferNotice is the unicast payload delivered to the target of an offer.
type OfferNotice struct {
	From     string `json:"from"`
	SDP      string `json:"sdp"`
	FromName string `json:"fromName"`
}

// AnswerNotice is the payload broadcast for an answer. Receivers match CID
// against offers they sent and ignore the rest.
type AnswerNotice struct {
	CID string `json:"cid"`
	SDP string `json:"sdp"`
}

// DecodeEvent parses one inbound frame into a typed event.
// It returns an error for invalid JSON, unknown types, and payloads missing
// required fields; callers drop such frames without terminating the connection.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid event frame: %w", err)
	}

	switch env.Type {
	case EventLogin:
		var rec user.UserRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if strings.TrimSpace(rec.Name) == "" {
			return nil, fmt.Errorf("%s requires a name", env.Type)
		}
		return &LoginEvent{Record: rec}, nil

	case EventMessageSend:
		var draft MessageDraft
		if err := json.Unmarshal(env.Payload, &draft); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if strings.TrimSpace(draft.Content) == "" {
			return nil, fmt.Errorf("%s requires content", env.Type)
		}
		return &MessageSendEvent{Draft: draft}, nil

	case EventMove:
		var pos user.Position
		if err := json.Unmarshal(env.Payload, &pos); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		return &MoveEvent{Position: pos}, nil

	case EventTyping:
		var isTyping bool
		if err := json.Unmarshal(env.Payload, &isTyping); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		return &TypingEvent{IsTyping: isTyping}, nil

	case EventOffer:
		var offer OfferEvent
		if err := json.Unmarshal(env.Payload, &offer); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if offer.Target == "" || offer.SDP == "" {
			return nil, fmt.Errorf("%s requires target and sdp", env.Type)
		}
		return &OfferEvent{Target: offer.Target, SDP: offer.SDP}, nil

	case EventAnswer:
		var answer AnswerEvent
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if answer.SDP == "" {
			return nil, fmt.Errorf("%s requires sdp", env.Type)
		}
		return &AnswerEvent{SDP: answer.SDP}, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// EncodeEvent builds one wire frame for the given event type and payload.
func EncodeEvent(eventType EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	frame, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", eventType, err)
	}

	return frame, nil
}
