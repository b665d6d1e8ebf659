/*
Package chat contains the core logic of the realtime presence-and-chat hub.

This file defines the Message type and the construction of system notices for
joins and leaves. Messages are broadcast once and never stored: a reconnecting
client receives no backlog.
*/
package chat

import (
	"fmt"
	"time"

	"aquahub/internal/pkg/randx"
)

// MessageType distinguishes user chat messages from system notices.
type MessageType string

const (
	// MessageTypeUser marks a message written by a participant.
	MessageTypeUser MessageType = "user"

	// MessageTypeSystem marks a server-synthesized notice (joins and leaves).
	MessageTypeSystem MessageType = "system"
)

// Message is one chat message as broadcast to every connection.
// The id is server-assigned and unique within the process lifetime.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

// MessageDraft is a Message as submitted by a client: everything except the id.
// The sender field is client-supplied and replaced by the hub with the
// connection's registered name before broadcast.
type MessageDraft struct {
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

// Timestamp returns the current time formatted the way message timestamps
// travel on the wire (ISO-8601, UTC).
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewSystemMessage builds a system notice with a fresh id. System messages
// carry no sender.
func NewSystemMessage(content string) Message {
	return Message{
		ID:        randx.MessageID(),
		Type:      MessageTypeSystem,
		Content:   content,
		Timestamp: Timestamp(),
	}
}

// JoinNotice is the system message content announcing that name entered the space.
func JoinNotice(name string) string {
	return fmt.Sprintf("%s が入室しました", name)
}

// LeaveNotice is the system message content announcing that name left the space.
func LeaveNotice(name string) string {
	return fmt.Sprintf("%s が退室しました", name)
}
