package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"aquahub/internal/app/user"
)

func TestDecodeEvent_Login(t *testing.T) {
	req := require.New(t)

	frame := []byte(`{"type":"user:login","payload":{"id":"spoofed","name":"Taro","status":"online","position":{"x":10,"y":20},"color":"hsl(1, 70%, 60%)","avatar":"https://example.com/a.svg"}}`)

	event, err := DecodeEvent(frame)
	req.NoError(err)

	login, ok := event.(*LoginEvent)
	req.True(ok)
	req.Equal("Taro", login.Record.Name)
	req.Equal(user.Position{X: 10, Y: 20}, login.Record.Position)
	// the client-supplied id survives decoding; the hub overwrites it
	req.Equal("spoofed", login.Record.ID)
}

func TestDecodeEvent_MessageSend(t *testing.T) {
	req := require.New(t)

	frame := []byte(`{"type":"message:send","payload":{"type":"user","sender":"Taro","content":"hi","timestamp":"2026-08-28T10:00:00Z"}}`)

	event, err := DecodeEvent(frame)
	req.NoError(err)

	send, ok := event.(*MessageSendEvent)
	req.True(ok)
	req.Equal("hi", send.Draft.Content)
	req.Equal("2026-08-28T10:00:00Z", send.Draft.Timestamp)
}

func TestDecodeEvent_MoveTypingOfferAnswer(t *testing.T) {
	req := require.New(t)

	event, err := DecodeEvent([]byte(`{"type":"user:move","payload":{"x":120,"y":80}}`))
	req.NoError(err)
	move, ok := event.(*MoveEvent)
	req.True(ok)
	req.Equal(user.Position{X: 120, Y: 80}, move.Position)

	event, err = DecodeEvent([]byte(`{"type":"user:typing","payload":true}`))
	req.NoError(err)
	typing, ok := event.(*TypingEvent)
	req.True(ok)
	req.True(typing.IsTyping)

	event, err = DecodeEvent([]byte(`{"type":"offer","payload":{"target":"c2","sdp":"v=0"}}`))
	req.NoError(err)
	offer, ok := event.(*OfferEvent)
	req.True(ok)
	req.Equal("c2", offer.Target)
	req.Equal("v=0", offer.SDP)

	event, err = DecodeEvent([]byte(`{"type":"answer","payload":{"sdp":"v=0"}}`))
	req.NoError(err)
	answer, ok := event.(*AnswerEvent)
	req.True(ok)
	req.Equal("v=0", answer.SDP)
}

func TestDecodeEvent_MalformedFramesAreRejected(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"invalid json", `{"type":"user:login"`},
		{"unknown type", `{"type":"user:teleport","payload":{}}`},
		{"login without name", `{"type":"user:login","payload":{"id":"c1"}}`},
		{"login name only whitespace", `{"type":"user:login","payload":{"name":"   "}}`},
		{"message without content", `{"type":"message:send","payload":{"type":"user","sender":"Taro"}}`},
		{"offer without target", `{"type":"offer","payload":{"sdp":"v=0"}}`},
		{"offer without sdp", `{"type":"offer","payload":{"target":"c2"}}`},
		{"answer without sdp", `{"type":"answer","payload":{}}`},
		{"typing with object payload", `{"type":"user:typing","payload":{"isTyping":true}}`},
		{"move with string coords", `{"type":"user:move","payload":{"x":"a","y":"b"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := DecodeEvent([]byte(tc.frame))
			require.Error(t, err)
			require.Nil(t, event)
		})
	}
}

func TestEncodeEvent_RoundTripsThroughEnvelope(t *testing.T) {
	req := require.New(t)

	frame, err := EncodeEvent(EventTyping, TypingNotice{UserID: "c1", Name: "Hana", IsTyping: true})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(frame, &env))
	req.Equal(EventTyping, env.Type)

	var notice TypingNotice
	req.NoError(json.Unmarshal(env.Payload, &notice))
	req.Equal("Hana", notice.Name)
	req.True(notice.IsTyping)
}

func TestNewSystemMessage(t *testing.T) {
	req := require.New(t)

	msg := NewSystemMessage(JoinNotice("Taro"))
	req.Equal(MessageTypeSystem, msg.Type)
	req.Equal("Taro が入室しました", msg.Content)
	req.Empty(msg.Sender)
	req.NotEmpty(msg.ID)
	req.NotEmpty(msg.Timestamp)

	other := NewSystemMessage(LeaveNotice("Taro"))
	req.Equal("Taro が退室しました", other.Content)
	req.NotEqual(msg.ID, other.ID)
}
