/*
Package chat contains the core logic of the realtime presence-and-chat hub.

This file defines the Client struct, the server side of one WebSocket
connection. It owns the connection's read and write loops (ReadPump and
WritePump), heartbeats, and the buffered send queue the hub fans out into.
*/
package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"aquahub/internal/pkg/errs"
	"aquahub/internal/pkg/logx"
)

const (
	// timeout for writing a frame to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time the server waits for a Pong from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192
)

// Client represents one live WebSocket connection inside the hub.
// Its id is the server-assigned connection identity: opaque, unique per
// transport connection, and invalid the instant the transport closes.
type Client struct {
	// id is the server-assigned connection id.
	id string

	// hub is the router this connection feeds and receives fan-out from.
	hub *Hub

	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send queues outbound frames. The hub drops frames when it is full.
	send chan []byte

	// closeOnce guards send against double close (unregister vs. shutdown).
	closeOnce sync.Once

	logger zerolog.Logger
}

// NewClient wraps an upgraded WebSocket connection with the given assigned id.
func NewClient(hub *Hub, conn *websocket.Conn, id string, sendBufferSize int) *Client {
	clientLogger := logx.Logger().With().
		Str("component", "client").
		Str("conn_id", id).
		Logger()

	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: clientLogger,
	}
}

// ID returns the server-assigned connection id.
func (c *Client) ID() string {
	return c.id
}

// enqueue queues one frame for delivery. Called only from the hub run loop.
// A full queue means a slow or dead client; the frame is dropped rather than
// blocking the loop.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping frame.")
	}
}

// closeSend closes the send queue exactly once. Called only from the hub run loop.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump reads frames from the connection, decodes them into protocol events
// and feeds them to the hub in arrival order. Malformed frames are dropped with
// a warning; the connection survives them. The pump exits on transport error
// and unregisters the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close after read loop.")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Unexpected connection close.")
			}
			break
		}

		event, err := DecodeEvent(frame)
		if err != nil {
			// permissive by contract: bad frames never terminate the connection
			c.logger.Warn().
				Err(err).
				Int("code", errs.ErrMalformedEvent).
				Msg("Dropping malformed event frame.")
			continue
		}

		c.hub.Dispatch(c, event)
	}
}

// WritePump writes queued frames to the connection and keeps the heartbeat
// alive. It exits when the send queue is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close after write loop.")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}
