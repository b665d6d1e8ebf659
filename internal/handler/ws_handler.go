/*
Package handler provides the HTTP handlers and routing setup for the aquahub server.

This file contains the WebSocket upgrade handler: it enforces the origin
policy, upgrades the transport, assigns the opaque connection id, and starts
the connection's read and write pumps. Connection-rate limiting is applied by
middleware on the route.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"aquahub/internal/app/chat"
	"aquahub/internal/pkg/errs"
	"aquahub/internal/pkg/logx"
	"aquahub/internal/pkg/randx"
	"aquahub/internal/pkg/resp"
)

// HandleWebSocket creates the HandlerFunc that turns an HTTP request into a
// live hub connection. The connection id assigned here is the identity every
// registry record and relayed payload is keyed on; it is never chosen by the
// client and dies with the transport.
func HandleWebSocket(upgrader websocket.Upgrader, originAllowed func(*http.Request) bool, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !originAllowed(r) {
			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", r.Header.Get("Origin"))
			resp.RespondError(w, r, errs.NewError(errs.ErrOriginNotAllowed))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		connID := randx.ConnectionID()
		client := chat.NewClient(deps.Hub, conn, connID, deps.Config.SendBufferSize)

		go client.WritePump()

		deps.Hub.Register(client)

		logx.Info("WebSocket connection established", "conn_id", connID)

		client.ReadPump()
	}
}
