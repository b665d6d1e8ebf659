/*
Package handler provides the HTTP handlers and routing setup for the aquahub server.

This file defines the main Router, applying middleware (request logging, CORS,
IP-based rate limiting on the upgrade endpoint) before delegating to the health,
roster, and WebSocket handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"aquahub/internal/pkg/limiter"
	"aquahub/internal/pkg/logx"
	"aquahub/internal/pkg/resp"
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, the WebSocket upgrader's origin policy, and the per-IP
// connection rate limiter from the application config.
func Router(deps *AppDeps) http.Handler {
	connLimiter := limiter.NewIPRateLimiter(rate.Limit(deps.Config.WSConnRate), deps.Config.WSConnBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	// one origin policy for the handler's pre-check and the upgrader.
	// A missing Origin header means a non-browser client and is accepted.
	originAllowed := func(r *http.Request) bool {
		if deps.Config.Environment == "development" {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		_, ok := allowedOrigins[origin]
		return ok
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originAllowed,
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "aquahub",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/api/users", HandleListUsers(deps))

	r.With(connLimiter.Middleware).Get("/ws", HandleWebSocket(wsUpgrader, originAllowed, deps))

	return r
}
