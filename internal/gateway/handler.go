package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/auth"
)

// upgrader is the WebSocket upgrader for agent connections
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware on the HTTP layer
		return true
	},
}

// Handler handles WebSocket upgrade requests from agents
type Handler struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(hub *Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and binds it to the authenticated
// agent identity. The agent id comes from the JWT, never from the client
// payload, so one agent cannot attach to another's channel.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || claims.Subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade agent connection")
		return
	}

	client := NewClient(h.hub, conn, claims.Subject, h.logger)

	h.hub.register <- client
	client.Start()
}
