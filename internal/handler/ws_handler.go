package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zach-short/ceros/internal/auth"
	"github.com/zach-short/ceros/internal/broker"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/internal/hub"
	"github.com/zach-short/ceros/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub      *hub.Hub
	broker   *broker.Broker
	verifier auth.Verifier
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, b *broker.Broker, verifier auth.Verifier, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		broker:   b,
		verifier: verifier,
		wsCfg:    wsCfg,
	}
}

// HandleWebSocket authenticates the bearer token from the query string,
// upgrades the connection and starts the session pumps. A bad token is
// refused before the upgrade; no frame is accepted unauthenticated.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAuthError(w, "token required")
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		writeAuthError(w, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.NewString(), identity.UserID, identity.Username, identity.Roles, h.hub, conn, h.wsCfg)
	client.OnClose(h.broker.ReleaseRooms)
	h.hub.Register(client)

	l := log.L()
	l.Info().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldUserID, identity.UserID).
		Msg("client connected")

	go client.WritePump()
	go client.ReadPump(h.broker.HandleFrame)
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/chat", h.HandleWebSocket)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  domain.ErrCodeAuthFailed,
	})
}
