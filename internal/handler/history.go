package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zach-short/ceros/internal/auth"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/internal/rooms"
	"github.com/zach-short/ceros/internal/store"
	"github.com/zach-short/ceros/pkg/log"
)

// HistoryHandler serves the read-only REST surface: room history and
// replies by parent message. Same auth token as the socket, passed as a
// bearer header or query parameter.
type HistoryHandler struct {
	store      store.MessageStore
	membership rooms.Source
	verifier   auth.Verifier
	cfg        config.ChatConfig
}

func NewHistoryHandler(st store.MessageStore, membership rooms.Source, verifier auth.Verifier, cfg config.ChatConfig) *HistoryHandler {
	return &HistoryHandler{
		store:      st,
		membership: membership,
		verifier:   verifier,
		cfg:        cfg,
	}
}

func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat/rooms/{roomId}/messages", h.handleRoomHistory)
	mux.HandleFunc("GET /chat/messages/{id}/replies", h.handleReplies)
}

func (h *HistoryHandler) authenticate(w http.ResponseWriter, r *http.Request) *auth.Identity {
	token := r.URL.Query().Get("token")
	if token == "" {
		const prefix = "Bearer "
		if v := r.Header.Get("Authorization"); len(v) > len(prefix) && v[:len(prefix)] == prefix {
			token = v[len(prefix):]
		}
	}
	if token == "" {
		writeAuthError(w, "token required")
		return nil
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		writeAuthError(w, "invalid token")
		return nil
	}
	return identity
}

func (h *HistoryHandler) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	identity := h.authenticate(w, r)
	if identity == nil {
		return
	}

	roomID := r.PathValue("roomId")
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.StoreTimeout)
	defer cancel()
	ctx = log.WithLogger(ctx, log.L().With().Str(log.FieldUserID, identity.UserID).Logger())

	ok, err := h.membership.IsParticipant(ctx, identity.UserID, roomID)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "membership check failed")
		return
	}
	if !ok {
		writeJSONError(w, http.StatusForbidden, "not a participant of this room")
		return
	}

	limit := h.cfg.DMHistoryLimit
	if kind, known := domain.RoomTypeOf(roomID); known && kind != domain.RoomTypeDM {
		limit = h.cfg.GroupHistoryLimit
	}

	messages, err := h.store.ListRoom(ctx, roomID, limit)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to fetch room history")
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	writeJSON(w, map[string]any{
		"roomId":   roomID,
		"messages": messages,
	})
}

func (h *HistoryHandler) handleReplies(w http.ResponseWriter, r *http.Request) {
	identity := h.authenticate(w, r)
	if identity == nil {
		return
	}

	messageID := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.StoreTimeout)
	defer cancel()
	ctx = log.WithLogger(ctx, log.L().With().Str(log.FieldUserID, identity.UserID).Logger())

	parent, err := h.store.Get(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch message")
		return
	}

	ok, err := h.membership.IsParticipant(ctx, identity.UserID, parent.RoomID)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "membership check failed")
		return
	}
	if !ok {
		writeJSONError(w, http.StatusForbidden, "not a participant of this room")
		return
	}

	replies, err := h.store.ListReplies(ctx, messageID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, messageID).Msg("failed to fetch replies")
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch replies")
		return
	}

	writeJSON(w, map[string]any{
		"replies": replies,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
