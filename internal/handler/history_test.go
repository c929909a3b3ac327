package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zach-short/ceros/internal/auth"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/internal/rooms"
	"github.com/zach-short/ceros/internal/store"
)

const testSecret = "history-test-secret"

func historyMux(t *testing.T, st store.MessageStore, membership rooms.Source) *http.ServeMux {
	t.Helper()
	h := NewHistoryHandler(st, membership, auth.NewJWTVerifier(testSecret, "ceros"), config.ChatConfig{
		StoreTimeout:      time.Second,
		DMHistoryLimit:    100,
		GroupHistoryLimit: 200,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ceros",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:   userID,
		Username: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func seedMessage(t *testing.T, st store.MessageStore, id, roomID string, parentID *string) {
	t.Helper()
	require.NoError(t, st.Create(context.Background(), &domain.Message{
		ID:              id,
		SenderID:        "alice",
		Content:         "body-" + id,
		RoomID:          roomID,
		ParentMessageID: parentID,
		Timestamp:       time.Now(),
	}))
}

func TestRoomHistoryRequiresToken(t *testing.T) {
	mux := historyMux(t, store.NewMemoryStore(), rooms.NewStaticSource())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/rooms/group_g1/messages", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoomHistoryForbiddenForNonMember(t *testing.T) {
	membership := rooms.NewStaticSource()
	membership.Add("group_g1", "bob")
	mux := historyMux(t, store.NewMemoryStore(), membership)

	req := httptest.NewRequest(http.MethodGet, "/chat/rooms/group_g1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "alice"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoomHistoryReturnsMessages(t *testing.T) {
	st := store.NewMemoryStore()
	membership := rooms.NewStaticSource()
	membership.Add("group_g1", "alice")
	seedMessage(t, st, "m1", "group_g1", nil)
	seedMessage(t, st, "m2", "group_g1", nil)
	seedMessage(t, st, "other", "group_g2", nil)
	mux := historyMux(t, st, membership)

	req := httptest.NewRequest(http.MethodGet, "/chat/rooms/group_g1/messages?token="+tokenFor(t, "alice"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RoomID   string           `json:"roomId"`
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "group_g1", body.RoomID)
	assert.Len(t, body.Messages, 2)
}

func TestRoomHistoryDMByRoomID(t *testing.T) {
	st := store.NewMemoryStore()
	roomID := domain.DMRoomID("alice", "bob")
	seedMessage(t, st, "m1", roomID, nil)
	mux := historyMux(t, st, rooms.NewStaticSource())

	req := httptest.NewRequest(http.MethodGet, "/chat/rooms/"+roomID+"/messages?token="+tokenFor(t, "alice"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/chat/rooms/"+roomID+"/messages?token="+tokenFor(t, "eve"), nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRepliesEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	membership := rooms.NewStaticSource()
	membership.Add("group_g1", "alice")
	seedMessage(t, st, "parent", "group_g1", nil)
	parentID := "parent"
	seedMessage(t, st, "r1", "group_g1", &parentID)
	seedMessage(t, st, "r2", "group_g1", &parentID)
	mux := historyMux(t, st, membership)

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/parent/replies?token="+tokenFor(t, "alice"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Replies []domain.Message `json:"replies"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Replies, 2)
}

func TestRepliesUnknownParent(t *testing.T) {
	mux := historyMux(t, store.NewMemoryStore(), rooms.NewStaticSource())

	req := httptest.NewRequest(http.MethodGet, "/chat/messages/missing/replies?token="+tokenFor(t, "alice"), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketEndpointRejectsBadToken(t *testing.T) {
	h := NewWSHandler(nil, nil, auth.NewJWTVerifier(testSecret, "ceros"), config.WebSocketConfig{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/chat?token=garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
