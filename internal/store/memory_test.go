package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zach-short/ceros/internal/domain"
)

func seed(t *testing.T, s *MemoryStore, id, roomID string, at time.Time) *domain.Message {
	t.Helper()
	msg := &domain.Message{ID: id, SenderID: "u1", Content: "c-" + id, RoomID: roomID, Timestamp: at}
	require.NoError(t, s.Create(context.Background(), msg))
	return msg
}

func TestMemoryStoreCreateGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "m1", "r1", time.Now())

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c-m1", got.Content)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "m1", "r1", time.Now())

	first, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	first.Content = "mutated"

	second, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c-m1", second.Content)
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "m1", "r1", time.Now())

	updated, err := s.Update(ctx, "m1", func(m *domain.Message) {
		m.Content = "edited"
		m.IsEdited = true
	})
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)

	got, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)

	_, err = s.Update(ctx, "missing", func(m *domain.Message) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seed(t, s, "m1", "r1", time.Now())

	require.NoError(t, s.Delete(ctx, "m1"))
	_, err := s.Get(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "m1"), ErrNotFound)

	msgs, err := s.ListRoom(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStoreListRoomOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	// Insert out of order; listing sorts by timestamp.
	for _, i := range []int{2, 0, 4, 1, 3} {
		seed(t, s, fmt.Sprintf("m%d", i), "r1", base.Add(time.Duration(i)*time.Second))
	}
	seed(t, s, "other", "r2", base)

	msgs, err := s.ListRoom(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}

	// Limit keeps the most recent messages.
	msgs, err = s.ListRoom(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].ID)
	assert.Equal(t, "m4", msgs[1].ID)
}

func TestMemoryStoreListReplies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	seed(t, s, "parent", "r1", base)
	parentID := "parent"
	for i := 0; i < 3; i++ {
		msg := &domain.Message{
			ID:              fmt.Sprintf("reply%d", i),
			RoomID:          "r1",
			ParentMessageID: &parentID,
			Timestamp:       base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.Create(ctx, msg))
	}
	seed(t, s, "unrelated", "r1", base)

	replies, err := s.ListReplies(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, "reply0", replies[0].ID)
	assert.Equal(t, "reply2", replies[2].ID)
}
