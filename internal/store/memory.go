package store

import (
	"context"
	"sort"
	"sync"

	"github.com/zach-short/ceros/internal/domain"
)

// MemoryStore keeps messages in process memory. Default backend for
// development and the harness the tests run against.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	byRoom   map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*domain.Message),
		byRoom:   make(map[string][]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg.Clone()
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], msg.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*domain.Message)) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	mutate(msg)
	return msg.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.messages, id)

	ids := s.byRoom[msg.RoomID]
	for i, mid := range ids {
		if mid == id {
			s.byRoom[msg.RoomID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ListRoom(ctx context.Context, roomID string, limit int64) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRoom[roomID]
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out = append(out, msg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *MemoryStore) ListReplies(ctx context.Context, parentID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Message
	for _, msg := range s.messages {
		if msg.ParentMessageID != nil && *msg.ParentMessageID == parentID {
			out = append(out, msg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
