package rooms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
)

// Source answers whether a user may join a room. DM rooms encode their
// two participants in the room id itself, so every Source resolves those
// the same way; group and committee membership comes from the backing set.
type Source interface {
	IsParticipant(ctx context.Context, userID, roomID string) (bool, error)
}

func dmParticipant(userID, roomID string) (decided, ok bool) {
	a, b, isDM := domain.DMParticipants(roomID)
	if !isDM {
		return false, false
	}
	return true, userID == a || userID == b
}

// StaticSource holds group/committee membership in memory.
type StaticSource struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // roomID -> userID set
}

func NewStaticSource() *StaticSource {
	return &StaticSource{members: make(map[string]map[string]bool)}
}

func (s *StaticSource) Add(roomID string, userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[roomID] == nil {
		s.members[roomID] = make(map[string]bool)
	}
	for _, id := range userIDs {
		s.members[roomID][id] = true
	}
}

func (s *StaticSource) Remove(roomID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[roomID], userID)
}

func (s *StaticSource) IsParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	if decided, ok := dmParticipant(userID, roomID); decided {
		return ok, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[roomID][userID], nil
}

// RedisSource reads group/committee membership from Redis sets maintained
// by the room management surface.
type RedisSource struct {
	client *redis.Client
	prefix string
}

func NewRedisSource(cfg config.RedisConfig) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSource{client: client, prefix: "chat"}, nil
}

func (s *RedisSource) IsParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	if decided, ok := dmParticipant(userID, roomID); decided {
		return ok, nil
	}

	key := fmt.Sprintf("%s:room:%s:members", s.prefix, roomID)
	ok, err := s.client.SIsMember(ctx, key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check room membership: %w", err)
	}
	return ok, nil
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
