package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/domain"
)

// RedisStore persists messages as JSON values with per-room and per-parent
// sorted sets indexed by timestamp. Mutations are read-modify-write; the
// broker's per-room serialization keeps them race free.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
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

	return &RedisStore{client: client, prefix: "chat"}, nil
}

func (s *RedisStore) msgKey(id string) string {
	return fmt.Sprintf("%s:msg:%s", s.prefix, id)
}

func (s *RedisStore) roomKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:messages", s.prefix, roomID)
}

func (s *RedisStore) repliesKey(parentID string) string {
	return fmt.Sprintf("%s:msg:%s:replies", s.prefix, parentID)
}

func (s *RedisStore) Create(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	score := float64(msg.Timestamp.UnixMilli())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.msgKey(msg.ID), data, 0)
	pipe.ZAdd(ctx, s.roomKey(msg.RoomID), redis.Z{Score: score, Member: msg.ID})
	if msg.ParentMessageID != nil {
		pipe.ZAdd(ctx, s.repliesKey(*msg.ParentMessageID), redis.Z{Score: score, Member: msg.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	data, err := s.client.Get(ctx, s.msgKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return &msg, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*domain.Message)) (*domain.Message, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	mutate(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, s.msgKey(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return msg, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.msgKey(id))
	pipe.ZRem(ctx, s.roomKey(msg.RoomID), id)
	if msg.ParentMessageID != nil {
		pipe.ZRem(ctx, s.repliesKey(*msg.ParentMessageID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (s *RedisStore) ListRoom(ctx context.Context, roomID string, limit int64) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.ZRange(ctx, s.roomKey(roomID), -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room messages: %w", err)
	}
	return s.fetchAll(ctx, ids)
}

func (s *RedisStore) ListReplies(ctx context.Context, parentID string) ([]*domain.Message, error) {
	ids, err := s.client.ZRange(ctx, s.repliesKey(parentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	return s.fetchAll(ctx, ids)
}

func (s *RedisStore) fetchAll(ctx context.Context, ids []string) ([]*domain.Message, error) {
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // index entry for a deleted message
		}
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
