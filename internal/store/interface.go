package store

import (
	"context"
	"errors"

	"github.com/zach-short/ceros/internal/domain"
)

var ErrNotFound = errors.New("message not found")

// MessageStore is the durable message collaborator. Implementations may
// assume callers serialize mutations per room; the broker guarantees it.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	// Update applies mutate to the stored message and persists the result,
	// returning a copy of the new state.
	Update(ctx context.Context, id string, mutate func(*domain.Message)) (*domain.Message, error)
	Delete(ctx context.Context, id string) error
	// ListRoom returns up to limit most recent room messages in timestamp order.
	ListRoom(ctx context.Context, roomID string, limit int64) ([]*domain.Message, error)
	// ListReplies returns the parent's replies in timestamp order.
	ListReplies(ctx context.Context, parentID string) ([]*domain.Message, error)
	Close() error
}
