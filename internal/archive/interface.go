package archive

import (
	"context"

	"github.com/zach-short/ceros/internal/domain"
)

// EventArchiver mirrors fanned-out events to an external pipeline.
// Best effort: the broker never fails an action on an archive error.
type EventArchiver interface {
	Archive(ctx context.Context, roomID string, frame domain.Frame) error
	Close() error
}
