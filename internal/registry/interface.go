package registry

import "context"

// Registry advertises which rooms have live subscribers on this instance,
// so peers and dispatchers can route to it.
type Registry interface {
	Register(ctx context.Context, roomID string) error
	Deregister(ctx context.Context, roomID string) error
	Lookup(ctx context.Context, roomID string) (string, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
	Close() error
}
