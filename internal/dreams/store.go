package dreams

import "context"

// Store is the durable dream table.
//
// Transition must apply t only when the stored status equals from, returning
// ErrStaleTransition otherwise and ErrNotFound when the id is unknown.
type Store interface {
	Create(ctx context.Context, d Dream) error
	Get(ctx context.Context, id string) (Dream, error)
	FindByIdempotencyKey(ctx context.Context, owner, key string) (Dream, error)
	Transition(ctx context.Context, id string, from Status, t Transition) (Dream, error)
	ListByOwner(ctx context.Context, owner string) ([]Dream, error)
	ListPending(ctx context.Context, limit int) ([]Dream, error)
	Delete(ctx context.Context, id string) error
}
