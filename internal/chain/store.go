package chain

import "context"

// Member is one node of a chain.
type Member interface {
	// ChainID is the store-assigned identity of the member.
	ChainID() int64
	// ChainOwner is the identity of the aggregate containing the chain.
	ChainOwner() int64
	// ChainNext is the identity of the next member, or nil for the tail.
	ChainNext() *int64
}

// Store is keyed persistence for one entity kind, as seen from inside a
// transaction. Get returns an error wrapping domain.ErrNotFound for unknown
// identities.
type Store[M Member, A any] interface {
	Create(ctx context.Context, owner int64, attrs A, next *int64) (M, error)
	Get(ctx context.Context, id int64) (M, error)
	ListByOwner(ctx context.Context, owner int64) ([]M, error)
	SetNext(ctx context.Context, id int64, next *int64) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// Backend runs a sequence of Store operations atomically: if fn returns an
// error none of its writes are visible.
type Backend[M Member, A any] interface {
	Atomically(ctx context.Context, fn func(Store[M, A]) error) error
}
