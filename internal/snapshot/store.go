package snapshot

import "context"

// Store is the durable snapshot catalog. Every mutation is durable before it
// returns.
type Store interface {
	// Insert persists r and returns its assigned id. A display name already in
	// the catalog yields ErrDuplicateName.
	Insert(ctx context.Context, r Record) (int64, error)
	// FindByName returns ErrNotFound when no record has exactly that name.
	FindByName(ctx context.Context, name string) (Record, error)
	// List returns records in insertion order.
	List(ctx context.Context) ([]Record, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id int64) error
	Prune(ctx context.Context, ids []int64) error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
