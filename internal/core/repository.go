package core

import (
	"context"

	"countries/pkg/domain"
)

// Repository is a typed facade over a Manager for one entity type.
type Repository[T domain.Entity] struct {
	m *Manager
}

// NewRepository binds a repository to m.
func NewRepository[T domain.Entity](m *Manager) *Repository[T] {
	return &Repository[T]{m: m}
}

// Manager returns the unit of work the repository writes through.
func (r *Repository[T]) Manager() *Manager { return r.m }

// Create declares e Added and tracks it.
func (r *Repository[T]) Create(e T) error {
	st, err := stateful(e)
	if err != nil {
		return err
	}
	st.SetDetachedState(domain.Added)
	return r.m.AddEntity(e)
}

// Delete declares e Deleted.
func (r *Repository[T]) Delete(e T) error {
	return r.m.RemoveEntity(e)
}

// Update declares e Unchanged and tracks it; its snapshot decides which
// fields are written.
func (r *Repository[T]) Update(e T) error {
	st, err := stateful(e)
	if err != nil {
		return err
	}
	st.SetDetachedState(domain.Unchanged)
	return r.m.AddEntity(e)
}

// Find returns the entities matching where.
func (r *Repository[T]) Find(ctx context.Context, where string, args ...any) ([]T, error) {
	return Query[T](ctx, r.m, where, args...)
}

// Get returns every entity of the type.
func (r *Repository[T]) Get(ctx context.Context) ([]T, error) {
	return Query[T](ctx, r.m, "")
}

// GetByKey returns the entity with the given key.
func (r *Repository[T]) GetByKey(ctx context.Context, key any) (T, bool, error) {
	return Find[T](ctx, r.m, key)
}

// Save writes the pending changes of the whole unit of work.
func (r *Repository[T]) Save(ctx context.Context) (int, error) {
	return r.m.SaveChanges(ctx, false)
}
