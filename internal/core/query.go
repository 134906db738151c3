package core

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"countries/internal/infra/persistence/sqlstore"
	"countries/pkg/domain"
)

// Query reads rows of T's table or view. where is an optional condition with
// "?" markers and may carry ORDER BY. Entities are tracked: a row whose key
// is already tracked resolves to the tracked instance. Views are never
// tracked.
func Query[T domain.Entity](ctx context.Context, m *Manager, where string, args ...any) (out []T, err error) {
	var zero T
	mapping := zero.Mapping()
	defer func(start time.Time) { m.observe(ctx, "query_"+string(mapping.Type), start, err) }(time.Now())

	rows, err := m.store.Select(ctx, m.executor(), mapping, where, args...)
	if err != nil {
		return nil, m.classify("query "+mapping.Table, err, 1)
	}
	out = make([]T, 0, len(rows))
	for _, row := range rows {
		if !mapping.ReadOnly {
			if row, err = m.materialize(ctx, row); err != nil {
				return nil, err
			}
		}
		t, ok := row.(T)
		if !ok {
			return nil, errors.Errorf("query %s: unexpected %T", mapping.Table, row)
		}
		out = append(out, t)
	}
	return out, nil
}

// QueryNoTracking reads rows without tracking them. Such entities carry no
// snapshot; declare them Modified to write every field on save.
func QueryNoTracking[T domain.Entity](ctx context.Context, m *Manager, where string, args ...any) ([]T, error) {
	var zero T
	mapping := zero.Mapping()
	rows, err := m.store.Select(ctx, m.executor(), mapping, where, args...)
	if err != nil {
		return nil, m.classify("query "+mapping.Table, err, 1)
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(T))
	}
	return out, nil
}

// Find returns the entity with the given key, preferring a tracked instance.
func Find[T domain.Entity](ctx context.Context, m *Manager, key any) (T, bool, error) {
	var zero T
	mapping := zero.Mapping()
	if entry, ok := m.tracker.Local(mapping, key); ok {
		if t, ok := entry.Entity().(T); ok {
			return t, true, nil
		}
	}
	rows, err := Query[T](ctx, m, keyCondition(mapping), key)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	return rows[0], true, nil
}

func keyCondition(mapping *domain.Mapping) string {
	return fmt.Sprintf("%s = ?", sqlstore.Quote(mapping.KeyField().Column))
}

// materialize resolves identity and tracks a freshly read entity.
func (m *Manager) materialize(ctx context.Context, e domain.Entity) (domain.Entity, error) {
	mapping := e.Mapping()
	if entry, ok := m.tracker.Local(mapping, domain.KeyOf(e)); ok {
		return entry.Entity(), nil
	}
	st, err := stateful(e)
	if err != nil {
		return nil, err
	}
	if m.cfg.LazyLoadingEnabled {
		if err := m.loadReferences(ctx, e); err != nil {
			return nil, err
		}
	}
	entry := m.tracker.Attach(e)
	if err := entry.DetectChanges(); err != nil {
		return nil, err
	}
	if err := settleLoaded(entry); err != nil {
		return nil, err
	}
	st.SetDetachedState(domain.Unchanged)
	st.SetStartingOriginalValues(entry.OriginalValues().ToValues())
	return e, nil
}

// loadReferences resolves the many-to-one navigations of e from its foreign
// keys.
func (m *Manager) loadReferences(ctx context.Context, e domain.Entity) error {
	mapping := e.Mapping()
	for _, ref := range mapping.References {
		if ref.Get(e) != nil {
			continue
		}
		fk, ok := mapping.Field(ref.ForeignKey)
		if !ok {
			continue
		}
		key := fk.Get(e)
		if domain.IsZeroKey(key) {
			continue
		}
		target, err := m.loadByKey(ctx, ref.Target, key)
		if err != nil {
			return errors.WithMessagef(err, "load %s.%s", mapping.Type, ref.Name)
		}
		if target != nil {
			ref.Set(e, target)
		}
	}
	return nil
}

func (m *Manager) loadByKey(ctx context.Context, t domain.EntityType, key any) (domain.Entity, error) {
	mapping, ok := domain.MappingFor(t)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedEntityKind, "%s", t)
	}
	if entry, ok := m.tracker.Local(mapping, key); ok {
		return entry.Entity(), nil
	}
	rows, err := m.store.Select(ctx, m.executor(), mapping, keyCondition(mapping), key)
	if err != nil {
		return nil, m.classify("query "+mapping.Table, err, 1)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return m.materialize(ctx, rows[0])
}

// LoadLinks fills the many-to-many navigations of the given entities from
// their join tables and records the loaded members as persisted.
func (m *Manager) LoadLinks(ctx context.Context, entities ...domain.Entity) error {
	byType := make(map[domain.EntityType][]domain.Entity)
	var order []domain.EntityType
	for _, e := range entities {
		if e == nil {
			continue
		}
		t := e.Mapping().Type
		if _, seen := byType[t]; !seen {
			order = append(order, t)
		}
		byType[t] = append(byType[t], e)
	}
	for _, t := range order {
		group := byType[t]
		mapping := group[0].Mapping()
		keys := make([]any, 0, len(group))
		for _, e := range group {
			keys = append(keys, domain.KeyOf(e))
		}
		for i := range mapping.Links {
			link := &mapping.Links[i]
			rights, err := m.store.SelectLinks(ctx, m.executor(), link, keys)
			if err != nil {
				return m.classify("load "+link.JoinTable, err, 1)
			}
			for _, e := range group {
				var members []domain.Entity
				for _, rk := range rights[fmt.Sprint(domain.KeyOf(e))] {
					member, err := m.loadByKey(ctx, link.Target, rk)
					if err != nil {
						return err
					}
					if member != nil {
						members = append(members, member)
					}
				}
				link.SetMembers(e, members)
			}
		}
		for _, e := range group {
			if _, tracked := m.tracker.Entry(e); tracked {
				m.tracker.AcceptLinks(e)
			}
		}
	}
	return nil
}
