package core

import (
	"context"

	"github.com/pkg/errors"

	"countries/internal/tracker"
	"countries/pkg/domain"
)

func stateful(e domain.Entity) (domain.ObjectWithState, error) {
	if e == nil {
		return nil, errors.New("nil entity")
	}
	st, ok := e.(domain.ObjectWithState)
	if !ok || e.Mapping().ReadOnly {
		return nil, errors.Wrapf(ErrUnsupportedEntityKind, "%s", e.Mapping().Type)
	}
	return st, nil
}

// AddEntity starts tracking e. It is skipped when an entity of the same type
// with the same non-zero key is already tracked. Reconciliation applies the
// declared intent on the next save.
func (m *Manager) AddEntity(e domain.Entity) error {
	release, err := m.guard.enter("AddEntity")
	if err != nil {
		return err
	}
	defer release()
	return m.addEntity(e)
}

func (m *Manager) addEntity(e domain.Entity) error {
	st, err := stateful(e)
	if err != nil {
		return err
	}
	if _, ok := m.tracker.Local(e.Mapping(), st.EntityKey()); ok {
		return nil
	}
	if _, ok := m.tracker.Entry(e); ok {
		return nil
	}
	m.tracker.Add(e)
	return nil
}

// Attach tracks e as persisted, then applies an Added, Deleted or Modified
// intent to its tracker state. An entity already tracked is returned as is.
func (m *Manager) Attach(e domain.Entity) (*tracker.Entry, error) {
	release, err := m.guard.enter("Attach")
	if err != nil {
		return nil, err
	}
	defer release()
	return m.attach(e)
}

func (m *Manager) attach(e domain.Entity) (*tracker.Entry, error) {
	st, err := stateful(e)
	if err != nil {
		return nil, err
	}
	if entry, ok := m.tracker.Entry(e); ok {
		return entry, nil
	}
	entry := m.tracker.Attach(e)
	switch st.DetachedState() {
	case domain.Added:
		entry.SetState(tracker.Added)
	case domain.Deleted:
		entry.SetState(tracker.Deleted)
	case domain.Modified:
		entry.SetState(tracker.Modified)
	}
	return entry, nil
}

// Detach stops tracking e and, with children, its loaded collection members.
func (m *Manager) Detach(e domain.Entity, children bool) error {
	release, err := m.guard.enter("Detach")
	if err != nil {
		return err
	}
	defer release()
	if e == nil {
		return errors.New("nil entity")
	}
	m.tracker.Detach(e, children)
	return nil
}

// RemoveEntity declares e Deleted. A tracked entity is removed with its
// cascading dependents; an untracked one is tracked as a deletion.
func (m *Manager) RemoveEntity(e domain.Entity) error {
	release, err := m.guard.enter("RemoveEntity")
	if err != nil {
		return err
	}
	defer release()
	st, err := stateful(e)
	if err != nil {
		return err
	}
	st.SetDetachedState(domain.Deleted)
	target := e
	if entry, ok := m.tracker.Local(e.Mapping(), st.EntityKey()); ok {
		target = entry.Entity()
		if other, ok := target.(domain.ObjectWithState); ok {
			other.SetDetachedState(domain.Deleted)
		}
	}
	m.tracker.Remove(target)
	return nil
}

// GetValidationResult validates a single entity.
func (m *Manager) GetValidationResult(e domain.Entity) domain.Result {
	if e == nil {
		return domain.Result{}
	}
	return domain.Validate(e)
}

// HasChanges reports whether a save would write anything. With
// AutoDetectChangesEnabled it reconciles intents first; otherwise it reads the
// tracker as last detected.
func (m *Manager) HasChanges(ctx context.Context) (bool, error) {
	if m.cfg.AutoDetectChangesEnabled {
		if err := m.Reconcile(ctx); err != nil {
			return false, err
		}
	}
	return m.tracker.HasChanges(), nil
}
