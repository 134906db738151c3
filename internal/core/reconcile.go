package core

import (
	"context"

	"github.com/pkg/errors"

	"countries/internal/tracker"
	"countries/pkg/domain"
)

// Reconcile aligns the tracker with the lifecycle intent declared on every
// tracked entity, restores load-time originals of entities declared
// Unchanged, and runs change detection.
func (m *Manager) Reconcile(ctx context.Context) error {
	for _, entry := range m.tracker.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := reconcileEntry(entry); err != nil {
			return err
		}
	}
	if err := m.tracker.DetectChanges(); err != nil {
		return errors.Wrap(err, "detect changes")
	}
	return nil
}

func reconcileEntry(entry *tracker.Entry) error {
	st, ok := entry.Entity().(domain.ObjectWithState)
	if !ok {
		return errors.Wrapf(ErrUnsupportedEntityKind, "%s", entry.Mapping().Type)
	}
	intent := st.DetachedState()
	snapshot := st.StartingOriginalValues()
	if intent == domain.Modified && snapshot != nil {
		return errors.Wrapf(ErrUnsupportedEntityKind,
			"%s Id=%v: Modified is reserved for entities loaded without tracking", entry.Mapping().Type, entry.Key())
	}
	target, ok := trackerState(intent)
	if !ok {
		// left to validation
		return nil
	}
	current := entry.State()
	if target == tracker.Deleted && current == tracker.Added && !domain.IsZeroKey(entry.Key()) {
		// a persisted row tracked through Add: delete it against its loaded values
		entry.SetState(tracker.Unchanged)
		if snapshot != nil {
			if err := restoreOriginals(entry.OriginalValues(), snapshot); err != nil {
				return errors.WithMessagef(err, "restore originals of %s Id=%v", entry.Mapping().Type, entry.Key())
			}
		}
		current = tracker.Unchanged
	}
	if target != current && current != tracker.Deleted &&
		!(intent == domain.Unchanged && current == tracker.Modified) {
		entry.SetState(target)
	}
	if intent == domain.Unchanged && snapshot != nil && entry.State() != tracker.Detached {
		if err := restoreOriginals(entry.OriginalValues(), snapshot); err != nil {
			return errors.WithMessagef(err, "restore originals of %s Id=%v", entry.Mapping().Type, entry.Key())
		}
	}
	return nil
}

func trackerState(intent domain.DetachedState) (tracker.State, bool) {
	switch intent {
	case domain.Unchanged:
		return tracker.Unchanged, true
	case domain.Added:
		return tracker.Added, true
	case domain.Deleted:
		return tracker.Deleted, true
	case domain.Modified:
		return tracker.Modified, true
	}
	return tracker.Detached, false
}

// restoreOriginals copies snapshot values into the tracker originals field by
// field, descending into complex values.
func restoreOriginals(pv *tracker.PropertyValues, snapshot domain.Values) error {
	for _, name := range pv.Names() {
		v, ok := snapshot[name]
		if !ok {
			continue
		}
		if nested, isNested := v.(domain.Values); isNested {
			sub, err := pv.Complex(name)
			if err != nil {
				return err
			}
			if err := restoreOriginals(sub, nested); err != nil {
				return err
			}
			continue
		}
		if err := pv.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// settleLoaded corrects a freshly materialized entry after its detection pass:
// reported Modified with nothing changed is reset to Unchanged. Anything still
// Modified means the tracker disagrees with the row just read.
func settleLoaded(entry *tracker.Entry) error {
	if entry.State() != tracker.Modified {
		return nil
	}
	if entry.OriginalValues().ToValues().Equal(entry.CurrentValues()) {
		entry.SetState(tracker.Unchanged)
	}
	if entry.State() == tracker.Modified {
		return errors.Wrapf(ErrCorruptTrackerState, "%s Id=%v is Modified right after load", entry.Mapping().Type, entry.Key())
	}
	return nil
}
