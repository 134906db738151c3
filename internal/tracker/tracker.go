// Package tracker keeps the live set of entities for one unit of work: their
// tracked state, original values and many-to-many links. It computes
// field-level differences and orders the write commands a store executes.
package tracker

import (
	"fmt"
	"slices"

	"countries/pkg/domain"
)

// State is the tracker's view of an entity.
type State int

const (
	Detached State = iota
	Unchanged
	Added
	Deleted
	Modified
)

var stateNames = [...]string{"Detached", "Unchanged", "Added", "Deleted", "Modified"}

func (s State) String() string {
	if s >= Detached && s <= Modified {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options tune change detection.
type Options struct {
	// DirtyTracking limits the field diff to fields written through
	// domain.SetField, fields whose originals were restored and foreign keys.
	DirtyTracking bool
}

// Tracker is not safe for concurrent use.
type Tracker struct {
	opts    Options
	entries []*Entry
	index   map[domain.Entity]*Entry
	links   []*LinkEntry
}

// New returns an empty tracker.
func New(opts Options) *Tracker {
	return &Tracker{opts: opts, index: make(map[domain.Entity]*Entry)}
}

// Options returns the options the tracker was built with.
func (t *Tracker) Options() Options { return t.opts }

// Entry returns the entry of a tracked entity.
func (t *Tracker) Entry(e domain.Entity) (*Entry, bool) {
	entry, ok := t.index[e]
	return entry, ok
}

// Entries returns the tracked entries in tracking order.
func (t *Tracker) Entries() []*Entry {
	return slices.Clone(t.entries)
}

// Links returns the tracked many-to-many link rows.
func (t *Tracker) Links() []*LinkEntry {
	return slices.Clone(t.links)
}

// Local finds a tracked entity of the mapping's type by key. Zero keys never
// match.
func (t *Tracker) Local(m *domain.Mapping, key any) (*Entry, bool) {
	if domain.IsZeroKey(key) {
		return nil, false
	}
	for _, entry := range t.entries {
		if entry.mapping.Type == m.Type && domain.KeysEqual(entry.Key(), key) {
			return entry, true
		}
	}
	return nil, false
}

// Add starts tracking e as Added. Untracked principals and link members
// reachable from e are tracked too: Added when their key is unset, Unchanged
// otherwise.
func (t *Tracker) Add(e domain.Entity) *Entry {
	entry := t.track(e)
	entry.setState(Added)
	t.attachGraph(e)
	return entry
}

// Attach starts tracking e as Unchanged with its current values as originals.
// An entity already tracked keeps its state.
func (t *Tracker) Attach(e domain.Entity) *Entry {
	if entry, ok := t.index[e]; ok {
		return entry
	}
	entry := t.track(e)
	entry.setState(Unchanged)
	t.attachGraph(e)
	t.AcceptLinks(e)
	return entry
}

// Remove marks e Deleted. Tracked dependents with a cascading reference to e
// are removed with it. An entity that was never persisted is detached.
func (t *Tracker) Remove(e domain.Entity) {
	entry, ok := t.index[e]
	if !ok {
		entry = t.track(e)
		entry.setState(Unchanged)
	}
	for _, dep := range t.dependents(entry) {
		if dep.state != Deleted && dep.state != Detached {
			t.Remove(dep.entity)
		}
	}
	entry.SetState(Deleted)
}

// Detach stops tracking e. With children, tracked collection members are
// detached as well.
func (t *Tracker) Detach(e domain.Entity, children bool) {
	entry, ok := t.index[e]
	if !ok {
		return
	}
	t.untrack(entry)
	if !children || entry.mapping.Children == nil {
		return
	}
	for _, child := range entry.mapping.Children(e) {
		t.Detach(child, true)
	}
}

// AcceptLinks records the current link members of e as persisted.
func (t *Tracker) AcceptLinks(e domain.Entity) {
	m := e.Mapping()
	for i := range m.Links {
		link := &m.Links[i]
		t.links = slices.DeleteFunc(t.links, func(l *LinkEntry) bool {
			return l.Left == e && l.Link.Name == link.Name
		})
		for _, member := range link.Members(e) {
			t.links = append(t.links, &LinkEntry{Link: link, Left: e, Right: member, State: Unchanged})
		}
	}
}

// AcceptAllChanges makes every pending change the new baseline. Deleted
// entities and link rows are dropped.
func (t *Tracker) AcceptAllChanges() error {
	var errs []error
	for _, entry := range slices.Clone(t.entries) {
		switch entry.state {
		case Deleted:
			t.untrack(entry)
			continue
		case Added:
			if domain.IsZeroKey(entry.Key()) {
				errs = append(errs, fmt.Errorf("%s was saved without a generated key", entry.mapping.Type))
			}
		}
		entry.SetState(Unchanged)
	}
	t.links = slices.DeleteFunc(t.links, func(l *LinkEntry) bool { return l.State == Deleted })
	for _, l := range t.links {
		l.State = Unchanged
	}
	if len(errs) > 0 {
		return fmt.Errorf("accept changes: %v", errs)
	}
	return nil
}

// Clear detaches everything.
func (t *Tracker) Clear() {
	for _, entry := range t.entries {
		entry.state = Detached
	}
	t.entries = nil
	t.links = nil
	t.index = make(map[domain.Entity]*Entry)
}

func (t *Tracker) track(e domain.Entity) *Entry {
	if entry, ok := t.index[e]; ok {
		return entry
	}
	entry := &Entry{tracker: t, entity: e, mapping: e.Mapping(), state: Detached}
	t.entries = append(t.entries, entry)
	t.index[e] = entry
	return entry
}

func (t *Tracker) untrack(entry *Entry) {
	entry.state = Detached
	delete(t.index, entry.entity)
	t.entries = slices.DeleteFunc(t.entries, func(x *Entry) bool { return x == entry })
	t.links = slices.DeleteFunc(t.links, func(l *LinkEntry) bool {
		return l.Left == entry.entity || l.Right == entry.entity
	})
}

// attachGraph tracks untracked principals and link members of e.
func (t *Tracker) attachGraph(e domain.Entity) {
	m := e.Mapping()
	var related []domain.Entity
	for _, ref := range m.References {
		if target := ref.Get(e); target != nil {
			related = append(related, target)
		}
	}
	for _, link := range m.Links {
		related = append(related, link.Members(e)...)
	}
	for _, r := range related {
		if _, ok := t.index[r]; ok {
			continue
		}
		if domain.IsZeroKey(domain.KeyOf(r)) {
			t.Add(r)
			continue
		}
		t.Attach(r)
	}
}

// dependents returns tracked entities whose cascading reference points at the
// entry's entity, by navigation or by foreign key.
func (t *Tracker) dependents(principal *Entry) []*Entry {
	var out []*Entry
	key := principal.Key()
	for _, entry := range t.entries {
		if entry == principal {
			continue
		}
		for _, ref := range entry.mapping.References {
			if !ref.Cascade || ref.Target != principal.mapping.Type {
				continue
			}
			if ref.Get(entry.entity) == principal.entity {
				out = append(out, entry)
				break
			}
			if fk, ok := entry.mapping.Field(ref.ForeignKey); ok && !domain.IsZeroKey(key) && domain.KeysEqual(fk.Get(entry.entity), key) {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

func sameEntity(a, b domain.Entity) bool {
	if a == b {
		return true
	}
	if a.Mapping().Type != b.Mapping().Type {
		return false
	}
	ka, kb := domain.KeyOf(a), domain.KeyOf(b)
	return !domain.IsZeroKey(ka) && domain.KeysEqual(ka, kb)
}
