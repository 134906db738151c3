package tracker

import (
	"slices"

	"countries/pkg/domain"
)

// LinkEntry is one row of a many-to-many join table.
type LinkEntry struct {
	Link  *domain.Link
	Left  domain.Entity
	Right domain.Entity
	State State
}

// DetectChanges copies navigation keys into foreign keys, diffs current values
// against originals for Unchanged and Modified entries, and diffs link members
// against the tracked link rows. Modifications are sticky until accepted.
func (t *Tracker) DetectChanges() error {
	for _, entry := range slices.Clone(t.entries) {
		if err := entry.FixupReferences(); err != nil {
			return err
		}
		entry.detectState(t.opts.DirtyTracking)
	}
	t.detectLinkChanges()
	return nil
}

// DetectChanges runs the field pass for this entry alone.
func (e *Entry) DetectChanges() error {
	if err := e.FixupReferences(); err != nil {
		return err
	}
	e.detectState(e.tracker.opts.DirtyTracking)
	return nil
}

func (e *Entry) detectState(dirtyOnly bool) {
	if e.state != Unchanged && e.state != Modified {
		return
	}
	e.detectFieldChanges(dirtyOnly)
	if e.state == Unchanged && len(e.modified) > 0 {
		e.state = Modified
	}
}

func (e *Entry) detectFieldChanges(dirtyOnly bool) {
	if e.original == nil {
		e.original = e.CurrentValues()
		return
	}
	current := e.CurrentValues()
	for _, name := range e.candidates(dirtyOnly) {
		f, ok := e.mapping.Field(name)
		if !ok || f.Key || f.Generated {
			continue
		}
		if !domain.ValuesEqual(e.original[name], current[name]) {
			e.markModified(name)
		}
	}
}

func (e *Entry) candidates(dirtyOnly bool) []string {
	if !dirtyOnly {
		var all []string
		for _, f := range e.mapping.Fields {
			all = append(all, f.Name)
		}
		return all
	}
	var names []string
	if st, ok := e.entity.(domain.ObjectWithState); ok {
		names = append(names, st.ModifiedFields()...)
	}
	names = append(names, e.touched...)
	for _, ref := range e.mapping.References {
		names = append(names, ref.ForeignKey)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (t *Tracker) detectLinkChanges() {
	for _, entry := range slices.Clone(t.entries) {
		if len(entry.mapping.Links) == 0 {
			continue
		}
		if entry.state == Deleted {
			// join rows go with the row through the foreign key cascade
			t.links = slices.DeleteFunc(t.links, func(l *LinkEntry) bool { return l.Left == entry.entity })
			continue
		}
		for i := range entry.mapping.Links {
			t.diffLink(entry, &entry.mapping.Links[i])
		}
	}
}

func (t *Tracker) diffLink(entry *Entry, link *domain.Link) {
	members := link.Members(entry.entity)
	var existing []*LinkEntry
	for _, l := range t.links {
		if l.Left == entry.entity && l.Link.Name == link.Name {
			existing = append(existing, l)
		}
	}
	for _, l := range existing {
		present := slices.ContainsFunc(members, func(m domain.Entity) bool { return sameEntity(m, l.Right) })
		switch {
		case !present && l.State == Unchanged:
			l.State = Deleted
		case !present && l.State == Added:
			t.links = slices.DeleteFunc(t.links, func(x *LinkEntry) bool { return x == l })
		case present && l.State == Deleted:
			l.State = Unchanged
		}
	}
	for _, m := range members {
		known := slices.ContainsFunc(existing, func(l *LinkEntry) bool { return sameEntity(m, l.Right) })
		if known {
			continue
		}
		if _, ok := t.index[m]; !ok {
			if domain.IsZeroKey(domain.KeyOf(m)) {
				t.Add(m)
			} else {
				t.Attach(m)
			}
		}
		t.links = append(t.links, &LinkEntry{Link: link, Left: entry.entity, Right: m, State: Added})
	}
}

// HasChanges reports whether any entity or link row would be written.
func (t *Tracker) HasChanges() bool {
	for _, entry := range t.entries {
		if entry.state == Added || entry.state == Deleted || entry.state == Modified {
			return true
		}
	}
	return slices.ContainsFunc(t.links, func(l *LinkEntry) bool { return l.State != Unchanged })
}
