package tracker

import (
	"fmt"
	"slices"

	"countries/pkg/domain"
)

// Entry is the tracker's record of one entity.
type Entry struct {
	tracker  *Tracker
	entity   domain.Entity
	mapping  *domain.Mapping
	state    State
	original domain.Values
	// modified holds top-level field names that will be written on update.
	modified []string
	// touched holds fields whose originals were assigned through OriginalValues.
	touched []string
}

func (e *Entry) Entity() domain.Entity        { return e.entity }
func (e *Entry) Mapping() *domain.Mapping     { return e.mapping }
func (e *Entry) State() State                 { return e.state }
func (e *Entry) KeyNames() []string           { return e.mapping.KeyNames() }
func (e *Entry) Key() any                     { return domain.KeyOf(e.entity) }
func (e *Entry) CurrentValues() domain.Values { return domain.CurrentValues(e.entity) }

// SetState moves the entry to s. Unchanged accepts the current values as
// originals. Modified marks every writable field. Deleted detaches an entity
// without a key, which was never persisted. Detached stops tracking.
func (e *Entry) SetState(s State) {
	if s == Deleted && domain.IsZeroKey(e.Key()) {
		s = Detached
	}
	if s == Detached {
		if e.state != Detached {
			e.tracker.untrack(e)
		}
		return
	}
	e.setState(s)
}

func (e *Entry) setState(s State) {
	switch s {
	case Unchanged:
		e.original = e.CurrentValues()
		e.modified = nil
		e.touched = nil
		if st, ok := e.entity.(domain.ObjectWithState); ok {
			st.ClearModifiedFields()
		}
	case Modified:
		if e.original == nil {
			e.original = e.CurrentValues()
		}
		e.modified = nil
		for _, f := range e.mapping.Fields {
			if !f.Key && !f.Generated {
				e.modified = append(e.modified, f.Name)
			}
		}
	case Added, Deleted:
		e.modified = nil
	}
	e.state = s
}

// OriginalValues exposes the live original values. Assignments through the
// returned view are seen by the next change detection.
func (e *Entry) OriginalValues() *PropertyValues {
	if e.original == nil {
		e.original = e.CurrentValues()
	}
	return &PropertyValues{entry: e, fields: e.mapping.Fields, values: e.original}
}

// ModifiedFields returns the fields that will be written, in mapping order.
func (e *Entry) ModifiedFields() []string {
	var out []string
	for _, f := range e.mapping.Fields {
		if slices.Contains(e.modified, f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// IsModified reports whether a field will be written.
func (e *Entry) IsModified(name string) bool {
	return slices.Contains(e.modified, name)
}

// Token returns the original value of the concurrency token, if the type has one.
func (e *Entry) Token() (string, any, bool) {
	f, ok := e.mapping.TokenField()
	if !ok {
		return "", nil, false
	}
	if e.original != nil {
		if v, ok := e.original[f.Name]; ok {
			return f.Column, v, true
		}
	}
	return f.Column, f.Get(e.entity), true
}

// FixupReferences copies navigation keys into foreign key fields.
func (e *Entry) FixupReferences() error {
	for _, ref := range e.mapping.References {
		target := ref.Get(e.entity)
		if target == nil {
			continue
		}
		fk, ok := e.mapping.Field(ref.ForeignKey)
		if !ok {
			return fmt.Errorf("%s.%s: unknown foreign key %q", e.mapping.Type, ref.Name, ref.ForeignKey)
		}
		key := domain.KeyOf(target)
		if domain.ValuesEqual(fk.Get(e.entity), key) {
			continue
		}
		if err := fk.Set(e.entity, key); err != nil {
			return err
		}
	}
	return nil
}

// SetGenerated stores a value produced by the store, such as an identity or a
// new row version, without marking the field modified.
func (e *Entry) SetGenerated(name string, value any) error {
	f, ok := e.mapping.Field(name)
	if !ok {
		return fmt.Errorf("%s: unknown field %q", e.mapping.Type, name)
	}
	return f.Set(e.entity, value)
}

func (e *Entry) touch(name string) {
	if !slices.Contains(e.touched, name) {
		e.touched = append(e.touched, name)
	}
}

func (e *Entry) markModified(name string) {
	if !slices.Contains(e.modified, name) {
		e.modified = append(e.modified, name)
	}
}

// PropertyValues is a live view over an entry's original values.
type PropertyValues struct {
	entry  *Entry
	fields []domain.Field
	values domain.Values
	// top is the owning top-level field for nested views.
	top string
}

// Names returns the field names in mapping order.
func (p *PropertyValues) Names() []string {
	names := make([]string, 0, len(p.fields))
	for _, f := range p.fields {
		names = append(names, f.Name)
	}
	return names
}

// Get returns the original value of a field.
func (p *PropertyValues) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Set assigns the original value of a scalar field.
func (p *PropertyValues) Set(name string, value any) error {
	f, ok := p.field(name)
	if !ok {
		return fmt.Errorf("%s: unknown field %q", p.entry.mapping.Type, name)
	}
	if f.Complex() {
		return fmt.Errorf("%s: field %q is complex", p.entry.mapping.Type, name)
	}
	p.values[name] = value
	top := p.top
	if top == "" {
		top = name
	}
	p.entry.touch(top)
	return nil
}

// Complex returns the nested view of a complex field.
func (p *PropertyValues) Complex(name string) (*PropertyValues, error) {
	f, ok := p.field(name)
	if !ok || !f.Complex() {
		return nil, fmt.Errorf("%s: field %q is not complex", p.entry.mapping.Type, name)
	}
	nested, ok := p.values[name].(domain.Values)
	if !ok {
		nested = domain.Values{}
		p.values[name] = nested
	}
	top := p.top
	if top == "" {
		top = name
	}
	return &PropertyValues{entry: p.entry, fields: f.Fields, values: nested, top: top}, nil
}

// ToValues returns a detached copy.
func (p *PropertyValues) ToValues() domain.Values {
	return p.values.Clone()
}

func (p *PropertyValues) field(name string) (domain.Field, bool) {
	for _, f := range p.fields {
		if f.Name == name {
			return f, true
		}
	}
	return domain.Field{}, false
}
