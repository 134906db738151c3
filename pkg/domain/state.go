package domain

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
)

// DetachedState is the lifecycle intent a caller declares for an entity. It is
// reconciled with the change tracker's own state before every save.
type DetachedState int

const (
	// Unchanged is the zero value. Tracked entities that were modified in place
	// also use Unchanged; the saved snapshot decides which fields are written.
	Unchanged DetachedState = iota
	Added
	Deleted
	// Modified is reserved for entities loaded without tracking. Every field is
	// sent on update.
	Modified
)

var detachedStateNames = [...]string{"Unchanged", "Added", "Deleted", "Modified"}

func (s DetachedState) String() string {
	if s.Valid() {
		return detachedStateNames[s]
	}
	return fmt.Sprintf("%d", int(s))
}

// Valid reports whether s is one of the declared states.
func (s DetachedState) Valid() bool {
	return s >= Unchanged && s <= Modified
}

// ParseDetachedState converts a case-insensitive state name.
func ParseDetachedState(name string) (DetachedState, error) {
	for i, n := range detachedStateNames {
		if strings.EqualFold(n, name) {
			return DetachedState(i), nil
		}
	}
	return Unchanged, fmt.Errorf("unknown detached state %q", name)
}

// ObjectWithState is implemented by every entity that participates in change
// tracking. Entities that do not implement it cannot be saved.
type ObjectWithState interface {
	Entity
	DetachedState() DetachedState
	SetDetachedState(DetachedState)
	EntityKey() any
	SetEntityKey(any)
	StartingOriginalValues() Values
	SetStartingOriginalValues(Values)
	ModifiedFields() []string
	MarkFieldModified(name string)
	ClearModifiedFields()
}

// StateInfo carries the out-of-band bookkeeping for an entity: lifecycle intent,
// entity key, the snapshot captured at load time and the dirty-field set.
// Embed it to satisfy ObjectWithState.
type StateInfo struct {
	detachedState DetachedState
	entityKey     any
	original      Values
	dirty         []string
}

func (s *StateInfo) DetachedState() DetachedState { return s.detachedState }

func (s *StateInfo) SetDetachedState(state DetachedState) { s.detachedState = state }

// EntityKey returns the opaque identity key, nil until assigned.
func (s *StateInfo) EntityKey() any { return s.entityKey }

func (s *StateInfo) SetEntityKey(key any) { s.entityKey = key }

// StartingOriginalValues returns the snapshot captured when the entity was last
// materialized or saved. Nil for entities never read from storage.
func (s *StateInfo) StartingOriginalValues() Values { return s.original }

func (s *StateInfo) SetStartingOriginalValues(v Values) { s.original = v }

// ModifiedFields returns the names written through SetField since the last
// accept, in write order.
func (s *StateInfo) ModifiedFields() []string {
	return slices.Clone(s.dirty)
}

func (s *StateInfo) MarkFieldModified(name string) {
	if !slices.Contains(s.dirty, name) {
		s.dirty = append(s.dirty, name)
	}
}

func (s *StateInfo) ClearModifiedFields() { s.dirty = nil }

// Values maps field names to values. Complex fields nest another Values.
type Values map[string]any

// Clone returns a deep copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		switch t := val.(type) {
		case Values:
			out[k] = t.Clone()
		case []byte:
			out[k] = bytes.Clone(t)
		default:
			out[k] = val
		}
	}
	return out
}

// Equal reports whether both trees hold the same names and equal values.
func (v Values) Equal(other Values) bool {
	if len(v) != len(other) {
		return false
	}
	for k, val := range v {
		o, ok := other[k]
		if !ok || !ValuesEqual(val, o) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two field values. Nil equals nil only.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case Values:
		y, ok := b.(Values)
		return ok && x.Equal(y)
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case []int:
		y, ok := b.([]int)
		return ok && slices.Equal(x, y)
	}
	switch b.(type) {
	case Values, []byte, []int:
		return false
	}
	return a == b
}
