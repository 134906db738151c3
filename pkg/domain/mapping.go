package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// EntityType identifies a persisted record type.
type EntityType string

// Entity is any record with a field capability table.
type Entity interface {
	Mapping() *Mapping
}

// Mapping is the compile-time capability table of an entity type: its table,
// ordered field accessors and relationships. It stands in for runtime
// reflection over struct fields.
type Mapping struct {
	Type  EntityType
	Table string
	// IdentitySeed is the first value of the store-generated key. Zero for views.
	IdentitySeed int
	ReadOnly     bool
	// Rank orders writes: principals (lower rank) are inserted first and deleted last.
	Rank       int
	CSVHeader  string
	Fields     []Field
	References []Reference
	Links      []Link
	// Children returns the loaded collection navigations.
	Children func(Entity) []Entity
	New      func() Entity
}

// Field is one scalar or complex field. A complex field has nested Fields and
// no accessors of its own.
type Field struct {
	Name             string
	Column           string
	Key              bool
	Generated        bool
	ConcurrencyToken bool
	Nullable         bool
	Get              func(Entity) any
	Set              func(Entity, any) error
	Fields           []Field
}

// Complex reports whether the field nests other fields.
func (f Field) Complex() bool { return len(f.Fields) > 0 }

// Reference is a many-to-one navigation backed by a foreign key field.
type Reference struct {
	Name       string
	ForeignKey string
	Target     EntityType
	Required   bool
	Cascade    bool
	Get        func(Entity) Entity
	Set        func(Entity, Entity)
}

// Link is a many-to-many navigation stored in a join table.
type Link struct {
	Name       string
	JoinTable  string
	LeftKey    string
	RightKey   string
	Target     EntityType
	Members    func(Entity) []Entity
	SetMembers func(Entity, []Entity)
}

// Field looks up a top-level field by name.
func (m *Mapping) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// KeyField returns the primary key field.
func (m *Mapping) KeyField() Field {
	for _, f := range m.Fields {
		if f.Key {
			return f
		}
	}
	return Field{}
}

// KeyNames returns the names of the key fields.
func (m *Mapping) KeyNames() []string {
	var names []string
	for _, f := range m.Fields {
		if f.Key {
			names = append(names, f.Name)
		}
	}
	return names
}

// TokenField returns the concurrency token field, if the type has one.
func (m *Mapping) TokenField() (Field, bool) {
	for _, f := range m.Fields {
		if f.ConcurrencyToken {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnName returns the qualified "Table.Column" name of a property.
func (m *Mapping) ColumnName(property string) (string, error) {
	f, ok := m.Field(property)
	if !ok || f.Complex() {
		return "", fmt.Errorf("%s has no mapped property %q", m.Type, property)
	}
	return m.Table + "." + f.Column, nil
}

// Columns returns the flattened column list in field order.
func (m *Mapping) Columns() []string {
	var cols []string
	walkFields(m.Fields, func(f Field) { cols = append(cols, f.Column) })
	return cols
}

// ScalarFields returns every scalar field, descending into complex fields.
func (m *Mapping) ScalarFields() []Field {
	var out []Field
	walkFields(m.Fields, func(f Field) { out = append(out, f) })
	return out
}

func walkFields(fields []Field, fn func(Field)) {
	for _, f := range fields {
		if f.Complex() {
			walkFields(f.Fields, fn)
			continue
		}
		fn(f)
	}
}

// KeyOf returns the primary key value of e.
func KeyOf(e Entity) any {
	k := e.Mapping().KeyField()
	if k.Get == nil {
		return nil
	}
	return k.Get(e)
}

// IsZeroKey reports whether a key is unset: nil, numeric zero, empty text or
// the nil UUID.
func IsZeroKey(key any) bool {
	switch k := key.(type) {
	case nil:
		return true
	case int:
		return k == 0
	case int64:
		return k == 0
	case string:
		text := strings.TrimSpace(k)
		if text == "" {
			return true
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n == 0
		}
		if id, err := uuid.Parse(text); err == nil {
			return id == uuid.Nil
		}
		return false
	case uuid.UUID:
		return k == uuid.Nil
	}
	return false
}

// KeysEqual compares two keys by their text form, so an int key matches the
// int64 read back from a driver.
func KeysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// CurrentValues reads every field of e through its capability table.
func CurrentValues(e Entity) Values {
	return readValues(e, e.Mapping().Fields)
}

func readValues(e Entity, fields []Field) Values {
	out := make(Values, len(fields))
	for _, f := range fields {
		if f.Complex() {
			out[f.Name] = readValues(e, f.Fields)
			continue
		}
		out[f.Name] = f.Get(e)
	}
	return out
}

// SetField writes a top-level or nested ("Parent.Child") field and records it
// in the entity's dirty set when the entity tracks state.
func SetField(e Entity, name string, value any) error {
	f, top, err := lookupPath(e.Mapping().Fields, name)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Mapping().Type, err)
	}
	if err := f.Set(e, value); err != nil {
		return fmt.Errorf("set %s.%s: %w", e.Mapping().Type, name, err)
	}
	if s, ok := e.(ObjectWithState); ok {
		s.MarkFieldModified(top)
	}
	return nil
}

// GetField reads a top-level or nested ("Parent.Child") field.
func GetField(e Entity, name string) (any, error) {
	f, _, err := lookupPath(e.Mapping().Fields, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Mapping().Type, err)
	}
	return f.Get(e), nil
}

func lookupPath(fields []Field, path string) (Field, string, error) {
	parts := strings.Split(path, ".")
	top := parts[0]
	current := fields
	for i, part := range parts {
		var found *Field
		for j := range current {
			if current[j].Name == part {
				found = &current[j]
				break
			}
		}
		if found == nil {
			return Field{}, "", fmt.Errorf("unknown field %q", path)
		}
		if i == len(parts)-1 {
			if found.Complex() {
				return Field{}, "", fmt.Errorf("field %q is complex", path)
			}
			return *found, top, nil
		}
		current = found.Fields
	}
	return Field{}, "", fmt.Errorf("unknown field %q", path)
}

// AsInt converts a driver or caller value to int.
func AsInt(v any) (int, error) {
	n, err := AsInt64(v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("value %d out of int range", n)
	}
	return int(n), nil
}

// AsInt64 converts a driver or caller value to int64.
func AsInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	case nil:
		return 0, fmt.Errorf("nil is not an integer")
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

// AsNullableInt converts to an optional int; nil stays nil.
func AsNullableInt(v any) (*int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *int:
		if t == nil {
			return nil, nil
		}
		n := *t
		return &n, nil
	}
	n, err := AsInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// AsString converts a driver or caller value to string.
func AsString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case nil:
		return "", nil
	}
	return "", fmt.Errorf("cannot convert %T to string", v)
}

// AsFloat64 converts a driver or caller value to float64.
func AsFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case []byte:
		return strconv.ParseFloat(string(t), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

// AsBool converts a driver or caller value to bool.
func AsBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case int:
		return t != 0, nil
	case []byte:
		return strconv.ParseBool(string(t))
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

func nullableIntValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
