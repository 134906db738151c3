package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	upperAlpha   = regexp.MustCompile(`^[A-Z]+$`)
	upperNumeric = regexp.MustCompile(`^[0-9]+$`)
)

const (
	upperAlphaMessage   = "Only uppercase alpha characters are allowed."
	upperNumericMessage = "Only uppercase numeric characters are allowed."
)

// ValidationFailure reports a single violated rule.
type ValidationFailure struct {
	Entity   EntityType
	Property string
	Message  string
}

func (f ValidationFailure) String() string {
	return fmt.Sprintf("%s.%s: %s", f.Entity, f.Property, f.Message)
}

// Result aggregates failures from one or more entities.
type Result struct {
	Failures []ValidationFailure
}

// Merge appends failures from another result.
func (r *Result) Merge(other Result) {
	if len(other.Failures) == 0 {
		return
	}
	r.Failures = append(r.Failures, other.Failures...)
}

// Valid reports whether no rule failed.
func (r Result) Valid() bool { return len(r.Failures) == 0 }

// Validator is implemented by entities that check their own field rules.
type Validator interface {
	Validate() []ValidationFailure
}

// Validate evaluates every validating entity and aggregates the failures.
func Validate(entities ...Entity) Result {
	var combined Result
	for _, e := range entities {
		v, ok := e.(Validator)
		if !ok {
			continue
		}
		combined.Merge(Result{Failures: v.Validate()})
	}
	return combined
}

// Constraint declares the data rules of one property.
type Constraint struct {
	Property       string
	Required       bool
	MinLength      int
	MaxLength      int
	Pattern        *regexp.Regexp
	PatternMessage string
	// Range bounds apply when Max > Min.
	Min, Max float64
}

func (c Constraint) check(t EntityType, value any) []ValidationFailure {
	fail := func(format string, args ...any) ValidationFailure {
		return ValidationFailure{Entity: t, Property: c.Property, Message: fmt.Sprintf(format, args...)}
	}
	if c.Required {
		if s, ok := value.(string); value == nil || ok && strings.TrimSpace(s) == "" {
			return []ValidationFailure{fail("The %s field is required.", c.Property)}
		}
	}
	var out []ValidationFailure
	if s, ok := value.(string); ok {
		n := utf8.RuneCountInString(s)
		if c.MaxLength > 0 && (n > c.MaxLength || n < c.MinLength) {
			if c.MinLength > 0 {
				out = append(out, fail("The field %s must be a string with a minimum length of %d and a maximum length of %d.", c.Property, c.MinLength, c.MaxLength))
			} else {
				out = append(out, fail("The field %s must be a string with a maximum length of %d.", c.Property, c.MaxLength))
			}
		}
		if c.Pattern != nil && s != "" && !c.Pattern.MatchString(s) {
			out = append(out, fail("%s", c.PatternMessage))
		}
	}
	if c.Max > c.Min && value != nil {
		if f, err := AsFloat64(value); err == nil && (f < c.Min || f > c.Max) {
			out = append(out, fail("The field %s must be between %s and %s.", c.Property, formatBound(c.Min), formatBound(c.Max)))
		}
	}
	return out
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CheckConstraints runs every constraint against the entity's current values.
func CheckConstraints(e Entity, constraints []Constraint) []ValidationFailure {
	var out []ValidationFailure
	for _, c := range constraints {
		v, err := GetField(e, c.Property)
		if err != nil {
			out = append(out, ValidationFailure{Entity: e.Mapping().Type, Property: c.Property, Message: err.Error()})
			continue
		}
		out = append(out, c.check(e.Mapping().Type, v)...)
	}
	return out
}

// ValidateState performs the checks shared by every stateful entity. Persisted
// entities must carry an id at or above the identity seed and a matching entity
// key. Live entities must have trimmed text and a defined lifecycle intent.
// rules supplies the type-specific field checks and runs only for live entities.
func ValidateState(e ObjectWithState, rules func() []ValidationFailure) []ValidationFailure {
	m := e.Mapping()
	var out []ValidationFailure
	if e.DetachedState() != Added {
		id, _ := AsInt(KeyOf(e))
		if id < m.IdentitySeed {
			out = append(out, ValidationFailure{m.Type, "Id",
				fmt.Sprintf("Id is invalid: %d. Must be equal or greater than: %d", id, m.IdentitySeed)})
		}
		if key := e.EntityKey(); key == nil || fmt.Sprint(key) != strconv.Itoa(id) {
			shown := "NULL"
			if key != nil {
				shown = fmt.Sprint(key)
			}
			out = append(out, ValidationFailure{m.Type, "EntityKey",
				fmt.Sprintf("EntityKey: %s is required/must match Id: %d.", shown, id)})
		}
	}
	if e.DetachedState() == Deleted {
		return out
	}
	if rules != nil {
		out = append(out, rules()...)
	}
	for _, f := range m.ScalarFields() {
		s, ok := f.Get(e).(string)
		if !ok || s == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(s)
		if unicode.IsSpace(first) {
			out = append(out, ValidationFailure{m.Type, f.Name, f.Name + " is not trimmed. (Leading whitespace)"})
		}
		last, _ := utf8.DecodeLastRuneInString(s)
		if utf8.RuneCountInString(s) > 1 && unicode.IsSpace(last) {
			out = append(out, ValidationFailure{m.Type, f.Name, f.Name + " is not trimmed. (Trailing whitespace)"})
		}
	}
	if !e.DetachedState().Valid() {
		out = append(out, ValidationFailure{m.Type, "DetachedState",
			fmt.Sprintf("%d is not valid for Type: DetachedState", int(e.DetachedState()))})
	}
	return out
}

// StringFieldsAreTrimmed reports whether no text field has surrounding whitespace.
func StringFieldsAreTrimmed(e Entity) bool {
	for _, f := range e.Mapping().ScalarFields() {
		if s, ok := f.Get(e).(string); ok && s != strings.TrimSpace(s) {
			return false
		}
	}
	return true
}

// TrimStringFields trims every text field in place.
func TrimStringFields(e Entity) error {
	for _, f := range e.Mapping().ScalarFields() {
		s, ok := f.Get(e).(string)
		if !ok || s == strings.TrimSpace(s) {
			continue
		}
		if err := f.Set(e, strings.TrimSpace(s)); err != nil {
			return err
		}
		if st, ok := e.(ObjectWithState); ok {
			st.MarkFieldModified(f.Name)
		}
	}
	return nil
}

// MaxLength returns the declared maximum length of a text property, or -1.
func MaxLength(constraints []Constraint, property string) int {
	for _, c := range constraints {
		if c.Property == property && c.MaxLength > 0 {
			return c.MaxLength
		}
	}
	return -1
}
