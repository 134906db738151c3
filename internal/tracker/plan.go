package tracker

import (
	"fmt"
	"slices"

	"countries/pkg/domain"
)

// CommandKind enumerates write commands.
type CommandKind int

const (
	Insert CommandKind = iota
	Update
	LinkDelete
	LinkInsert
	Delete
)

var commandNames = [...]string{"INSERT", "UPDATE", "LINK DELETE", "LINK INSERT", "DELETE"}

func (k CommandKind) String() string {
	if k >= Insert && k <= Delete {
		return commandNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is one pending write. Entity commands carry Entry; link commands
// carry Link. Values are read when the command executes so keys generated by
// earlier inserts flow into later commands.
type Command struct {
	Kind  CommandKind
	Entry *Entry
	Link  *LinkEntry
}

// Table returns the table the command writes.
func (c Command) Table() string {
	if c.Link != nil {
		return c.Link.Link.JoinTable
	}
	return c.Entry.mapping.Table
}

// Plan orders the pending writes: inserts with principals first, updates,
// link deletes, link inserts, then deletes with dependents first.
func (t *Tracker) Plan() []Command {
	var inserts, updates, deletes []*Entry
	for _, entry := range t.entries {
		switch entry.state {
		case Added:
			inserts = append(inserts, entry)
		case Modified:
			if len(entry.modified) > 0 {
				updates = append(updates, entry)
			}
		case Deleted:
			deletes = append(deletes, entry)
		}
	}
	slices.SortStableFunc(inserts, func(a, b *Entry) int { return a.mapping.Rank - b.mapping.Rank })
	slices.SortStableFunc(deletes, func(a, b *Entry) int { return b.mapping.Rank - a.mapping.Rank })

	var cmds []Command
	for _, e := range inserts {
		cmds = append(cmds, Command{Kind: Insert, Entry: e})
	}
	for _, e := range updates {
		cmds = append(cmds, Command{Kind: Update, Entry: e})
	}
	for _, l := range t.links {
		if l.State == Deleted {
			cmds = append(cmds, Command{Kind: LinkDelete, Link: l})
		}
	}
	for _, l := range t.links {
		if l.State == Added {
			cmds = append(cmds, Command{Kind: LinkInsert, Link: l})
		}
	}
	for _, e := range deletes {
		cmds = append(cmds, Command{Kind: Delete, Entry: e})
	}
	return cmds
}

// InsertColumns returns the columns and values of an insert, skipping
// store-generated fields.
func (e *Entry) InsertColumns() ([]string, []any) {
	var cols []string
	var vals []any
	for _, f := range e.mapping.ScalarFields() {
		if f.Generated {
			continue
		}
		cols = append(cols, f.Column)
		vals = append(vals, f.Get(e.entity))
	}
	return cols, vals
}

// UpdateColumns returns the modified columns and their current values. A
// modified complex field writes all of its nested columns.
func (e *Entry) UpdateColumns() ([]string, []any) {
	var cols []string
	var vals []any
	for _, f := range e.mapping.Fields {
		if !slices.Contains(e.modified, f.Name) || f.Key || f.Generated {
			continue
		}
		if !f.Complex() {
			cols = append(cols, f.Column)
			vals = append(vals, f.Get(e.entity))
			continue
		}
		nested := domain.Mapping{Fields: f.Fields}
		for _, sf := range nested.ScalarFields() {
			cols = append(cols, sf.Column)
			vals = append(vals, sf.Get(e.entity))
		}
	}
	return cols, vals
}

// KeyColumn returns the primary key column and its current value.
func (e *Entry) KeyColumn() (string, any) {
	k := e.mapping.KeyField()
	return k.Column, k.Get(e.entity)
}

// Keys returns the left and right key values of a link row.
func (l *LinkEntry) Keys() (any, any) {
	return domain.KeyOf(l.Left), domain.KeyOf(l.Right)
}
