package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"countries/internal/config"
	"countries/internal/infra/persistence/sqlstore"
	"countries/internal/tracker"
	"countries/pkg/domain"
)

// BulkTimeout bounds one attempt of a bulk save or bulk command.
const BulkTimeout = 2 * time.Hour

type changeCounts struct {
	added, deleted, modified int
}

func (c changeCounts) total() int { return c.added + c.deleted + c.modified }

// SaveChanges reconciles, validates and writes every pending change in one
// transaction, retrying transient failures. It returns the number of entities
// inserted, updated or deleted. bulk skips validation and change logging and
// runs in a new serializable transaction with a long timeout.
func (m *Manager) SaveChanges(ctx context.Context, bulk bool) (n int, err error) {
	release, err := m.guard.enter("SaveChanges")
	if err != nil {
		return 0, err
	}
	defer release()
	defer func(start time.Time) { m.observe(ctx, "save_changes", start, err) }(time.Now())
	return m.saveChanges(ctx, bulk)
}

func (m *Manager) saveChanges(ctx context.Context, bulk bool) (int, error) {
	if err := m.Reconcile(ctx); err != nil {
		return 0, err
	}
	if m.cfg.ValidateOnSaveEnabled && !bulk {
		if res := m.pendingValidation(); !res.Valid() {
			m.log.WithField("failures", len(res.Failures)).Debug("validation failed before save")
			return 0, &ValidationError{Failures: res.Failures}
		}
	}
	counts := m.countChanges()
	m.log.Debugf("Total number of entities to save: %d; Added: %d; Deleted: %d; Modified: %d",
		counts.total(), counts.added, counts.deleted, counts.modified)
	if m.cfg.LogChangesDuringSave && !bulk {
		for _, line := range m.changeDetails() {
			m.log.Debug(line)
		}
	}
	deleted := m.pendingDeletes()

	scope, level := m.cfg.TransactionScope, m.cfg.Isolation()
	if bulk {
		scope, level = config.ScopeRequiresNew, sql.LevelSerializable
	}
	limit := m.cfg.UpdateRetryLimit
	if scope == config.ScopeRequired && m.ambient != nil {
		// a failed statement poisons the caller's transaction
		limit = 1
	}

	var written int
	for attempt := 1; ; attempt++ {
		var err error
		written, err = m.attemptSave(ctx, bulk, scope, level)
		if err == nil {
			break
		}
		if !m.store.Transient(err) {
			return 0, m.classify("save changes", err, attempt)
		}
		if attempt >= limit {
			return 0, &StoreError{Op: "save changes", Transient: true, Attempts: attempt, Err: err}
		}
		m.log.WithError(err).WithFields(log.Fields{
			"attempt":  attempt,
			"limit":    limit,
			"retry_in": m.cfg.RetryInterval().String(),
		}).Warn("transient failure saving changes, retrying")
		m.metrics.Retry(ctx, "save_changes")
		if err := m.sleep(ctx, m.cfg.RetryInterval()); err != nil {
			return 0, &StoreError{Op: "save changes", Transient: true, Attempts: attempt, Err: err}
		}
	}

	if err := m.tracker.AcceptAllChanges(); err != nil {
		m.log.WithError(err).Error("accepting changes after commit")
	}
	m.resetStates(deleted)
	m.metrics.Saved(ctx, counts.added, counts.modified, counts.deleted)
	return written, nil
}

// attemptSave runs one write attempt. Generated values assigned during a
// failed attempt are rolled back with the transaction.
func (m *Manager) attemptSave(ctx context.Context, bulk bool, scope config.TransactionScope, level sql.IsolationLevel) (int, error) {
	cmds := m.tracker.Plan()
	if len(cmds) == 0 {
		return 0, nil
	}
	timeout := m.cfg.CommandTimeout()
	if bulk {
		timeout = BulkTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	restore := captureGenerated(cmds)
	n, err := m.inScope(ctx, scope, level, func(ex sqlstore.Executor) (int, error) {
		return m.writer.Write(ctx, ex, cmds)
	})
	if err != nil {
		restore()
		return 0, err
	}
	return n, nil
}

// inScope runs fn on the executor the scope selects: no transaction for
// Suppress, the ambient transaction for Required when one is open, otherwise
// a new transaction committed on success.
func (m *Manager) inScope(ctx context.Context, scope config.TransactionScope, level sql.IsolationLevel, fn func(sqlstore.Executor) (int, error)) (int, error) {
	switch {
	case scope == config.ScopeSuppress:
		return fn(m.store.DB())
	case scope == config.ScopeRequired && m.ambient != nil:
		return fn(m.ambient)
	}
	tx, err := m.store.BeginTx(ctx, level)
	if err != nil {
		return 0, err
	}
	n, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.log.WithError(rbErr).Warn("rollback")
		}
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return n, nil
}

// classify maps a non-transient failure onto the manager's error kinds.
func (m *Manager) classify(op string, err error, attempts int) error {
	var conflict *sqlstore.ConflictError
	if errors.As(err, &conflict) {
		return &ConcurrencyError{Table: conflict.Table, Key: conflict.Key, Err: err}
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return &StoreError{Op: op, Attempts: attempts, Err: err}
}

type generatedValue struct {
	entry *tracker.Entry
	field string
	value any
}

func captureGenerated(cmds []tracker.Command) func() {
	var saved []generatedValue
	keys := make(map[*tracker.Entry]any)
	for _, cmd := range cmds {
		if cmd.Entry == nil || (cmd.Kind != tracker.Insert && cmd.Kind != tracker.Update) {
			continue
		}
		entity := cmd.Entry.Entity()
		for _, f := range cmd.Entry.Mapping().ScalarFields() {
			if f.Generated || f.Key {
				saved = append(saved, generatedValue{entry: cmd.Entry, field: f.Name, value: f.Get(entity)})
			}
		}
		if st, ok := entity.(domain.ObjectWithState); ok {
			keys[cmd.Entry] = st.EntityKey()
		}
	}
	return func() {
		for _, g := range saved {
			_ = g.entry.SetGenerated(g.field, g.value)
		}
		for entry, key := range keys {
			entry.Entity().(domain.ObjectWithState).SetEntityKey(key)
		}
	}
}

// pendingValidation validates every entity the save would write.
func (m *Manager) pendingValidation() domain.Result {
	var entities []domain.Entity
	for _, entry := range m.tracker.Entries() {
		switch entry.State() {
		case tracker.Added, tracker.Modified, tracker.Deleted:
			entities = append(entities, entry.Entity())
		}
	}
	return domain.Validate(entities...)
}

func (m *Manager) countChanges() changeCounts {
	var c changeCounts
	for _, entry := range m.tracker.Entries() {
		switch entry.State() {
		case tracker.Added:
			c.added++
		case tracker.Deleted:
			c.deleted++
		case tracker.Modified:
			c.modified++
		}
	}
	return c
}

func (m *Manager) pendingDeletes() []domain.ObjectWithState {
	var out []domain.ObjectWithState
	for _, entry := range m.tracker.Entries() {
		if entry.State() != tracker.Deleted {
			continue
		}
		if st, ok := entry.Entity().(domain.ObjectWithState); ok {
			out = append(out, st)
		}
	}
	return out
}

// changeDetails renders one block per pending entity: every value of an
// insert, the key of a delete, the key and changed fields of an update.
func (m *Manager) changeDetails() []string {
	var out []string
	for _, entry := range m.tracker.Entries() {
		var b strings.Builder
		fmt.Fprintf(&b, "%s entity type: %s:", entry.State(), entry.Mapping().Type)
		switch entry.State() {
		case tracker.Added:
			current := entry.CurrentValues()
			for _, f := range entry.Mapping().Fields {
				fmt.Fprintf(&b, "\n\t%s: %v", f.Name, current[f.Name])
			}
		case tracker.Deleted:
			original := entry.OriginalValues().ToValues()
			for _, name := range entry.KeyNames() {
				fmt.Fprintf(&b, "\n\t%s: %v", name, original[name])
			}
		case tracker.Modified:
			current := entry.CurrentValues()
			original := entry.OriginalValues().ToValues()
			for _, name := range entry.KeyNames() {
				fmt.Fprintf(&b, "\n\t%s: %v", name, current[name])
			}
			for _, name := range entry.ModifiedFields() {
				fmt.Fprintf(&b, "\n\t%s: %v => %v", name, original[name], current[name])
			}
		default:
			continue
		}
		out = append(out, b.String())
	}
	return out
}

// resetStates makes the committed state the new baseline of every entity.
func (m *Manager) resetStates(deleted []domain.ObjectWithState) {
	for _, st := range deleted {
		st.SetStartingOriginalValues(nil)
		st.SetDetachedState(domain.Deleted)
	}
	for _, entry := range m.tracker.Entries() {
		if st, ok := entry.Entity().(domain.ObjectWithState); ok && st.DetachedState() != domain.Deleted {
			st.SetStartingOriginalValues(entry.OriginalValues().ToValues())
			st.SetDetachedState(domain.Unchanged)
		}
		entry.SetState(tracker.Unchanged)
	}
}
