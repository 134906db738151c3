package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countries/internal/tracker"
	"countries/pkg/domain"
)

func TestReconcileRejectsEntityWithoutState(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Tracker().Add(&domain.CountryInfo{ID: 30001})

	_, err := h.m.SaveChanges(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedEntityKind))
	assert.Zero(t, h.writer.calls)
}

func TestAddEntityRejectsViews(t *testing.T) {
	h := newHarness(t, nil)
	err := h.m.AddEntity(&domain.CountryInfo{})
	assert.True(t, errors.Is(err, ErrUnsupportedEntityKind))
}

func TestModifiedIntentWithSnapshotIsRejected(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	h := newHarnessOn(t, store, nil)
	ctx := context.Background()

	continent, ok, err := Find[*domain.Continent](ctx, h.m, 1)
	require.NoError(t, err)
	require.True(t, ok)
	continent.SetDetachedState(domain.Modified)

	_, err = h.m.SaveChanges(ctx, false)
	assert.True(t, errors.Is(err, ErrUnsupportedEntityKind))
}

func TestModifiedIntentWritesEveryFieldOfUntrackedEntity(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	h := newHarnessOn(t, store, nil)
	ctx := context.Background()

	zones, err := QueryNoTracking[*domain.TimeZone](ctx, h.m, `"TimeZoneAcronym" = ?`, "EST")
	require.NoError(t, err)
	require.Len(t, zones, 1)
	zone := zones[0]
	assert.Nil(t, zone.StartingOriginalValues())
	assert.Empty(t, h.m.Tracker().Entries())

	zone.DST = true
	zone.SetDetachedState(domain.Modified)
	entry, err := h.m.Attach(zone)
	require.NoError(t, err)
	assert.Equal(t, tracker.Modified, entry.State())

	n, err := h.m.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, h.writer.updates, 1)
	assert.Equal(t, []string{"TimeZoneAcronym", "TimeZoneName", "UTCOffset", "DST"}, h.writer.updates[0])
	assert.Equal(t, domain.Unchanged, zone.DetachedState())
}

func TestReconcileRestoresSnapshotAsOriginals(t *testing.T) {
	h := newHarness(t, func(c *cfgT) { c.ProxyCreationEnabled = false })
	continent := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
	continent.SetID(1)
	continent.SetStartingOriginalValues(domain.Values{"Id": 1, "Abbreviation": "AF", "Name": "Afrika"})

	entry := h.m.Tracker().Attach(continent)
	require.NoError(t, h.m.Reconcile(context.Background()))
	assert.Equal(t, tracker.Modified, entry.State())
	assert.Equal(t, []string{"Name"}, entry.ModifiedFields())
	orig, _ := entry.OriginalValues().Get("Name")
	assert.Equal(t, "Afrika", orig)
}

func TestReconcileSkipsSnapshotlessUnchangedEntity(t *testing.T) {
	h := newHarness(t, nil)
	continent := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
	continent.SetID(1)
	entry := h.m.Tracker().Attach(continent)

	require.NoError(t, h.m.Reconcile(context.Background()))
	assert.Equal(t, tracker.Unchanged, entry.State())
}

func TestReconcileKeepsTrackerDeletedAndModified(t *testing.T) {
	h := newHarness(t, func(c *cfgT) { c.ProxyCreationEnabled = false })
	deleted := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
	deleted.SetID(1)
	modified := &domain.Continent{Abbreviation: "EU", Name: "Europe"}
	modified.SetID(2)

	del := h.m.Tracker().Attach(deleted)
	del.SetState(tracker.Deleted)
	mod := h.m.Tracker().Attach(modified)
	modified.Name = "Europa"
	require.NoError(t, h.m.Tracker().DetectChanges())
	require.Equal(t, tracker.Modified, mod.State())

	require.NoError(t, h.m.Reconcile(context.Background()))
	assert.Equal(t, tracker.Deleted, del.State())
	assert.Equal(t, tracker.Modified, mod.State())
}

func TestReconcileAppliesAddedAndDeletedIntent(t *testing.T) {
	h := newHarness(t, nil)
	gone := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
	gone.SetID(1)
	gone.SetDetachedState(domain.Deleted)
	fresh := &domain.Continent{Abbreviation: "EU", Name: "Europe"}
	fresh.SetDetachedState(domain.Deleted)

	del := h.m.Tracker().Attach(gone)
	h.m.Tracker().Attach(fresh)
	require.NoError(t, h.m.Reconcile(context.Background()))
	assert.Equal(t, tracker.Deleted, del.State())
	// never persisted, so deleting it only stops tracking
	_, tracked := h.m.Tracker().Entry(fresh)
	assert.False(t, tracked)
}

func TestDeletedIntentThroughAddEntityRemovesRow(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	reader := newHarnessOn(t, store, nil)
	currency, ok, err := Find[*domain.Currency](ctx, reader.m, 40001)
	require.NoError(t, err)
	require.True(t, ok)
	currency.SetDetachedState(domain.Deleted)

	writer := newHarnessOn(t, store, nil)
	require.NoError(t, writer.m.AddEntity(currency))
	n, err := writer.m.SaveChanges(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, writer.writer.kinds, tracker.Delete)
	assert.Nil(t, currency.StartingOriginalValues())

	check := newHarnessOn(t, store, nil)
	_, found, err := Find[*domain.Currency](ctx, check.m, 40001)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, count(t, store, "CountryCurrency"))
}

func TestDeletedIntentThroughAddEntityChecksSnapshotToken(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	reader := newHarnessOn(t, store, nil)
	currency, ok, err := Find[*domain.Currency](ctx, reader.m, 40001)
	require.NoError(t, err)
	require.True(t, ok)
	stale := currency.StartingOriginalValues().Clone()
	stale["RowVersion"] = int64(99)
	currency.SetStartingOriginalValues(stale)
	currency.SetDetachedState(domain.Deleted)

	writer := newHarnessOn(t, store, nil)
	require.NoError(t, writer.m.AddEntity(currency))
	_, err = writer.m.SaveChanges(ctx, false)
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	assert.EqualValues(t, 1, count(t, store, "Currency"))
}

func TestSettleLoaded(t *testing.T) {
	h := newHarness(t, nil)
	continent := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
	continent.SetID(1)
	entry := h.m.Tracker().Attach(continent)

	entry.SetState(tracker.Modified)
	require.NoError(t, settleLoaded(entry))
	assert.Equal(t, tracker.Unchanged, entry.State())

	entry.SetState(tracker.Modified)
	continent.Name = "Afrika"
	err := settleLoaded(entry)
	assert.True(t, errors.Is(err, ErrCorruptTrackerState))
}

func TestLoadedEntitiesSettleUnchangedAfterDetection(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	for _, dirty := range []bool{true, false} {
		h := newHarnessOn(t, store, func(c *cfgT) { c.ProxyCreationEnabled = dirty })
		countries, err := Query[*domain.Country](context.Background(), h.m, "")
		require.NoError(t, err)
		require.Len(t, countries, 1)
		for _, entry := range h.m.Tracker().Entries() {
			assert.Equal(t, tracker.Unchanged, entry.State(), "%s dirty=%v", entry.Mapping().Type, dirty)
			assert.Empty(t, entry.ModifiedFields())
		}
		assert.Empty(t, countries[0].ModifiedFields())
	}
}

func TestAddEntitySkipsTrackedKey(t *testing.T) {
	h := newHarness(t, nil)
	first := &domain.Currency{Code: "EUR", Name: "Euro", DecimalDigits: 2}
	first.SetID(40002)
	second := &domain.Currency{Code: "EUR", Name: "Euro", DecimalDigits: 2}
	second.SetID(40002)

	require.NoError(t, h.m.AddEntity(first))
	require.NoError(t, h.m.AddEntity(second))
	assert.Len(t, h.m.Tracker().Entries(), 1)

	// zero keys are never matched
	require.NoError(t, h.m.AddEntity(&domain.Currency{Code: "GBP", Name: "Pound", DecimalDigits: 2}))
	require.NoError(t, h.m.AddEntity(&domain.Currency{Code: "JPY", Name: "Yen"}))
	assert.Len(t, h.m.Tracker().Entries(), 3)
}

func TestDetachWithChildren(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	h := newHarnessOn(t, store, nil)
	ctx := context.Background()

	country, _, err := Find[*domain.Country](ctx, h.m, 30001)
	require.NoError(t, err)
	require.NoError(t, h.m.LoadLinks(ctx, country))
	require.Len(t, h.m.Tracker().Entries(), 5)

	require.NoError(t, h.m.Detach(country, true))
	_, tracked := h.m.Tracker().Entry(country)
	assert.False(t, tracked)
	_, tracked = h.m.Tracker().Entry(country.Currencies[0])
	assert.False(t, tracked)
	_, tracked = h.m.Tracker().Entry(country.Continent)
	assert.True(t, tracked)
}

func TestGetValidationResult(t *testing.T) {
	h := newHarness(t, nil)
	code := &domain.CallingCode{CallingCodeNumber: 2000}
	res := h.m.GetValidationResult(code)
	assert.False(t, res.Valid())

	code.SetDetachedState(domain.Added)
	code.CallingCodeNumber = 44
	assert.True(t, h.m.GetValidationResult(code).Valid())
}

func TestHasChangesReconcilesWhenAutoDetectIsOn(t *testing.T) {
	for _, auto := range []bool{true, false} {
		h := newHarness(t, func(c *cfgT) {
			c.ProxyCreationEnabled = false
			c.AutoDetectChangesEnabled = auto
		})
		continent := &domain.Continent{Abbreviation: "AF", Name: "Africa"}
		continent.SetID(1)
		continent.SetStartingOriginalValues(domain.Values{"Id": 1, "Abbreviation": "AF", "Name": "Afrika"})
		h.m.Tracker().Attach(continent)

		changed, err := h.m.HasChanges(context.Background())
		require.NoError(t, err)
		assert.Equal(t, auto, changed, "auto detect %v", auto)
	}
}
