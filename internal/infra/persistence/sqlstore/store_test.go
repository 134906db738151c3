package sqlstore_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countries/internal/infra/persistence/postgres"
	"countries/internal/infra/persistence/sqlite"
	"countries/internal/infra/persistence/sqlstore"
	"countries/internal/tracker"
	"countries/pkg/domain"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func save(t *testing.T, store *sqlstore.Store, tr *tracker.Tracker) int {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tr.DetectChanges())
	tx, err := store.BeginTx(ctx, 0)
	require.NoError(t, err)
	n, err := store.Write(ctx, tx, tr.Plan())
	if err != nil {
		_ = tx.Rollback()
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, tr.AcceptAllChanges())
	return n
}

func seedCountry(t *testing.T, store *sqlstore.Store) (*tracker.Tracker, *domain.Country) {
	t.Helper()
	tr := tracker.New(tracker.Options{})
	continent := &domain.Continent{Abbreviation: "FC", Name: "Fake Continent"}
	usd := &domain.Currency{Code: "USD", Name: "US Dollar", DecimalDigits: 2}
	utc := &domain.TimeZone{TimeZoneAcronym: "UTC", TimeZoneName: "Coordinated Universal Time"}
	country := &domain.Country{
		ISO2: "FC", ISO3: "FCT", ISONumeric: "999", ISOName: "Fake", Name: "Fake", OfficialName: "Fake Country",
		Currencies: []*domain.Currency{usd},
		TimeZones:  []*domain.TimeZone{utc},
	}
	country.SetContinent(continent)
	tr.Add(country)
	assert.Equal(t, 4, save(t, store, tr))
	return tr, country
}

func TestWriteInsertsGraphWithGeneratedKeys(t *testing.T) {
	store := openStore(t)
	_, country := seedCountry(t, store)

	assert.Equal(t, 30001, country.ID)
	assert.Equal(t, int64(1), country.RowVersion)
	assert.Equal(t, 1, country.Continent.ID)
	assert.Equal(t, 1, country.ContinentID)
	assert.Equal(t, 40001, country.Currencies[0].ID)
	assert.Equal(t, 50001, country.TimeZones[0].ID)
	assert.Equal(t, 30001, country.EntityKey())

	ctx := context.Background()
	links, err := store.SelectLinks(ctx, store.DB(), &country.Mapping().Links[0], []any{country.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string][]any{"30001": {int64(40001)}}, links)

	infos, err := store.Select(ctx, store.DB(), (&domain.CountryTimeZoneInfo{}).Mapping(), "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	info := infos[0].(*domain.CountryTimeZoneInfo)
	assert.Equal(t, "UTC", info.TimeZoneAcronym)
	assert.Equal(t, "FC", info.CountryISO2)
}

func TestWriteUpdateBumpsRowVersionAndDetectsConflicts(t *testing.T) {
	store := openStore(t)
	tr, country := seedCountry(t, store)
	ctx := context.Background()

	country.Name = "Fake Update"
	assert.Equal(t, 1, save(t, store, tr))
	assert.Equal(t, int64(2), country.RowVersion)

	rows, err := store.Select(ctx, store.DB(), country.Mapping(), `"Id" = ?`, country.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Fake Update", rows[0].(*domain.Country).Name)

	// a concurrent writer moves the token
	_, err = store.Exec(ctx, store.DB(), `UPDATE "Country" SET "RowVersion" = 10 WHERE "Id" = ?`, country.ID)
	require.NoError(t, err)
	country.Name = "Stale"
	require.NoError(t, tr.DetectChanges())
	_, err = store.Write(ctx, store.DB(), tr.Plan())
	var conflict *sqlstore.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, tracker.Update, conflict.Kind)
	assert.Equal(t, "Country", conflict.Table)
}

func TestWriteDeleteCascadesJoinRows(t *testing.T) {
	store := openStore(t)
	tr, country := seedCountry(t, store)
	ctx := context.Background()

	tr.Remove(country)
	assert.Equal(t, 1, save(t, store, tr))

	n, err := store.Scalar(ctx, store.DB(), `SELECT COUNT(*) FROM "CountryCurrency"`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	rows, err := store.Select(ctx, store.DB(), country.Mapping(), "")
	require.NoError(t, err)
	assert.Empty(t, rows)

	ghost := &domain.Continent{Name: "Ghost", Abbreviation: "GH"}
	ghost.SetID(999)
	tr2 := tracker.New(tracker.Options{})
	tr2.Remove(ghost)
	_, err = store.Write(ctx, store.DB(), tr2.Plan())
	var conflict *sqlstore.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestQueryScalarAndLastIdentity(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	seedCountry(t, store)

	table, err := store.Query(ctx, store.DB(), `SELECT "Id", "Name" FROM "Continent" WHERE "Abbreviation" = ?`, "FC")
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name"}, table.Columns)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Fake Continent", table.Rows[0][1])
	assert.Equal(t, 1, table.Column("name"))
	assert.Equal(t, -1, table.Column("missing"))

	v, err := store.Scalar(ctx, store.DB(), `SELECT "Name" FROM "Continent" WHERE "Id" = ?`, 42)
	require.NoError(t, err)
	assert.Nil(t, v)

	last, err := store.LastIdentity(ctx, store.DB(), "Country")
	require.NoError(t, err)
	assert.Equal(t, int64(30001), last)
	last, err = store.LastIdentity(ctx, store.DB(), "NoSuchTable")
	assert.Error(t, err)
	assert.Equal(t, int64(-1), last)
	_, err = store.LastIdentity(ctx, store.DB(), " ")
	assert.Error(t, err)
}

func TestCopyTableAndDeleteByKeys(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var codes []domain.Entity
	for i := 1; i <= 25; i++ {
		codes = append(codes, &domain.CallingCode{CallingCodeNumber: i})
	}
	table := sqlstore.DataTable((&domain.CallingCode{}).Mapping(), codes)
	assert.Equal(t, []string{"Id", "CallingCodeNumber"}, table.Columns)
	assert.Equal(t, []string{"Id"}, table.Identity)

	n, err := store.CopyTable(ctx, store.DB(), table, sqlstore.CopyOptions{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Empty(t, table.Rows)

	last, err := store.LastIdentity(ctx, store.DB(), "CallingCode")
	require.NoError(t, err)
	assert.Equal(t, int64(20025), last)

	var keys []string
	for id := 20001; id <= 20025; id += 2 {
		keys = append(keys, strconv.Itoa(id))
	}
	removed, err := store.DeleteByKeys(ctx, store.DB(), "CallingCode", "", keys, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(13), removed)

	_, err = store.DeleteByKeys(ctx, store.DB(), "", "Id", keys, 4)
	assert.Error(t, err)
	_, err = store.DeleteByKeys(ctx, store.DB(), "CallingCode", "Id", nil, 4)
	assert.Error(t, err)
	_, err = store.DeleteByKeys(ctx, store.DB(), "CallingCode", "Id", keys, 0)
	assert.Error(t, err)
	removed, err = store.DeleteByKeys(ctx, store.DB(), "CallingCode", "Id", []string{}, 4)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestCopyTableKeepIdentity(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	c := &domain.Continent{Abbreviation: "AN", Name: "Antarctica"}
	c.SetID(7)
	table := sqlstore.DataTable(c.Mapping(), []domain.Entity{c})
	_, err := store.CopyTable(ctx, store.DB(), table, sqlstore.CopyOptions{KeepIdentity: true})
	require.NoError(t, err)

	rows, err := store.Select(ctx, store.DB(), c.Mapping(), `WHERE "Id" = ?`, 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = store.CopyTable(ctx, store.DB(), &sqlstore.Table{}, sqlstore.CopyOptions{})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "T?" WHERE a = $1 AND b = '?' AND c = $2`,
		sqlstore.Rebind(postgres.Dialect{}, `SELECT * FROM "T?" WHERE a = ? AND b = '?' AND c = ?`))
	assert.Equal(t, `a = ?`, sqlstore.Rebind(sqlite.Dialect{}, `a = ?`))
	assert.Equal(t, `"a""b"`, sqlstore.Quote(`a"b`))
}
