package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countries/pkg/domain"
)

// place carries a complex field to exercise nested original values.
type place struct {
	domain.StateInfo
	ID   int
	Name string
	City string
	Zip  string
}

func (*place) Mapping() *domain.Mapping { return &placeMapping }

var placeMapping = domain.Mapping{
	Type:  "Place",
	Table: "Place",
	Fields: []domain.Field{
		{Name: "Id", Column: "Id", Key: true, Generated: true,
			Get: func(e domain.Entity) any { return e.(*place).ID },
			Set: func(e domain.Entity, v any) (err error) { e.(*place).ID, err = domain.AsInt(v); return }},
		{Name: "Name", Column: "Name",
			Get: func(e domain.Entity) any { return e.(*place).Name },
			Set: func(e domain.Entity, v any) (err error) { e.(*place).Name, err = domain.AsString(v); return }},
		{Name: "Address", Fields: []domain.Field{
			{Name: "City", Column: "Address_City",
				Get: func(e domain.Entity) any { return e.(*place).City },
				Set: func(e domain.Entity, v any) (err error) { e.(*place).City, err = domain.AsString(v); return }},
			{Name: "Zip", Column: "Address_Zip",
				Get: func(e domain.Entity) any { return e.(*place).Zip },
				Set: func(e domain.Entity, v any) (err error) { e.(*place).Zip, err = domain.AsString(v); return }},
		}},
	},
	New: func() domain.Entity { return &place{} },
}

func persistedContinent(id int, name string) *domain.Continent {
	c := &domain.Continent{Abbreviation: "XX", Name: name}
	c.SetID(id)
	return c
}

func TestFullDiffDetectsDirectWrites(t *testing.T) {
	tr := New(Options{})
	c := persistedContinent(1, "Asia")
	entry := tr.Attach(c)
	require.Equal(t, Unchanged, entry.State())

	c.Name = "Asia Minor"
	require.NoError(t, tr.DetectChanges())
	assert.Equal(t, Modified, entry.State())
	assert.Equal(t, []string{"Name"}, entry.ModifiedFields())

	cols, vals := entry.UpdateColumns()
	assert.Equal(t, []string{"Name"}, cols)
	assert.Equal(t, []any{"Asia Minor"}, vals)
}

func TestDirtyTrackingOnlySeesRecordedWrites(t *testing.T) {
	tr := New(Options{DirtyTracking: true})
	c := persistedContinent(1, "Asia")
	entry := tr.Attach(c)

	c.Abbreviation = "ZZ"
	require.NoError(t, tr.DetectChanges())
	assert.Equal(t, Unchanged, entry.State())

	require.NoError(t, domain.SetField(c, "Name", "Asia Minor"))
	require.NoError(t, tr.DetectChanges())
	assert.Equal(t, Modified, entry.State())
	assert.Equal(t, []string{"Name"}, entry.ModifiedFields())
}

func TestRestoredOriginalsDriveTheDiff(t *testing.T) {
	tr := New(Options{DirtyTracking: true})
	c := persistedContinent(1, "Fake Continent Update2")
	entry := tr.Attach(c)

	require.NoError(t, entry.OriginalValues().Set("Name", "Fake Continent Update"))
	require.NoError(t, entry.OriginalValues().Set("Abbreviation", "XX"))
	require.NoError(t, tr.DetectChanges())
	assert.Equal(t, []string{"Name"}, entry.ModifiedFields())

	assert.Error(t, entry.OriginalValues().Set("Missing", 1))
}

func TestComplexOriginals(t *testing.T) {
	tr := New(Options{DirtyTracking: true})
	p := &place{ID: 3, Name: "Depot", City: "Oslo", Zip: "0150"}
	entry := tr.Attach(p)

	addr, err := entry.OriginalValues().Complex("Address")
	require.NoError(t, err)
	require.NoError(t, addr.Set("City", "Bergen"))
	assert.Error(t, entry.OriginalValues().Set("Address", domain.Values{}))
	_, err = entry.OriginalValues().Complex("Name")
	assert.Error(t, err)

	require.NoError(t, tr.DetectChanges())
	assert.Equal(t, []string{"Address"}, entry.ModifiedFields())
	cols, vals := entry.UpdateColumns()
	assert.Equal(t, []string{"Address_City", "Address_Zip"}, cols)
	assert.Equal(t, []any{"Oslo", "0150"}, vals)

	assert.Equal(t, "Bergen", entry.OriginalValues().ToValues()["Address"].(domain.Values)["City"])
}

func TestSetStateTransitions(t *testing.T) {
	tr := New(Options{})
	c := persistedContinent(2, "Europe")
	entry := tr.Attach(c)

	entry.SetState(Modified)
	assert.Equal(t, []string{"Abbreviation", "Name"}, entry.ModifiedFields())

	c.Name = "Europa"
	entry.SetState(Unchanged)
	assert.Empty(t, entry.ModifiedFields())
	v, _ := entry.OriginalValues().Get("Name")
	assert.Equal(t, "Europa", v)

	fresh := &domain.Continent{Name: "New"}
	added := tr.Add(fresh)
	added.SetState(Deleted)
	assert.Equal(t, Detached, added.State())
	_, ok := tr.Entry(fresh)
	assert.False(t, ok)
}

func TestDeletingAddedEntryWithKeyKeepsIt(t *testing.T) {
	tr := New(Options{})
	c := persistedContinent(5, "Oceania")
	entry := tr.Add(c)
	entry.SetState(Deleted)
	assert.Equal(t, Deleted, entry.State())
	_, ok := tr.Entry(c)
	assert.True(t, ok)
	plan := tr.Plan()
	require.Len(t, plan, 1)
	assert.Equal(t, Delete, plan[0].Kind)
}

func TestRemoveCascadesToDependents(t *testing.T) {
	tr := New(Options{})
	continent := persistedContinent(5, "Oceania")
	country := &domain.Country{Name: "Fiji"}
	country.SetID(30010)
	country.SetContinent(continent)
	byKey := &domain.Country{Name: "Tonga", ContinentID: 5}
	byKey.SetID(30011)
	tr.Attach(country)
	tr.Attach(byKey)

	tr.Remove(continent)
	for _, e := range []domain.Entity{continent, country, byKey} {
		entry, ok := tr.Entry(e)
		require.True(t, ok)
		assert.Equal(t, Deleted, entry.State())
	}

	cmds := tr.Plan()
	require.Len(t, cmds, 3)
	assert.Equal(t, "Country", cmds[0].Table())
	assert.Equal(t, "Country", cmds[1].Table())
	assert.Equal(t, "Continent", cmds[2].Table())
}

func TestPlanOrdersPrincipalsFirst(t *testing.T) {
	tr := New(Options{})
	continent := &domain.Continent{Abbreviation: "FC", Name: "Fake"}
	usd := &domain.Currency{Code: "USD", Name: "Dollar"}
	usd.SetID(40001)
	country := &domain.Country{Name: "Fake"}
	country.SetContinent(continent)
	country.Currencies = []*domain.Currency{usd}

	tr.Add(country)
	require.NoError(t, tr.DetectChanges())

	entry, ok := tr.Entry(continent)
	require.True(t, ok)
	assert.Equal(t, Added, entry.State())
	entry, ok = tr.Entry(usd)
	require.True(t, ok)
	assert.Equal(t, Unchanged, entry.State())

	cmds := tr.Plan()
	require.Len(t, cmds, 3)
	assert.Equal(t, Insert, cmds[0].Kind)
	assert.Equal(t, "Continent", cmds[0].Table())
	assert.Equal(t, "Country", cmds[1].Table())
	assert.Equal(t, LinkInsert, cmds[2].Kind)
	assert.Equal(t, "CountryCurrency", cmds[2].Table())

	// keys generated by the continent insert reach the country insert
	continent.SetID(9)
	require.NoError(t, cmds[1].Entry.FixupReferences())
	cols, vals := cmds[1].Entry.InsertColumns()
	assert.NotContains(t, cols, "Id")
	assert.NotContains(t, cols, "RowVersion")
	assert.Contains(t, vals, 9)
}

func TestLinkDiff(t *testing.T) {
	tr := New(Options{})
	a := &domain.Currency{Code: "AAA"}
	a.SetID(40001)
	b := &domain.Currency{Code: "BBB"}
	b.SetID(40002)
	country := &domain.Country{Name: "X", ContinentID: 1}
	country.SetID(30001)
	country.Currencies = []*domain.Currency{a, b}
	tr.Attach(country)
	require.Len(t, tr.Links(), 2)

	c := &domain.Currency{Code: "CCC"}
	country.Currencies = []*domain.Currency{a, c}
	require.NoError(t, tr.DetectChanges())

	states := map[string]State{}
	for _, l := range tr.Links() {
		states[l.Right.(*domain.Currency).Code] = l.State
	}
	assert.Equal(t, map[string]State{"AAA": Unchanged, "BBB": Deleted, "CCC": Added}, states)
	entry, ok := tr.Entry(c)
	require.True(t, ok)
	assert.Equal(t, Added, entry.State())

	kinds := []CommandKind{}
	for _, cmd := range tr.Plan() {
		kinds = append(kinds, cmd.Kind)
	}
	assert.Equal(t, []CommandKind{Insert, LinkDelete, LinkInsert}, kinds)

	c.SetID(40003)
	require.NoError(t, tr.AcceptAllChanges())
	require.Len(t, tr.Links(), 2)
	for _, l := range tr.Links() {
		assert.Equal(t, Unchanged, l.State)
	}
	assert.False(t, tr.HasChanges())
}

func TestDeletedEntityDropsLinks(t *testing.T) {
	tr := New(Options{})
	a := &domain.Currency{Code: "AAA"}
	a.SetID(40001)
	country := &domain.Country{Name: "X", ContinentID: 1}
	country.SetID(30001)
	country.Currencies = []*domain.Currency{a}
	tr.Attach(country)

	tr.Remove(country)
	require.NoError(t, tr.DetectChanges())
	assert.Empty(t, tr.Links())
	require.Len(t, tr.Plan(), 1)
	assert.Equal(t, Delete, tr.Plan()[0].Kind)
}

func TestAcceptAllChanges(t *testing.T) {
	tr := New(Options{})
	gone := persistedContinent(3, "Gone")
	tr.Attach(gone)
	tr.Remove(gone)
	added := &domain.Continent{Name: "New"}
	tr.Add(added)

	err := tr.AcceptAllChanges()
	require.Error(t, err)
	_, ok := tr.Entry(gone)
	assert.False(t, ok)

	added.SetID(4)
	entry, ok := tr.Entry(added)
	require.True(t, ok)
	assert.Equal(t, Unchanged, entry.State())
	require.NoError(t, tr.AcceptAllChanges())
}

func TestLocalAndDetach(t *testing.T) {
	tr := New(Options{})
	continent := persistedContinent(7, "Africa")
	country := &domain.Country{Name: "Kenya"}
	country.SetID(30100)
	country.SetContinent(continent)
	continent.Countries = []*domain.Country{country}
	tr.Attach(country)

	entry, ok := tr.Local(continent.Mapping(), int64(7))
	require.True(t, ok)
	assert.Same(t, continent, entry.Entity())
	_, ok = tr.Local(continent.Mapping(), 0)
	assert.False(t, ok)

	tr.Detach(continent, true)
	assert.Empty(t, tr.Entries())

	tr.Attach(country)
	tr.Clear()
	assert.Empty(t, tr.Entries())
}

func TestTokenUsesOriginalValue(t *testing.T) {
	tr := New(Options{})
	cur := &domain.Currency{Code: "EUR", Name: "Euro", RowVersion: 4}
	cur.SetID(40005)
	entry := tr.Attach(cur)
	require.NoError(t, entry.SetGenerated("RowVersion", int64(5)))

	col, v, ok := entry.Token()
	require.True(t, ok)
	assert.Equal(t, "RowVersion", col)
	assert.Equal(t, int64(4), v)
	_, _, ok = tr.Attach(persistedContinent(1, "A")).Token()
	assert.False(t, ok)
}
