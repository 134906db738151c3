package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinentProjections(t *testing.T) {
	c := &Continent{Abbreviation: "FC", Name: "Fake Continent Create"}
	c.SetID(7)

	assert.Equal(t, `"7","FC","Fake Continent Create"`, c.ToCSVString())
	assert.Equal(t, "Name: Fake Continent Create; Abbreviation: FC; ", c.String())
	assert.Equal(t, 7, c.EntityKey())
}

func TestCountryCSVUsesNavigations(t *testing.T) {
	country := &Country{ISO2: "FC", ISO3: "FCY", ISONumeric: "999", ISOName: "Fake", Name: "Fake", OfficialName: "Fake Country"}
	country.SetID(30001)
	assert.Equal(t, `"30001","FC","FCY","999","Fake","Fake","Fake Country","","NULL","NULL"`, country.ToCSVString())

	country.SetContinent(&Continent{ID: 3, Name: "Europe"})
	country.SetCallingCode(&CallingCode{ID: 20044, CallingCodeNumber: 44})
	assert.Equal(t, `"30001","FC","FCY","999","Fake","Fake","Fake Country","","Europe","44"`, country.ToCSVString())
	assert.Contains(t, country.String(), "CallingCodeNumber: 44; Continent: Europe; ")
	assert.Equal(t, []string{"ContinentId", "CallingCodeId"}, country.ModifiedFields())
}

func TestCountryForeignKeysFollowNavigation(t *testing.T) {
	continent := &Continent{}
	country := &Country{}
	country.SetContinent(continent)
	continent.SetID(12)

	v, err := GetField(country, "ContinentId")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	v, err = GetField(country, "CallingCodeId")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, SetField(country, "ContinentId", int64(4)))
	assert.Nil(t, country.Continent)
	assert.Equal(t, 4, country.ContinentKey())
}

func TestTimeZoneFormatting(t *testing.T) {
	tz := &TimeZone{ID: 50001, TimeZoneAcronym: "EST", TimeZoneName: "Eastern Standard Time", UTCOffset: -5}
	assert.Equal(t, `"50001","EST","Eastern Standard Time","-05.00","False"`, tz.ToCSVString())

	tz.UTCOffset = 5.5
	tz.DST = true
	assert.Equal(t, "TimeZoneAcronym: EST; TimeZoneName: Eastern Standard Time; UTCOffset: 05.50; DST: True; ", tz.String())

	view := &CountryTimeZoneInfo{TimeZoneAcronym: "IST", TimeZoneName: "India", UTCOffset: 5.5, DST: true, CountryISO2: "IN", CountryName: "India"}
	assert.Equal(t, `"IST","India","05.50","TRUE","IN","India"`, view.ToCSVString())
}

func TestViewsPrintNullForMissingNumbers(t *testing.T) {
	info := &CountryInfo{ID: 30001, ISO2: "AQ", Name: "Antarctica", ContinentName: "Antarctica"}
	assert.Equal(t, `"30001","AQ","","","Antarctica","","","","Antarctica","NULL"`, info.ToCSVString())

	cc := &CountryCurrencyInfo{CountryID: 30001, CountryName: "Antarctica"}
	assert.Contains(t, cc.ToCSVString(), `"Antarctica","NULL","",""`)
	assert.Contains(t, cc.String(), "CurrencyId: NULL; ")
}

func TestMappingsAreConsistent(t *testing.T) {
	seen := map[EntityType]bool{}
	for _, m := range append(Mappings(), ViewMappings()...) {
		require.False(t, seen[m.Type], "duplicate mapping %s", m.Type)
		seen[m.Type] = true
		require.NotNil(t, m.New)
		e := m.New()
		assert.Same(t, m, e.Mapping())
		assert.NotEmpty(t, m.KeyNames(), m.Type)
		for _, f := range m.ScalarFields() {
			require.NotNil(t, f.Get, "%s.%s", m.Type, f.Name)
			require.NotNil(t, f.Set, "%s.%s", m.Type, f.Name)
		}
		_, isState := e.(ObjectWithState)
		assert.Equal(t, !m.ReadOnly, isState, m.Type)
	}
	assert.Len(t, seen, 8)
}

func TestWriteRankPutsPrincipalsFirst(t *testing.T) {
	country, ok := MappingFor(EntityCountry)
	require.True(t, ok)
	for _, ref := range country.References {
		target, ok := MappingFor(ref.Target)
		require.True(t, ok)
		assert.Less(t, target.Rank, country.Rank)
	}
}

func TestColumnName(t *testing.T) {
	name, err := (*Country)(nil).Mapping().ColumnName("ISO2")
	require.NoError(t, err)
	assert.Equal(t, "Country.ISO2", name)

	_, err = (*Country)(nil).Mapping().ColumnName("Continent")
	assert.Error(t, err)
}

func TestLinksRoundTripMembers(t *testing.T) {
	country := &Country{}
	link := country.Mapping().Links[0]
	link.SetMembers(country, []Entity{&Currency{ID: 40001}, &TimeZone{ID: 1}})
	require.Len(t, country.Currencies, 1)
	assert.Equal(t, 40001, country.Currencies[0].ID)
	assert.Len(t, link.Members(country), 1)
}
