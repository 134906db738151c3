package domain

// Read-only reporting view identifiers.
const (
	ViewCountryInfo         EntityType = "CountryInfo"
	ViewCountryCurrencyInfo EntityType = "CountryCurrencyInfo"
	ViewCountryTimeZoneInfo EntityType = "CountryTimeZoneInfo"
)

// CSV headers for the reporting views.
const (
	CountryInfoCSVHeader         = "Id,ISO2,ISO3,ISONumeric,Name,ISOName,OfficialName,Capital,ContinentName,CallingCodeNumber"
	CountryCurrencyInfoCSVHeader = "CountryId,CountryISO2,CountryISO3,CountryISONumeric,CountryName,CurrencyId,CurrencyName,CurrencyCode"
	CountryTimeZoneInfoCSVHeader = "TimeZoneAcronym,TimeZoneName,UTCOffset,DST,CountryISO2,CountryName"
)

// CountryInfo flattens a country with its continent and calling code.
type CountryInfo struct {
	ID                int
	ISO2              string
	ISO3              string
	ISONumeric        string
	Name              string
	ISOName           string
	OfficialName      string
	Capital           string
	ContinentName     string
	CallingCodeNumber *int
}

func (*CountryInfo) Mapping() *Mapping { return &countryInfoMapping }

func (v *CountryInfo) ToCSVString() string {
	return csvLine(itoa(v.ID), v.ISO2, v.ISO3, v.ISONumeric, v.Name, v.ISOName, v.OfficialName, v.Capital,
		v.ContinentName, nullableItoa(v.CallingCodeNumber))
}

func (v *CountryInfo) String() string {
	return describe("Id", itoa(v.ID), "ISO2", v.ISO2, "ISO3", v.ISO3, "ISONumeric", v.ISONumeric,
		"Name", v.Name, "OfficialName", v.OfficialName, "Capital", v.Capital,
		"ContinentName", v.ContinentName, "CallingCodeNumber", nullableItoa(v.CallingCodeNumber))
}

var countryInfoMapping = Mapping{
	Type:      ViewCountryInfo,
	Table:     "CountryInfo",
	ReadOnly:  true,
	CSVHeader: CountryInfoCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*CountryInfo).ID }),
		stringField("ISO2", func(e Entity) *string { return &e.(*CountryInfo).ISO2 }),
		stringField("ISO3", func(e Entity) *string { return &e.(*CountryInfo).ISO3 }),
		stringField("ISONumeric", func(e Entity) *string { return &e.(*CountryInfo).ISONumeric }),
		stringField("Name", func(e Entity) *string { return &e.(*CountryInfo).Name }),
		stringField("ISOName", func(e Entity) *string { return &e.(*CountryInfo).ISOName }),
		stringField("OfficialName", func(e Entity) *string { return &e.(*CountryInfo).OfficialName }),
		stringField("Capital", func(e Entity) *string { return &e.(*CountryInfo).Capital }),
		stringField("ContinentName", func(e Entity) *string { return &e.(*CountryInfo).ContinentName }),
		nullableIntField("CallingCodeNumber", func(e Entity) **int { return &e.(*CountryInfo).CallingCodeNumber }),
	},
	New: func() Entity { return &CountryInfo{} },
}

// CountryCurrencyInfo pairs a country with one of its currencies. Countries
// without a currency appear once with a nil CurrencyID.
type CountryCurrencyInfo struct {
	CountryID         int
	CountryISO2       string
	CountryISO3       string
	CountryISONumeric string
	CountryName       string
	CurrencyID        *int
	CurrencyName      string
	CurrencyCode      string
}

func (*CountryCurrencyInfo) Mapping() *Mapping { return &countryCurrencyInfoMapping }

func (v *CountryCurrencyInfo) ToCSVString() string {
	return csvLine(itoa(v.CountryID), v.CountryISO2, v.CountryISO3, v.CountryISONumeric, v.CountryName,
		nullableItoa(v.CurrencyID), v.CurrencyName, v.CurrencyCode)
}

func (v *CountryCurrencyInfo) String() string {
	return describe("CountryId", itoa(v.CountryID), "CountryISO2", v.CountryISO2, "CountryISO3", v.CountryISO3,
		"CountryISONumeric", v.CountryISONumeric, "CountryName", v.CountryName,
		"CurrencyId", nullableItoa(v.CurrencyID), "CurrencyName", v.CurrencyName, "CurrencyCode", v.CurrencyCode)
}

var countryCurrencyInfoMapping = Mapping{
	Type:      ViewCountryCurrencyInfo,
	Table:     "CountryCurrencyInfo",
	ReadOnly:  true,
	CSVHeader: CountryCurrencyInfoCSVHeader,
	Fields: []Field{
		withKey(intField("CountryId", func(e Entity) *int { return &e.(*CountryCurrencyInfo).CountryID })),
		stringField("CountryISO2", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CountryISO2 }),
		stringField("CountryISO3", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CountryISO3 }),
		stringField("CountryISONumeric", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CountryISONumeric }),
		stringField("CountryName", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CountryName }),
		nullableIntField("CurrencyId", func(e Entity) **int { return &e.(*CountryCurrencyInfo).CurrencyID }),
		stringField("CurrencyName", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CurrencyName }),
		stringField("CurrencyCode", func(e Entity) *string { return &e.(*CountryCurrencyInfo).CurrencyCode }),
	},
	New: func() Entity { return &CountryCurrencyInfo{} },
}

// CountryTimeZoneInfo pairs a time zone with a country observing it.
type CountryTimeZoneInfo struct {
	TimeZoneAcronym string
	TimeZoneName    string
	UTCOffset       float64
	DST             bool
	CountryISO2     string
	CountryName     string
}

func (*CountryTimeZoneInfo) Mapping() *Mapping { return &countryTimeZoneInfoMapping }

func (v *CountryTimeZoneInfo) ToCSVString() string {
	return csvLine(v.TimeZoneAcronym, v.TimeZoneName, FormatOffset(v.UTCOffset), upperBool(v.DST),
		v.CountryISO2, v.CountryName)
}

func (v *CountryTimeZoneInfo) String() string {
	return describe("TimeZoneAcronym", v.TimeZoneAcronym, "TimeZoneName", v.TimeZoneName,
		"UTCOffset", FormatOffset(v.UTCOffset), "DST", upperBool(v.DST),
		"CountryISO2", v.CountryISO2, "CountryName", v.CountryName)
}

var countryTimeZoneInfoMapping = Mapping{
	Type:      ViewCountryTimeZoneInfo,
	Table:     "CountryTimeZoneInfo",
	ReadOnly:  true,
	CSVHeader: CountryTimeZoneInfoCSVHeader,
	Fields: []Field{
		withKey(stringField("TimeZoneAcronym", func(e Entity) *string { return &e.(*CountryTimeZoneInfo).TimeZoneAcronym })),
		stringField("TimeZoneName", func(e Entity) *string { return &e.(*CountryTimeZoneInfo).TimeZoneName }),
		floatField("UTCOffset", func(e Entity) *float64 { return &e.(*CountryTimeZoneInfo).UTCOffset }),
		boolField("DST", func(e Entity) *bool { return &e.(*CountryTimeZoneInfo).DST }),
		withKey(stringField("CountryISO2", func(e Entity) *string { return &e.(*CountryTimeZoneInfo).CountryISO2 })),
		stringField("CountryName", func(e Entity) *string { return &e.(*CountryTimeZoneInfo).CountryName }),
	},
	New: func() Entity { return &CountryTimeZoneInfo{} },
}

// ViewMappings returns the capability tables of the reporting views.
func ViewMappings() []*Mapping {
	return []*Mapping{&countryInfoMapping, &countryCurrencyInfoMapping, &countryTimeZoneInfoMapping}
}

func withKey(f Field) Field {
	f.Key = true
	return f
}
