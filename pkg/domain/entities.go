// Package domain defines the countries reference-data entities, their field
// capability tables, lifecycle bookkeeping and validation rules.
package domain

// Supported entity type identifiers. Each matches the table name.
const (
	EntityContinent   EntityType = "Continent"
	EntityCallingCode EntityType = "CallingCode"
	EntityCountry     EntityType = "Country"
	EntityCurrency    EntityType = "Currency"
	EntityTimeZone    EntityType = "TimeZone"
)

// CSV headers for the entity tables.
const (
	ContinentCSVHeader   = "Id,Abbreviation,Name"
	CallingCodeCSVHeader = "Id,CallingCodeNumber"
	CountryCSVHeader     = "Id,ISO2,ISO3,ISONumeric,ISOName,Name,OfficialName,Capital,Continent,CallingCode"
	CurrencyCSVHeader    = "Id,Code,Name,DecimalDigits"
	TimeZoneCSVHeader    = "Id,TimeZoneAcronym,TimeZoneName,UTCOffset,DST"
)

// Continent groups countries. Assignment of transcontinental countries is
// arbitrary.
type Continent struct {
	StateInfo
	ID           int
	Abbreviation string
	Name         string
	Countries    []*Country
}

// Mapping implements Entity.
func (*Continent) Mapping() *Mapping { return &continentMapping }

// SetID assigns the primary key and the entity key together.
func (c *Continent) SetID(id int) {
	c.ID = id
	c.SetEntityKey(id)
}

var continentConstraints = []Constraint{
	{Property: "Abbreviation", Required: true, MinLength: 2, MaxLength: 2, Pattern: upperAlpha, PatternMessage: upperAlphaMessage},
	{Property: "Name", Required: true, MaxLength: 255},
}

// Validate implements Validator.
func (c *Continent) Validate() []ValidationFailure {
	return ValidateState(c, func() []ValidationFailure {
		return CheckConstraints(c, continentConstraints)
	})
}

func (c *Continent) ToCSVString() string {
	return csvLine(itoa(c.ID), c.Abbreviation, c.Name)
}

func (c *Continent) String() string {
	return describe("Name", c.Name, "Abbreviation", c.Abbreviation)
}

var continentMapping = Mapping{
	Type:         EntityContinent,
	Table:        "Continent",
	IdentitySeed: 1,
	Rank:         0,
	CSVHeader:    ContinentCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*Continent).ID }),
		stringField("Abbreviation", func(e Entity) *string { return &e.(*Continent).Abbreviation }),
		stringField("Name", func(e Entity) *string { return &e.(*Continent).Name }),
	},
	Children: func(e Entity) []Entity { return asEntities(e.(*Continent).Countries) },
	New:      func() Entity { return &Continent{} },
}

// CallingCode is an international dialing prefix.
type CallingCode struct {
	StateInfo
	ID                int
	CallingCodeNumber int
	Countries         []*Country
}

// Mapping implements Entity.
func (*CallingCode) Mapping() *Mapping { return &callingCodeMapping }

// SetID assigns the primary key and the entity key together.
func (c *CallingCode) SetID(id int) {
	c.ID = id
	c.SetEntityKey(id)
}

var callingCodeConstraints = []Constraint{
	{Property: "CallingCodeNumber", Min: 1, Max: 1000},
}

// Validate implements Validator.
func (c *CallingCode) Validate() []ValidationFailure {
	return ValidateState(c, func() []ValidationFailure {
		return CheckConstraints(c, callingCodeConstraints)
	})
}

func (c *CallingCode) ToCSVString() string {
	return csvLine(itoa(c.ID), itoa(c.CallingCodeNumber))
}

func (c *CallingCode) String() string {
	return describe("CallingCodeNumber", itoa(c.CallingCodeNumber))
}

var callingCodeMapping = Mapping{
	Type:         EntityCallingCode,
	Table:        "CallingCode",
	IdentitySeed: 20001,
	Rank:         0,
	CSVHeader:    CallingCodeCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*CallingCode).ID }),
		intField("CallingCodeNumber", func(e Entity) *int { return &e.(*CallingCode).CallingCodeNumber }),
	},
	Children: func(e Entity) []Entity { return asEntities(e.(*CallingCode).Countries) },
	New:      func() Entity { return &CallingCode{} },
}

// Country is an ISO 3166-1 country. ContinentID and CallingCodeID follow the
// navigations when those are set.
type Country struct {
	StateInfo
	ID            int
	ISO2          string
	ISO3          string
	ISONumeric    string
	ISOName       string
	Name          string
	OfficialName  string
	Capital       string
	ContinentID   int
	CallingCodeID *int
	RowVersion    int64

	Continent   *Continent
	CallingCode *CallingCode
	Currencies  []*Currency
	TimeZones   []*TimeZone
}

// Mapping implements Entity.
func (*Country) Mapping() *Mapping { return &countryMapping }

// SetID assigns the primary key and the entity key together.
func (c *Country) SetID(id int) {
	c.ID = id
	c.SetEntityKey(id)
}

// ContinentKey returns the continent foreign key, preferring the navigation.
func (c *Country) ContinentKey() int {
	if c.Continent != nil {
		return c.Continent.ID
	}
	return c.ContinentID
}

// CallingCodeKey returns the optional calling-code foreign key, preferring the
// navigation.
func (c *Country) CallingCodeKey() *int {
	if c.CallingCode != nil {
		id := c.CallingCode.ID
		return &id
	}
	return c.CallingCodeID
}

// SetContinent assigns the continent navigation and its foreign key.
func (c *Country) SetContinent(continent *Continent) {
	c.Continent = continent
	c.ContinentID = 0
	if continent != nil {
		c.ContinentID = continent.ID
	}
	c.MarkFieldModified("ContinentId")
}

// SetCallingCode assigns the calling-code navigation and its foreign key.
func (c *Country) SetCallingCode(code *CallingCode) {
	c.CallingCode = code
	c.CallingCodeID = nil
	if code != nil {
		id := code.ID
		c.CallingCodeID = &id
	}
	c.MarkFieldModified("CallingCodeId")
}

var countryConstraints = []Constraint{
	{Property: "ISO2", Required: true, MinLength: 2, MaxLength: 2, Pattern: upperAlpha, PatternMessage: upperAlphaMessage},
	{Property: "ISO3", Required: true, MinLength: 3, MaxLength: 3, Pattern: upperAlpha, PatternMessage: upperAlphaMessage},
	{Property: "ISOName", Required: true, MaxLength: 255},
	{Property: "ISONumeric", Required: true, MinLength: 3, MaxLength: 3, Pattern: upperNumeric, PatternMessage: upperNumericMessage},
	{Property: "Name", Required: true, MaxLength: 255},
	{Property: "OfficialName", Required: true, MaxLength: 255},
}

// Capital may be empty.
var capitalConstraint = Constraint{Property: "Capital", MaxLength: 255}

// Validate implements Validator.
func (c *Country) Validate() []ValidationFailure {
	return ValidateState(c, func() []ValidationFailure {
		out := CheckConstraints(c, []Constraint{capitalConstraint})
		if c.Continent == nil && c.ContinentID < continentMapping.IdentitySeed {
			out = append(out, ValidationFailure{EntityCountry, "Continent", "Continent is required."})
		}
		return append(out, CheckConstraints(c, countryConstraints)...)
	})
}

func (c *Country) ToCSVString() string {
	continent := nullText
	if c.Continent != nil {
		continent = c.Continent.Name
	}
	return csvLine(itoa(c.ID), c.ISO2, c.ISO3, c.ISONumeric, c.ISOName, c.Name, c.OfficialName, c.Capital,
		continent, c.callingCodeNumber())
}

func (c *Country) String() string {
	continent := nullText
	if c.Continent != nil {
		continent = c.Continent.Name
	}
	return describe("Name", c.Name, "Capital", c.Capital, "ISO2", c.ISO2, "ISO3", c.ISO3,
		"ISONumeric", c.ISONumeric, "ISOName", c.ISOName, "OfficialName", c.OfficialName,
		"CallingCodeNumber", c.callingCodeNumber(), "Continent", continent)
}

func (c *Country) callingCodeNumber() string {
	if c.CallingCode == nil {
		return nullText
	}
	return itoa(c.CallingCode.CallingCodeNumber)
}

var countryMapping = Mapping{
	Type:         EntityCountry,
	Table:        "Country",
	IdentitySeed: 30001,
	Rank:         1,
	CSVHeader:    CountryCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*Country).ID }),
		stringField("ISO2", func(e Entity) *string { return &e.(*Country).ISO2 }),
		stringField("ISO3", func(e Entity) *string { return &e.(*Country).ISO3 }),
		stringField("ISONumeric", func(e Entity) *string { return &e.(*Country).ISONumeric }),
		stringField("ISOName", func(e Entity) *string { return &e.(*Country).ISOName }),
		stringField("Name", func(e Entity) *string { return &e.(*Country).Name }),
		stringField("OfficialName", func(e Entity) *string { return &e.(*Country).OfficialName }),
		stringField("Capital", func(e Entity) *string { return &e.(*Country).Capital }),
		{
			Name:   "ContinentId",
			Column: "ContinentId",
			Get:    func(e Entity) any { return e.(*Country).ContinentKey() },
			Set: func(e Entity, v any) error {
				id, err := AsInt(v)
				if err != nil {
					return err
				}
				c := e.(*Country)
				c.ContinentID = id
				if c.Continent != nil && c.Continent.ID != id {
					c.Continent = nil
				}
				return nil
			},
		},
		{
			Name:     "CallingCodeId",
			Column:   "CallingCodeId",
			Nullable: true,
			Get:      func(e Entity) any { return nullableIntValue(e.(*Country).CallingCodeKey()) },
			Set: func(e Entity, v any) error {
				id, err := AsNullableInt(v)
				if err != nil {
					return err
				}
				c := e.(*Country)
				c.CallingCodeID = id
				if c.CallingCode != nil && (id == nil || c.CallingCode.ID != *id) {
					c.CallingCode = nil
				}
				return nil
			},
		},
		rowVersionField(func(e Entity) *int64 { return &e.(*Country).RowVersion }),
	},
	References: []Reference{
		{
			Name:       "Continent",
			ForeignKey: "ContinentId",
			Target:     EntityContinent,
			Required:   true,
			Cascade:    true,
			Get: func(e Entity) Entity {
				if c := e.(*Country).Continent; c != nil {
					return c
				}
				return nil
			},
			Set: func(e, target Entity) {
				c := e.(*Country)
				c.Continent, _ = target.(*Continent)
				if c.Continent != nil {
					c.ContinentID = c.Continent.ID
				}
			},
		},
		{
			Name:       "CallingCode",
			ForeignKey: "CallingCodeId",
			Target:     EntityCallingCode,
			Cascade:    true,
			Get: func(e Entity) Entity {
				if c := e.(*Country).CallingCode; c != nil {
					return c
				}
				return nil
			},
			Set: func(e, target Entity) {
				c := e.(*Country)
				c.CallingCode, _ = target.(*CallingCode)
				if c.CallingCode != nil {
					id := c.CallingCode.ID
					c.CallingCodeID = &id
				}
			},
		},
	},
	Links: []Link{
		{
			Name:      "Currencies",
			JoinTable: "CountryCurrency",
			LeftKey:   "CountryId",
			RightKey:  "CurrencyId",
			Target:    EntityCurrency,
			Members:   func(e Entity) []Entity { return asEntities(e.(*Country).Currencies) },
			SetMembers: func(e Entity, members []Entity) {
				e.(*Country).Currencies = fromEntities[*Currency](members)
			},
		},
		{
			Name:      "TimeZones",
			JoinTable: "CountryTimeZone",
			LeftKey:   "CountryId",
			RightKey:  "TimeZoneId",
			Target:    EntityTimeZone,
			Members:   func(e Entity) []Entity { return asEntities(e.(*Country).TimeZones) },
			SetMembers: func(e Entity, members []Entity) {
				e.(*Country).TimeZones = fromEntities[*TimeZone](members)
			},
		},
	},
	Children: func(e Entity) []Entity {
		c := e.(*Country)
		return append(asEntities(c.Currencies), asEntities(c.TimeZones)...)
	},
	New: func() Entity { return &Country{} },
}

// Currency is an ISO 4217 currency.
type Currency struct {
	StateInfo
	ID            int
	Code          string
	Name          string
	DecimalDigits int
	RowVersion    int64
	Countries     []*Country
}

// Mapping implements Entity.
func (*Currency) Mapping() *Mapping { return &currencyMapping }

// SetID assigns the primary key and the entity key together.
func (c *Currency) SetID(id int) {
	c.ID = id
	c.SetEntityKey(id)
}

var currencyConstraints = []Constraint{
	{Property: "Code", Required: true, MinLength: 3, MaxLength: 3, Pattern: upperAlpha, PatternMessage: upperAlphaMessage},
	{Property: "DecimalDigits", Min: 0, Max: 3},
	{Property: "Name", Required: true, MaxLength: 50},
}

// Validate implements Validator.
func (c *Currency) Validate() []ValidationFailure {
	return ValidateState(c, func() []ValidationFailure {
		return CheckConstraints(c, currencyConstraints)
	})
}

func (c *Currency) ToCSVString() string {
	return csvLine(itoa(c.ID), c.Code, c.Name, itoa(c.DecimalDigits))
}

func (c *Currency) String() string {
	return describe("Code", c.Code, "Name", c.Name, "DecimalDigits", itoa(c.DecimalDigits))
}

var currencyMapping = Mapping{
	Type:         EntityCurrency,
	Table:        "Currency",
	IdentitySeed: 40001,
	Rank:         0,
	CSVHeader:    CurrencyCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*Currency).ID }),
		stringField("Code", func(e Entity) *string { return &e.(*Currency).Code }),
		stringField("Name", func(e Entity) *string { return &e.(*Currency).Name }),
		intField("DecimalDigits", func(e Entity) *int { return &e.(*Currency).DecimalDigits }),
		rowVersionField(func(e Entity) *int64 { return &e.(*Currency).RowVersion }),
	},
	Children: func(e Entity) []Entity { return asEntities(e.(*Currency).Countries) },
	New:      func() Entity { return &Currency{} },
}

// TimeZone is a named UTC offset.
type TimeZone struct {
	StateInfo
	ID              int
	TimeZoneAcronym string
	TimeZoneName    string
	UTCOffset       float64
	DST             bool
	RowVersion      int64
	Countries       []*Country
}

// Mapping implements Entity.
func (*TimeZone) Mapping() *Mapping { return &timeZoneMapping }

// SetID assigns the primary key and the entity key together.
func (t *TimeZone) SetID(id int) {
	t.ID = id
	t.SetEntityKey(id)
}

var timeZoneConstraints = []Constraint{
	{Property: "TimeZoneAcronym", Required: true, MaxLength: 10, Pattern: upperAlpha, PatternMessage: upperAlphaMessage},
	{Property: "TimeZoneName", Required: true, MaxLength: 255},
	{Property: "UTCOffset", Min: -14, Max: 14},
}

// Validate implements Validator.
func (t *TimeZone) Validate() []ValidationFailure {
	return ValidateState(t, func() []ValidationFailure {
		return CheckConstraints(t, timeZoneConstraints)
	})
}

func (t *TimeZone) ToCSVString() string {
	return csvLine(itoa(t.ID), t.TimeZoneAcronym, t.TimeZoneName, FormatOffset(t.UTCOffset), titleBool(t.DST))
}

func (t *TimeZone) String() string {
	return describe("TimeZoneAcronym", t.TimeZoneAcronym, "TimeZoneName", t.TimeZoneName,
		"UTCOffset", FormatOffset(t.UTCOffset), "DST", titleBool(t.DST))
}

var timeZoneMapping = Mapping{
	Type:         EntityTimeZone,
	Table:        "TimeZone",
	IdentitySeed: 50001,
	Rank:         0,
	CSVHeader:    TimeZoneCSVHeader,
	Fields: []Field{
		keyField(func(e Entity) *int { return &e.(*TimeZone).ID }),
		stringField("TimeZoneAcronym", func(e Entity) *string { return &e.(*TimeZone).TimeZoneAcronym }),
		stringField("TimeZoneName", func(e Entity) *string { return &e.(*TimeZone).TimeZoneName }),
		floatField("UTCOffset", func(e Entity) *float64 { return &e.(*TimeZone).UTCOffset }),
		boolField("DST", func(e Entity) *bool { return &e.(*TimeZone).DST }),
		rowVersionField(func(e Entity) *int64 { return &e.(*TimeZone).RowVersion }),
	},
	Children: func(e Entity) []Entity { return asEntities(e.(*TimeZone).Countries) },
	New:      func() Entity { return &TimeZone{} },
}

// Mappings returns the capability tables of every writable entity type in
// write rank order.
func Mappings() []*Mapping {
	return []*Mapping{&continentMapping, &callingCodeMapping, &currencyMapping, &timeZoneMapping, &countryMapping}
}

// MappingFor looks up a writable or read-only type by name.
func MappingFor(t EntityType) (*Mapping, bool) {
	for _, m := range append(Mappings(), ViewMappings()...) {
		if m.Type == t {
			return m, true
		}
	}
	return nil, false
}

func keyField(ptr func(Entity) *int) Field {
	f := intField("Id", ptr)
	f.Key = true
	f.Generated = true
	set := f.Set
	f.Set = func(e Entity, v any) error {
		if err := set(e, v); err != nil {
			return err
		}
		if s, ok := e.(ObjectWithState); ok {
			s.SetEntityKey(*ptr(e))
		}
		return nil
	}
	return f
}

func stringField(name string, ptr func(Entity) *string) Field {
	return Field{
		Name:   name,
		Column: name,
		Get:    func(e Entity) any { return *ptr(e) },
		Set: func(e Entity, v any) error {
			s, err := AsString(v)
			if err != nil {
				return err
			}
			*ptr(e) = s
			return nil
		},
	}
}

func intField(name string, ptr func(Entity) *int) Field {
	return Field{
		Name:   name,
		Column: name,
		Get:    func(e Entity) any { return *ptr(e) },
		Set: func(e Entity, v any) error {
			n, err := AsInt(v)
			if err != nil {
				return err
			}
			*ptr(e) = n
			return nil
		},
	}
}

func nullableIntField(name string, ptr func(Entity) **int) Field {
	return Field{
		Name:     name,
		Column:   name,
		Nullable: true,
		Get:      func(e Entity) any { return nullableIntValue(*ptr(e)) },
		Set: func(e Entity, v any) error {
			n, err := AsNullableInt(v)
			if err != nil {
				return err
			}
			*ptr(e) = n
			return nil
		},
	}
}

func floatField(name string, ptr func(Entity) *float64) Field {
	return Field{
		Name:   name,
		Column: name,
		Get:    func(e Entity) any { return *ptr(e) },
		Set: func(e Entity, v any) error {
			f, err := AsFloat64(v)
			if err != nil {
				return err
			}
			*ptr(e) = f
			return nil
		},
	}
}

func boolField(name string, ptr func(Entity) *bool) Field {
	return Field{
		Name:   name,
		Column: name,
		Get:    func(e Entity) any { return *ptr(e) },
		Set: func(e Entity, v any) error {
			b, err := AsBool(v)
			if err != nil {
				return err
			}
			*ptr(e) = b
			return nil
		},
	}
}

func rowVersionField(ptr func(Entity) *int64) Field {
	return Field{
		Name:             "RowVersion",
		Column:           "RowVersion",
		Generated:        true,
		ConcurrencyToken: true,
		Get:              func(e Entity) any { return *ptr(e) },
		Set: func(e Entity, v any) error {
			n, err := AsInt64(v)
			if err != nil {
				return err
			}
			*ptr(e) = n
			return nil
		},
	}
}

func asEntities[T Entity](items []T) []Entity {
	out := make([]Entity, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}

func fromEntities[T Entity](items []Entity) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if t, ok := item.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
