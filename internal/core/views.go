package core

import (
	"context"

	"countries/pkg/domain"
)

// CountryInfos reads the CountryInfo view ordered by country name.
func (m *Manager) CountryInfos(ctx context.Context) ([]*domain.CountryInfo, error) {
	return Query[*domain.CountryInfo](ctx, m, `ORDER BY "Name"`)
}

// CountryCurrencyInfos reads the CountryCurrencyInfo view.
func (m *Manager) CountryCurrencyInfos(ctx context.Context) ([]*domain.CountryCurrencyInfo, error) {
	return Query[*domain.CountryCurrencyInfo](ctx, m, `ORDER BY "CountryName", "CurrencyCode"`)
}

// CountryTimeZoneInfos reads the CountryTimeZoneInfo view.
func (m *Manager) CountryTimeZoneInfos(ctx context.Context) ([]*domain.CountryTimeZoneInfo, error) {
	return Query[*domain.CountryTimeZoneInfo](ctx, m, `ORDER BY "CountryName", "TimeZoneAcronym"`)
}

// View reads any mapped table or view by type name without tracking, for
// reporting.
func (m *Manager) View(ctx context.Context, t domain.EntityType) ([]domain.Entity, *domain.Mapping, error) {
	mapping, ok := domain.MappingFor(t)
	if !ok {
		return nil, nil, ErrUnsupportedEntityKind
	}
	rows, err := m.store.Select(ctx, m.executor(), mapping, "")
	if err != nil {
		return nil, nil, m.classify("query "+mapping.Table, err, 1)
	}
	return rows, mapping, nil
}
