package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

// GeonameSelectionService turns a campaign scope into the list of cities
// to search.
type GeonameSelectionService struct {
	logger *slog.Logger
	query  ports.GeonameQuery
}

func NewGeonameSelectionService(logger *slog.Logger, query ports.GeonameQuery) *GeonameSelectionService {
	return &GeonameSelectionService{logger: logger, query: query}
}

// Select returns the cities inside the scope boundary. A world scope with
// no population or language filter selects nothing.
func (s *GeonameSelectionService) Select(ctx context.Context, params domain.GeonameSelectionParams) ([]domain.Geoname, error) {
	if params.Scope == domain.ScopeCity {
		if params.ScopeGeonameID == nil {
			return nil, nil
		}
		geonames, err := s.query.FindByGeonameID(ctx, *params.ScopeGeonameID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up geoname %d: %w", *params.ScopeGeonameID, err)
		}
		return geonames, nil
	}

	filter, ok := SelectionFilter(params)
	if !ok {
		s.logger.Warn("geoname selection has no filter", "scope", params.Scope)
		return nil, nil
	}

	geonames, err := s.query.FindCityGeonames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query cities for %s scope: %w", params.Scope, err)
	}
	s.logger.Info("geonames selected", "scope", params.Scope, "count", len(geonames))
	return geonames, nil
}

// SelectionFilter maps non-city scopes to a city query filter. ok is false
// when the filter would be empty.
func SelectionFilter(params domain.GeonameSelectionParams) (ports.GeonameFilter, bool) {
	var f ports.GeonameFilter
	empty := true

	switch params.Scope {
	case domain.ScopeCountry:
		if params.CountryCode != "" {
			f.CountryCode = params.CountryCode
			empty = false
		}
	case domain.ScopeAdmin1:
		if params.ScopeGeonameID != nil {
			f.Admin1GeonameID = params.ScopeGeonameID
			empty = false
		}
	case domain.ScopeAdmin2:
		if params.ScopeGeonameID != nil {
			f.Admin2GeonameID = params.ScopeGeonameID
			empty = false
		}
	}

	if params.MinPopulation != nil {
		f.MinPopulation = params.MinPopulation
		empty = false
	}
	if params.ISOLanguage != "" {
		f.ISOLanguage = params.ISOLanguage
		empty = false
	}
	return f, !empty
}
