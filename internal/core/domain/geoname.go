package domain

import (
	"fmt"
	"strings"
)

// Geoname is a geographic point returned by the geoname lookup service.
type Geoname struct {
	ID              int64   `json:"geoname_id"`
	Name            string  `json:"name"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	CountryCode     string  `json:"country_code"`
	Population      int64   `json:"population"`
	FeatureCode     string  `json:"feature_code,omitempty"`
	Admin1Code      string  `json:"admin1_code,omitempty"`
	Admin2Code      string  `json:"admin2_code,omitempty"`
	PostalCodeRegex string  `json:"postal_code_regex,omitempty"`
	CountryName     string  `json:"country_name,omitempty"`
	Admin1Name      string  `json:"admin1_name,omitempty"`
}

type Country struct {
	GeonameID  int64  `json:"geoname_id"`
	ISOAlpha2  string `json:"iso_alpha2"`
	Name       string `json:"country_name"`
	Continent  string `json:"continent"`
	Capital    string `json:"capital"`
	Population int64  `json:"population"`
	Languages  string `json:"languages"`
}

// CampaignScope is the geographic granularity a campaign targets.
type CampaignScope string

const (
	ScopeWorld   CampaignScope = "world"
	ScopeCountry CampaignScope = "country"
	ScopeAdmin1  CampaignScope = "admin1"
	ScopeAdmin2  CampaignScope = "admin2"
	ScopeCity    CampaignScope = "city"
)

func ParseCampaignScope(s string) (CampaignScope, error) {
	switch scope := CampaignScope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeWorld, ScopeCountry, ScopeAdmin1, ScopeAdmin2, ScopeCity:
		return scope, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrValidation, s)
	}
}

// GeonameSelectionParams describes where a campaign searches.
type GeonameSelectionParams struct {
	Scope            CampaignScope `json:"scope"`
	CountryCode      string        `json:"country_code,omitempty"`
	ScopeGeonameID   *int64        `json:"scope_geoname_id,omitempty"`
	ScopeGeonameName string        `json:"scope_geoname_name,omitempty"`
	MinPopulation    *int64        `json:"min_population,omitempty"`
	ISOLanguage      string        `json:"iso_language,omitempty"`
}

// NewGeonameSelectionParams normalises and validates the selection.
func NewGeonameSelectionParams(p GeonameSelectionParams) (GeonameSelectionParams, error) {
	p.CountryCode = strings.ToUpper(strings.TrimSpace(p.CountryCode))
	p.ScopeGeonameName = strings.TrimSpace(p.ScopeGeonameName)
	p.ISOLanguage = strings.TrimSpace(p.ISOLanguage)
	if err := p.Validate(); err != nil {
		return GeonameSelectionParams{}, err
	}
	return p, nil
}

func (p GeonameSelectionParams) Validate() error {
	switch p.Scope {
	case ScopeWorld:
	case ScopeCountry:
		if len(p.CountryCode) != 2 {
			return fmt.Errorf("%w: country scope requires a 2-letter country code", ErrValidation)
		}
	case ScopeAdmin1, ScopeAdmin2, ScopeCity:
		if p.ScopeGeonameID == nil || *p.ScopeGeonameID <= 0 {
			return fmt.Errorf("%w: %s scope requires a scope geoname id", ErrValidation, p.Scope)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, p.Scope)
	}
	if p.CountryCode != "" && len(p.CountryCode) != 2 {
		return fmt.Errorf("%w: country code must be a 2-letter ISO code", ErrValidation)
	}
	if p.MinPopulation != nil && *p.MinPopulation < 0 {
		return fmt.Errorf("%w: min population must be >= 0", ErrValidation)
	}
	return nil
}

// DisplayName is the human label used in generated campaign titles.
func (p GeonameSelectionParams) DisplayName() string {
	switch {
	case p.ScopeGeonameName != "":
		return p.ScopeGeonameName
	case p.CountryCode != "":
		return p.CountryCode
	default:
		return string(p.Scope)
	}
}
