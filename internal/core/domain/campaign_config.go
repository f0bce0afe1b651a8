package domain

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EnrichmentType names a post-processing pool applied to extracted places.
type EnrichmentType string

const (
	EnrichmentWebsite EnrichmentType = "website"
	EnrichmentGBP     EnrichmentType = "gbp"
	EnrichmentSocial  EnrichmentType = "social"
)

type EnrichmentPoolConfig struct {
	Type    EnrichmentType `json:"enrichment_type" validate:"oneof=website gbp social"`
	Workers int            `json:"workers" validate:"gte=0"`
	Enabled bool           `json:"enabled"`
}

// CampaignConfig is immutable once built through NewCampaignConfig.
type CampaignConfig struct {
	SearchSeeds     []string               `json:"search_seeds" validate:"required,min=1,dive,required"`
	Selection       GeonameSelectionParams `json:"geoname_selection_params" validate:"-"`
	Locale          string                 `json:"locale" validate:"required"`
	MaxResults      int                    `json:"max_results" validate:"gte=0"`
	MinRating       float64                `json:"min_rating" validate:"gte=0,lte=5"`
	MinNumReviews   int                    `json:"min_num_reviews" validate:"gte=0"`
	MaxReviews      int                    `json:"max_reviews" validate:"gte=0"`
	MaxBots         int                    `json:"max_bots" validate:"gt=0"`
	EnrichmentPools []EnrichmentPoolConfig `json:"enrichment_pools" validate:"dive"`
	MaxAttempts     int                    `json:"max_attempts" validate:"gt=0"`
}

const (
	DefaultLocale      = "en-US"
	DefaultMaxResults  = 50
	DefaultMaxBots     = 10
	DefaultMaxAttempts = 10
)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateEnrichmentPool, EnrichmentPoolConfig{})
	v.RegisterStructValidation(validateCampaignConfig, CampaignConfig{})
	return v
}

func validateEnrichmentPool(sl validator.StructLevel) {
	pool := sl.Current().Interface().(EnrichmentPoolConfig)
	if pool.Enabled && pool.Workers == 0 {
		sl.ReportError(pool.Workers, "workers", "Workers", "enabled_pool_workers", string(pool.Type))
	}
}

func validateCampaignConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(CampaignConfig)
	seen := make(map[EnrichmentType]bool, len(cfg.EnrichmentPools))
	for _, pool := range cfg.EnrichmentPools {
		if !pool.Enabled {
			continue
		}
		if seen[pool.Type] {
			sl.ReportError(cfg.EnrichmentPools, "enrichment_pools", "EnrichmentPools", "unique_enabled_type", string(pool.Type))
			return
		}
		seen[pool.Type] = true
	}
}

// DefaultCampaignConfig returns a config with the stock limits for the given seeds and selection.
func DefaultCampaignConfig(seeds []string, selection GeonameSelectionParams) CampaignConfig {
	return CampaignConfig{
		SearchSeeds: seeds,
		Selection:   selection,
		Locale:      DefaultLocale,
		MaxResults:  DefaultMaxResults,
		MaxBots:     DefaultMaxBots,
		EnrichmentPools: []EnrichmentPoolConfig{
			{Type: EnrichmentWebsite, Workers: 10, Enabled: true},
		},
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NewCampaignConfig cleans the seeds and validates the whole config.
// Invalid configs are rejected here so they never reach storage.
func NewCampaignConfig(cfg CampaignConfig) (CampaignConfig, error) {
	seeds := make([]string, 0, len(cfg.SearchSeeds))
	for _, s := range cfg.SearchSeeds {
		if s = strings.TrimSpace(s); s != "" {
			seeds = append(seeds, s)
		}
	}
	cfg.SearchSeeds = seeds
	cfg.Locale = strings.TrimSpace(cfg.Locale)
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	cfg.EnrichmentPools = append([]EnrichmentPoolConfig(nil), cfg.EnrichmentPools...)

	if err := configValidator.Struct(cfg); err != nil {
		return CampaignConfig{}, fmt.Errorf("%w: campaign config: %v", ErrValidation, err)
	}
	sel, err := NewGeonameSelectionParams(cfg.Selection)
	if err != nil {
		return CampaignConfig{}, err
	}
	cfg.Selection = sel
	return cfg, nil
}

// EnrichmentPool returns the enabled pool of the given type, if any.
func (c CampaignConfig) EnrichmentPool(t EnrichmentType) (EnrichmentPoolConfig, bool) {
	for _, pool := range c.EnrichmentPools {
		if pool.Type == t && pool.Enabled {
			return pool, true
		}
	}
	return EnrichmentPoolConfig{}, false
}

func (c CampaignConfig) EnabledEnrichmentPools() []EnrichmentPoolConfig {
	var out []EnrichmentPoolConfig
	for _, pool := range c.EnrichmentPools {
		if pool.Enabled {
			out = append(out, pool)
		}
	}
	return out
}

// EnrichmentFlags records which enrichments a place has been through.
type EnrichmentFlags struct {
	Website bool `json:"website"`
	GBP     bool `json:"gbp"`
	Social  bool `json:"social"`
}

func (f EnrichmentFlags) Has(t EnrichmentType) bool {
	switch t {
	case EnrichmentWebsite:
		return f.Website
	case EnrichmentGBP:
		return f.GBP
	case EnrichmentSocial:
		return f.Social
	}
	return false
}

func (f EnrichmentFlags) Set(t EnrichmentType) EnrichmentFlags {
	switch t {
	case EnrichmentWebsite:
		f.Website = true
	case EnrichmentGBP:
		f.GBP = true
	case EnrichmentSocial:
		f.Social = true
	}
	return f
}

func (f EnrichmentFlags) IsComplete() bool { return f.Website && f.GBP && f.Social }
func (f EnrichmentFlags) IsNone() bool     { return !f.Website && !f.GBP && !f.Social }

func (f EnrichmentFlags) String() string {
	if f.IsNone() {
		return "none"
	}
	var names []string
	for _, t := range []EnrichmentType{EnrichmentWebsite, EnrichmentGBP, EnrichmentSocial} {
		if f.Has(t) {
			names = append(names, string(t))
		}
	}
	return strings.Join(names, ",")
}

// EnabledEnrichments folds the enabled pools into flags.
func (c CampaignConfig) EnabledEnrichments() EnrichmentFlags {
	var f EnrichmentFlags
	for _, pool := range c.EnabledEnrichmentPools() {
		f = f.Set(pool.Type)
	}
	return f
}
