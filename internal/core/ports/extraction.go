package ports

import (
	"context"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

// BrowserConfig is handed to the driver factory for every new bot.
type BrowserConfig struct {
	Headless bool
	Timeout  int // seconds
	Locale   string
}

// BrowserDriver is the opaque automation capability one bot wraps.
type BrowserDriver interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	NavigateTo(ctx context.Context, url string) error
	TakeScreenshot(ctx context.Context) ([]byte, error)
	PageURL() string
}

// BrowserDriverFactory builds unopened drivers.
type BrowserDriverFactory interface {
	Create(cfg BrowserConfig) (BrowserDriver, error)
}

// GeonameFilter carries the optional constraints of a city/admin lookup.
type GeonameFilter struct {
	CountryCode     string
	Admin1GeonameID *int64
	Admin2GeonameID *int64
	Admin1Code      string
	FeatureCode     string
	MinPopulation   *int64
	ISOLanguage     string
}

// GeonameQuery is the external location lookup service.
type GeonameQuery interface {
	FindCityGeonames(ctx context.Context, filter GeonameFilter) ([]domain.Geoname, error)
	FindAdminGeonames(ctx context.Context, filter GeonameFilter) ([]domain.Geoname, error)
	FindByGeonameID(ctx context.Context, id int64) ([]domain.Geoname, error)
	Countries(ctx context.Context) ([]domain.Country, error)
}

// CampaignRepository persists the campaign aggregate together with its tasks.
type CampaignRepository interface {
	SaveCampaign(ctx context.Context, c *domain.Campaign) error
	GetCampaign(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*domain.Campaign, error)
	DeleteCampaign(ctx context.Context, id domain.CampaignID) error
	IncrementCompleted(ctx context.Context, id domain.CampaignID) error
	IncrementFailed(ctx context.Context, id domain.CampaignID) error
}

// TaskRepository persists extraction tasks individually, for workers.
type TaskRepository interface {
	SaveTask(ctx context.Context, t *domain.ExtractionTask) error
	GetTask(ctx context.Context, id domain.TaskID) (*domain.ExtractionTask, error)
	ListCampaignTasks(ctx context.Context, id domain.CampaignID) ([]*domain.ExtractionTask, error)
	// FindPendingIDs returns pending tasks plus failed ones with attempts
	// left, oldest first.
	FindPendingIDs(ctx context.Context, id domain.CampaignID, maxAttempts int) ([]domain.TaskID, error)
	// RecordTaskOutcome saves a completed or failed task. When final is set
	// the matching campaign counter is bumped in the same transaction.
	RecordTaskOutcome(ctx context.Context, t *domain.ExtractionTask, final bool) error
}

type EnrichmentTaskRepository interface {
	SaveEnrichmentTask(ctx context.Context, t *domain.WebsiteEnrichmentTask) error
	GetEnrichmentTask(ctx context.Context, id domain.EnrichmentTaskID) (*domain.WebsiteEnrichmentTask, error)
	FindPendingEnrichmentIDs(ctx context.Context, maxAttempts int) ([]domain.EnrichmentTaskID, error)
}

// EventPublisher delivers drained entity events. Delivery is best effort.
type EventPublisher interface {
	PublishDomain(events ...domain.Event)
}
