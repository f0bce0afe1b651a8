package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

type fakeDriver struct {
	mu          sync.Mutex
	url         string
	opened      bool
	closed      bool
	navigations []string
	shots       int

	openErr       error
	navigateErr   error
	screenshotErr error
	closeErr      error
}

func (d *fakeDriver) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = true
	return nil
}

func (d *fakeDriver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.closeErr
}

func (d *fakeDriver) NavigateTo(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.url = url
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) TakeScreenshot(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.screenshotErr != nil {
		return nil, d.screenshotErr
	}
	d.shots++
	return []byte("png"), nil
}

func (d *fakeDriver) PageURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// fakeFactory hands out drivers in order; configure lets a test tweak the
// n-th driver (0-based) before it is returned.
type fakeFactory struct {
	mu        sync.Mutex
	drivers   []*fakeDriver
	configure func(n int, d *fakeDriver)
	createErr error
}

func (f *fakeFactory) Create(ports.BrowserConfig) (ports.BrowserDriver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	d := &fakeDriver{}
	if f.configure != nil {
		f.configure(len(f.drivers), d)
	}
	f.drivers = append(f.drivers, d)
	return d, nil
}

func (f *fakeFactory) all() []*fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeDriver, len(f.drivers))
	copy(out, f.drivers)
	return out
}

type fakeGeonames struct {
	byID        map[int64]domain.Geoname
	cities      []domain.Geoname
	lastFilter  ports.GeonameFilter
	cityQueries int
	err         error
}

func (g *fakeGeonames) FindCityGeonames(_ context.Context, f ports.GeonameFilter) ([]domain.Geoname, error) {
	g.lastFilter = f
	g.cityQueries++
	return g.cities, g.err
}

func (g *fakeGeonames) FindAdminGeonames(context.Context, ports.GeonameFilter) ([]domain.Geoname, error) {
	return nil, g.err
}

func (g *fakeGeonames) FindByGeonameID(_ context.Context, id int64) ([]domain.Geoname, error) {
	if g.err != nil {
		return nil, g.err
	}
	if geo, ok := g.byID[id]; ok {
		return []domain.Geoname{geo}, nil
	}
	return nil, nil
}

func (g *fakeGeonames) Countries(context.Context) ([]domain.Country, error) { return nil, g.err }

// memStore is an in-memory stand-in for the DuckDB repositories.
type memStore struct {
	mu          sync.Mutex
	campaigns   map[domain.CampaignID]*domain.Campaign
	tasks       map[domain.TaskID]*domain.ExtractionTask
	order       []domain.TaskID
	enrichments []*domain.WebsiteEnrichmentTask
}

var (
	_ ports.CampaignRepository       = (*memStore)(nil)
	_ ports.TaskRepository           = (*memStore)(nil)
	_ ports.EnrichmentTaskRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[domain.CampaignID]*domain.Campaign),
		tasks:     make(map[domain.TaskID]*domain.ExtractionTask),
	}
}

func cloneTask(t *domain.ExtractionTask) *domain.ExtractionTask {
	c := &domain.ExtractionTask{
		ID:              t.ID,
		CampaignID:      t.CampaignID,
		SearchSeed:      t.SearchSeed,
		Geoname:         t.Geoname,
		Status:          t.Status,
		Attempts:        t.Attempts,
		LastError:       t.LastError,
		PlacesExtracted: t.PlacesExtracted,
		CreatedAt:       t.CreatedAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	return c
}

func (s *memStore) SaveCampaign(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := &domain.Campaign{
		ID:             c.ID,
		Title:          c.Title,
		Status:         c.Status,
		Config:         c.Config,
		TotalTasks:     c.TotalTasks,
		CompletedTasks: c.CompletedTasks,
		FailedTasks:    c.FailedTasks,
		CreatedAt:      c.CreatedAt,
		StartedAt:      c.StartedAt,
		CompletedAt:    c.CompletedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	s.campaigns[c.ID] = stored
	for _, t := range c.Tasks {
		s.saveTaskLocked(t)
	}
	return nil
}

func (s *memStore) GetCampaign(_ context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, id)
	}
	c := &domain.Campaign{
		ID:             stored.ID,
		Title:          stored.Title,
		Status:         stored.Status,
		Config:         stored.Config,
		TotalTasks:     stored.TotalTasks,
		CompletedTasks: stored.CompletedTasks,
		FailedTasks:    stored.FailedTasks,
		CreatedAt:      stored.CreatedAt,
		StartedAt:      stored.StartedAt,
		CompletedAt:    stored.CompletedAt,
		UpdatedAt:      stored.UpdatedAt,
	}
	for _, tid := range s.order {
		if t := s.tasks[tid]; t.CampaignID == id {
			c.Tasks = append(c.Tasks, cloneTask(t))
		}
	}
	return c, nil
}

func (s *memStore) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	s.mu.Lock()
	ids := make([]domain.CampaignID, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []*domain.Campaign
	for _, id := range ids {
		c, err := s.GetCampaign(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) DeleteCampaign(_ context.Context, id domain.CampaignID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

func (s *memStore) IncrementCompleted(_ context.Context, id domain.CampaignID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(id, domain.TaskStatusCompleted)
}

func (s *memStore) IncrementFailed(_ context.Context, id domain.CampaignID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(id, domain.TaskStatusFailed)
}

func (s *memStore) incrementLocked(id domain.CampaignID, status domain.TaskStatus) error {
	c, ok := s.campaigns[id]
	if !ok {
		return domain.ErrCampaignNotFound
	}
	if status == domain.TaskStatusCompleted {
		c.CompletedTasks++
	} else {
		c.FailedTasks++
	}
	return nil
}

func (s *memStore) SaveTask(_ context.Context, t *domain.ExtractionTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTaskLocked(t)
	return nil
}

func (s *memStore) saveTaskLocked(t *domain.ExtractionTask) {
	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = cloneTask(t)
}

func (s *memStore) GetTask(_ context.Context, id domain.TaskID) (*domain.ExtractionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return cloneTask(t), nil
}

func (s *memStore) ListCampaignTasks(_ context.Context, id domain.CampaignID) ([]*domain.ExtractionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ExtractionTask
	for _, tid := range s.order {
		if t := s.tasks[tid]; t.CampaignID == id {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (s *memStore) FindPendingIDs(_ context.Context, id domain.CampaignID, maxAttempts int) ([]domain.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TaskID
	for _, tid := range s.order {
		t := s.tasks[tid]
		if t.CampaignID == id && t.IsClaimable(maxAttempts) {
			out = append(out, tid)
		}
	}
	return out, nil
}

func (s *memStore) RecordTaskOutcome(_ context.Context, t *domain.ExtractionTask, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTaskLocked(t)
	if !final {
		return nil
	}
	return s.incrementLocked(t.CampaignID, t.Status)
}

func (s *memStore) SaveEnrichmentTask(_ context.Context, t *domain.WebsiteEnrichmentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrichments = append(s.enrichments, t)
	return nil
}

func (s *memStore) GetEnrichmentTask(_ context.Context, id domain.EnrichmentTaskID) (*domain.WebsiteEnrichmentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.enrichments {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *memStore) FindPendingEnrichmentIDs(_ context.Context, maxAttempts int) ([]domain.EnrichmentTaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EnrichmentTaskID
	for _, t := range s.enrichments {
		if t.Status == domain.TaskStatusPending || (t.Status == domain.TaskStatusFailed && t.Attempts < maxAttempts) {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

// recordingPublisher keeps every published event kind.
type recordingPublisher struct {
	mu    sync.Mutex
	kinds []domain.EventKind
}

func (p *recordingPublisher) PublishDomain(events ...domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		p.kinds = append(p.kinds, e.Kind)
	}
}

func (p *recordingPublisher) count(kind domain.EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type countingRecorder struct {
	completed atomic.Int32
	failed    atomic.Int32
	released  atomic.Int32
}

func (r *countingRecorder) ReleaseTask(_ context.Context, t *domain.ExtractionTask) error {
	r.released.Add(1)
	return t.MarkPending()
}

func (r *countingRecorder) RecordTaskOutcome(_ context.Context, t *domain.ExtractionTask) error {
	switch t.Status {
	case domain.TaskStatusCompleted:
		r.completed.Add(1)
	case domain.TaskStatusFailed:
		r.failed.Add(1)
	default:
		return errors.New("not terminal")
	}
	return nil
}

func noDelay() RunnerConfig {
	return RunnerConfig{SettleDelay: 0, SnapshotInterval: 0, MaxSnapshots: 2}
}

func noStagger() StaggerRange { return StaggerRange{} }

func testTasks(n int) []*domain.ExtractionTask {
	campaignID := domain.NewCampaignID()
	tasks := make([]*domain.ExtractionTask, n)
	for i := range tasks {
		tasks[i] = domain.NewExtractionTask(campaignID, "cafes", domain.Geoname{ID: int64(i + 1), Name: fmt.Sprintf("City %d", i+1)})
	}
	return tasks
}
