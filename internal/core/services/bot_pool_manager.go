package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

// StaggerRange bounds the random pause between two bot launches.
type StaggerRange struct {
	Min time.Duration
	Max time.Duration
}

func (r StaggerRange) pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min)
}

// BotPoolManager owns the bots of one run and the driver each one wraps.
// The registries only change in InitializePool and CloseAll.
type BotPoolManager struct {
	logger    *slog.Logger
	factory   ports.BrowserDriverFactory
	publisher ports.EventPublisher
	metrics   *Metrics
	config    ports.BrowserConfig

	mu      sync.RWMutex
	bots    []*domain.Bot
	drivers map[domain.BotID]ports.BrowserDriver
}

func NewBotPoolManager(logger *slog.Logger, factory ports.BrowserDriverFactory, publisher ports.EventPublisher, metrics *Metrics, cfg ports.BrowserConfig) *BotPoolManager {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	if cfg.Locale == "" {
		cfg.Locale = domain.DefaultLocale
	}
	return &BotPoolManager{
		logger:    logger,
		factory:   factory,
		publisher: publisher,
		metrics:   metrics,
		config:    cfg,
		drivers:   make(map[domain.BotID]ports.BrowserDriver),
	}
}

// InitializePool launches n bots one after another with a random pause in
// between. The first failure stops the launch: the failing bot stays in
// the pool marked as error and the bots launched before it stay usable.
func (m *BotPoolManager) InitializePool(ctx context.Context, n int, stagger StaggerRange) error {
	started := time.Now()
	defer m.metrics.poolInitialized(started)

	for i := 0; i < n; i++ {
		if err := m.launch(ctx, i+1); err != nil {
			return err
		}

		if i < n-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(stagger.pick()):
			}
		}
	}

	m.logger.Info("bot pool initialized", "pool_size", m.PoolSize())
	return nil
}

func (m *BotPoolManager) launch(ctx context.Context, number int) error {
	bot := domain.NewBot()
	m.mu.Lock()
	m.bots = append(m.bots, bot)
	size := len(m.bots)
	m.mu.Unlock()
	m.metrics.pool(size)

	fail := func(err error) error {
		msg := fmt.Sprintf("failed to initialize bot #%d: %v", number, err)
		m.logger.Error("bot initialization failed", "bot_number", number, "bot_id", bot.ID(), "error", err)
		bot.MarkError(msg)
		m.metrics.botStatus(domain.BotStatusError)
		m.publisher.PublishDomain(bot.PullEvents()...)
		return fmt.Errorf("failed to initialize bot #%d: %w", number, err)
	}

	driver, err := m.factory.Create(m.config)
	if err != nil {
		return fail(err)
	}
	if err := driver.Open(ctx); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	m.drivers[bot.ID()] = driver
	m.mu.Unlock()

	if err := bot.MarkReady(); err != nil {
		return fail(err)
	}
	m.metrics.botStatus(domain.BotStatusIdle)
	m.publisher.PublishDomain(bot.PullEvents()...)
	m.logger.Info("bot ready", "bot_id", bot.ID(), "bot_number", number)
	return nil
}

// AvailableBot returns the first idle bot, if any.
func (m *BotPoolManager) AvailableBot() (*domain.Bot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bots {
		if b.IsAvailable() {
			return b, true
		}
	}
	return nil, false
}

// IdleBots returns the bots that have sat idle for longer than d.
func (m *BotPoolManager) IdleBots(d time.Duration) []*domain.Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Bot
	for _, b := range m.bots {
		if b.IdleFor(d) {
			out = append(out, b)
		}
	}
	return out
}

// AllBots returns a copy of the roster in launch order.
func (m *BotPoolManager) AllBots() []*domain.Bot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Bot, len(m.bots))
	copy(out, m.bots)
	return out
}

func (m *BotPoolManager) Driver(id domain.BotID) (ports.BrowserDriver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	return d, ok
}

func (m *BotPoolManager) PoolSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bots)
}

// CloseAll closes every driver concurrently, closes every bot and empties
// the pool. Driver close errors are logged and swallowed.
func (m *BotPoolManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	bots := m.bots
	drivers := m.drivers
	m.bots = nil
	m.drivers = make(map[domain.BotID]ports.BrowserDriver)
	m.mu.Unlock()

	var g errgroup.Group
	for _, bot := range bots {
		driver, ok := drivers[bot.ID()]
		if ok {
			id := bot.ID()
			g.Go(func() error {
				if err := driver.Close(ctx); err != nil {
					m.logger.Warn("failed to close browser driver", "bot_id", id, "error", err)
				}
				return nil
			})
		}
		m.logger.Debug("closing bot", "bot_id", bot.ID(), "status", bot.Status(), "uptime", bot.Uptime().Round(time.Millisecond))
		bot.Close()
		m.metrics.botStatus(domain.BotStatusClosed)
		m.publisher.PublishDomain(bot.PullEvents()...)
	}
	_ = g.Wait()

	m.metrics.pool(0)
	m.logger.Info("bot pool closed", "bots", len(bots))
}
