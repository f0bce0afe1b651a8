package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(factory *fakeFactory, pub ports.EventPublisher) *BotPoolManager {
	return NewBotPoolManager(testLogger(), factory, pub, NewMetrics(), ports.BrowserConfig{Headless: true})
}

func TestBotPoolManager_InitializePool(t *testing.T) {
	factory := &fakeFactory{}
	pub := &recordingPublisher{}
	pool := newTestPool(factory, pub)

	require.NoError(t, pool.InitializePool(context.Background(), 3, noStagger()))

	assert.Equal(t, 3, pool.PoolSize())
	for _, bot := range pool.AllBots() {
		assert.Equal(t, domain.BotStatusIdle, bot.Status())
		driver, ok := pool.Driver(bot.ID())
		require.True(t, ok)
		assert.True(t, driver.(*fakeDriver).opened)
	}
	assert.Equal(t, 3, pub.count(domain.EventBotInitialized))

	bot, ok := pool.AvailableBot()
	require.True(t, ok)
	assert.Equal(t, pool.AllBots()[0].ID(), bot.ID())
}

func TestBotPoolManager_StaggersLaunches(t *testing.T) {
	pool := newTestPool(&fakeFactory{}, nil)

	start := time.Now()
	require.NoError(t, pool.InitializePool(context.Background(), 3, StaggerRange{Min: 20 * time.Millisecond, Max: 30 * time.Millisecond}))
	elapsed := time.Since(start)

	// two pauses, none after the last bot
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestBotPoolManager_StaggerHonoursContext(t *testing.T) {
	pool := newTestPool(&fakeFactory{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.InitializePool(ctx, 3, StaggerRange{Min: time.Minute, Max: time.Minute})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.PoolSize())
}

func TestBotPoolManager_PartialFailureKeepsEarlierBots(t *testing.T) {
	openErr := errors.New("chromium did not start")
	factory := &fakeFactory{configure: func(n int, d *fakeDriver) {
		if n == 1 {
			d.openErr = openErr
		}
	}}
	pool := newTestPool(factory, nil)

	err := pool.InitializePool(context.Background(), 3, noStagger())
	require.ErrorIs(t, err, openErr)
	assert.Contains(t, err.Error(), "bot #2")

	bots := pool.AllBots()
	require.Len(t, bots, 2)
	assert.Equal(t, domain.BotStatusIdle, bots[0].Status())
	assert.Equal(t, domain.BotStatusError, bots[1].Status())
	assert.Contains(t, bots[1].ErrorMessage(), "chromium did not start")

	_, ok := pool.Driver(bots[1].ID())
	assert.False(t, ok)

	pool.CloseAll(context.Background())
	assert.Equal(t, 0, pool.PoolSize())
	assert.Equal(t, domain.BotStatusClosed, bots[0].Status())
	assert.Equal(t, domain.BotStatusClosed, bots[1].Status())
	assert.True(t, factory.all()[0].isClosed())
}

func TestBotPoolManager_CloseAllIsBestEffort(t *testing.T) {
	factory := &fakeFactory{configure: func(n int, d *fakeDriver) {
		if n == 0 {
			d.closeErr = errors.New("stuck")
		}
	}}
	pub := &recordingPublisher{}
	pool := newTestPool(factory, pub)
	require.NoError(t, pool.InitializePool(context.Background(), 3, noStagger()))
	bots := pool.AllBots()

	pool.CloseAll(context.Background())

	for _, d := range factory.all() {
		assert.True(t, d.isClosed())
	}
	for _, b := range bots {
		assert.Equal(t, domain.BotStatusClosed, b.Status())
	}
	assert.Equal(t, 3, pub.count(domain.EventBotClosed))
	assert.Empty(t, pool.AllBots())

	// a second teardown is harmless
	pool.CloseAll(context.Background())
}

func TestBotPoolManager_AllBotsReturnsCopy(t *testing.T) {
	pool := newTestPool(&fakeFactory{}, nil)
	require.NoError(t, pool.InitializePool(context.Background(), 2, noStagger()))

	bots := pool.AllBots()
	bots[0] = nil

	assert.Equal(t, 2, pool.PoolSize())
	assert.NotNil(t, pool.AllBots()[0])
}

func TestBotPoolManager_IdleBots(t *testing.T) {
	pool := newTestPool(&fakeFactory{}, nil)
	require.NoError(t, pool.InitializePool(context.Background(), 2, noStagger()))
	bots := pool.AllBots()
	require.NoError(t, bots[1].AssignTask(domain.NewTaskID()))

	time.Sleep(2 * time.Millisecond)
	idle := pool.IdleBots(time.Millisecond)
	require.Len(t, idle, 1)
	assert.Equal(t, bots[0].ID(), idle[0].ID())

	assert.Empty(t, pool.IdleBots(time.Hour))
}

func TestBotPoolManager_NoAvailableBot(t *testing.T) {
	pool := newTestPool(&fakeFactory{}, nil)
	require.NoError(t, pool.InitializePool(context.Background(), 1, noStagger()))
	require.NoError(t, pool.AllBots()[0].AssignTask(domain.NewTaskID()))

	_, ok := pool.AvailableBot()
	assert.False(t, ok)
}
