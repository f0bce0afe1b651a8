package services

import (
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	flavourExtraction = "extraction"
	flavourEnrichment = "enrichment"
)

// Metrics holds the service collectors. A nil *Metrics records nothing, so
// tests can pass nil.
type Metrics struct {
	Registry *prometheus.Registry

	tasksClaimed    *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	queueSize       *prometheus.GaugeVec
	botTransitions  *prometheus.CounterVec
	poolSize        prometheus.Gauge
	poolInitSeconds prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		tasksClaimed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placeharvest_tasks_claimed_total",
				Help: "Task ids handed out by a dispatcher",
			},
			[]string{"flavour"},
		),
		tasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placeharvest_tasks_finished_total",
				Help: "Terminal task transitions by outcome",
			},
			[]string{"flavour", "outcome"},
		),
		queueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "placeharvest_dispatcher_remaining",
				Help: "Approximate number of ids left in a dispatcher queue",
			},
			[]string{"flavour"},
		),
		botTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placeharvest_bot_transitions_total",
				Help: "Bot status transitions by target status",
			},
			[]string{"status"},
		),
		poolSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "placeharvest_bot_pool_size",
				Help: "Bots currently registered in the pool",
			},
		),
		poolInitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "placeharvest_bot_pool_init_seconds",
				Help:    "Time to initialize the whole bot pool, stagger included",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}
}

func (m *Metrics) taskClaimed(flavour string, remaining int) {
	if m == nil {
		return
	}
	m.tasksClaimed.WithLabelValues(flavour).Inc()
	m.queueSize.WithLabelValues(flavour).Set(float64(remaining))
}

func (m *Metrics) queueRemaining(flavour string, remaining int) {
	if m == nil {
		return
	}
	m.queueSize.WithLabelValues(flavour).Set(float64(remaining))
}

func (m *Metrics) taskFinished(flavour string, status domain.TaskStatus) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(flavour, string(status)).Inc()
}

func (m *Metrics) botStatus(status domain.BotStatus) {
	if m == nil {
		return
	}
	m.botTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) pool(size int) {
	if m == nil {
		return
	}
	m.poolSize.Set(float64(size))
}

func (m *Metrics) poolInitialized(started time.Time) {
	if m == nil {
		return
	}
	m.poolInitSeconds.Observe(time.Since(started).Seconds())
}
