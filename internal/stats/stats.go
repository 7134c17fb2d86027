package stats

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guild_relay"

const (
	ActiveSessions  = "active_sessions"
	Broadcasts      = "broadcasts_total"
	DeliveryDrops   = "delivery_drops_total"
	PersistFailures = "persist_failures_total"
	TypingSwept     = "typing_indicators_swept_total"
	PresenceChanges = "presence_changes_total"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	Add(name string, delta float64)
	RegisterMetric(name string)
}

type StatsUpdater struct {
	registry *prometheus.Registry
	mu       sync.RWMutex
	vars     map[string]prometheus.Gauge
}

// NewStatsUpdater creates a new stats updater instance and serves its
// metrics on GET /metrics.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry: prometheus.NewRegistry(),
		vars:     make(map[string]prometheus.Gauge),
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_milliseconds",
			Help:      "Milliseconds since the relay started.",
		}, func() float64 {
			return float64(time.Since(startTime).Milliseconds())
		}),
	)
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.mu.Lock()
	defer su.mu.Unlock()

	if _, ok := su.vars[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      strings.ReplaceAll(name, "_", " "),
	})
	su.registry.MustRegister(g)
	su.vars[name] = g
}

func (su *StatsUpdater) metric(name string) prometheus.Gauge {
	su.mu.RLock()
	g, ok := su.vars[name]
	su.mu.RUnlock()
	if ok {
		return g
	}

	su.RegisterMetric(name)
	su.mu.RLock()
	defer su.mu.RUnlock()
	return su.vars[name]
}

func (su *StatsUpdater) Incr(name string) {
	su.metric(name).Inc()
}

func (su *StatsUpdater) Decr(name string) {
	su.metric(name).Dec()
}

func (su *StatsUpdater) Add(name string, delta float64) {
	su.metric(name).Add(delta)
}
