package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks view assembly and action dispatch outcomes for the
// market gateway.
type MarketMetrics struct {
	viewsAssembled  *prometheus.CounterVec
	entitiesDropped *prometheus.CounterVec
	assemblySeconds *prometheus.HistogramVec
	actionsTotal    *prometheus.CounterVec
	metadataMisses  prometheus.Counter
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			viewsAssembled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_views_assembled_total",
				Help: "Count of assembled views by screen.",
			}, []string{"screen"}),
			entitiesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_entities_dropped_total",
				Help: "Entities dropped from a view because a per-entity read failed.",
			}, []string{"screen"}),
			assemblySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "market_view_assembly_seconds",
				Help:    "Wall-clock time spent assembling a view.",
				Buckets: prometheus.DefBuckets,
			}, []string{"screen"}),
			actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_actions_total",
				Help: "Dispatched actions by kind and terminal status.",
			}, []string{"kind", "status"}),
			metadataMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_metadata_misses_total",
				Help: "Metadata fetches that degraded to placeholder fields.",
			}),
		}
	})
	return marketRegistry
}

// Register attaches the market collectors to reg so they are served from
// the same scrape endpoint as the caller's own series. Registering into
// more than one registry is allowed.
func (m *MarketMetrics) Register(reg prometheus.Registerer) error {
	if m == nil || reg == nil {
		return nil
	}
	collectors := []prometheus.Collector{
		m.viewsAssembled,
		m.entitiesDropped,
		m.assemblySeconds,
		m.actionsTotal,
		m.metadataMisses,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *MarketMetrics) ObserveView(screen string, dropped int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if screen == "" {
		screen = "unknown"
	}
	m.viewsAssembled.WithLabelValues(screen).Inc()
	if dropped > 0 {
		m.entitiesDropped.WithLabelValues(screen).Add(float64(dropped))
	}
	m.assemblySeconds.WithLabelValues(screen).Observe(elapsed.Seconds())
}

func (m *MarketMetrics) ObserveAction(kind, status string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.actionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *MarketMetrics) ObserveMetadataMiss() {
	if m == nil {
		return
	}
	m.metadataMisses.Inc()
}
