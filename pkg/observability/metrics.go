package observability

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results reported by weft_cache_lookups_total.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Metrics holds the engine collectors.
type Metrics struct {
	runs         prometheus.Counter
	nodeRuns     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_runs_total",
			Help: "Total number of workflow executions.",
		}),
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_node_runs_total",
			Help: "Node outcomes by node type and terminal status.",
		}, []string{"type", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_cache_lookups_total",
			Help: "Result cache lookups of succeeded nodes by result.",
		}, []string{"result"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weft_node_duration_seconds",
			Help:    "Wall time of node processing, cache hits included.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"type"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewMetrics is like NewMetrics but panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// Collectors returns every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.nodeRuns, m.cacheLookups, m.nodeDuration}
}

// Hooks returns lifecycle hooks feeding m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(_ context.Context, _ *domain.RunEvent) {
			m.runs.Inc()
		},
		OnNodeFinish: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeRuns.WithLabelValues(e.NodeType, string(e.Status)).Inc()
			if e.Status != domain.StatusSucceeded {
				return
			}
			m.nodeDuration.WithLabelValues(e.NodeType).Observe(e.Elapsed.Seconds())
			if e.CacheHit {
				m.cacheLookups.WithLabelValues(LookupHit).Inc()
			} else {
				m.cacheLookups.WithLabelValues(LookupMiss).Inc()
			}
		},
	}
}
