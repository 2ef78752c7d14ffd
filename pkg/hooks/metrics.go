package hooks

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/morezero/action-dispatcher/pkg/dispatcher"
)

// unresolvedPath labels requests that matched no action, keeping label
// cardinality bounded by the registry size.
const unresolvedPath = "unresolved"

// Metrics is an after hook recording Prometheus counters and latencies.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dispatcher",
				Subsystem: "actions",
				Name:      "requests_total",
				Help:      "Total dispatched requests.",
			},
			[]string{"path", "source", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dispatcher",
				Subsystem: "actions",
				Name:      "duration_seconds",
				Help:      "Dispatch duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "source"},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// After implements dispatcher.AfterHook.
func (m *Metrics) After(_ context.Context, out dispatcher.Outcome) error {
	path := unresolvedPath
	if out.Resolved {
		path = out.Metadata.Path()
	}
	source := out.Request.Source().String()
	m.requests.WithLabelValues(path, source, strconv.Itoa(out.Result.Code)).Inc()
	m.duration.WithLabelValues(path, source).Observe(out.Duration.Seconds())
	return nil
}
