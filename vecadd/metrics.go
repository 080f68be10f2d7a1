package vecadd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects run statistics in a private registry. The registry is
// written in textfile-collector format after the run, if requested.
type Metrics struct {
	Registry *prometheus.Registry

	KernelDuration prometheus.Histogram
	Runs           prometheus.Counter
	Elements       prometheus.Counter
	Groups         prometheus.Gauge
	GroupSize      prometheus.Gauge
}

// NewMetrics creates and registers the run metrics
func NewMetrics(backendName string) *Metrics {
	labels := prometheus.Labels{"backend": backendName}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		KernelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "vecadd_kernel_duration_seconds",
			Help:        "Wall time of one kernel run including device transfers back to the host",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 14),
		}),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "vecadd_kernel_runs_total",
			Help:        "Number of completed kernel runs",
			ConstLabels: labels,
		}),
		Elements: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "vecadd_elements_processed_total",
			Help:        "Number of vector elements processed across all runs",
			ConstLabels: labels,
		}),
		Groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "vecadd_work_groups",
			Help:        "Number of worker groups in the work division",
			ConstLabels: labels,
		}),
		GroupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "vecadd_work_group_size",
			Help:        "Number of elements per worker group",
			ConstLabels: labels,
		}),
	}
	m.Registry.MustRegister(m.KernelDuration, m.Runs, m.Elements, m.Groups, m.GroupSize)
	return m
}

func (m *Metrics) observeRun(d time.Duration, n int) {
	m.KernelDuration.Observe(d.Seconds())
	m.Runs.Inc()
	m.Elements.Add(float64(n))
}

// WriteFile writes the registry to path in Prometheus text format
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
