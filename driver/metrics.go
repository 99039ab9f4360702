package driver

import (
	"github.com/itchio/rstream/job"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by Run.
type Metrics struct {
	StepsTotal  *prometheus.CounterVec
	BytesTotal  *prometheus.CounterVec
	JobsTotal   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (m *Metrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = errors.Wrap(rerr, "registering metrics")
				return
			}
			panic(r)
		}
	}()

	factory := promauto.With(reg)
	m = &Metrics{
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rstream_steps_total",
				Help: "Job steps, by job kind and step result",
			},
			[]string{"kind", "result"},
		),
		BytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rstream_bytes_total",
				Help: "Bytes consumed and produced by jobs",
			},
			[]string{"kind", "direction"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rstream_jobs_total",
				Help: "Jobs driven to completion or failure",
			},
			[]string{"kind", "outcome"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rstream_job_duration_seconds",
				Help:    "Time spent driving a job",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"kind"},
		),
	}
	return m, nil
}

func (m *Metrics) observeStep(kind job.Kind, res job.Result, consumed int, produced int) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind.String(), res.String()).Inc()
	m.BytesTotal.WithLabelValues(kind.String(), "in").Add(float64(consumed))
	m.BytesTotal.WithLabelValues(kind.String(), "out").Add(float64(produced))
}

func (m *Metrics) observeJob(kind job.Kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(kind.String(), outcome).Inc()
	m.JobDuration.WithLabelValues(kind.String()).Observe(seconds)
}
