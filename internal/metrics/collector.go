// Package metrics instruments adequacy runs with Prometheus collectors kept
// in a private registry, so several collectors can live in one process.
package metrics

import (
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// Collector records run, sample and dispatch statistics
type Collector struct {
	registry *prometheus.Registry

	samples        *prometheus.CounterVec
	sampleDuration prometheus.Histogram
	lossHours      prometheus.Counter
	unserved       prometheus.Counter
	solves         prometheus.Counter
	solveFailures  prometheus.Counter
	meanLOLP       *prometheus.GaugeVec
	cov            *prometheus.GaugeVec
	runs           *prometheus.CounterVec
	activeRuns     prometheus.Gauge
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricSamplesTotal,
			Help:      "Monte Carlo samples completed",
		}, []string{LabelWorker}),
		sampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      MetricSampleDuration,
			Help:      "Wall time of one sample",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		lossHours: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricLossOfLoadHours,
			Help:      "Simulated hours with curtailment",
		}),
		unserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricUnservedEnergy,
			Help:      "Simulated unserved energy",
		}),
		solves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricDispatchSolves,
			Help:      "Hourly dispatch problems solved",
		}),
		solveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricDispatchFailures,
			Help:      "Hourly dispatch problems the solver rejected",
		}),
		meanLOLP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      MetricMeanLOLP,
			Help:      "Running mean LOLP over pooled samples",
		}, []string{LabelRun}),
		cov: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      MetricLOLPCoV,
			Help:      "Coefficient of variation of mean LOLP",
		}, []string{LabelRun}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      MetricRunsTotal,
			Help:      "Runs finished by status",
		}, []string{LabelStatus}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      MetricActiveRuns,
			Help:      "Runs currently executing",
		}),
	}
	c.registry.MustRegister(
		c.samples, c.sampleDuration, c.lossHours, c.unserved,
		c.solves, c.solveFailures, c.meanLOLP, c.cov, c.runs, c.activeRuns,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveSample records a finished sample of a worker
func (c *Collector) ObserveSample(worker int, d time.Duration, ix models.Indices) {
	c.samples.With(WorkerLabels(worker)).Inc()
	c.sampleDuration.Observe(d.Seconds())
	c.lossHours.Add(ix.LOLH)
	c.unserved.Add(ix.EUE)
}

// ObserveDispatch counts one hourly solve
func (c *Collector) ObserveDispatch(failed bool) {
	c.solves.Inc()
	if failed {
		c.solveFailures.Inc()
	}
}

// SetConvergence publishes the latest pooled statistics of a run. A NaN CoV
// is left unpublished.
func (c *Collector) SetConvergence(runID string, mean, cov float64) {
	c.meanLOLP.With(RunLabels(runID)).Set(mean)
	if !math.IsNaN(cov) {
		c.cov.With(RunLabels(runID)).Set(cov)
	}
}

// RunStarted marks a run as executing
func (c *Collector) RunStarted() {
	c.activeRuns.Inc()
}

// RunFinished records the terminal status of a run
func (c *Collector) RunFinished(status models.RunStatus) {
	c.activeRuns.Dec()
	c.runs.With(StatusLabels(status)).Inc()
}

// Forget drops the per-run gauges of runID
func (c *Collector) Forget(runID string) {
	c.meanLOLP.Delete(RunLabels(runID))
	c.cov.Delete(RunLabels(runID))
}
