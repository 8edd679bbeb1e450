package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

// Namespace prefixes every metric name
const Namespace = "adequacy"

// Metric names
const (
	MetricSamplesTotal     = "samples_total"
	MetricSampleDuration   = "sample_duration_seconds"
	MetricLossOfLoadHours  = "loss_of_load_hours_total"
	MetricUnservedEnergy   = "unserved_energy_mwh_total"
	MetricDispatchSolves   = "dispatch_solves_total"
	MetricDispatchFailures = "dispatch_failures_total"
	MetricMeanLOLP         = "mean_lolp"
	MetricLOLPCoV          = "lolp_cov"
	MetricRunsTotal        = "runs_total"
	MetricActiveRuns       = "active_runs"
)

// Label names
const (
	LabelWorker = "worker"
	LabelRun    = "run_id"
	LabelStatus = "status"
)

// WorkerLabels creates the labels of a worker
func WorkerLabels(worker int) prometheus.Labels {
	return prometheus.Labels{LabelWorker: strconv.Itoa(worker)}
}

// RunLabels creates the labels of a run
func RunLabels(runID string) prometheus.Labels {
	return prometheus.Labels{LabelRun: runID}
}

// StatusLabels creates the labels of a run status
func StatusLabels(status models.RunStatus) prometheus.Labels {
	return prometheus.Labels{LabelStatus: string(status)}
}
