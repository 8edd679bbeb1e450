package models

import (
	"math"
	"time"
)

// RunStatus represents the status of a simulation run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run represents an adequacy simulation run
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	Samples   int               `json:"samples"`
	SimHours  int               `json:"sim_hours"`
	Model     string            `json:"model"`
	Workers   int               `json:"workers"`
	Seed      int64             `json:"seed"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Progress  *Progress         `json:"progress,omitempty"`
	Indices   *Indices          `json:"indices,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Progress reports how far a run has advanced. CoV is nil while the mean
// LOLP is still zero.
type Progress struct {
	CompletedSamples int      `json:"completed_samples"`
	TotalSamples     int      `json:"total_samples"`
	MeanLOLP         float64  `json:"mean_lolp"`
	CoV              *float64 `json:"cov,omitempty"`
}

// Indices is the run-level reliability index set.
type Indices struct {
	LOLP float64 `json:"lolp"`
	LOLH float64 `json:"lolh"`
	EUE  float64 `json:"eue"`
	EPNS float64 `json:"epns"`
	LOLF float64 `json:"lolf"`
	MDT  float64 `json:"mdt"`
	LOLE float64 `json:"lole"`
}

// IndexNames lists the indices in the order used by Vector and IndicesFromVector.
var IndexNames = []string{"LOLP", "LOLH", "EUE", "EPNS", "LOLF", "MDT", "LOLE"}

// Vector flattens the index set in IndexNames order.
func (ix Indices) Vector() []float64 {
	return []float64{ix.LOLP, ix.LOLH, ix.EUE, ix.EPNS, ix.LOLF, ix.MDT, ix.LOLE}
}

// IndicesFromVector is the inverse of Indices.Vector.
func IndicesFromVector(v []float64) Indices {
	var ix Indices
	if len(v) < len(IndexNames) {
		return ix
	}
	ix.LOLP, ix.LOLH, ix.EUE, ix.EPNS = v[0], v[1], v[2], v[3]
	ix.LOLF, ix.MDT, ix.LOLE = v[4], v[5], v[6]
	return ix
}

// Bus is a zone of the transportation network. Index is 1-based.
type Bus struct {
	Index int    `yaml:"index" json:"index"`
	Name  string `yaml:"name" json:"name"`
}

// Generator is a dispatchable thermal or hydro unit
type Generator struct {
	Name  string  `yaml:"name" json:"name"`
	Bus   int     `yaml:"bus" json:"bus"`
	MaxMW float64 `yaml:"max_mw" json:"max_mw"`
	MinMW float64 `yaml:"min_mw" json:"min_mw"`
	Cost  float64 `yaml:"cost" json:"cost"`
	MTTF  float64 `yaml:"mttf" json:"mttf"`
	MTTR  float64 `yaml:"mttr" json:"mttr"`
}

// Line is a transmission corridor between two buses
type Line struct {
	Name     string  `yaml:"name" json:"name"`
	From     int     `yaml:"from" json:"from"`
	To       int     `yaml:"to" json:"to"`
	RatingMW float64 `yaml:"rating_mw" json:"rating_mw"`
	MTTF     float64 `yaml:"mttf" json:"mttf"`
	MTTR     float64 `yaml:"mttr" json:"mttr"`
}

// Storage is an energy storage plant made of Units identical sub-units
type Storage struct {
	Name          string  `yaml:"name" json:"name"`
	Bus           int     `yaml:"bus" json:"bus"`
	PowerMW       float64 `yaml:"power_mw" json:"power_mw"`
	MinMW         float64 `yaml:"min_mw" json:"min_mw"`
	DurationH     float64 `yaml:"duration_h" json:"duration_h"`
	SOCMin        float64 `yaml:"soc_min" json:"soc_min"`
	SOCMax        float64 `yaml:"soc_max" json:"soc_max"`
	Efficiency    float64 `yaml:"efficiency" json:"efficiency"`
	ChargeCost    float64 `yaml:"charge_cost" json:"charge_cost"`
	DischargeCost float64 `yaml:"discharge_cost" json:"discharge_cost"`
	MTTF          float64 `yaml:"mttf" json:"mttf"`
	MTTR          float64 `yaml:"mttr" json:"mttr"`
	Units         int     `yaml:"units" json:"units"`
}

// Inventory is the immutable component set of a run
type Inventory struct {
	Buses      []Bus       `yaml:"buses" json:"buses"`
	Generators []Generator `yaml:"generators" json:"generators"`
	Lines      []Line      `yaml:"lines" json:"lines"`
	Storage    []Storage   `yaml:"storage" json:"storage"`
}

// WindSite is a wind farm whose output follows a wind-speed class chain.
// TransitionRates is a classes x classes rate matrix.
type WindSite struct {
	Name            string      `yaml:"name" json:"name"`
	Zone            int         `yaml:"zone" json:"zone"`
	PowerClass      int         `yaml:"power_class" json:"power_class"`
	MaxMW           float64     `yaml:"max_mw" json:"max_mw"`
	TurbineRatingMW float64     `yaml:"turbine_rating_mw" json:"turbine_rating_mw"`
	Turbines        int         `yaml:"turbines,omitempty" json:"turbines,omitempty"`
	TransitionRates [][]float64 `yaml:"transition_rates" json:"transition_rates"`
}

// TurbineCount returns the configured turbine count, or enough turbines of
// TurbineRatingMW to cover MaxMW.
func (w WindSite) TurbineCount() int {
	if w.Turbines > 0 {
		return w.Turbines
	}
	if w.TurbineRatingMW <= 0 {
		return 0
	}
	return int(math.Ceil(w.MaxMW / w.TurbineRatingMW))
}

// WindData holds wind sites and the per-unit power curves they reference.
// PowerCurves[c][k] is the output of one turbine of rating 1 in wind class k.
type WindData struct {
	Sites       []WindSite  `yaml:"sites" json:"sites"`
	PowerCurves [][]float64 `yaml:"power_curves" json:"power_curves"`
}

// SolarSite is a PV plant
type SolarSite struct {
	Name  string  `yaml:"name" json:"name"`
	Zone  int     `yaml:"zone" json:"zone"`
	MaxMW float64 `yaml:"max_mw" json:"max_mw"`
}

// SolarCluster is a pool of representative days. Days[d][h][s] is the
// normalized output of site s at hour h of day d. MonthProbability has 12 entries.
type SolarCluster struct {
	Name             string        `yaml:"name" json:"name"`
	MonthProbability []float64     `yaml:"month_probability" json:"month_probability"`
	Days             [][][]float64 `yaml:"days" json:"days"`
}

// SolarData holds solar sites and their clustered day profiles
type SolarData struct {
	Sites    []SolarSite    `yaml:"sites" json:"sites"`
	Clusters []SolarCluster `yaml:"clusters" json:"clusters"`
}

// HeatMap counts loss-of-load hours by month and hour of day. Observations
// records how many sample-hours contributed to each cell.
type HeatMap struct {
	Counts       [12][24]float64 `json:"counts"`
	Observations [12][24]float64 `json:"observations"`
}

// Merge adds other's counts into h.
func (h *HeatMap) Merge(other *HeatMap) {
	for m := range h.Counts {
		for hr := range h.Counts[m] {
			h.Counts[m][hr] += other.Counts[m][hr]
			h.Observations[m][hr] += other.Observations[m][hr]
		}
	}
}

// Percent returns the loss-of-load probability of every cell in percent.
// Cells never observed report zero.
func (h *HeatMap) Percent() [12][24]float64 {
	var out [12][24]float64
	for m := range h.Counts {
		for hr := range h.Counts[m] {
			if h.Observations[m][hr] > 0 {
				out[m][hr] = h.Counts[m][hr] / h.Observations[m][hr] * 100
			}
		}
	}
	return out
}

// Flatten returns counts followed by observations, row-major.
func (h *HeatMap) Flatten() []float64 {
	out := make([]float64, 0, 2*12*24)
	for m := range h.Counts {
		out = append(out, h.Counts[m][:]...)
	}
	for m := range h.Observations {
		out = append(out, h.Observations[m][:]...)
	}
	return out
}

// HeatMapFromFlat is the inverse of HeatMap.Flatten.
func HeatMapFromFlat(v []float64) *HeatMap {
	h := &HeatMap{}
	if len(v) < 2*12*24 {
		return h
	}
	for m := 0; m < 12; m++ {
		copy(h.Counts[m][:], v[m*24:(m+1)*24])
		copy(h.Observations[m][:], v[288+m*24:288+(m+1)*24])
	}
	return h
}
