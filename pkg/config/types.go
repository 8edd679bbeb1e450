package config

import "github.com/GoSim-25-26J-441/adequacy-core/pkg/models"

// Dispatch model names accepted in RunConfig.Model
const (
	ModelZonal       = "zonal"
	ModelCopperSheet = "copper_sheet"
)

// Defaults applied when a field is omitted
const (
	DefaultSimHours        = 8760
	DefaultLoadFactor      = 1.0
	DefaultBaseMVA         = 100.0
	DefaultCurtailmentCost = 1000.0
)

// RunConfig represents the main simulation configuration
type RunConfig struct {
	LogLevel         string            `yaml:"log_level"`
	Samples          int               `yaml:"samples"`
	SimHours         int               `yaml:"sim_hours"`
	LoadFactor       float64           `yaml:"load_factor"`
	Model            string            `yaml:"model"`
	BaseMVA          float64           `yaml:"base_mva"`
	CurtailmentCost  float64           `yaml:"curtailment_cost"`
	Seed             int64             `yaml:"seed"`
	Workers          int               `yaml:"workers"`
	TrackConvergence bool              `yaml:"track_convergence"`
	Convergence      ConvergenceConfig `yaml:"convergence"`
	SystemFile       string            `yaml:"system_file,omitempty"`
	System           *System           `yaml:"system,omitempty"`
	Outputs          OutputConfig      `yaml:"outputs"`
	Store            StoreConfig       `yaml:"store"`
}

// ConvergenceConfig selects the convergence signal reported while a run progresses
type ConvergenceConfig struct {
	Strategy       string  `yaml:"strategy"` // cov, plateau, combined
	CoVThreshold   float64 `yaml:"cov_threshold"`
	MinSamples     int     `yaml:"min_samples"`
	PlateauSamples int     `yaml:"plateau_samples"`
	Tolerance      float64 `yaml:"tolerance"`
}

// OutputConfig controls where result tables are written
type OutputConfig struct {
	Dir string    `yaml:"dir,omitempty"`
	S3  *S3Config `yaml:"s3,omitempty"`
}

// S3Config describes an S3 (or S3-compatible) bucket for result tables
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

// StoreConfig selects the SQL database for run persistence
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // sqlite or postgres
	DSN    string `yaml:"dsn,omitempty"`
}

// System is the parsed input of one adequacy study.
// Load[h][z] is the demand of zone z at hour h in MW.
type System struct {
	models.Inventory `yaml:",inline"`
	Load             [][]float64       `yaml:"load"`
	Wind             *models.WindData  `yaml:"wind,omitempty"`
	Solar            *models.SolarData `yaml:"solar,omitempty"`
}

// Zones returns the number of buses
func (s *System) Zones() int {
	return len(s.Buses)
}
