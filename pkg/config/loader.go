package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// LoadRunConfig loads and parses a run configuration file. A relative
// system_file is resolved against the directory of path.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseRunConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.System == nil && cfg.SystemFile != "" {
		sysPath := cfg.SystemFile
		if !filepath.IsAbs(sysPath) {
			sysPath = filepath.Join(filepath.Dir(path), sysPath)
		}
		sys, err := LoadSystem(sysPath)
		if err != nil {
			return nil, err
		}
		cfg.System = sys
	}

	if err := CheckRunSystem(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSystem loads and parses a system file
func LoadSystem(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system file %s: %w", path, err)
	}
	sys, err := ParseSystemYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system file %s: %w", path, err)
	}
	return sys, nil
}

// CheckRunSystem verifies that the run has a system and that the system
// covers the simulated horizon.
func CheckRunSystem(cfg *RunConfig) error {
	if cfg.System == nil {
		return fmt.Errorf("%w: no system provided (set system or system_file)", ErrInvalid)
	}
	if len(cfg.System.Load) < cfg.SimHours {
		return fmt.Errorf("%w: load has %d hours, sim_hours is %d", ErrInvalid, len(cfg.System.Load), cfg.SimHours)
	}
	return nil
}

// ValidateSystem checks the component tables for consistency
func ValidateSystem(sys *System) error {
	if err := validateSystem(sys); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ValidateRun checks a run configuration, including an inline system.
// Defaults are not applied.
func ValidateRun(cfg *RunConfig) error {
	if err := validateRun(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// validateRun performs validation on the run configuration
func validateRun(cfg *RunConfig) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Samples <= 0 {
		return fmt.Errorf("samples must be positive")
	}
	if cfg.SimHours <= 0 {
		return fmt.Errorf("sim_hours must be positive")
	}
	if cfg.LoadFactor <= 0 {
		return fmt.Errorf("load_factor must be positive")
	}
	if cfg.Model != ModelZonal && cfg.Model != ModelCopperSheet {
		return fmt.Errorf("invalid model: %s (must be %s or %s)", cfg.Model, ModelZonal, ModelCopperSheet)
	}
	if cfg.BaseMVA <= 0 {
		return fmt.Errorf("base_mva must be positive")
	}
	if cfg.CurtailmentCost <= 0 {
		return fmt.Errorf("curtailment_cost must be positive")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if err := validateConvergence(&cfg.Convergence); err != nil {
		return fmt.Errorf("convergence validation failed: %w", err)
	}

	switch cfg.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite or postgres)", cfg.Store.Driver)
	}
	if cfg.Outputs.S3 != nil && cfg.Outputs.S3.Bucket == "" {
		return fmt.Errorf("outputs.s3.bucket is required")
	}

	if cfg.System != nil {
		if err := validateSystem(cfg.System); err != nil {
			return fmt.Errorf("system validation failed: %w", err)
		}
	}

	return nil
}

func validateConvergence(c *ConvergenceConfig) error {
	switch c.Strategy {
	case "cov", "plateau", "combined":
	default:
		return fmt.Errorf("invalid strategy: %s (must be cov, plateau, or combined)", c.Strategy)
	}
	if c.CoVThreshold < 0 {
		return fmt.Errorf("cov_threshold cannot be negative")
	}
	if c.MinSamples < 0 || c.PlateauSamples < 0 {
		return fmt.Errorf("sample counts cannot be negative")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}
	return nil
}

// validateSystem validates the component inventory, load and renewable tables
func validateSystem(sys *System) error {
	nb := len(sys.Buses)
	if nb == 0 {
		return fmt.Errorf("at least one bus must be defined")
	}
	for i, b := range sys.Buses {
		if b.Index != i+1 {
			return fmt.Errorf("buses[%d]: index %d out of order (buses must be numbered 1..%d in order)", i, b.Index, nb)
		}
	}
	busOK := func(b int) bool { return b >= 1 && b <= nb }

	for i, g := range sys.Generators {
		if !busOK(g.Bus) {
			return fmt.Errorf("generators[%d] %s: bus %d out of range", i, g.Name, g.Bus)
		}
		if g.MinMW < 0 || g.MaxMW < g.MinMW {
			return fmt.Errorf("generators[%d] %s: need 0 <= min_mw <= max_mw", i, g.Name)
		}
	}

	for i, l := range sys.Lines {
		if !busOK(l.From) || !busOK(l.To) {
			return fmt.Errorf("lines[%d] %s: bus out of range", i, l.Name)
		}
		if l.From == l.To {
			return fmt.Errorf("lines[%d] %s: from and to are the same bus", i, l.Name)
		}
		if l.RatingMW < 0 || math.IsNaN(l.RatingMW) {
			return fmt.Errorf("lines[%d] %s: rating_mw cannot be negative", i, l.Name)
		}
	}

	for i, s := range sys.Storage {
		if !busOK(s.Bus) {
			return fmt.Errorf("storage[%d] %s: bus %d out of range", i, s.Name, s.Bus)
		}
		if s.MinMW < 0 || s.PowerMW < s.MinMW {
			return fmt.Errorf("storage[%d] %s: need 0 <= min_mw <= power_mw", i, s.Name)
		}
		if s.DurationH <= 0 {
			return fmt.Errorf("storage[%d] %s: duration_h must be positive", i, s.Name)
		}
		if s.SOCMin < 0 || s.SOCMax > 1 || s.SOCMin > s.SOCMax {
			return fmt.Errorf("storage[%d] %s: need 0 <= soc_min <= soc_max <= 1", i, s.Name)
		}
		if s.Efficiency <= 0 || s.Efficiency > 1 {
			return fmt.Errorf("storage[%d] %s: efficiency must be in (0, 1]", i, s.Name)
		}
		if s.Units < 0 {
			return fmt.Errorf("storage[%d] %s: units cannot be negative", i, s.Name)
		}
	}

	if len(sys.Load) == 0 {
		return fmt.Errorf("load must have at least one hour")
	}
	for h, row := range sys.Load {
		if len(row) != nb {
			return fmt.Errorf("load[%d]: has %d zones, expected %d", h, len(row), nb)
		}
		for z, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("load[%d][%d]: not a finite number", h, z)
			}
		}
	}

	if sys.Wind != nil {
		if err := validateWind(sys, busOK); err != nil {
			return fmt.Errorf("wind validation failed: %w", err)
		}
	}
	if sys.Solar != nil {
		if err := validateSolar(sys, busOK); err != nil {
			return fmt.Errorf("solar validation failed: %w", err)
		}
	}

	return nil
}

func validateWind(sys *System, busOK func(int) bool) error {
	w := sys.Wind
	if len(w.Sites) == 0 {
		return nil
	}
	if len(w.PowerCurves) == 0 {
		return fmt.Errorf("at least one power curve must be defined")
	}
	classes := len(w.PowerCurves[0])
	if classes == 0 {
		return fmt.Errorf("power_curves[0] is empty")
	}
	for c, curve := range w.PowerCurves {
		if len(curve) != classes {
			return fmt.Errorf("power_curves[%d]: has %d classes, expected %d", c, len(curve), classes)
		}
	}

	for i, site := range w.Sites {
		if !busOK(site.Zone) {
			return fmt.Errorf("sites[%d] %s: zone %d out of range", i, site.Name, site.Zone)
		}
		if site.PowerClass < 0 || site.PowerClass >= len(w.PowerCurves) {
			return fmt.Errorf("sites[%d] %s: power_class %d has no curve", i, site.Name, site.PowerClass)
		}
		if site.MaxMW < 0 {
			return fmt.Errorf("sites[%d] %s: max_mw cannot be negative", i, site.Name)
		}
		if site.TurbineRatingMW <= 0 {
			return fmt.Errorf("sites[%d] %s: turbine_rating_mw must be positive", i, site.Name)
		}
		if len(site.TransitionRates) != classes {
			return fmt.Errorf("sites[%d] %s: transition_rates has %d rows, expected %d", i, site.Name, len(site.TransitionRates), classes)
		}
		for r, row := range site.TransitionRates {
			if len(row) != classes {
				return fmt.Errorf("sites[%d] %s: transition_rates[%d] has %d columns, expected %d", i, site.Name, r, len(row), classes)
			}
			sum := 0.0
			for _, v := range row {
				if v < 0 || math.IsNaN(v) {
					return fmt.Errorf("sites[%d] %s: transition_rates[%d] has a negative rate", i, site.Name, r)
				}
				sum += v
			}
			if sum == 0 {
				return fmt.Errorf("sites[%d] %s: transition_rates[%d] is all zero", i, site.Name, r)
			}
		}
	}
	return nil
}

func validateSolar(sys *System, busOK func(int) bool) error {
	s := sys.Solar
	if len(s.Sites) == 0 {
		return nil
	}
	for i, site := range s.Sites {
		if !busOK(site.Zone) {
			return fmt.Errorf("sites[%d] %s: zone %d out of range", i, site.Name, site.Zone)
		}
		if site.MaxMW < 0 {
			return fmt.Errorf("sites[%d] %s: max_mw cannot be negative", i, site.Name)
		}
	}
	if len(s.Clusters) == 0 {
		return fmt.Errorf("at least one cluster must be defined")
	}

	var monthTotals [12]float64
	for c, cl := range s.Clusters {
		if len(cl.MonthProbability) != 12 {
			return fmt.Errorf("clusters[%d] %s: month_probability needs 12 entries, got %d", c, cl.Name, len(cl.MonthProbability))
		}
		for m, p := range cl.MonthProbability {
			if p < 0 || math.IsNaN(p) {
				return fmt.Errorf("clusters[%d] %s: month_probability[%d] cannot be negative", c, cl.Name, m)
			}
			monthTotals[m] += p
		}
		if len(cl.Days) == 0 {
			return fmt.Errorf("clusters[%d] %s: no days", c, cl.Name)
		}
		for d, day := range cl.Days {
			if len(day) != 24 {
				return fmt.Errorf("clusters[%d] %s: days[%d] has %d hours, expected 24", c, cl.Name, d, len(day))
			}
			for h, row := range day {
				if len(row) != len(s.Sites) {
					return fmt.Errorf("clusters[%d] %s: days[%d][%d] has %d sites, expected %d", c, cl.Name, d, h, len(row), len(s.Sites))
				}
			}
		}
	}
	for m, total := range monthTotals {
		if total == 0 {
			return fmt.Errorf("month %d has zero total cluster probability", m+1)
		}
	}
	return nil
}
