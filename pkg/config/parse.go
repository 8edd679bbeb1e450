package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that failed validation
var ErrInvalid = errors.New("invalid config")

// ParseRunConfigYAML parses a RunConfig from YAML bytes, applies defaults and validates it.
// A system_file reference is left unresolved; see LoadRunConfig.
func ParseRunConfigYAML(data []byte) (*RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyRunDefaults(&cfg)
	if err := validateRun(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return &cfg, nil
}

// ParseRunConfigYAMLString parses a RunConfig from a YAML string.
func ParseRunConfigYAMLString(yamlText string) (*RunConfig, error) {
	return ParseRunConfigYAML([]byte(yamlText))
}

// ParseSystemYAML parses a System from YAML bytes and validates it.
// This is used for APIs where the system is provided as payload (not via filesystem).
func ParseSystemYAML(data []byte) (*System, error) {
	var sys System
	if err := yaml.Unmarshal(data, &sys); err != nil {
		return nil, fmt.Errorf("failed to parse system yaml: %w", err)
	}

	if err := ValidateSystem(&sys); err != nil {
		return nil, err
	}

	return &sys, nil
}

// NormalizeModel maps user spellings such as "Copper Sheet" onto the model constants.
func NormalizeModel(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	m = strings.NewReplacer(" ", "_", "-", "_").Replace(m)
	if m == "copper" || m == "lite" {
		return ModelCopperSheet
	}
	return m
}

func applyRunDefaults(cfg *RunConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SimHours == 0 {
		cfg.SimHours = DefaultSimHours
	}
	if cfg.LoadFactor == 0 {
		cfg.LoadFactor = DefaultLoadFactor
	}
	if cfg.Model == "" {
		cfg.Model = ModelZonal
	}
	cfg.Model = NormalizeModel(cfg.Model)
	if cfg.BaseMVA == 0 {
		cfg.BaseMVA = DefaultBaseMVA
	}
	if cfg.CurtailmentCost == 0 {
		cfg.CurtailmentCost = DefaultCurtailmentCost
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Convergence.Strategy == "" {
		cfg.Convergence.Strategy = "cov"
	}
	if cfg.Store.Driver == "" && cfg.Store.DSN != "" {
		cfg.Store.Driver = "sqlite"
	}
}
