package simd

import (
	"testing"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
)

const systemDir = "../../config"

// quickConfigYAML runs the two-zone system for two days
const quickConfigYAML = `
log_level: error
samples: 3
sim_hours: 48
workers: 2
seed: 7
track_convergence: true
system_file: two_zone.yaml
`

// slowConfigYAML runs long enough to be stopped
const slowConfigYAML = `
log_level: error
samples: 100000
sim_hours: 48
workers: 1
seed: 7
system_file: two_zone.yaml
`

func loadTestConfig(t *testing.T, yamlText string) *config.RunConfig {
	t.Helper()
	cfg, err := config.ParseRunConfigYAMLString(yamlText)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	sys, err := config.LoadSystem(systemDir + "/" + cfg.SystemFile)
	if err != nil {
		t.Fatalf("load system: %v", err)
	}
	cfg.System = sys
	return cfg
}
