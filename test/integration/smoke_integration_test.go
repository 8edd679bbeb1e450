//go:build integration
// +build integration

package integration_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/utils"
)

func loadExampleConfig(t *testing.T) *config.RunConfig {
	t.Helper()
	cfgPath := filepath.Join("..", "..", "config", "adequacy.yaml")
	cfg, err := config.LoadRunConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadRunConfig(%s) failed: %v", cfgPath, err)
	}
	return cfg
}

func TestIntegration_ConfigLoadSmoke(t *testing.T) {
	cfg := loadExampleConfig(t)
	if cfg.System == nil {
		t.Fatalf("expected system_file to be resolved")
	}
	if cfg.System.Zones() != 2 {
		t.Fatalf("expected two zones, got %d", cfg.System.Zones())
	}
	if cfg.System.Wind == nil || cfg.System.Solar == nil {
		t.Fatalf("expected wind and solar data in the example system")
	}
}

func TestIntegration_EngineRunFromExampleConfig(t *testing.T) {
	cfg := loadExampleConfig(t)
	cfg.LogLevel = "error"

	e, err := engine.New(cfg, engine.Options{RunID: utils.GenerateRunID()})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	res, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ix := res.Indices
	if res.Samples != cfg.Samples*cfg.Workers {
		t.Fatalf("Samples = %d, want %d", res.Samples, cfg.Samples*cfg.Workers)
	}
	if ix.LOLP < 0 || ix.LOLP > 1 {
		t.Fatalf("LOLP out of range: %v", ix.LOLP)
	}
	if math.Abs(ix.LOLH-ix.LOLP*8760) > 1e-9 {
		t.Errorf("LOLH = %v, want LOLP*8760 = %v", ix.LOLH, ix.LOLP*8760)
	}
	if ix.EUE < 0 || ix.EPNS < 0 || ix.LOLF < 0 || ix.MDT < 0 || ix.LOLE < 0 {
		t.Errorf("negative index in %+v", ix)
	}
	if len(res.Convergence) != cfg.Samples {
		t.Errorf("convergence trace has %d points, want one per round (%d)", len(res.Convergence), cfg.Samples)
	}
	for _, p := range res.Convergence {
		if p.Mean > 0 && (math.IsNaN(p.CoV) || p.CoV < 0) {
			t.Errorf("CoV should be finite and non-negative once the mean is positive, got %v", p)
		}
	}
}
