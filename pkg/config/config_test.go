package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.Method != MethodBodyArea {
		t.Errorf("default method = %q, want %q", cfg.Processing.Method, MethodBodyArea)
	}
	if cfg.Crop.BandMin != 0.15 || cfg.Crop.BandMax != 0.4 {
		t.Errorf("default band = [%v, %v], want [0.15, 0.4]", cfg.Crop.BandMin, cfg.Crop.BandMax)
	}
	if cfg.Boundary.MedianKernel%2 != 1 {
		t.Errorf("default median kernel %d not odd", cfg.Boundary.MedianKernel)
	}
	if cfg.Trend.LengthScaleMin >= cfg.Trend.LengthScaleMax {
		t.Errorf("default length-scale bounds inverted: [%v, %v]", cfg.Trend.LengthScaleMin, cfg.Trend.LengthScaleMax)
	}
	if cfg.Trend.NoiseLevelMin >= cfg.Trend.NoiseLevelMax {
		t.Errorf("default noise bounds inverted: [%v, %v]", cfg.Trend.NoiseLevelMin, cfg.Trend.NoiseLevelMax)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg.Boundary.TVWeight != want.Boundary.TVWeight {
		t.Errorf("missing file did not yield defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "resptrace.yaml")

	cfg := DefaultConfig()
	cfg.Processing.Workers = 3
	cfg.Processing.DisableCrop = true
	cfg.Crop.Fraction = 0.25
	cfg.Boundary.ContourIterations = 7
	cfg.Output.Dir = "elsewhere"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if loaded.Processing.Workers != 3 {
		t.Errorf("workers = %d, want 3", loaded.Processing.Workers)
	}
	if !loaded.Processing.DisableCrop {
		t.Errorf("disableCrop not preserved")
	}
	if loaded.Crop.Fraction != 0.25 {
		t.Errorf("fraction = %v, want 0.25", loaded.Crop.Fraction)
	}
	if loaded.Boundary.ContourIterations != 7 {
		t.Errorf("contourIterations = %d, want 7", loaded.Boundary.ContourIterations)
	}
	if loaded.Output.Dir != "elsewhere" {
		t.Errorf("output dir = %q, want %q", loaded.Output.Dir, "elsewhere")
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resptrace.yaml")
	partial := "processing:\n  workers: 9\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Processing.Workers != 9 {
		t.Errorf("workers = %d, want 9", cfg.Processing.Workers)
	}
	if cfg.Crop.BandMax != 0.4 {
		t.Errorf("untouched field lost its default: bandMax = %v", cfg.Crop.BandMax)
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("processing: [\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed YAML accepted")
	}
}
