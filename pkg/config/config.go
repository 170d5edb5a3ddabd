// Package config provides configuration loading and management for resptrace.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MethodBodyArea is the only estimation method currently defined: the
// respiratory signal is tracked through the per-slice body cross-section area.
const MethodBodyArea = "body_area"

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Processing parameters
	Processing struct {
		// Method selects the respiration-estimation method. Only "body_area"
		// is recognized; anything else is a fatal configuration error.
		Method string `yaml:"method"`

		// Workers is the worker-pool size for per-slice stages. 0 selects the
		// default policy (available execution units minus one, floored at 1).
		Workers int `yaml:"workers"`

		// DisableCrop skips frequency-based auto-cropping when true.
		DisableCrop bool `yaml:"disableCrop"`

		// SamplingFreq overrides the sample-axis sampling frequency in Hz when
		// the input header carries no usable spacing.
		SamplingFreq float64 `yaml:"samplingFreq"`
	} `yaml:"processing"`

	// Crop parameters for the frequency-band detector
	Crop struct {
		// BandMin and BandMax bound the open respiratory band in Hz.
		BandMin float64 `yaml:"bandMin"`
		BandMax float64 `yaml:"bandMax"`

		// Fraction is the portion of the line axis retained around the
		// detected centerline.
		Fraction float64 `yaml:"fraction"`

		// SmoothSigma is the Gaussian sigma applied to the line-frequency
		// matrix before band selection.
		SmoothSigma float64 `yaml:"smoothSigma"`
	} `yaml:"crop"`

	// Boundary initialization and refinement parameters
	Boundary struct {
		// MedianKernel is the median prefilter window width.
		MedianKernel int `yaml:"medianKernel"`

		// TVWeight is the total-variation data-fidelity weight; smaller
		// denoises harder.
		TVWeight float64 `yaml:"tvWeight"`

		// TVIterations bounds the denoiser's dual projection loop.
		TVIterations int `yaml:"tvIterations"`

		// EdgeAlpha and EdgeSigma shape the inverse-Gaussian edge map.
		EdgeAlpha float64 `yaml:"edgeAlpha"`
		EdgeSigma float64 `yaml:"edgeSigma"`

		// ContourIterations is the active-contour evolution budget per slice.
		ContourIterations int `yaml:"contourIterations"`

		// ContourSmoothing is the curvature-regularization strength.
		ContourSmoothing int `yaml:"contourSmoothing"`

		// ContourBalloon is the outward-expansion force.
		ContourBalloon float64 `yaml:"contourBalloon"`

		// EdgeCropFraction is the share of lines trimmed from both line-axis
		// ends of the refined mask to discard evolution artifacts.
		EdgeCropFraction float64 `yaml:"edgeCropFraction"`
	} `yaml:"boundary"`

	// Trend-filter parameters
	Trend struct {
		// LengthScale seeds the smooth-term length scale, searched within
		// [LengthScaleMin, LengthScaleMax].
		LengthScale    float64 `yaml:"lengthScale"`
		LengthScaleMin float64 `yaml:"lengthScaleMin"`
		LengthScaleMax float64 `yaml:"lengthScaleMax"`

		// NoiseLevel seeds the noise term, searched within
		// [NoiseLevelMin, NoiseLevelMax].
		NoiseLevel    float64 `yaml:"noiseLevel"`
		NoiseLevelMin float64 `yaml:"noiseLevelMin"`
		NoiseLevelMax float64 `yaml:"noiseLevelMax"`
	} `yaml:"trend"`

	// Output parameters
	Output struct {
		// Dir is the root directory for persisted artifacts.
		Dir string `yaml:"dir"`

		// SaveVolumes persists the intermediate volumes (cropped, initialized,
		// filtered, refined) after their stages.
		SaveVolumes bool `yaml:"saveVolumes"`

		// PlotFigures renders diagnostic plots of the frequency matrix and
		// the extracted trace.
		PlotFigures bool `yaml:"plotFigures"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Method = MethodBodyArea
	cfg.Processing.Workers = 0 // default worker policy
	cfg.Processing.DisableCrop = false
	cfg.Processing.SamplingFreq = 0

	cfg.Crop.BandMin = 0.15
	cfg.Crop.BandMax = 0.4
	cfg.Crop.Fraction = 0.4
	cfg.Crop.SmoothSigma = 1.2

	cfg.Boundary.MedianKernel = 5
	cfg.Boundary.TVWeight = 0.003
	cfg.Boundary.TVIterations = 50
	cfg.Boundary.EdgeAlpha = 10
	cfg.Boundary.EdgeSigma = 1.5
	cfg.Boundary.ContourIterations = 20
	cfg.Boundary.ContourSmoothing = 2
	cfg.Boundary.ContourBalloon = 1.2
	cfg.Boundary.EdgeCropFraction = 0.12

	cfg.Trend.LengthScale = 5
	cfg.Trend.LengthScaleMin = 2
	cfg.Trend.LengthScaleMax = 20
	cfg.Trend.NoiseLevel = 50
	cfg.Trend.NoiseLevelMin = 10
	cfg.Trend.NoiseLevelMax = 1000

	cfg.Output.Dir = "resptrace_output"
	cfg.Output.SaveVolumes = true
	cfg.Output.PlotFigures = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't exist,
// it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}

	return nil
}
