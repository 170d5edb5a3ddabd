package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resptrace/pkg/config"
	"resptrace/pkg/respiration"
	"resptrace/pkg/volume"
)

func main() {
	inputFile := flag.String("input", "", "Input NIfTI volume (.nii or .nii.gz)")
	outputDir := flag.String("output", "", "Output directory (overrides config)")
	configPath := flag.String("config", "resptrace.yaml", "YAML configuration file")
	method := flag.String("method", "", "Respiration estimation method (overrides config)")
	workers := flag.Int("cores", 0, "Worker count for per-slice stages (0 = auto)")
	disableCrop := flag.Bool("disable-crop", false, "Skip frequency-based auto-cropping")
	plotFigures := flag.Bool("plot", false, "Render diagnostic figures")
	samplingFreq := flag.Float64("fs", 0, "Sample-axis sampling frequency in Hz (fallback when the header has none)")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override file values.
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *method != "" {
		cfg.Processing.Method = *method
	}
	if *workers != 0 {
		cfg.Processing.Workers = *workers
	}
	if *disableCrop {
		cfg.Processing.DisableCrop = true
	}
	if *plotFigures {
		cfg.Output.PlotFigures = true
	}
	if *samplingFreq > 0 {
		cfg.Processing.SamplingFreq = *samplingFreq
	}

	setupLogging(cfg.Output.Verbose)

	params := respiration.ParamsFromConfig(cfg)
	estimator, err := respiration.NewEstimator(params)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("input", *inputFile).Msg("loading volume")
	vol, err := volume.LoadNIfTI(*inputFile, cfg.Processing.SamplingFreq)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load volume")
	}
	lines, slices, samples := vol.Dims()
	log.Info().Int("lines", lines).Int("slices", slices).Int("samples", samples).
		Float64("fs", vol.SamplingFreq()).Msg("volume loaded")

	start := time.Now()
	result, err := estimator.Run(context.Background(), vol)
	if err != nil {
		if result != nil && result.Raw != nil {
			// Trend fit failed; the raw trace is still usable.
			log.Warn().Err(err).Msg("trend separation failed, raw trace only")
		} else {
			log.Fatal().Err(err).Msg("respiration estimation failed")
		}
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("pipeline complete")

	if result.Residual != nil {
		if summary, err := respiration.Summarize(result.Residual); err == nil {
			log.Info().
				Float64("mean", summary.Mean).
				Float64("median", summary.Median).
				Float64("stddev", summary.StdDev).
				Float64("min", summary.Min).
				Float64("max", summary.Max).
				Float64("iqr", summary.IQR).
				Msg("respiratory trace summary")
		}
	}

	fmt.Printf("Respiration trace written to %s\n", estimator.Paths().TraceTSV())
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
