// Package respiration implements the body-area respiration-estimation
// pipeline: frequency-band auto-cropping, parallel boundary initialization
// and refinement, area-trace extraction and trend/residual decomposition.
package respiration

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"resptrace/pkg/config"
	"resptrace/pkg/gpr"
	"resptrace/pkg/volume"
)

// Params configures one pipeline run.
type Params struct {
	// Method selects the estimation method; only config.MethodBodyArea is
	// defined.
	Method string

	// DisableCrop skips the frequency-based auto-crop stage.
	DisableCrop bool

	// Workers is the per-slice worker-pool size; 0 selects the default policy.
	Workers int

	// SaveVolumes persists intermediate volumes after their stages.
	SaveVolumes bool

	// PlotFigures renders diagnostic figures. Never affects results.
	PlotFigures bool

	// OutputDir roots all persisted artifacts.
	OutputDir string

	Crop     CropOptions
	Boundary BoundaryOptions
	Refine   RefineOptions
	Trend    gpr.Config
}

// BoundaryOptions tune the initialization stage.
type BoundaryOptions struct {
	MedianKernel int
}

// ParamsFromConfig maps the YAML configuration onto pipeline parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Method:      cfg.Processing.Method,
		DisableCrop: cfg.Processing.DisableCrop,
		Workers:     cfg.Processing.Workers,
		SaveVolumes: cfg.Output.SaveVolumes,
		PlotFigures: cfg.Output.PlotFigures,
		OutputDir:   cfg.Output.Dir,
		Crop: CropOptions{
			BandMin:     cfg.Crop.BandMin,
			BandMax:     cfg.Crop.BandMax,
			Fraction:    cfg.Crop.Fraction,
			SmoothSigma: cfg.Crop.SmoothSigma,
		},
		Boundary: BoundaryOptions{
			MedianKernel: cfg.Boundary.MedianKernel,
		},
		Refine: RefineOptions{
			TVWeight:          cfg.Boundary.TVWeight,
			TVIterations:      cfg.Boundary.TVIterations,
			EdgeAlpha:         cfg.Boundary.EdgeAlpha,
			EdgeSigma:         cfg.Boundary.EdgeSigma,
			ContourIterations: cfg.Boundary.ContourIterations,
			ContourSmoothing:  cfg.Boundary.ContourSmoothing,
			ContourBalloon:    cfg.Boundary.ContourBalloon,
			EdgeCropFraction:  cfg.Boundary.EdgeCropFraction,
		},
		Trend: gpr.Config{
			LengthScale:       cfg.Trend.LengthScale,
			LengthScaleBounds: [2]float64{cfg.Trend.LengthScaleMin, cfg.Trend.LengthScaleMax},
			NoiseLevel:        cfg.Trend.NoiseLevel,
			NoiseLevelBounds:  [2]float64{cfg.Trend.NoiseLevelMin, cfg.Trend.NoiseLevelMax},
		},
	}
}

// Result carries the pipeline outputs. Raw is always populated once the
// extract stage succeeds; Trend and Residual stay nil when the trend fit
// fails (that failure is reported through the returned error).
type Result struct {
	Raw      []float64
	Trend    []float64
	Residual []float64

	// CropRect is the detected crop region; Cropped reports whether it was
	// applied.
	CropRect volume.Rect
	Cropped  bool
}

// state threads the per-stage artifacts through the pipeline explicitly; each
// stage consumes the previous state and returns a new one, so ordering is
// visible in Run and no stage mutates another's fields.
type state struct {
	source      *volume.Volume
	initialized *volume.Volume
	filtered    *volume.Volume
	refined     *volume.Volume
	cropRect    volume.Rect
	cropped     bool
}

// Estimator runs the respiration-estimation pipeline.
type Estimator struct {
	params Params
	paths  *Paths
}

// NewEstimator validates the method selector and prepares the output tree.
// An unrecognized method fails here, before any volume processing.
func NewEstimator(params Params) (*Estimator, error) {
	if params.Method != config.MethodBodyArea {
		return nil, &UnknownMethodError{Method: params.Method}
	}
	paths, err := NewPaths(params.OutputDir)
	if err != nil {
		return nil, err
	}
	return &Estimator{params: params, paths: paths}, nil
}

// Paths exposes the artifact path provider.
func (e *Estimator) Paths() *Paths { return e.paths }

// Run executes the pipeline stages in order on vol, which is cropped in
// place when auto-cropping is enabled. Structural failures come back as
// *StageError naming the failing stage. A failed trend fit still returns the
// raw signal alongside the error so callers can keep the unfiltered trace.
func (e *Estimator) Run(ctx context.Context, vol *volume.Volume) (*Result, error) {
	st := state{source: vol}

	var err error
	if st, err = e.runCrop(st); err != nil {
		return nil, &StageError{Stage: StageCrop, Err: err}
	}

	if st, err = e.runInitialize(ctx, st); err != nil {
		return nil, &StageError{Stage: StageInitialize, Err: err}
	}

	if st, err = e.runRefine(ctx, st); err != nil {
		return nil, &StageError{Stage: StageRefine, Err: err}
	}

	res := &Result{CropRect: st.cropRect, Cropped: st.cropped}

	start := time.Now()
	res.Raw = ExtractTrace(st.refined)
	if len(res.Raw) == 0 {
		return nil, &StageError{Stage: StageExtract, Err: errors.New("empty refined mask")}
	}
	log.Info().Str("stage", string(StageExtract)).Int("slices", len(res.Raw)).
		Dur("elapsed", time.Since(start)).Msg("extracted area trace")

	start = time.Now()
	trend, residual, err := gpr.Detrend(res.Raw, e.params.Trend)
	if err != nil {
		// Reported, not silently swallowed: the raw trace survives, with
		// zeroed trend and residual columns in the table.
		zeros := make([]float64, len(res.Raw))
		if wErr := WriteTraceTSV(e.paths.TraceTSV(), res.Raw, zeros, zeros); wErr != nil {
			log.Warn().Err(wErr).Msg("raw trace not written")
		}
		return res, &StageError{Stage: StageDetrend, Err: err}
	}
	res.Trend = trend
	res.Residual = residual
	log.Info().Str("stage", string(StageDetrend)).Dur("elapsed", time.Since(start)).
		Msg("separated trend and respiratory trace")

	if err := WriteTraceTSV(e.paths.TraceTSV(), res.Raw, res.Trend, res.Residual); err != nil {
		return res, &StageError{Stage: StageDetrend, Err: err}
	}
	if e.params.PlotFigures {
		if err := SaveTraceFigure(res.Raw, res.Trend, res.Residual, e.paths.TraceFigure()); err != nil {
			log.Warn().Err(err).Msg("trace figure not saved")
		}
	}

	return res, nil
}

func (e *Estimator) runCrop(st state) (state, error) {
	if e.params.DisableCrop {
		log.Info().Str("stage", string(StageCrop)).Msg("auto-crop disabled")
		return st, nil
	}

	start := time.Now()
	rect, diag, err := DetectCrop(st.source, e.params.Crop)
	if err != nil {
		return st, err
	}

	if e.params.PlotFigures {
		if figErr := SaveFrequencyFigure(diag, e.paths.FrequencyFigure()); figErr != nil {
			log.Warn().Err(figErr).Msg("frequency figure not saved")
		}
	}

	if err := st.source.Crop(rect); err != nil {
		return st, err
	}
	st.cropRect = rect
	st.cropped = true

	lines, slices, samples := st.source.Dims()
	log.Info().Str("stage", string(StageCrop)).
		Int("centerline", diag.Centerline).Int("halfWidth", diag.HalfWidth).
		Int("lines", lines).Int("slices", slices).Int("samples", samples).
		Dur("elapsed", time.Since(start)).Msg("cropped respiration region")

	if e.params.SaveVolumes {
		if err := st.source.Persist(e.paths.Cropped()); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (e *Estimator) runInitialize(ctx context.Context, st state) (state, error) {
	start := time.Now()
	initialized, err := InitializeBoundaries(ctx, st.source, e.params.Boundary.MedianKernel, e.params.Workers)
	if err != nil {
		return st, err
	}
	st.initialized = initialized
	log.Info().Str("stage", string(StageInitialize)).Dur("elapsed", time.Since(start)).
		Msg("initialised boundaries")

	if e.params.SaveVolumes {
		if err := st.initialized.Persist(e.paths.InitializedContours()); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (e *Estimator) runRefine(ctx context.Context, st state) (state, error) {
	start := time.Now()
	filtered, refined, err := RefineBoundaries(ctx, st.source, st.initialized, e.params.Refine, e.params.Workers)
	if err != nil {
		return st, err
	}
	st.filtered = filtered
	st.refined = refined
	log.Info().Str("stage", string(StageRefine)).Dur("elapsed", time.Since(start)).
		Msg("refined boundaries")

	if e.params.SaveVolumes {
		if err := st.filtered.Persist(e.paths.FilteredContours()); err != nil {
			return st, err
		}
		if err := st.refined.Persist(e.paths.RefinedContours()); err != nil {
			return st, err
		}
	}
	return st, nil
}
