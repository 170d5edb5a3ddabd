package respiration

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resptrace/pkg/config"
	"resptrace/pkg/volume"
)

func testParams(t *testing.T) Params {
	t.Helper()
	p := ParamsFromConfig(config.DefaultConfig())
	p.OutputDir = t.TempDir()
	p.SaveVolumes = false
	p.Workers = 2
	return p
}

// bodyVolume builds a bright rectangular body whose sample profile carries a
// 0.25 Hz oscillation, surrounded by dark background.
func bodyVolume(lines, slices, samples int, fs float64) *volume.Volume {
	v := volume.New(lines, slices, samples, fs)
	for ln := lines / 4; ln < 3*lines/4; ln++ {
		for sl := 0; sl < slices; sl++ {
			for sm := samples / 4; sm < 3*samples/4; sm++ {
				t := float64(sm) / fs
				v.Set(ln, sl, sm, 100+20*math.Sin(2*math.Pi*0.25*t))
			}
		}
	}
	return v
}

func TestNewEstimatorRejectsUnknownMethod(t *testing.T) {
	p := testParams(t)
	p.Method = "thorax_volume"
	p.OutputDir = filepath.Join(t.TempDir(), "out")

	est, err := NewEstimator(p)
	require.Error(t, err)
	assert.Nil(t, est)

	var unknownErr *UnknownMethodError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "thorax_volume", unknownErr.Method)

	// Rejection happens before any output is provisioned.
	_, statErr := os.Stat(p.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEstimatorRunWithoutCrop(t *testing.T) {
	p := testParams(t)
	p.DisableCrop = true

	est, err := NewEstimator(p)
	require.NoError(t, err)

	vol := bodyVolume(24, 6, 24, 1.0)
	res, err := est.Run(context.Background(), vol)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.Cropped)
	require.Len(t, res.Raw, 6)
	require.Len(t, res.Trend, 6)
	require.Len(t, res.Residual, 6)
	for i := range res.Raw {
		assert.Equal(t, res.Raw[i]-res.Trend[i], res.Residual[i], "slice %d", i)
	}

	// The trace file lands in the output tree.
	_, statErr := os.Stat(est.Paths().TraceTSV())
	assert.NoError(t, statErr)
}

func TestEstimatorRunWithCrop(t *testing.T) {
	p := testParams(t)

	est, err := NewEstimator(p)
	require.NoError(t, err)

	vol := bodyVolume(32, 6, 32, 1.0)
	res, err := est.Run(context.Background(), vol)
	require.NoError(t, err)

	assert.True(t, res.Cropped)
	assert.NoError(t, res.CropRect.Valid(32, 6))
	assert.Len(t, res.Raw, 6)
}

func TestEstimatorRunStageErrorNamesStage(t *testing.T) {
	p := testParams(t)

	est, err := NewEstimator(p)
	require.NoError(t, err)

	// Sampling frequency of 0.2 Hz puts the Nyquist limit below the
	// respiratory band, so crop detection must fail.
	vol := bodyVolume(24, 4, 24, 0.2)
	res, err := est.Run(context.Background(), vol)
	require.Error(t, err)
	assert.Nil(t, res)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageCrop, stageErr.Stage)
}

func TestEstimatorRunPartialResultOnDetrendFailure(t *testing.T) {
	p := testParams(t)
	p.DisableCrop = true
	p.Trend.NoiseLevelBounds = [2]float64{5, 2} // inverted bounds

	est, err := NewEstimator(p)
	require.NoError(t, err)

	vol := bodyVolume(24, 6, 24, 1.0)
	res, err := est.Run(context.Background(), vol)
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageDetrend, stageErr.Stage)

	// The raw trace survives a failed trend fit.
	require.NotNil(t, res)
	assert.Len(t, res.Raw, 6)
	assert.Nil(t, res.Trend)
	assert.Nil(t, res.Residual)
}

func TestEstimatorRunPersistsVolumes(t *testing.T) {
	p := testParams(t)
	p.DisableCrop = true
	p.SaveVolumes = true

	est, err := NewEstimator(p)
	require.NoError(t, err)

	vol := bodyVolume(24, 4, 24, 1.0)
	_, err = est.Run(context.Background(), vol)
	require.NoError(t, err)

	for _, dir := range []string{
		est.Paths().InitializedContours(),
		est.Paths().FilteredContours(),
		est.Paths().RefinedContours(),
	} {
		entries, readErr := os.ReadDir(dir)
		require.NoError(t, readErr, dir)
		assert.NotEmpty(t, entries, dir)
	}
}

func TestParamsFromConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Processing.Workers = 7
	cfg.Crop.BandMax = 0.35
	cfg.Trend.NoiseLevelMax = 500

	p := ParamsFromConfig(cfg)
	assert.Equal(t, config.MethodBodyArea, p.Method)
	assert.Equal(t, 7, p.Workers)
	assert.Equal(t, 0.35, p.Crop.BandMax)
	assert.Equal(t, [2]float64{10, 500}, p.Trend.NoiseLevelBounds)
}
