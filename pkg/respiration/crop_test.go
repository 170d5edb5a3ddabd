package respiration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resptrace/pkg/volume"
)

// breathingVolume embeds a 0.25 Hz oscillation into lines [lineLo, lineHi)
// and leaves every other line flat.
func breathingVolume(lines, slices, samples int, fs float64, lineLo, lineHi int) *volume.Volume {
	v := volume.New(lines, slices, samples, fs)
	for ln := lineLo; ln < lineHi; ln++ {
		for sl := 0; sl < slices; sl++ {
			for sm := 0; sm < samples; sm++ {
				t := float64(sm) / fs
				v.Set(ln, sl, sm, math.Sin(2*math.Pi*0.25*t))
			}
		}
	}
	return v
}

func TestDetectCropFindsOscillatingBand(t *testing.T) {
	lines, slices, samples := 40, 20, 64
	v := breathingVolume(lines, slices, samples, 1.0, 15, 26)

	rect, diag, err := DetectCrop(v, DefaultCropOptions())
	require.NoError(t, err)
	require.NotNil(t, diag)

	assert.NoError(t, rect.Valid(lines, slices))
	assert.GreaterOrEqual(t, diag.Centerline, 15)
	assert.LessOrEqual(t, diag.Centerline, 25)
	assert.Equal(t, 0, rect.SliceMin)
	assert.Equal(t, slices, rect.SliceMax)

	// Unclamped window of twice the half width around the centerline.
	assert.Equal(t, diag.Centerline-diag.HalfWidth, rect.LineMin)
	assert.Equal(t, diag.Centerline+diag.HalfWidth, rect.LineMax)
	assert.Equal(t, 16, rect.LineMax-rect.LineMin)

	// The oscillating lines dominate the band energy.
	var inside, outside float64
	for ln, e := range diag.BandEnergy {
		if ln >= 15 && ln < 26 {
			inside += e
		} else {
			outside += e
		}
	}
	assert.Greater(t, inside, outside)
}

func TestDetectCropConstantVolume(t *testing.T) {
	// Zero spectral range exercises the floored normalization denominator.
	v := volume.New(16, 4, 32, 1.0)
	for ln := 0; ln < 16; ln++ {
		for sl := 0; sl < 4; sl++ {
			for sm := 0; sm < 32; sm++ {
				v.Set(ln, sl, sm, 5)
			}
		}
	}

	rect, diag, err := DetectCrop(v, DefaultCropOptions())
	require.NoError(t, err)
	assert.NoError(t, rect.Valid(16, 4))
	for _, e := range diag.BandEnergy {
		assert.False(t, math.IsNaN(e) || math.IsInf(e, 0))
	}
}

func TestDetectCropEmptyBand(t *testing.T) {
	// At fs 0.2 the Nyquist limit is 0.1 Hz, below the respiratory band.
	v := breathingVolume(16, 2, 32, 0.2, 4, 12)

	_, _, err := DetectCrop(v, DefaultCropOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "band")
}

func TestDetectCropRejectsBadInputs(t *testing.T) {
	small := volume.New(1, 2, 8, 1)
	_, _, err := DetectCrop(small, DefaultCropOptions())
	assert.Error(t, err)

	v := breathingVolume(16, 2, 32, 1, 4, 12)
	opts := DefaultCropOptions()
	opts.Fraction = 1.5
	_, _, err = DetectCrop(v, opts)
	assert.Error(t, err)
}

func TestConvolveUniformSame(t *testing.T) {
	x := []float64{1, 0, 0, 0, 1}
	got := convolveUniformSame(x, 3)
	assert.Equal(t, []float64{1, 1, 0, 1, 1}, got)

	// Even widths align left of center.
	got = convolveUniformSame([]float64{1, 0, 0, 0}, 2)
	assert.Equal(t, []float64{1, 1, 0, 0}, got)
}

func TestFFTFreqLayout(t *testing.T) {
	got := fftFreq(4, 1)
	assert.Equal(t, []float64{0, 0.25, -0.5, -0.25}, got)

	shifted := fftShiftFloat(got)
	assert.Equal(t, []float64{-0.5, -0.25, 0, 0.25}, shifted)
}
