package respiration

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"resptrace/pkg/segmentation"
	"resptrace/pkg/volume"
)

// CropOptions tune the frequency-band crop detector. The band bounds are open:
// a bin is selected when bandMin < f < bandMax.
type CropOptions struct {
	BandMin     float64
	BandMax     float64
	Fraction    float64
	SmoothSigma float64
}

// DefaultCropOptions returns the detector defaults: the 0.15-0.4 Hz
// respiratory band with a 0.4 crop fraction.
func DefaultCropOptions() CropOptions {
	return CropOptions{BandMin: 0.15, BandMax: 0.4, Fraction: 0.4, SmoothSigma: 1.2}
}

// FrequencyDiagnostics captures the detector's intermediate products for
// visualization. Purely observational; never feeds back into the crop.
type FrequencyDiagnostics struct {
	// Matrix is the smoothed line x frequency-bin magnitude matrix.
	Matrix *volume.Plane
	// Freqs is the shifted frequency axis, one value per bin.
	Freqs []float64
	// BandIndices are the bins inside the respiratory band.
	BandIndices []int
	// BandEnergy is the per-line summed band energy before windowing.
	BandEnergy []float64
	Centerline int
	HalfWidth  int
}

// DetectCrop locates the line range with the strongest respiratory-band
// energy. For every line the sample axis is Fourier transformed, the shifted
// magnitude spectra are summed across slices and min-max normalized with the
// denominator floored at one, so a constant line cannot divide by zero. The
// stacked profiles are blurred, summed over the respiratory bins and
// convolved with a uniform window to find a robust centerline.
func DetectCrop(vol *volume.Volume, opts CropOptions) (volume.Rect, *FrequencyDiagnostics, error) {
	lines, slices, samples := vol.Dims()
	if lines < 2 || samples < 2 {
		return volume.Rect{}, nil, errors.Errorf("volume too small for crop detection: %dx%dx%d", lines, slices, samples)
	}
	if opts.Fraction <= 0 || opts.Fraction >= 1 {
		return volume.Rect{}, nil, errors.Errorf("crop fraction %g outside (0, 1)", opts.Fraction)
	}

	fft := fourier.NewFFT(samples)
	freqMat := volume.NewPlane(lines, samples)
	row := make([]float64, samples)
	half := make([]complex128, samples/2+1)

	for ln := 0; ln < lines; ln++ {
		profile := make([]float64, samples)
		for sl := 0; sl < slices; sl++ {
			for sm := 0; sm < samples; sm++ {
				row[sm] = vol.At(ln, sl, sm)
			}
			full := fullSpectrum(fft.Coefficients(half, row), samples)
			shifted := fftShiftComplex(full)
			for k, c := range shifted {
				profile[k] += cmplx.Abs(c)
			}
		}

		lo, hi := profile[0], profile[0]
		for _, v := range profile {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		// Denominator floored at 1 guards constant lines.
		denom := hi - lo
		if denom < 1 {
			denom = 1
		}
		for k, v := range profile {
			freqMat.Set(ln, k, (v-lo)/denom)
		}
	}

	smoothed := segmentation.GaussianBlur(freqMat, opts.SmoothSigma)

	freqs := fftShiftFloat(fftFreq(samples, vol.SamplingFreq()))
	var band []int
	for k, f := range freqs {
		if f > opts.BandMin && f < opts.BandMax {
			band = append(band, k)
		}
	}
	if len(band) == 0 {
		return volume.Rect{}, nil, errors.Errorf(
			"no frequency bins inside band (%g, %g) Hz at fs=%g with %d samples",
			opts.BandMin, opts.BandMax, vol.SamplingFreq(), samples)
	}

	energy := make([]float64, lines)
	for ln := 0; ln < lines; ln++ {
		for _, k := range band {
			energy[ln] += smoothed.At(ln, k)
		}
	}

	window := int(float64(lines) * opts.Fraction * 1.2)
	if window < 1 {
		window = 1
	}
	localized := convolveUniformSame(energy, window)

	centerline := 0
	for ln, v := range localized {
		if v > localized[centerline] {
			centerline = ln
		}
	}

	halfWidth := int(float64(lines) * opts.Fraction * 0.5)
	if halfWidth < 1 {
		halfWidth = 1
	}

	lo := centerline - halfWidth
	hi := centerline + halfWidth
	if lo < 0 {
		lo = 0
	}
	if hi > lines {
		hi = lines
	}

	rect := volume.Rect{LineMin: lo, LineMax: hi, SliceMin: 0, SliceMax: slices}
	diag := &FrequencyDiagnostics{
		Matrix:      smoothed,
		Freqs:       freqs,
		BandIndices: band,
		BandEnergy:  energy,
		Centerline:  centerline,
		HalfWidth:   halfWidth,
	}
	return rect, diag, nil
}

// fullSpectrum expands the half spectrum of a real transform to all n bins
// using conjugate symmetry.
func fullSpectrum(half []complex128, n int) []complex128 {
	full := make([]complex128, n)
	copy(full, half)
	for j := len(half); j < n; j++ {
		k := n - j
		if k < len(half) {
			full[j] = cmplx.Conj(half[k])
		}
	}
	return full
}

// fftFreq returns the unshifted DFT bin frequencies for n samples at fs Hz.
func fftFreq(n int, fs float64) []float64 {
	out := make([]float64, n)
	step := fs / float64(n)
	limit := (n - 1) / 2
	for i := 0; i <= limit; i++ {
		out[i] = float64(i) * step
	}
	for i := limit + 1; i < n; i++ {
		out[i] = float64(i-n) * step
	}
	return out
}

// fftShiftFloat rotates the zero-frequency bin to the center.
func fftShiftFloat(x []float64) []float64 {
	n := len(x)
	pivot := (n + 1) / 2
	out := make([]float64, 0, n)
	out = append(out, x[pivot:]...)
	out = append(out, x[:pivot]...)
	return out
}

// fftShiftComplex rotates the zero-frequency bin to the center.
func fftShiftComplex(x []complex128) []complex128 {
	n := len(x)
	pivot := (n + 1) / 2
	out := make([]complex128, 0, n)
	out = append(out, x[pivot:]...)
	out = append(out, x[:pivot]...)
	return out
}

// convolveUniformSame convolves x with a ones window, keeping x's length and
// alignment.
func convolveUniformSame(x []float64, width int) []float64 {
	n := len(x)
	out := make([]float64, n)
	left := width / 2
	for i := 0; i < n; i++ {
		acc := 0.0
		for w := 0; w < width; w++ {
			j := i - left + w
			if j < 0 || j >= n {
				continue
			}
			acc += x[j]
		}
		out[i] = acc
	}
	return out
}
