package segmentation

import (
	"math"
	"testing"

	"resptrace/pkg/volume"
)

func planeFrom(lines, samples int, vals []float64) *volume.Plane {
	p := volume.NewPlane(lines, samples)
	copy(p.Pix, vals)
	return p
}

func TestMedianFilterRemovesImpulse(t *testing.T) {
	p := volume.NewPlane(7, 7)
	for i := range p.Pix {
		p.Pix[i] = 10
	}
	p.Set(3, 3, 1000)

	out := MedianFilter(p, 3)
	if got := out.At(3, 3); got != 10 {
		t.Errorf("center after median = %v, want 10", got)
	}
}

func TestMedianFilterZeroPadsBorders(t *testing.T) {
	p := volume.NewPlane(5, 5)
	for i := range p.Pix {
		p.Pix[i] = 10
	}

	// A 5x5 window at the corner sees 9 in-bounds values and 16 padded
	// zeros, so the median is 0.
	out := MedianFilter(p, 5)
	if got := out.At(0, 0); got != 0 {
		t.Errorf("corner after 5x5 median = %v, want 0", got)
	}
	if got := out.At(2, 2); got != 10 {
		t.Errorf("center after 5x5 median = %v, want 10", got)
	}
}

func TestMedianFilterIdentityKernel(t *testing.T) {
	p := planeFrom(2, 3, []float64{1, 2, 3, 4, 5, 6})
	out := MedianFilter(p, 1)
	for i := range p.Pix {
		if out.Pix[i] != p.Pix[i] {
			t.Fatalf("pixel %d = %v, want %v", i, out.Pix[i], p.Pix[i])
		}
	}
}

func TestGaussianBlurPreservesConstant(t *testing.T) {
	p := volume.NewPlane(8, 8)
	for i := range p.Pix {
		p.Pix[i] = 3.5
	}

	out := GaussianBlur(p, 1.2)
	for i, v := range out.Pix {
		if math.Abs(v-3.5) > 1e-9 {
			t.Fatalf("pixel %d = %v, want 3.5", i, v)
		}
	}
}

func TestGaussianBlurSpreadsPeak(t *testing.T) {
	p := volume.NewPlane(9, 9)
	p.Set(4, 4, 1)

	out := GaussianBlur(p, 1.0)
	if out.At(4, 4) >= 1 {
		t.Errorf("peak not attenuated: %v", out.At(4, 4))
	}
	if out.At(4, 5) <= 0 {
		t.Errorf("neighbor not raised: %v", out.At(4, 5))
	}
	if out.At(4, 5) >= out.At(4, 4) {
		t.Errorf("neighbor %v not below peak %v", out.At(4, 5), out.At(4, 4))
	}
}

func TestTVDenoiseReducesNoise(t *testing.T) {
	// Step edge plus alternating noise; denoising must shrink the total
	// variation without destroying the step.
	lines, samples := 16, 16
	p := volume.NewPlane(lines, samples)
	for ln := 0; ln < lines; ln++ {
		for sm := 0; sm < samples; sm++ {
			v := 0.0
			if sm >= samples/2 {
				v = 100
			}
			if (ln+sm)%2 == 0 {
				v += 5
			} else {
				v -= 5
			}
			p.Set(ln, sm, v)
		}
	}

	out := TVDenoise(p, 0.05, 50)
	if tv, tvOrig := totalVariation(out), totalVariation(p); tv >= tvOrig {
		t.Errorf("total variation %v not reduced from %v", tv, tvOrig)
	}

	// Step contrast survives.
	left, right := out.At(8, 2), out.At(8, 13)
	if right-left < 50 {
		t.Errorf("step flattened: left %v right %v", left, right)
	}
}

func totalVariation(p *volume.Plane) float64 {
	var tv float64
	for ln := 0; ln < p.Lines; ln++ {
		for sm := 0; sm < p.Samples; sm++ {
			if ln+1 < p.Lines {
				tv += math.Abs(p.At(ln+1, sm) - p.At(ln, sm))
			}
			if sm+1 < p.Samples {
				tv += math.Abs(p.At(ln, sm+1) - p.At(ln, sm))
			}
		}
	}
	return tv
}

func TestInverseGaussianGradient(t *testing.T) {
	// Flat regions map near 1, the step edge maps toward 0.
	lines, samples := 12, 12
	p := volume.NewPlane(lines, samples)
	for ln := 0; ln < lines; ln++ {
		for sm := samples / 2; sm < samples; sm++ {
			p.Set(ln, sm, 100)
		}
	}

	out := InverseGaussianGradient(p, 10, 1.5)
	for i, v := range out.Pix {
		if v <= 0 || v > 1 {
			t.Fatalf("pixel %d = %v outside (0, 1]", i, v)
		}
	}

	flat := out.At(6, 1)
	edge := out.At(6, samples/2)
	if flat < 0.9 {
		t.Errorf("flat region = %v, want near 1", flat)
	}
	if edge >= flat {
		t.Errorf("edge %v not below flat %v", edge, flat)
	}
}
