// Package volume provides the 3-D image volume model consumed by the
// respiration-estimation pipeline. A volume is a dense float64 grid indexed by
// (line, slice, sample): line is the in-plane axis that auto-cropping narrows,
// slice is the axis along which the respiratory area trace is measured, and
// sample is the remaining axis used for frequency analysis. A volume also
// carries the sampling frequency of its sample axis.
package volume

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Rect describes a crop region over the (line, slice) axes. The sample axis is
// never cropped. Bounds are half-open: lines [LineMin, LineMax), slices
// [SliceMin, SliceMax).
type Rect struct {
	LineMin  int
	SliceMin int
	LineMax  int
	SliceMax int
}

// Valid reports whether the rectangle is well formed for a volume with the
// given line and slice counts.
func (r Rect) Valid(lines, slices int) error {
	if r.LineMin < 0 || r.LineMax > lines || r.LineMin >= r.LineMax {
		return errors.Errorf("invalid line bounds [%d, %d) for %d lines", r.LineMin, r.LineMax, lines)
	}
	if r.SliceMin < 0 || r.SliceMax > slices || r.SliceMin >= r.SliceMax {
		return errors.Errorf("invalid slice bounds [%d, %d) for %d slices", r.SliceMin, r.SliceMax, slices)
	}
	return nil
}

// Volume is a 3-D grid of real-valued samples stored in row-major order with
// index (line*slices + slice)*samples + sample.
type Volume struct {
	data    []float64
	lines   int
	slices  int
	samples int
	fs      float64
}

// New creates a zero-filled volume with the given dimensions and sample-axis
// sampling frequency.
func New(lines, slices, samples int, fs float64) *Volume {
	return &Volume{
		data:    make([]float64, lines*slices*samples),
		lines:   lines,
		slices:  slices,
		samples: samples,
		fs:      fs,
	}
}

// FromData wraps an existing row-major data slice. The slice is used directly,
// not copied.
func FromData(data []float64, lines, slices, samples int, fs float64) (*Volume, error) {
	if len(data) != lines*slices*samples {
		return nil, errors.Errorf("data length %d does not match dimensions %dx%dx%d", len(data), lines, slices, samples)
	}
	return &Volume{data: data, lines: lines, slices: slices, samples: samples, fs: fs}, nil
}

// Dims returns the (line, slice, sample) dimensions.
func (v *Volume) Dims() (lines, slices, samples int) {
	return v.lines, v.slices, v.samples
}

// Lines returns the line-axis extent.
func (v *Volume) Lines() int { return v.lines }

// Slices returns the slice-axis extent.
func (v *Volume) Slices() int { return v.slices }

// Samples returns the sample-axis extent.
func (v *Volume) Samples() int { return v.samples }

// SamplingFreq returns the sampling frequency of the sample axis in Hz.
func (v *Volume) SamplingFreq() float64 { return v.fs }

// Data returns the backing slice. Callers must not resize it.
func (v *Volume) Data() []float64 { return v.data }

func (v *Volume) index(ln, sl, sm int) int {
	return (ln*v.slices+sl)*v.samples + sm
}

// At returns the voxel at (line, slice, sample).
func (v *Volume) At(ln, sl, sm int) float64 {
	return v.data[v.index(ln, sl, sm)]
}

// Set stores val at (line, slice, sample).
func (v *Volume) Set(ln, sl, sm int, val float64) {
	v.data[v.index(ln, sl, sm)] = val
}

// Clone returns a deep copy sharing no data with the receiver.
func (v *Volume) Clone() *Volume {
	out := New(v.lines, v.slices, v.samples, v.fs)
	copy(out.data, v.data)
	return out
}

// SetData replaces the volume contents in place. The replacement must match
// the current shape exactly.
func (v *Volume) SetData(data []float64) error {
	if len(data) != len(v.data) {
		return errors.Errorf("replacement length %d does not match volume size %d", len(data), len(v.data))
	}
	copy(v.data, data)
	return nil
}

// Crop narrows the volume in place to the given (line, slice) rectangle.
func (v *Volume) Crop(r Rect) error {
	if err := r.Valid(v.lines, v.slices); err != nil {
		return errors.Wrap(err, "crop")
	}

	lines := r.LineMax - r.LineMin
	slices := r.SliceMax - r.SliceMin
	out := make([]float64, lines*slices*v.samples)

	for ln := 0; ln < lines; ln++ {
		for sl := 0; sl < slices; sl++ {
			src := v.index(ln+r.LineMin, sl+r.SliceMin, 0)
			dst := (ln*slices + sl) * v.samples
			copy(out[dst:dst+v.samples], v.data[src:src+v.samples])
		}
	}

	v.data = out
	v.lines = lines
	v.slices = slices
	return nil
}

// Plane is a single 2-D slice of a volume: lines x samples, row-major.
type Plane struct {
	Pix   []float64
	Lines int
	// Samples is the fast axis.
	Samples int
}

// NewPlane creates a zero-filled plane.
func NewPlane(lines, samples int) *Plane {
	return &Plane{Pix: make([]float64, lines*samples), Lines: lines, Samples: samples}
}

// At returns the pixel at (line, sample).
func (p *Plane) At(ln, sm int) float64 { return p.Pix[ln*p.Samples+sm] }

// Set stores val at (line, sample).
func (p *Plane) Set(ln, sm int, val float64) { p.Pix[ln*p.Samples+sm] = val }

// Clone returns a deep copy of the plane.
func (p *Plane) Clone() *Plane {
	out := NewPlane(p.Lines, p.Samples)
	copy(out.Pix, p.Pix)
	return out
}

// ExtractSlice copies slice index sl out of the volume as a lines x samples
// plane.
func (v *Volume) ExtractSlice(sl int) *Plane {
	p := NewPlane(v.lines, v.samples)
	for ln := 0; ln < v.lines; ln++ {
		src := v.index(ln, sl, 0)
		copy(p.Pix[ln*v.samples:(ln+1)*v.samples], v.data[src:src+v.samples])
	}
	return p
}

// SetSlice copies a plane into slice index sl of the volume.
func (v *Volume) SetSlice(sl int, p *Plane) error {
	if p.Lines != v.lines || p.Samples != v.samples {
		return errors.Errorf("plane %dx%d does not match volume slice %dx%d", p.Lines, p.Samples, v.lines, v.samples)
	}
	for ln := 0; ln < v.lines; ln++ {
		dst := v.index(ln, sl, 0)
		copy(v.data[dst:dst+v.samples], p.Pix[ln*v.samples:(ln+1)*v.samples])
	}
	return nil
}

// StackSlices assembles a volume from per-slice planes, inheriting the sample
// frequency from the reference volume. All planes must share one shape.
func StackSlices(planes []*Plane, fs float64) (*Volume, error) {
	if len(planes) == 0 {
		return nil, errors.New("no planes to stack")
	}
	lines, samples := planes[0].Lines, planes[0].Samples
	out := New(lines, len(planes), samples, fs)
	for sl, p := range planes {
		if p == nil {
			return nil, errors.Errorf("missing plane at slice %d", sl)
		}
		if err := out.SetSlice(sl, p); err != nil {
			return nil, errors.Wrapf(err, "slice %d", sl)
		}
	}
	return out, nil
}

// Persist writes the volume as a PNG slice stack under dir, one grayscale
// image per slice index, scaled to the volume's dynamic range.
func (v *Volume) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create artifact directory")
	}

	lo, hi := v.data[0], v.data[0]
	for _, val := range v.data {
		if val < lo {
			lo = val
		}
		if val > hi {
			hi = val
		}
	}
	scale := hi - lo
	if scale <= 0 {
		scale = 1
	}

	for sl := 0; sl < v.slices; sl++ {
		img := image.NewGray16(image.Rect(0, 0, v.samples, v.lines))
		for ln := 0; ln < v.lines; ln++ {
			for sm := 0; sm < v.samples; sm++ {
				norm := (v.At(ln, sl, sm) - lo) / scale
				val := uint16(math.Max(0, math.Min(65535, norm*65535)))
				img.SetGray16(sm, ln, color.Gray16{Y: val})
			}
		}

		name := filepath.Join(dir, fmt.Sprintf("slice_%04d.png", sl))
		f, err := os.Create(name)
		if err != nil {
			return errors.Wrapf(err, "create %s", name)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return errors.Wrapf(err, "encode %s", name)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "close %s", name)
		}
	}

	return nil
}
