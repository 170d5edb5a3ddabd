package respiration

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"resptrace/pkg/parallel"
	"resptrace/pkg/segmentation"
	"resptrace/pkg/volume"
)

// InitializeBoundaries produces the initial body mask: every slice is median
// filtered (robust to periodic banding), a global threshold is derived from
// the intensities of the extreme line rows, and the thresholded voxels
// connected to those rows are kept. The first and last line rows are forced
// into the mask before labeling so the exterior is always seeded. The result
// is a {0,1} volume with the source shape.
func InitializeBoundaries(ctx context.Context, vol *volume.Volume, medianKernel, workers int) (*volume.Volume, error) {
	if medianKernel < 1 || medianKernel%2 == 0 {
		return nil, errors.Errorf("median kernel must be odd and positive, got %d", medianKernel)
	}

	filtered, err := parallel.Process(ctx, "median-filter", func(planes ...*volume.Plane) (*volume.Plane, error) {
		return segmentation.MedianFilter(planes[0], medianKernel), nil
	}, workers, vol)
	if err != nil {
		return nil, err
	}

	lines, slices, samples := filtered.Dims()

	// Background statistics come from the extreme line rows only.
	edgeVals := make([]float64, 0, 2*slices*samples)
	for _, ln := range []int{0, lines - 1} {
		for sl := 0; sl < slices; sl++ {
			for sm := 0; sm < samples; sm++ {
				edgeVals = append(edgeVals, filtered.At(ln, sl, sm))
			}
		}
	}
	thresh := stat.Mean(edgeVals, nil) + 0.5*stat.PopStdDev(edgeVals, nil)

	mask := make([]bool, lines*slices*samples)
	data := filtered.Data()
	for i, v := range data {
		mask[i] = v <= thresh
	}
	for sl := 0; sl < slices; sl++ {
		for sm := 0; sm < samples; sm++ {
			mask[sl*samples+sm] = true
			mask[((lines-1)*slices+sl)*samples+sm] = true
		}
	}

	labels := segmentation.Label3D(mask, lines, slices, samples)
	selected := segmentation.SelectComponents(labels,
		0, // (0, 0, 0): first line's first corner voxel
		(lines-1)*slices*samples, // (lines-1, 0, 0): last line's first corner voxel
	)

	out := volume.New(lines, slices, samples, vol.SamplingFreq())
	if err := out.SetData(selected); err != nil {
		return nil, errors.Wrap(err, "assemble initial mask")
	}
	return out, nil
}
