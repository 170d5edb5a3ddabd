// Package parallel provides the generic fan-out/fan-in executor used by the
// boundary stages: a pure per-slice function is applied across the slice axis
// of one or more aligned volumes on a bounded worker pool, and the outputs are
// recombined in original slice order.
package parallel

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"resptrace/pkg/volume"
)

// SliceFunc transforms one aligned tuple of 2-D slices (one per input volume)
// into a single output slice. Implementations must be pure: invocation order
// and worker identity are unspecified.
type SliceFunc func(planes ...*volume.Plane) (*volume.Plane, error)

// DefaultWorkers is the worker count used when the caller passes workers <= 0:
// available execution units minus one, floored at 1, so one core stays free
// for the coordinating goroutine.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Process applies fn to every aligned slice tuple of vols and returns the
// recombined volume. Output slice i always equals fn applied to input slice i,
// regardless of completion order; a single worker produces bit-identical
// results to many. The first slice failure (error or panic) cancels the whole
// pool and no partial volume is returned. The ctx cancels the pool between
// slices; cancellation is whole-stage, never partial.
func Process(ctx context.Context, name string, fn SliceFunc, workers int, vols ...*volume.Volume) (*volume.Volume, error) {
	if len(vols) == 0 {
		return nil, errors.New("no input volumes")
	}
	lines, slices, samples := vols[0].Dims()
	for i, v := range vols[1:] {
		vl, vs, vm := v.Dims()
		if vl != lines || vs != slices || vm != samples {
			return nil, errors.Errorf("volume %d shape %dx%dx%d does not match %dx%dx%d", i+1, vl, vs, vm, lines, slices, samples)
		}
	}

	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if workers > slices {
		workers = slices
	}

	start := time.Now()

	results := make([]*volume.Plane, slices)
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for sl := 0; sl < slices; sl++ {
			select {
			case jobs <- sl:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for sl := range jobs {
				out, err := applySlice(fn, sl, vols)
				if err != nil {
					return errors.Wrapf(err, "slice %d", sl)
				}
				results[sl] = out

				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, name)
	}

	out, err := volume.StackSlices(results, vols[0].SamplingFreq())
	if err != nil {
		return nil, errors.Wrap(err, name)
	}

	log.Info().
		Str("stage", name).
		Int("workers", workers).
		Int("slices", slices).
		Dur("elapsed", time.Since(start)).
		Msg("slice processing complete")

	return out, nil
}

// applySlice runs fn on one slice tuple, converting panics in the slice
// function into errors so a misbehaving transform aborts the stage instead of
// killing the process.
func applySlice(fn SliceFunc, sl int, vols []*volume.Volume) (out *volume.Plane, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = errors.Errorf("slice function panic: %v", panicErr)
		}
	}()

	planes := make([]*volume.Plane, len(vols))
	for i, v := range vols {
		planes[i] = v.ExtractSlice(sl)
	}

	out, err = fn(planes...)
	if err == nil && out == nil {
		err = errors.New("slice function returned no output")
	}
	return out, err
}
