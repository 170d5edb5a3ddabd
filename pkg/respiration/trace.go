package respiration

import (
	"bufio"
	"fmt"
	"os"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"resptrace/pkg/volume"
)

// ExtractTrace sums the refined mask over each slice: element i is the body
// cross-sectional area (in voxels) at slice i.
func ExtractTrace(mask *volume.Volume) []float64 {
	lines, slices, samples := mask.Dims()
	out := make([]float64, slices)
	for sl := 0; sl < slices; sl++ {
		acc := 0.0
		for ln := 0; ln < lines; ln++ {
			for sm := 0; sm < samples; sm++ {
				acc += mask.At(ln, sl, sm)
			}
		}
		out[sl] = acc
	}
	return out
}

// TraceSummary holds descriptive statistics of the residual respiratory trace.
type TraceSummary struct {
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64
	IQR    float64
}

// Summarize computes descriptive statistics of a trace.
func Summarize(trace []float64) (TraceSummary, error) {
	d := stats.Float64Data(trace)

	var (
		out TraceSummary
		err error
	)
	if out.Mean, err = stats.Mean(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	if out.Median, err = stats.Median(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	if out.StdDev, err = stats.StandardDeviation(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	if out.Min, err = stats.Min(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	if out.Max, err = stats.Max(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	if out.IQR, err = stats.InterQuartileRange(d); err != nil {
		return out, errors.Wrap(err, "summarize trace")
	}
	return out, nil
}

// WriteTraceTSV writes the three signals as a tab-separated table with one row
// per slice index.
func WriteTraceTSV(path string, raw, trend, residual []float64) error {
	if len(raw) != len(trend) || len(raw) != len(residual) {
		return errors.Errorf("signal lengths differ: raw %d, trend %d, residual %d", len(raw), len(trend), len(residual))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, "slice\traw\ttrend\tresidual")
	for i := range raw {
		fmt.Fprintf(w, "%d\t%f\t%f\t%f\n", i, raw[i], trend[i], residual[i])
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
