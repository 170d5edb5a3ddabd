package respiration

import (
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

// heatmapScale is the nearest-neighbor upscale factor for the frequency
// matrix figure, which is otherwise only a few dozen pixels tall.
const heatmapScale = 6

// SaveFrequencyFigure renders the crop detector's line x frequency matrix as
// a heatmap with the respiratory band and the selected crop region marked.
// Observational only.
func SaveFrequencyFigure(diag *FrequencyDiagnostics, path string) error {
	if diag == nil || diag.Matrix == nil {
		return errors.New("no frequency diagnostics to plot")
	}

	m := diag.Matrix
	dc := gg.NewContext(m.Samples, m.Lines)

	lo, hi := m.Pix[0], m.Pix[0]
	for _, v := range m.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := hi - lo
	if scale <= 0 {
		scale = 1
	}

	for ln := 0; ln < m.Lines; ln++ {
		for sm := 0; sm < m.Samples; sm++ {
			t := (m.At(ln, sm) - lo) / scale
			dc.SetRGB(t, 0.2*t, 1-t)
			dc.SetPixel(sm, ln)
		}
	}

	// Band bounds as vertical marks.
	if len(diag.BandIndices) > 0 {
		dc.SetRGB(1, 1, 0)
		for _, k := range []int{diag.BandIndices[0], diag.BandIndices[len(diag.BandIndices)-1]} {
			for ln := 0; ln < m.Lines; ln++ {
				dc.SetPixel(k, ln)
			}
		}
	}

	// Crop centerline and half-width bounds as horizontal marks.
	dc.SetRGB(1, 0, 0)
	for _, ln := range []int{diag.Centerline - diag.HalfWidth, diag.Centerline, diag.Centerline + diag.HalfWidth} {
		if ln < 0 || ln >= m.Lines {
			continue
		}
		for sm := 0; sm < m.Samples; sm++ {
			dc.SetPixel(sm, ln)
		}
	}

	big := imaging.Resize(dc.Image(), m.Samples*heatmapScale, m.Lines*heatmapScale, imaging.NearestNeighbor)
	return errors.Wrapf(imaging.Save(big, path), "save frequency figure %s", path)
}

// SaveTraceFigure renders the raw area signal with its fitted trend in the
// upper panel and the residual respiratory trace in the lower panel.
func SaveTraceFigure(raw, trend, residual []float64, path string) error {
	if len(raw) == 0 || len(raw) != len(trend) || len(raw) != len(residual) {
		return errors.New("trace figure needs three equal-length signals")
	}

	const (
		width   = 900
		panelH  = 240
		margin  = 40
		height  = 2*panelH + 3*margin
		topY    = float64(margin)
		lowerY  = float64(panelH + 2*margin)
	)

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	drawPanel(dc, topY, panelH, raw, trend)
	drawPanel(dc, lowerY, panelH, residual, nil)

	dc.SetRGB(0, 0, 0)
	dc.DrawString("body area (raw + trend)", float64(margin), topY-8)
	dc.DrawString("respiratory trace (residual)", float64(margin), lowerY-8)

	return errors.Wrapf(dc.SavePNG(path), "save trace figure %s", path)
}

// drawPanel plots one or two series into a horizontal band of the canvas.
func drawPanel(dc *gg.Context, y0 float64, h int, primary, secondary []float64) {
	const margin = 40

	lo, hi := primary[0], primary[0]
	for _, v := range primary {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	for _, v := range secondary {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	w := float64(dc.Width()) - 2*margin
	toXY := func(i int, v float64, n int) (float64, float64) {
		x := margin + w*float64(i)/float64(n-1)
		y := y0 + float64(h)*(1-(v-lo)/span)
		return x, y
	}

	// Frame.
	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetLineWidth(1)
	dc.DrawRectangle(margin, y0, w, float64(h))
	dc.Stroke()

	plot := func(series []float64, r, g, b float64) {
		if len(series) < 2 {
			return
		}
		dc.SetRGB(r, g, b)
		dc.SetLineWidth(1.5)
		for i := 1; i < len(series); i++ {
			x1, y1 := toXY(i-1, series[i-1], len(series))
			x2, y2 := toXY(i, series[i], len(series))
			dc.DrawLine(x1, y1, x2, y2)
		}
		dc.Stroke()
	}

	plot(primary, 0.1, 0.3, 0.7)
	plot(secondary, 0.8, 0.1, 0.1)
}
