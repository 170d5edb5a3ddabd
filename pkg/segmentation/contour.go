package segmentation

import (
	"math"

	"github.com/montanaflynn/stats"

	"resptrace/pkg/volume"
)

// lineSegments3x3 are the four 3-pixel line orientations through the center of
// a 3x3 neighborhood: main diagonal, vertical, anti-diagonal, horizontal.
// The curvature operator erodes and dilates along these.
var lineSegments3x3 = [4][3][2]int{
	{{-1, -1}, {0, 0}, {1, 1}},
	{{-1, 0}, {0, 0}, {1, 0}},
	{{-1, 1}, {0, 0}, {1, -1}},
	{{0, -1}, {0, 0}, {0, 1}},
}

// GeodesicActiveContour evolves a binary region seeded from init toward the
// low values of the speed plane (the edge-indicator map), using the
// morphological formulation of the geodesic active-contour model: a balloon
// force expands (or shrinks) the region wherever the speed clears a
// threshold, an image-attachment term snaps the front onto edges, and a
// sup-inf/inf-sup pair regularizes curvature. Pixels outside the evolving
// region come back as 0, inside as 1.
func GeodesicActiveContour(speed, init *volume.Plane, iterations, smoothing int, balloon float64) *volume.Plane {
	h, w := speed.Lines, speed.Samples
	n := h * w

	u := make([]uint8, n)
	for i, v := range init.Pix {
		if v > 0 {
			u[i] = 1
		}
	}

	// Auto threshold at the 40th percentile of the speed map; the balloon only
	// pushes where the speed comfortably clears it.
	threshold, err := stats.Percentile(stats.Float64Data(speed.Pix), 40)
	if err != nil {
		threshold = 0
	}

	balloonMask := make([]bool, n)
	if balloon != 0 {
		limit := threshold / math.Abs(balloon)
		for i, v := range speed.Pix {
			balloonMask[i] = v > limit
		}
	}

	// Gradient of the speed map is fixed across iterations.
	gy := make([]float64, n)
	gx := make([]float64, n)
	for ln := 0; ln < h; ln++ {
		for sm := 0; sm < w; sm++ {
			i := ln*w + sm
			gy[i] = axisGradient(speed, ln, sm, true)
			gx[i] = axisGradient(speed, ln, sm, false)
		}
	}

	aux := make([]uint8, n)
	attach := make([]float64, n)
	curvToggle := 0

	for it := 0; it < iterations; it++ {
		// Balloon force.
		if balloon > 0 {
			dilate3x3(u, aux, h, w)
		} else if balloon < 0 {
			erode3x3(u, aux, h, w)
		}
		if balloon != 0 {
			for i := range u {
				if balloonMask[i] {
					u[i] = aux[i]
				}
			}
		}

		// Image attachment: move the front along the speed gradient. The dot
		// products are taken against a snapshot of u and applied in one step,
		// so the front advances at most one pixel per iteration.
		for ln := 0; ln < h; ln++ {
			for sm := 0; sm < w; sm++ {
				i := ln*w + sm
				duy := maskGradient(u, h, w, ln, sm, true)
				dux := maskGradient(u, h, w, ln, sm, false)
				attach[i] = gy[i]*duy + gx[i]*dux
			}
		}
		for i, dot := range attach {
			if dot > 0 {
				u[i] = 1
			} else if dot < 0 {
				u[i] = 0
			}
		}

		// Curvature regularization, alternating operator order call by call.
		for s := 0; s < smoothing; s++ {
			if curvToggle == 0 {
				infSup(u, aux, h, w)
				supInf(aux, u, h, w)
			} else {
				supInf(u, aux, h, w)
				infSup(aux, u, h, w)
			}
			curvToggle = 1 - curvToggle
		}
	}

	out := volume.NewPlane(h, w)
	for i, v := range u {
		out.Pix[i] = float64(v)
	}
	return out
}

// maskGradient is the central-difference gradient of the binary field u.
func maskGradient(u []uint8, h, w, ln, sm int, alongLines bool) float64 {
	at := func(y, x int) float64 { return float64(u[y*w+x]) }
	if alongLines {
		switch {
		case h == 1:
			return 0
		case ln == 0:
			return at(1, sm) - at(0, sm)
		case ln == h-1:
			return at(ln, sm) - at(ln-1, sm)
		default:
			return (at(ln+1, sm) - at(ln-1, sm)) / 2
		}
	}
	switch {
	case w == 1:
		return 0
	case sm == 0:
		return at(ln, 1) - at(ln, 0)
	case sm == w-1:
		return at(ln, sm) - at(ln, sm-1)
	default:
		return (at(ln, sm+1) - at(ln, sm-1)) / 2
	}
}

// dilate3x3 writes the 8-connected binary dilation of src into dst. Out of
// bounds counts as background.
func dilate3x3(src, dst []uint8, h, w int) {
	for ln := 0; ln < h; ln++ {
		for sm := 0; sm < w; sm++ {
			v := uint8(0)
			for dy := -1; dy <= 1 && v == 0; dy++ {
				for dx := -1; dx <= 1; dx++ {
					y, x := ln+dy, sm+dx
					if y < 0 || y >= h || x < 0 || x >= w {
						continue
					}
					if src[y*w+x] != 0 {
						v = 1
						break
					}
				}
			}
			dst[ln*w+sm] = v
		}
	}
}

// erode3x3 writes the 8-connected binary erosion of src into dst. Out of
// bounds counts as background, so the border erodes.
func erode3x3(src, dst []uint8, h, w int) {
	for ln := 0; ln < h; ln++ {
		for sm := 0; sm < w; sm++ {
			v := uint8(1)
			for dy := -1; dy <= 1 && v == 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					y, x := ln+dy, sm+dx
					if y < 0 || y >= h || x < 0 || x >= w || src[y*w+x] == 0 {
						v = 0
						break
					}
				}
			}
			dst[ln*w+sm] = v
		}
	}
}

// supInf writes max over line orientations of the min along each line: an
// opening-like operator that removes thin protrusions.
func supInf(src, dst []uint8, h, w int) {
	for ln := 0; ln < h; ln++ {
		for sm := 0; sm < w; sm++ {
			best := uint8(0)
			for _, seg := range lineSegments3x3 {
				lo := uint8(1)
				for _, off := range seg {
					y, x := ln+off[0], sm+off[1]
					if y < 0 || y >= h || x < 0 || x >= w || src[y*w+x] == 0 {
						lo = 0
						break
					}
				}
				if lo == 1 {
					best = 1
					break
				}
			}
			dst[ln*w+sm] = best
		}
	}
}

// infSup writes min over line orientations of the max along each line: the
// dual closing-like operator that fills thin indentations.
func infSup(src, dst []uint8, h, w int) {
	for ln := 0; ln < h; ln++ {
		for sm := 0; sm < w; sm++ {
			worst := uint8(1)
			for _, seg := range lineSegments3x3 {
				hi := uint8(0)
				for _, off := range seg {
					y, x := ln+off[0], sm+off[1]
					if y < 0 || y >= h || x < 0 || x >= w {
						continue
					}
					if src[y*w+x] != 0 {
						hi = 1
						break
					}
				}
				if hi == 0 {
					worst = 0
					break
				}
			}
			dst[ln*w+sm] = worst
		}
	}
}
