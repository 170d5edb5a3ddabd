// Package gpr fits a Gaussian-process regression model to a 1-D signal indexed
// by slice position and uses its posterior mean as a slow-trend estimate. The
// covariance is a scaled squared-exponential term plus independent noise, and
// the hyperparameters are chosen by maximizing the log marginal likelihood
// over a bounded search.
package gpr

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config bounds the kernel hyperparameter search. Initial values seed the
// search but the optimizer is free to move within the bounds.
type Config struct {
	LengthScale       float64
	LengthScaleBounds [2]float64
	NoiseLevel        float64
	NoiseLevelBounds  [2]float64
}

// DefaultConfig returns the trend-filter defaults: a smooth term with length
// scale 5 bounded to [2, 20] and a noise term with level 50 bounded to
// [10, 1000].
func DefaultConfig() Config {
	return Config{
		LengthScale:       5,
		LengthScaleBounds: [2]float64{2, 20},
		NoiseLevel:        50,
		NoiseLevelBounds:  [2]float64{10, 1000},
	}
}

// kernelParams is one candidate hyperparameter set.
type kernelParams struct {
	signalVar   float64
	lengthScale float64
	noiseLevel  float64
}

// Model is a fitted Gaussian process over the training indices 0..n-1.
type Model struct {
	params kernelParams
	alpha  []float64
	meanY  float64
	n      int
	// LogMarginalLikelihood of the selected hyperparameters.
	LogMarginalLikelihood float64
}

// Fit selects kernel hyperparameters by bounded maximization of the log
// marginal likelihood: a coarse log-spaced grid over the configured bounds
// followed by one refinement pass around the best cell. The signal is centered
// before fitting since the process has a zero-mean prior. Fit fails when no
// candidate inside the bounds yields a positive-definite covariance.
func Fit(y []float64, cfg Config) (*Model, error) {
	n := len(y)
	if n < 3 {
		return nil, errors.Errorf("signal too short for regression: %d points", n)
	}
	if cfg.LengthScaleBounds[0] <= 0 || cfg.LengthScaleBounds[0] >= cfg.LengthScaleBounds[1] {
		return nil, errors.Errorf("invalid length-scale bounds [%g, %g]", cfg.LengthScaleBounds[0], cfg.LengthScaleBounds[1])
	}
	if cfg.NoiseLevelBounds[0] <= 0 || cfg.NoiseLevelBounds[0] >= cfg.NoiseLevelBounds[1] {
		return nil, errors.Errorf("invalid noise-level bounds [%g, %g]", cfg.NoiseLevelBounds[0], cfg.NoiseLevelBounds[1])
	}

	meanY := stat.Mean(y, nil)
	centered := make([]float64, n)
	for i, v := range y {
		centered[i] = v - meanY
	}

	// Signal variance candidates bracket the empirical variance; the scale
	// factor of the smooth term is fitted rather than pinned at one.
	varY := stat.Variance(centered, nil)
	if varY <= 0 {
		varY = 1
	}
	signalVars := []float64{0.5 * varY, varY, 2 * varY}

	const gridN = 7
	lengthScales := withSeed(logSpace(cfg.LengthScaleBounds[0], cfg.LengthScaleBounds[1], gridN), cfg.LengthScale, cfg.LengthScaleBounds)
	noiseLevels := withSeed(logSpace(cfg.NoiseLevelBounds[0], cfg.NoiseLevelBounds[1], gridN), cfg.NoiseLevel, cfg.NoiseLevelBounds)

	best, ok := searchGrid(centered, signalVars, lengthScales, noiseLevels, nil)

	// Refinement: a finer grid inside the winning neighborhood.
	if ok {
		ls := refineAround(best.params.lengthScale, lengthScales, cfg.LengthScaleBounds, gridN)
		nl := refineAround(best.params.noiseLevel, noiseLevels, cfg.NoiseLevelBounds, gridN)
		if refined, rok := searchGrid(centered, signalVars, ls, nl, &best); rok {
			best = refined
		}
	}

	if !ok {
		return nil, errors.Errorf(
			"regression fit failed to converge: no positive-definite kernel with length scale in [%g, %g] and noise level in [%g, %g]",
			cfg.LengthScaleBounds[0], cfg.LengthScaleBounds[1], cfg.NoiseLevelBounds[0], cfg.NoiseLevelBounds[1])
	}

	best.meanY = meanY
	best.n = n
	return &best, nil
}

// searchGrid evaluates every hyperparameter combination, returning the model
// with the highest marginal likelihood. seed, when non-nil, sets the score to
// beat.
func searchGrid(y []float64, signalVars, lengthScales, noiseLevels []float64, seed *Model) (Model, bool) {
	var best Model
	found := false
	if seed != nil {
		best = *seed
		found = true
	}

	for _, sv := range signalVars {
		for _, ls := range lengthScales {
			for _, nl := range noiseLevels {
				m, err := evaluate(y, kernelParams{signalVar: sv, lengthScale: ls, noiseLevel: nl})
				if err != nil {
					continue
				}
				if !found || m.LogMarginalLikelihood > best.LogMarginalLikelihood {
					best = m
					found = true
				}
			}
		}
	}

	return best, found
}

// evaluate factorizes the kernel matrix for one candidate and computes its log
// marginal likelihood and weight vector.
func evaluate(y []float64, p kernelParams) (Model, error) {
	n := len(y)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rbf(float64(i), float64(j), p.signalVar, p.lengthScale)
			if i == j {
				v += p.noiseLevel
			}
			k.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return Model{}, errors.New("covariance not positive definite")
	}

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, mat.NewVecDense(n, y)); err != nil {
		return Model{}, err
	}

	fit := 0.0
	for i := 0; i < n; i++ {
		fit += y[i] * alpha.AtVec(i)
	}
	lml := -0.5*fit - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)

	out := Model{
		params:                p,
		alpha:                 alpha.RawVector().Data,
		LogMarginalLikelihood: lml,
	}
	return out, nil
}

// Predict returns the posterior mean at every training index. Only the smooth
// term of the kernel propagates to prediction, so the noise level does not
// leak into the trend.
func (m *Model) Predict() []float64 {
	out := make([]float64, m.n)
	for i := 0; i < m.n; i++ {
		acc := 0.0
		for j := 0; j < m.n; j++ {
			acc += rbf(float64(i), float64(j), m.params.signalVar, m.params.lengthScale) * m.alpha[j]
		}
		out[i] = acc + m.meanY
	}
	return out
}

// LengthScale returns the fitted length scale.
func (m *Model) LengthScale() float64 { return m.params.lengthScale }

// NoiseLevel returns the fitted noise level.
func (m *Model) NoiseLevel() float64 { return m.params.noiseLevel }

// Detrend fits the model to y and splits it into the posterior-mean trend and
// the elementwise residual y - trend.
func Detrend(y []float64, cfg Config) (trend, residual []float64, err error) {
	m, err := Fit(y, cfg)
	if err != nil {
		return nil, nil, err
	}

	trend = m.Predict()
	residual = make([]float64, len(y))
	for i := range y {
		residual[i] = y[i] - trend[i]
	}
	return trend, residual, nil
}

func rbf(xi, xj, signalVar, lengthScale float64) float64 {
	d := xi - xj
	return signalVar * math.Exp(-d*d/(2*lengthScale*lengthScale))
}

// withSeed appends the configured initial value to the grid when it lies
// inside the bounds, so a well-chosen seed is always a candidate.
func withSeed(grid []float64, seed float64, bounds [2]float64) []float64 {
	if seed < bounds[0] || seed > bounds[1] {
		return grid
	}
	for _, v := range grid {
		if v == seed {
			return grid
		}
	}
	return append(grid, seed)
}

// logSpace returns n log-spaced values spanning [lo, hi] inclusive.
func logSpace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	llo, lhi := math.Log(lo), math.Log(hi)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		out[i] = math.Exp(llo + t*(lhi-llo))
	}
	return out
}

// refineAround builds a finer grid spanning the cells adjacent to the winning
// value, clamped to the configured bounds.
func refineAround(winner float64, grid []float64, bounds [2]float64, n int) []float64 {
	lo, hi := bounds[0], bounds[1]
	for i, v := range grid {
		if v == winner {
			if i > 0 {
				lo = grid[i-1]
			}
			if i < len(grid)-1 {
				hi = grid[i+1]
			}
			break
		}
	}
	if lo <= 0 || hi <= lo {
		return grid
	}
	return logSpace(lo, hi, n)
}
