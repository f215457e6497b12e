// Package rmt implements RmtThresholder: a Random-Matrix-Theory threshold
// selector that sweeps candidate correlation cutoffs, prunes the
// correlation matrix, eigendecomposes the surviving block, unfolds its
// spectrum, and tests the nearest-neighbor spacing distribution against
// the Wigner surmise via a chi-square goodness-of-fit.
//
// Grounded on original_source/src/rmt.h for the sweep parameters and
// decision constants (chi-square band [99.607,200], minEigenvalueSize=50,
// pace range [10,40]); eigendecomposition follows the gonum.org/v1/gonum
// usage pattern of the matrix-profile-foundation/go-matrixprofile and
// kortschak/loopy example repos, which both lean on gonum for numerical
// linear algebra rather than a hand-rolled eigensolver.
package rmt

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/bio-kinc/kinc-go/cormatrix"
	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// Options bundles the sweep parameters, with defaults matching the
// original analytic's hard-coded constants.
type Options struct {
	ThresholdStart float64
	ThresholdStep  float64
	ThresholdStop  float64

	MinUnfoldingPace int
	MaxUnfoldingPace int
	MinEigenSize     int

	ChiSquareBandLow  float64
	ChiSquareBandHigh float64

	ChiSquareBinWidth float64
	DegenerateEpsRel  float64
}

// DefaultOptions returns the sweep defaults from the original RMT
// analytic's constructor.
func DefaultOptions() Options {
	return Options{
		ThresholdStart:    0.99,
		ThresholdStep:     0.001,
		ThresholdStop:     0.5,
		MinUnfoldingPace:  10,
		MaxUnfoldingPace:  40,
		MinEigenSize:      50,
		ChiSquareBandLow:  99.607,
		ChiSquareBandHigh: 200,
		ChiSquareBinWidth: 0.05,
		DegenerateEpsRel:  1e-6,
	}
}

// Result reports the selected threshold and the chi-square trace observed
// while sweeping down to it, for diagnostics (matching §7's "surfaces with
// the last evaluated t and chi-square trace" policy for ThresholdNotFound).
type Result struct {
	Threshold float64
	Trace     []StepResult
}

// StepResult records one sweep step's outcome.
type StepResult struct {
	Threshold  float64
	MatrixSize int
	ChiSquare  float64
	Skipped    bool // matrix size below MinEigenSize
}

// Find sweeps thresholds from opts.ThresholdStart down to opts.ThresholdStop
// by opts.ThresholdStep, returning the threshold at which the chi-square
// statistic was last observed inside the Wigner band before the sweep
// exited it. It fails with ThresholdNotFound if the band is never entered
// before the stop value.
func Find(cmx *cormatrix.Matrix, opts Options) (Result, error) {
	g := cmx.GeneCount()
	full, err := buildPairwiseMaxAbs(cmx, g)
	if err != nil {
		return Result{}, err
	}
	geneMax := perGeneMax(full, g)

	var trace []StepResult
	var lastInBand float64
	haveInBand := false

	for t := opts.ThresholdStart; t >= opts.ThresholdStop-1e-12; t -= opts.ThresholdStep {
		included := make([]int, 0, g)
		for gi := 0; gi < g; gi++ {
			if geneMax[gi] >= t {
				included = append(included, gi)
			}
		}
		m := len(included)
		if m < opts.MinEigenSize {
			trace = append(trace, StepResult{Threshold: t, MatrixSize: m, Skipped: true})
			continue
		}

		a := prunedMatrix(full, included, t)
		eigs, err := eigenvaluesAscending(a)
		if err != nil {
			return Result{}, err
		}
		eigs = removeDegenerate(eigs, opts.DegenerateEpsRel)

		chi2, err := bestPaceChiSquare(eigs, opts)
		if err != nil {
			return Result{}, err
		}
		trace = append(trace, StepResult{Threshold: t, MatrixSize: m, ChiSquare: chi2})

		inBand := chi2 >= opts.ChiSquareBandLow && chi2 <= opts.ChiSquareBandHigh
		if inBand {
			lastInBand = t
			haveInBand = true
			continue
		}
		if haveInBand {
			return Result{Threshold: lastInBand, Trace: trace}, nil
		}
	}

	if haveInBand {
		return Result{Threshold: lastInBand, Trace: trace}, nil
	}
	return Result{Trace: trace}, kerrors.E(kerrors.ThresholdNotFound, "sweep reached stop without satisfying the Wigner band")
}

// buildPairwiseMaxAbs materializes the dense G x G matrix of per-pair
// max-over-clusters absolute correlation, with a unit diagonal. This is
// the "per-gene max correlation cache" input the sweep prunes from at
// every threshold without re-reading the store.
func buildPairwiseMaxAbs(cmx *cormatrix.Matrix, g int) ([][]float32, error) {
	full := make([][]float32, g)
	for i := range full {
		full[i] = make([]float32, g)
		full[i][i] = 1
	}
	for i := 1; i < g; i++ {
		for j := 0; j < i; j++ {
			p, err := cmx.Read(i, j)
			if err != nil {
				return nil, err
			}
			if !p.Present() {
				continue
			}
			v := p.MaxAbs()
			full[i][j] = v
			full[j][i] = v
		}
	}
	return full, nil
}

func perGeneMax(full [][]float32, g int) []float32 {
	out := make([]float32, g)
	for i := 0; i < g; i++ {
		var m float32
		for j := 0; j < g; j++ {
			if i == j {
				continue
			}
			if full[i][j] > m {
				m = full[i][j]
			}
		}
		out[i] = m
	}
	return out
}

// prunedMatrix builds the symmetric matrix over the included gene indices,
// zeroing any entry whose magnitude falls below the current threshold.
func prunedMatrix(full [][]float32, included []int, t float64) *mat.SymDense {
	m := len(included)
	data := make([]float64, m*m)
	for a, gi := range included {
		for b, gj := range included {
			if gi == gj {
				data[a*m+b] = 1
				continue
			}
			v := float64(full[gi][gj])
			if v >= t {
				data[a*m+b] = v
			}
		}
	}
	return mat.NewSymDense(m, data)
}

func eigenvaluesAscending(a *mat.SymDense) ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(a, false); !ok {
		return nil, kerrors.E(kerrors.NumericError, "eigendecomposition failed to converge")
	}
	values := es.Values(nil)
	// gonum's EigenSym already returns ascending order; sort defensively
	// since that ordering is a documented but unenforced contract.
	floats.Sort(values)
	return values, nil
}

// removeDegenerate drops eigenvalues that are near-duplicates of their
// predecessor, within delta = epsRel * range(eigs).
func removeDegenerate(eigs []float64, epsRel float64) []float64 {
	if len(eigs) < 2 {
		return eigs
	}
	rng := eigs[len(eigs)-1] - eigs[0]
	delta := epsRel * rng
	out := eigs[:1]
	for i := 1; i < len(eigs); i++ {
		if eigs[i]-out[len(out)-1] < delta {
			continue
		}
		out = append(out, eigs[i])
	}
	return out
}

// bestPaceChiSquare tries every unfolding pace in [MinUnfoldingPace,
// MaxUnfoldingPace] and returns the smallest resulting chi-square
// statistic, per step 2.f of the sweep.
func bestPaceChiSquare(eigs []float64, opts Options) (float64, error) {
	if len(eigs) < 4 {
		return 0, kerrors.E(kerrors.NumericError, "too few eigenvalues to unfold")
	}
	best := math.Inf(1)
	for pace := opts.MinUnfoldingPace; pace <= opts.MaxUnfoldingPace; pace++ {
		if pace < 4 || pace > len(eigs) {
			continue
		}
		unfolded := unfoldSpectrum(eigs, pace)
		spacings := spacingsOf(unfolded)
		chi2 := chiSquareAgainstWigner(spacings, opts.ChiSquareBinWidth)
		if chi2 < best {
			best = chi2
		}
	}
	if math.IsInf(best, 1) {
		return 0, kerrors.E(kerrors.NumericError, "no valid unfolding pace in range")
	}
	return best, nil
}

func spacingsOf(unfolded []float64) []float64 {
	out := make([]float64, 0, len(unfolded)-1)
	for i := 1; i < len(unfolded); i++ {
		out = append(out, unfolded[i]-unfolded[i-1])
	}
	return out
}
