package rmt

import "gonum.org/v1/gonum/mat"

// unfoldSpectrum rescales eigs so the local mean spacing is 1, using a
// sliding cubic polynomial fit of the empirical staircase function
// (rank vs. eigenvalue) over a window of pace points centered at each
// eigenvalue, per step 2.d of the sweep.
func unfoldSpectrum(eigs []float64, pace int) []float64 {
	n := len(eigs)
	smoothed := make([]float64, n)
	half := pace / 2

	for i := 0; i < n; i++ {
		lo, hi := i-half, i-half+pace-1
		if lo < 0 {
			hi -= lo
			lo = 0
		}
		if hi >= n {
			lo -= hi - (n - 1)
			hi = n - 1
		}
		if lo < 0 {
			lo = 0
		}
		if hi-lo+1 < 4 {
			smoothed[i] = float64(i)
			continue
		}

		xs := eigs[lo : hi+1]
		ys := make([]float64, len(xs))
		for j := range ys {
			ys[j] = float64(lo + j)
		}
		coeffs := fitCubic(xs, ys)
		smoothed[i] = evalCubic(coeffs, eigs[i])
	}

	return rescaleToUnitMeanSpacing(smoothed)
}

// fitCubic least-squares fits y = c0 + c1*x + c2*x^2 + c3*x^3.
func fitCubic(xs, ys []float64) [4]float64 {
	n := len(xs)
	design := mat.NewDense(n, 4, nil)
	for i, x := range xs {
		design.Set(i, 0, 1)
		design.Set(i, 1, x)
		design.Set(i, 2, x*x)
		design.Set(i, 3, x*x*x)
	}
	target := mat.NewDense(n, 1, ys)

	var coeffs mat.Dense
	if err := coeffs.Solve(design, target); err != nil {
		// A singular design (e.g. duplicate x values within the window)
		// falls back to the window's mean rank, which still keeps the
		// unfolding monotone-ish without crashing the sweep.
		var mean float64
		for _, y := range ys {
			mean += y
		}
		mean /= float64(n)
		return [4]float64{mean, 0, 0, 0}
	}
	return [4]float64{coeffs.At(0, 0), coeffs.At(1, 0), coeffs.At(2, 0), coeffs.At(3, 0)}
}

func evalCubic(c [4]float64, x float64) float64 {
	return c[0] + x*(c[1]+x*(c[2]+x*c[3]))
}

func rescaleToUnitMeanSpacing(u []float64) []float64 {
	if len(u) < 2 {
		return u
	}
	total := u[len(u)-1] - u[0]
	n := float64(len(u) - 1)
	if total <= 0 {
		return u
	}
	meanSpacing := total / n
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = (v - u[0]) / meanSpacing
	}
	return out
}
