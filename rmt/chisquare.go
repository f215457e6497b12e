package rmt

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// wignerSurmise is the nearest-neighbor spacing density of the Gaussian
// orthogonal ensemble: P_W(s) = (pi*s/2) * exp(-pi*s^2/4).
func wignerSurmise(s float64) float64 {
	return (math.Pi * s / 2) * math.Exp(-math.Pi*s*s/4)
}

// chiSquareAgainstWigner bins spacings with the given bin width over
// [0, max(spacings)] and returns the chi-square statistic of the observed
// counts against the Wigner surmise's expected counts, per step 2.e of the
// sweep.
func chiSquareAgainstWigner(spacings []float64, binWidth float64) float64 {
	if len(spacings) == 0 {
		return math.Inf(1)
	}
	sMax := floats.Max(spacings)
	nBins := int(math.Ceil(sMax / binWidth))
	if nBins < 1 {
		nBins = 1
	}

	observed := make([]float64, nBins)
	for _, s := range spacings {
		b := int(s / binWidth)
		if b >= nBins {
			b = nBins - 1
		}
		if b < 0 {
			b = 0
		}
		observed[b]++
	}

	n := float64(len(spacings))
	var chi2 float64
	for b := 0; b < nBins; b++ {
		center := (float64(b) + 0.5) * binWidth
		expected := n * wignerSurmise(center) * binWidth
		if expected <= 1e-9 {
			continue
		}
		diff := observed[b] - expected
		chi2 += diff * diff / expected
	}
	return chi2
}
