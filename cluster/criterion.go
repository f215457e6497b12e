package cluster

import "math"

// Criterion selects which information criterion chooses K among competing
// GMM fits.
type Criterion uint8

// The two model-selection criteria the original analytic exposes as an
// argument.
const (
	BIC Criterion = iota
	ICL
)

// freeParameters returns p for a K-component 2-D Gaussian mixture: each
// component contributes one weight, a 2-vector mean, and a symmetric 2x2
// covariance (3 free entries), minus one for the Sum(pi)=1 constraint.
func freeParameters(k int) float64 {
	return float64(k*(1+2+3) - 1)
}

func bic(logL float64, k, n int) float64 {
	return -2*logL + freeParameters(k)*math.Log(float64(n))
}

// entropy is the mixture's classification entropy term used by ICL:
// -sum_n sum_k gamma_nk * log(gamma_nk).
func entropy(gamma [][]float64) float64 {
	var h float64
	for _, row := range gamma {
		for _, g := range row {
			if g <= 0 {
				continue
			}
			h -= g * math.Log(g)
		}
	}
	return h
}

// icl is BIC plus the entropy penalty (Biernacki, Celeux & Govaert 2000),
// which favors well-separated clusters over BIC alone.
func icl(logL float64, k, n int, gamma [][]float64) float64 {
	return bic(logL, k, n) + 2*entropy(gamma)
}

// score evaluates the chosen criterion for a fitted model.
func score(crit Criterion, m *gmmModel, n int) float64 {
	k := len(m.components)
	switch crit {
	case ICL:
		return icl(m.logL, k, n, m.gamma)
	default:
		return bic(m.logL, k, n)
	}
}
