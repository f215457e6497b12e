package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// component is one mixture component of a 2-D Gaussian mixture: mixing
// weight, mean, and covariance, plus the inverse and log-normalizer cached
// for repeated density evaluation.
type component struct {
	pi    float64
	mu    [2]float64
	sigma [2][2]float64

	sigmaInv      [2][2]float64
	logNormalizer float64
}

// prepareCovariance inverts sigma and caches the log-normalizing constant
// of the corresponding bivariate normal density. It fails with a
// NumericError if sigma is (numerically) singular.
func (c *component) prepareCovariance() error {
	sigma := mat.NewDense(2, 2, []float64{
		c.sigma[0][0], c.sigma[0][1],
		c.sigma[1][0], c.sigma[1][1],
	})
	det := mat.Det(sigma)
	if det <= 1e-300 || math.IsNaN(det) {
		return kerrors.E(kerrors.NumericError, "singular covariance")
	}
	var inv mat.Dense
	if err := inv.Inverse(sigma); err != nil {
		return kerrors.E(kerrors.NumericError, err, "covariance inversion")
	}
	c.sigmaInv[0][0] = inv.At(0, 0)
	c.sigmaInv[0][1] = inv.At(0, 1)
	c.sigmaInv[1][0] = inv.At(1, 0)
	c.sigmaInv[1][1] = inv.At(1, 1)
	c.logNormalizer = -math.Log(2*math.Pi) - 0.5*math.Log(det)
	return nil
}

// logDensity returns log N(x | mu, sigma) for this component.
func (c *component) logDensity(x [2]float64) float64 {
	dx := x[0] - c.mu[0]
	dy := x[1] - c.mu[1]
	quad := dx*(c.sigmaInv[0][0]*dx+c.sigmaInv[0][1]*dy) + dy*(c.sigmaInv[1][0]*dx+c.sigmaInv[1][1]*dy)
	return c.logNormalizer - 0.5*quad
}

// gmmModel is the fitted state of a K-component mixture over the 2-D
// scatter of one gene pair's filtered samples.
type gmmModel struct {
	components []component
	labels     []int8 // hard assignment, length n, values in [0,K)
	logL       float64
	gamma      [][]float64 // responsibilities, n x K, linear (not log) space
}

// gmmOptions bundles the numeric knobs for fitGMM.
type gmmOptions struct {
	maxEMIterations      int
	emTolerance          float64
	maxKMeansIterations  int
	covarianceRegularize float64
}

// fitGMM fits a K-component Gaussian mixture to points by k-means
// initialization (see kmeansPlusPlusInit) followed by log-space EM, iterating until the relative
// change in log-likelihood drops below opts.emTolerance or
// opts.maxEMIterations is reached.
func fitGMM(points [][2]float64, k int, opts gmmOptions) (*gmmModel, error) {
	n := len(points)
	if k < 1 || n < k {
		return nil, kerrors.E(kerrors.DomainError, "not enough samples for requested cluster count")
	}

	comps, err := kmeansPlusPlusInit(points, k, opts.maxKMeansIterations)
	if err != nil {
		return nil, err
	}

	eps := opts.covarianceRegularize
	for i := range comps {
		comps[i].sigma[0][0] += eps
		comps[i].sigma[1][1] += eps
		if err := comps[i].prepareCovariance(); err != nil {
			return nil, err
		}
	}

	logGamma := make([][]float64, n)
	for i := range logGamma {
		logGamma[i] = make([]float64, k)
	}

	var prevLogL float64
	logL := math.Inf(-1)
	for iter := 0; iter < opts.maxEMIterations; iter++ {
		prevLogL = logL
		logL = 0

		// E-step.
		logPi := make([]float64, k)
		for c := range comps {
			logPi[c] = math.Log(comps[c].pi)
		}
		for i, x := range points {
			var maxLog float64 = math.Inf(-1)
			for c := range comps {
				v := logPi[c] + comps[c].logDensity(x)
				logGamma[i][c] = v
				if v > maxLog {
					maxLog = v
				}
			}
			if math.IsInf(maxLog, -1) {
				return nil, kerrors.E(kerrors.NumericError, "all component densities vanished")
			}
			var sumExp float64
			for c := range comps {
				sumExp += math.Exp(logGamma[i][c] - maxLog)
			}
			logSum := maxLog + math.Log(sumExp)
			for c := range comps {
				logGamma[i][c] -= logSum
			}
			logL += logSum
		}
		if math.IsNaN(logL) || math.IsInf(logL, 0) {
			return nil, kerrors.E(kerrors.NumericError, "non-finite log-likelihood")
		}

		// M-step.
		for c := range comps {
			var nk, mx, my float64
			for i, x := range points {
				g := math.Exp(logGamma[i][c])
				nk += g
				mx += g * x[0]
				my += g * x[1]
			}
			if nk <= 1e-12 {
				return nil, kerrors.E(kerrors.NumericError, "empty component during M-step")
			}
			mu := [2]float64{mx / nk, my / nk}

			var sxx, sxy, syy float64
			for i, x := range points {
				g := math.Exp(logGamma[i][c])
				dx := x[0] - mu[0]
				dy := x[1] - mu[1]
				sxx += g * dx * dx
				sxy += g * dx * dy
				syy += g * dy * dy
			}
			comps[c].pi = nk / float64(n)
			comps[c].mu = mu
			comps[c].sigma = [2][2]float64{
				{sxx/nk + eps, sxy / nk},
				{sxy / nk, syy/nk + eps},
			}
			if err := comps[c].prepareCovariance(); err != nil {
				return nil, err
			}
		}

		if iter > 0 && math.Abs(logL-prevLogL) < opts.emTolerance*math.Abs(logL) {
			break
		}
	}

	labels := make([]int8, n)
	gamma := make([][]float64, n)
	for i := range points {
		best := 0
		bestLog := logGamma[i][0]
		row := make([]float64, k)
		for c := 0; c < k; c++ {
			row[c] = math.Exp(logGamma[i][c])
			if logGamma[i][c] > bestLog {
				bestLog = logGamma[i][c]
				best = c
			}
		}
		labels[i] = int8(best)
		gamma[i] = row
	}

	return &gmmModel{components: comps, labels: labels, logL: logL, gamma: gamma}, nil
}

// kmeansPlusPlusInit seeds k centers deterministically: the first point,
// then repeatedly the point farthest from its nearest chosen center. It
// does not sample seeds from the randomized k-means++ distribution. It then
// runs Lloyd's algorithm to convergence (or maxIterations), and returns the
// resulting components with mixing weights and covariances estimated from
// the final hard partition.
func kmeansPlusPlusInit(points [][2]float64, k int, maxIterations int) ([]component, error) {
	n := len(points)
	centers := make([][2]float64, 0, k)

	// Deterministic seed selection: farthest-point-biased rather than
	// random, so fits are reproducible across runs with identical input.
	centers = append(centers, points[0])
	for len(centers) < k {
		var best int
		var bestD float64 = -1
		for i, p := range points {
			d := nearestSqDist(p, centers)
			if d > bestD {
				bestD = d
				best = i
			}
		}
		centers = append(centers, points[best])
	}

	assign := make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearestCenter(p, centers)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		sums := make([][2]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			c := assign[i]
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			centers[c] = [2]float64{sums[c][0] / float64(counts[c]), sums[c][1] / float64(counts[c])}
		}
		if !changed {
			break
		}
	}

	comps := make([]component, k)
	counts := make([]int, k)
	for i := range points {
		counts[assign[i]]++
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			return nil, kerrors.E(kerrors.NumericError, "k-means initialization produced an empty cluster")
		}
		comps[c].pi = float64(counts[c]) / float64(n)
		comps[c].mu = centers[c]
	}
	for c := 0; c < k; c++ {
		var vxx, vxy, vyy float64
		for i, p := range points {
			if assign[i] != c {
				continue
			}
			dx := p[0] - comps[c].mu[0]
			dy := p[1] - comps[c].mu[1]
			vxx += dx * dx
			vxy += dx * dy
			vyy += dy * dy
		}
		nf := float64(counts[c])
		comps[c].sigma = [2][2]float64{{vxx / nf, vxy / nf}, {vxy / nf, vyy / nf}}
	}
	return comps, nil
}

func nearestCenter(p [2]float64, centers [][2]float64) int {
	best := 0
	bestD := sqDist(p, centers[0])
	for c := 1; c < len(centers); c++ {
		d := sqDist(p, centers[c])
		if d < bestD {
			bestD = d
			best = c
		}
	}
	return best
}

func nearestSqDist(p [2]float64, centers [][2]float64) float64 {
	best := math.Inf(1)
	for _, c := range centers {
		d := sqDist(p, c)
		if d < best {
			best = d
		}
	}
	return best
}

func sqDist(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}
