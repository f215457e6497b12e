// Package cluster implements the per-pair GmmPearsonKernel: sample
// filtering, a K in [1,MaxClusters] Gaussian-mixture sweep with BIC/ICL
// model selection, and per-cluster Pearson correlation.
//
// Grounded on original_source/src/genepair_gmm.h for the mixture shape
// (2-D components with pi/mu/sigma) and original_source/src/core/
// pairwise_pearson.cpp for the correlation formula; restructured around
// Go value types and explicit error returns per github.com/grailbio/bio's
// style (e.g. encoding/pam/fieldio), which favors small structs over the
// source's class hierarchy.
package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// Options bundles the tunable parameters of one clustering pass, mirroring
// the "CMX build" analytic arguments (minSamples, minClusters, maxClusters,
// criterion) plus the numeric knobs the source hard-codes as constants.
type Options struct {
	MinSamples  int
	MinClusters int
	MaxClusters int
	Criterion   Criterion

	MaxEMIterations      int
	EMTolerance          float64
	MaxKMeansIterations  int
	CovarianceEpsilonRel float64 // eps = CovarianceEpsilonRel * trace(Sigma0)/2
}

// DefaultOptions returns the numeric defaults the original analytic hard-
// codes: tol=1e-4, maxIterations=100, plus minSamples=15, which callers
// usually override.
func DefaultOptions() Options {
	return Options{
		MinSamples:           15,
		MinClusters:          1,
		MaxClusters:          5,
		Criterion:            BIC,
		MaxEMIterations:      100,
		EMTolerance:          1e-4,
		MaxKMeansIterations:  300,
		CovarianceEpsilonRel: 1e-6,
	}
}

// Result is the kernel's output for one gene pair: the selected cluster
// count, the full-length (sampleSize) label vector with -1 for filtered
// samples, and one correlation per cluster ordered by descending
// population. Emit is false when the pair produced nothing worth storing.
type Result struct {
	K            int
	Labels       []int8
	Correlations []float32
	Emit         bool
}

// Kernel runs the clustering+correlation pipeline for a stream of gene
// pairs. It holds only its options: every ClusterPair call allocates its
// own working buffers, and no buffer is reused from one pair to the next.
type Kernel struct {
	opts Options
}

// New constructs a Kernel with the given options.
func New(opts Options) *Kernel {
	return &Kernel{opts: opts}
}

// ClusterPair runs the full GmmPearsonKernel pipeline over gene x's and
// gene y's expression rows (equal length, the sample dimension). Samples
// where either value is non-finite are excluded from fitting and receive
// label -1.
func (k *Kernel) ClusterPair(x, y []float32) (Result, error) {
	if len(x) != len(y) {
		return Result{}, kerrors.E(kerrors.DomainError, "gene rows have mismatched sample counts")
	}
	sampleSize := len(x)

	selected := make([]int, 0, sampleSize)
	points := make([][2]float64, 0, sampleSize)
	for s := range x {
		if isFinite32(x[s]) && isFinite32(y[s]) {
			selected = append(selected, s)
			points = append(points, [2]float64{float64(x[s]), float64(y[s])})
		}
	}
	if len(selected) < k.opts.MinSamples {
		return Result{K: 0}, nil
	}

	var best *gmmModel
	var bestScore float64
	var bestK int

	minK := k.opts.MinClusters
	if minK < 1 {
		minK = 1
	}
	for kk := minK; kk <= k.opts.MaxClusters; kk++ {
		model, err := fitGMM(points, kk, gmmOptions{
			maxEMIterations:      k.opts.MaxEMIterations,
			emTolerance:          k.opts.EMTolerance,
			maxKMeansIterations:  k.opts.MaxKMeansIterations,
			covarianceRegularize: initialCovarianceEpsilon(points, k.opts.CovarianceEpsilonRel),
		})
		if err != nil {
			// NumericError is recovered locally: this K is rejected and the
			// next one tried, per the error-handling policy for the kernel.
			if kerrors.Is(err, kerrors.NumericError) {
				continue
			}
			return Result{}, err
		}
		s := score(k.opts.Criterion, model, len(points))
		if best == nil || s < bestScore {
			best = model
			bestScore = s
			bestK = kk
		}
	}

	if best == nil {
		return Result{K: 0}, nil
	}

	order := reorderByDescendingPopulation(best.labels, bestK)
	compactLabels := remapLabels(best.labels, order)

	correlations := make([]float32, bestK)
	for c := 0; c < bestK; c++ {
		correlations[c] = pearson(points, compactLabels, int8(c), k.opts.MinSamples)
	}

	fullLabels := make([]int8, sampleSize)
	for i := range fullLabels {
		fullLabels[i] = -1
	}
	for i, s := range selected {
		fullLabels[s] = compactLabels[i]
	}

	allNaN := true
	for _, r := range correlations {
		if !math.IsNaN(float64(r)) {
			allNaN = false
			break
		}
	}

	return Result{
		K:            bestK,
		Labels:       fullLabels,
		Correlations: correlations,
		Emit:         !allNaN,
	}, nil
}

func isFinite32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// initialCovarianceEpsilon computes eps = rel * trace(Sigma0)/2 where
// Sigma0 is the covariance of every selected point, per the kernel's
// numeric policy for regularizing each component's covariance.
func initialCovarianceEpsilon(points [][2]float64, rel float64) float64 {
	n := len(points)
	if n == 0 {
		return rel
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		xs[i] = p[0]
		ys[i] = p[1]
	}
	mx := floats.Sum(xs) / float64(n)
	my := floats.Sum(ys) / float64(n)
	var vxx, vyy float64
	for _, p := range points {
		dx := p[0] - mx
		dy := p[1] - my
		vxx += dx * dx
		vyy += dy * dy
	}
	trace := vxx/float64(n) + vyy/float64(n)
	return rel * trace / 2
}

// reorderByDescendingPopulation returns, for a hard-assignment label
// vector over k clusters, the permutation old->new cluster index so that
// new index 0 is the most populous cluster.
func reorderByDescendingPopulation(labels []int8, k int) []int {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })
	newIndex := make([]int, k)
	for newPos, oldIdx := range order {
		newIndex[oldIdx] = newPos
	}
	return newIndex
}

func remapLabels(labels []int8, newIndex []int) []int8 {
	out := make([]int8, len(labels))
	for i, l := range labels {
		out[i] = int8(newIndex[l])
	}
	return out
}
