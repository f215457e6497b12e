package cluster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterPairSkipsWhenBelowMinSamples(t *testing.T) {
	x := []float32{1, 2, 3}
	y := []float32{2, 4, 6}
	k := New(Options{MinSamples: 10, MinClusters: 1, MaxClusters: 3, Criterion: BIC,
		MaxEMIterations: 50, EMTolerance: 1e-4, MaxKMeansIterations: 50, CovarianceEpsilonRel: 1e-6})

	res, err := k.ClusterPair(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0, res.K)
	assert.False(t, res.Emit)
}

func TestClusterPairExcludesNonFiniteSamples(t *testing.T) {
	n := 40
	x := make([]float32, n)
	y := make([]float32, n)
	for i := 0; i < n; i++ {
		x[i] = float32(i)
		y[i] = float32(2 * i)
	}
	x[5] = float32(math.NaN())
	y[20] = float32(math.Inf(1))

	k := New(Options{MinSamples: 10, MinClusters: 1, MaxClusters: 1, Criterion: BIC,
		MaxEMIterations: 50, EMTolerance: 1e-4, MaxKMeansIterations: 50, CovarianceEpsilonRel: 1e-6})

	res, err := k.ClusterPair(x, y)
	require.NoError(t, err)
	require.True(t, res.Emit)
	assert.Equal(t, int8(-1), res.Labels[5])
	assert.Equal(t, int8(-1), res.Labels[20])
	assert.Equal(t, int8(0), res.Labels[0])
}

// TestClusterPairTwoObviousBlobsSelectsK2 matches the spec's literal GMM
// scenario: two well-separated isotropic blobs should be selected as K=2
// by BIC, with each cluster's Pearson correlation near zero.
func TestClusterPairTwoObviousBlobsSelectsK2(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 100
	x := make([]float32, 2*n)
	y := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		x[i] = float32(rng.NormFloat64() * 0.1)
		y[i] = float32(rng.NormFloat64() * 0.1)
	}
	for i := 0; i < n; i++ {
		x[n+i] = float32(5 + rng.NormFloat64()*0.1)
		y[n+i] = float32(5 + rng.NormFloat64()*0.1)
	}

	k := New(Options{MinSamples: 15, MinClusters: 1, MaxClusters: 3, Criterion: BIC,
		MaxEMIterations: 100, EMTolerance: 1e-4, MaxKMeansIterations: 100, CovarianceEpsilonRel: 1e-6})

	res, err := k.ClusterPair(x, y)
	require.NoError(t, err)
	require.True(t, res.Emit)
	assert.Equal(t, 2, res.K)

	for _, r := range res.Correlations {
		assert.InDelta(t, 0, r, 0.05)
	}
}
