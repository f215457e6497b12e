package rmt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPrunedMatrixSizeIsMonotoneInThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := 40
	full := make([][]float32, g)
	for i := range full {
		full[i] = make([]float32, g)
	}
	for i := 0; i < g; i++ {
		full[i][i] = 1
		for j := 0; j < i; j++ {
			v := float32(rng.Float64())
			full[i][j] = v
			full[j][i] = v
		}
	}
	geneMax := perGeneMax(full, g)

	prevSize := g + 1
	for _, thr := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		var included []int
		for i := 0; i < g; i++ {
			if float64(geneMax[i]) >= thr {
				included = append(included, i)
			}
		}
		a := prunedMatrix(full, included, thr)
		r, _ := a.Dims()
		assert.LessOrEqual(t, r, prevSize)
		prevSize = r
	}
}

func TestRemoveDegenerateDropsNearDuplicates(t *testing.T) {
	eigs := []float64{0, 0.0000001, 0.0000002, 1, 2, 2.0000001, 3}
	out := removeDegenerate(eigs, 1e-6)
	assert.Less(t, len(out), len(eigs))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i]-out[i-1], 0.0)
	}
}

func TestRemoveDegenerateKeepsAllWhenWellSeparated(t *testing.T) {
	eigs := []float64{0, 1, 2, 3, 4}
	out := removeDegenerate(eigs, 1e-6)
	assert.Equal(t, eigs, out)
}

// TestEigenvaluesAscendingOnKnownMatrix checks the eigensolver wiring
// against a matrix with known eigenvalues: diag(1,2,3).
func TestEigenvaluesAscendingOnKnownMatrix(t *testing.T) {
	a := mat.NewSymDense(3, []float64{
		1, 0, 0,
		0, 2, 0,
		0, 0, 3,
	})
	eigs, err := eigenvaluesAscending(a)
	require.NoError(t, err)
	require.Len(t, eigs, 3)
	assert.InDelta(t, 1, eigs[0], 1e-9)
	assert.InDelta(t, 2, eigs[1], 1e-9)
	assert.InDelta(t, 3, eigs[2], 1e-9)
}
