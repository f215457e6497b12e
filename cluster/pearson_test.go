package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPearsonSingleCluster(t *testing.T) {
	points := [][2]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}
	labels := []int8{0, 0, 0, 0}

	r := pearson(points, labels, 0, 3)
	assert.InDelta(t, 1.0, r, 1e-6)
}

func TestPearsonInsufficientSamples(t *testing.T) {
	points := [][2]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}
	labels := []int8{0, 0, 0, 0}

	r := pearson(points, labels, 0, 5)
	assert.True(t, math.IsNaN(float64(r)))
}

func TestPearsonAntiCorrelated(t *testing.T) {
	points := [][2]float64{{1, 8}, {2, 6}, {3, 4}, {4, 2}}
	labels := []int8{0, 0, 0, 0}

	r := pearson(points, labels, 0, 3)
	assert.InDelta(t, -1.0, r, 1e-6)
}

func TestPearsonIgnoresOtherClusters(t *testing.T) {
	points := [][2]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}, {10, -40}}
	labels := []int8{0, 0, 0, 0, 1}

	r := pearson(points, labels, 0, 3)
	assert.InDelta(t, 1.0, r, 1e-6)
}
