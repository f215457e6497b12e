package cormatrix

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMatrixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.cmx")
	w, err := Create(path, 10, 6, 3, 1)
	require.NoError(t, err)

	require.NoError(t, w.WritePair(4, 2, []float32{0.91, -0.2}))
	require.NoError(t, w.WritePair(7, 5, []float32{0.5}))
	require.NoError(t, w.Finish())

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	p, err := m.Read(4, 2)
	require.NoError(t, err)
	assert.True(t, p.Present())
	assert.Equal(t, 2, p.ClusterSize())
	v0, err := p.At(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.91, v0, 1e-6)
	v1, err := p.At(1)
	require.NoError(t, err)
	assert.InDelta(t, -0.2, v1, 1e-6)
	_, err = p.At(2)
	assert.Error(t, err)

	// canonicalization.
	p2, err := m.Read(2, 4)
	require.NoError(t, err)
	assert.Equal(t, p.ClusterSize(), p2.ClusterSize())
}

func TestCorrelationMatrixDiagonalIsOneWithoutStoreRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.cmx")
	w, err := Create(path, 10, 6, 2, 1)
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	v, err := m.At(3, 3)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)

	v, err = m.At(9, 9)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)
}

func TestCorrelationMatrixAbsentPairReturnsNaN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.cmx")
	w, err := Create(path, 10, 6, 2, 1)
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	v, err := m.At(8, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(v)))
}
