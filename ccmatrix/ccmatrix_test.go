package ccmatrix

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterMatrixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ccm")
	w, err := Create(path, 10, 6, 4)
	require.NoError(t, err)

	require.NoError(t, w.WritePair(3, 1, 2, []int8{0, 0, 1, -1, 1, 0}))
	require.NoError(t, w.WritePair(5, 2, 1, []int8{0, 0, 0, 0, 0, 0}))
	require.NoError(t, w.Finish())

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	p, err := m.Read(3, 1)
	require.NoError(t, err)
	assert.True(t, p.Present())
	assert.Equal(t, 2, p.ClusterSize())
	lbl, err := p.Label(2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, lbl)

	// canonicalization: (1,3) reads the same row as (3,1).
	p2, err := m.Read(1, 3)
	require.NoError(t, err)
	assert.Equal(t, p.ClusterSize(), p2.ClusterSize())

	absent, err := m.Read(9, 8)
	require.NoError(t, err)
	assert.False(t, absent.Present())

	_, err = p.Label(6)
	assert.Error(t, err)
}

func TestClusterMatrixRejectsBadLabelLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ccm")
	w, err := Create(path, 10, 6, 4)
	require.NoError(t, err)
	err = w.WritePair(3, 1, 1, []int8{0, 0})
	assert.Error(t, err)
	require.NoError(t, w.Abort())
}
