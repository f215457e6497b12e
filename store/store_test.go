package store

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Row(vals ...float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func readFloat32Row(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return out
}

// TestTinyStoreScenario exercises the literal scenario from the spec: G=4,
// Kmax=2, writing ordinals {0,2,5} with 2-float payloads, then checking
// absence and presence on the sealed file at its first open and again
// after reopening it.
func TestTinyStoreScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.cmx")

	w, err := Create(path, TypeCorrelationMatrix, 4, Descriptor{})
	require.NoError(t, err)
	require.NoError(t, w.Write(0, float32Row(0.1, 0.2)))
	require.NoError(t, w.Write(2, float32Row(0.3, float32(math.NaN()))))
	require.NoError(t, w.Write(5, float32Row(0.9, 0.8)))
	require.NoError(t, w.Finish())

	check := func(t *testing.T) {
		r, err := Open(path)
		require.NoError(t, err)
		defer r.Close()

		_, found := r.Find(1)
		assert.False(t, found)

		off, found := r.Find(5)
		require.True(t, found)
		buf := make([]byte, 8)
		require.NoError(t, r.ReadPayload(off, buf))
		vals := readFloat32Row(buf)
		assert.InDelta(t, 0.9, vals[0], 1e-6)
		assert.InDelta(t, 0.8, vals[1], 1e-6)
	}

	t.Run("first open after sealing", check)
	t.Run("after reopen", check)
}

func TestWriteRejectsNonIncreasingOrdinal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cmx")
	w, err := Create(path, TypeCorrelationMatrix, 4, Descriptor{})
	require.NoError(t, err)
	require.NoError(t, w.Write(3, float32Row(1)))
	err = w.Write(3, float32Row(1))
	assert.Error(t, err)
	err = w.Write(2, float32Row(1))
	assert.Error(t, err)
	require.NoError(t, w.Abort())
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.cmx")
	require.NoError(t, writeFile(path, []byte("not a kinc store at all, just junk bytes padded out")))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenRejectsTruncatedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trunc.cmx")
	w, err := Create(path, TypeCorrelationMatrix, 4, Descriptor{})
	require.NoError(t, err)
	require.NoError(t, w.Write(0, float32Row(1, 2)))
	require.NoError(t, w.Finish())

	// Header, one 8-byte row, then cut the 16-byte index record in half.
	truncate(t, path, int64(HeaderSize+8+indexRecordSize/2))
	_, err = Open(path)
	assert.Error(t, err)
}

func TestStoreRoundTripArbitrarySet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.cmx")
	w, err := Create(path, TypeCorrelationMatrix, 50, Descriptor{})
	require.NoError(t, err)

	ordinals := []uint64{0, 1, 4, 9, 20, 21, 100, 500}
	payloads := make(map[uint64][]float32)
	for i, o := range ordinals {
		vals := []float32{float32(i), float32(i) * 1.5}
		payloads[o] = vals
		require.NoError(t, w.Write(o, float32Row(vals...)))
	}
	require.NoError(t, w.Finish())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	for o, want := range payloads {
		off, found := r.Find(o)
		require.True(t, found)
		buf := make([]byte, 8)
		require.NoError(t, r.ReadPayload(off, buf))
		assert.Equal(t, want, readFloat32Row(buf))
	}
	for _, absent := range []uint64{2, 3, 50, 499, 501} {
		_, found := r.Find(absent)
		assert.False(t, found, "ordinal %d should be absent", absent)
	}
}
