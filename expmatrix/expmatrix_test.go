package expmatrix

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTextBasic(t *testing.T) {
	text := "s1\ts2\ts3\n" +
		"g1\t1\t2\t3\n" +
		"g2\t4\tNA\t6\n"
	m, err := LoadText(strings.NewReader(text), NoTransform, "")
	require.NoError(t, err)

	require.Equal(t, 2, m.RowCount())
	require.Equal(t, 3, m.ColumnCount())

	v, err := m.At(0, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(3), v)

	v, err = m.At(1, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(v)))

	name, err := m.GeneName(1)
	require.NoError(t, err)
	assert.Equal(t, "g2", name)

	sname, err := m.SampleName(0)
	require.NoError(t, err)
	assert.Equal(t, "s1", sname)
}

// TestLoadTextLog2TransformMasksNonPositive matches the spec's transform
// scenario: with transform=log2, zero and negative cells become NaN, the
// NaN sentinel stays NaN, and positive cells are transformed.
func TestLoadTextLog2TransformMasksNonPositive(t *testing.T) {
	text := "s1\ts2\ts3\ts4\n" +
		"g1\t8\t0\t-4\tNA\n"
	m, err := LoadText(strings.NewReader(text), Log2Transform, "")
	require.NoError(t, err)

	v, err := m.At(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-6)

	for _, col := range []int{1, 2, 3} {
		v, err := m.At(0, col)
		require.NoError(t, err)
		assert.Truef(t, math.IsNaN(float64(v)), "column %d should be NaN", col)
	}
}

func TestLoadTextCustomNaNToken(t *testing.T) {
	text := "s1\ts2\n" +
		"g1\t1\tmissing\n"
	m, err := LoadText(strings.NewReader(text), NoTransform, "missing")
	require.NoError(t, err)
	v, err := m.At(0, 1)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(v)))
}

func TestLoadTextIgnoresTrailingBlankLines(t *testing.T) {
	text := "s1\ts2\n" +
		"g1\t1\t2\n" +
		"\n\n"
	m, err := LoadText(strings.NewReader(text), NoTransform, "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.RowCount())
}

func TestLoadTextRejectsMalformedRow(t *testing.T) {
	text := "s1\ts2\n" +
		"g1\t1\n"
	_, err := LoadText(strings.NewReader(text), NoTransform, "")
	assert.Error(t, err)
}

func TestGeneRowAliasesStorage(t *testing.T) {
	text := "s1\ts2\n" +
		"g1\t1\t2\n" +
		"g2\t3\t4\n"
	m, err := LoadText(strings.NewReader(text), NoTransform, "")
	require.NoError(t, err)

	row, err := m.Gene(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, row)
}

func TestSuggestFindsClosestName(t *testing.T) {
	text := "sample_alpha\tsample_beta\n" +
		"geneABC\t1\t2\n" +
		"geneXYZ\t3\t4\n"
	m, err := LoadText(strings.NewReader(text), NoTransform, "")
	require.NoError(t, err)

	best, score := m.Suggest("geneABD")
	assert.Equal(t, "geneABC", best)
	assert.Greater(t, score, 0.8)
}

func TestSaveOpenRoundTrip(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "expmatrix")
	defer testutil.NoCleanupOnError(t, cleanup, dir)

	text := "s1\ts2\ts3\n" +
		"g1\t1\t2\t3\n" +
		"g2\t4\tNA\t6\n"
	m, err := LoadText(strings.NewReader(text), Log2Transform, "")
	require.NoError(t, err)

	path := filepath.Join(dir, "matrix.emx")
	require.NoError(t, m.Save(context.Background(), path))

	reopened, err := Open(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, m.RowCount(), reopened.RowCount())
	assert.Equal(t, m.ColumnCount(), reopened.ColumnCount())
	assert.Equal(t, m.Transform(), reopened.Transform())

	for g := 0; g < m.RowCount(); g++ {
		for s := 0; s < m.ColumnCount(); s++ {
			orig, err := m.At(g, s)
			require.NoError(t, err)
			got, err := reopened.At(g, s)
			require.NoError(t, err)
			if math.IsNaN(float64(orig)) {
				assert.True(t, math.IsNaN(float64(got)))
			} else {
				assert.Equal(t, orig, got)
			}
		}
	}

	gname, err := reopened.GeneName(1)
	require.NoError(t, err)
	assert.Equal(t, "g2", gname)
}
