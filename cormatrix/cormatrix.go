// Package cormatrix implements the correlation matrix (CMX): a thin, typed
// view over store.Store that persists, per gene pair, one correlation
// coefficient per cluster.
//
// Grounded on original_source/src/correlationmatrix.cpp's
// CorrelationMatrix::Pair (addCluster/readCluster/toString) and its
// CorrelationMatrix::data diagonal special case, which this package's
// Matrix.At reproduces.
package cormatrix

import (
	"encoding/binary"
	"math"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
	"github.com/bio-kinc/kinc-go/pairindex"
	"github.com/bio-kinc/kinc-go/store"
)

func buildDescriptor(sampleSize uint32, correlationSize uint32, maxModes uint8) store.Descriptor {
	var d store.Descriptor
	binary.LittleEndian.PutUint32(d[0:4], sampleSize)
	binary.LittleEndian.PutUint32(d[4:8], correlationSize)
	d[8] = maxModes
	return d
}

func parseDescriptor(d store.Descriptor) (sampleSize, correlationSize, maxModes int) {
	sampleSize = int(binary.LittleEndian.Uint32(d[0:4]))
	correlationSize = int(binary.LittleEndian.Uint32(d[4:8]))
	maxModes = int(d[8])
	return
}

// rowStride returns the row width in bytes: 4*maxModes*correlationSize, per
// the redesign note canonicalizing the on-disk stride as a byte count
// rather than an element count.
func rowStride(maxModes, correlationSize int) int {
	return 4 * maxModes * correlationSize
}

// Writer builds a CMX file pair-by-pair in increasing ordinal order.
type Writer struct {
	s               *store.Writer
	maxModes        int
	correlationSize int
}

// Create opens path for writing a new correlation matrix for geneCount
// genes and sampleSize samples, where no pair may report more than
// maxModes clusters and each cluster holds correlationSize correlation
// values (1 for plain Pearson).
func Create(path string, geneCount, sampleSize, maxModes, correlationSize int) (*Writer, error) {
	if maxModes < 0 || maxModes > 255 || correlationSize <= 0 {
		return nil, kerrors.E(kerrors.DomainError, "invalid maxModes or correlationSize")
	}
	s, err := store.Create(path, store.TypeCorrelationMatrix, uint32(geneCount),
		buildDescriptor(uint32(sampleSize), uint32(correlationSize), uint8(maxModes)))
	if err != nil {
		return nil, err
	}
	return &Writer{s: s, maxModes: maxModes, correlationSize: correlationSize}, nil
}

// WritePair appends the row for pair (i,j): one correlation value per
// cluster, in descending-population order. correlations may have fewer
// than maxModes*correlationSize entries; unused slots are padded with
// NaN.
func (w *Writer) WritePair(i, j int, correlations []float32) error {
	width := w.maxModes * w.correlationSize
	if len(correlations) > width {
		return kerrors.E(kerrors.DomainError, "too many correlation values for descriptor")
	}
	ordinal, err := pairindex.Ordinal(i, j)
	if err != nil {
		return err
	}
	row := make([]byte, 4*width)
	for k := 0; k < width; k++ {
		v := float32(math.NaN())
		if k < len(correlations) {
			v = correlations[k]
		}
		binary.LittleEndian.PutUint32(row[4*k:4*k+4], math.Float32bits(v))
	}
	return w.s.Write(ordinal, row)
}

// Finish seals the correlation matrix.
func (w *Writer) Finish() error { return w.s.Finish() }

// Abort discards a tentative (unfinished) correlation matrix.
func (w *Writer) Abort() error { return w.s.Abort() }

// Matrix provides read-only, random access to a sealed correlation
// matrix.
type Matrix struct {
	r               *store.Reader
	maxModes        int
	correlationSize int
}

// Open opens a sealed correlation matrix file, asserting that consecutive
// stored rows lie exactly 4*maxModes*correlationSize bytes apart (the row
// stride in bytes).
func Open(path string) (*Matrix, error) {
	r, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if r.TypeTag() != store.TypeCorrelationMatrix {
		r.Close()
		return nil, kerrors.E(kerrors.FormatError, "not a correlation matrix store")
	}
	_, correlationSize, maxModes := parseDescriptor(r.Descriptor())
	stride := uint64(rowStride(maxModes, correlationSize))
	ordinals := r.Ordinals()
	for k := 1; k < len(ordinals); k++ {
		prev, _ := r.Find(ordinals[k-1])
		cur, _ := r.Find(ordinals[k])
		if cur-prev != stride {
			r.Close()
			return nil, kerrors.E(kerrors.FormatError, "row stride does not match 4*maxModes*correlationSize bytes")
		}
	}
	return &Matrix{r: r, maxModes: maxModes, correlationSize: correlationSize}, nil
}

// Close releases the underlying store.
func (m *Matrix) Close() error { return m.r.Close() }

// GeneCount returns the number of genes the matrix covers.
func (m *Matrix) GeneCount() int { return m.r.GeneCount() }

// Pair holds a copy of one pair's row; it stays usable after the Matrix is
// closed.
type Pair struct {
	present         bool
	values          []float32
	clusterSize     int
	correlationSize int
}

// Present reports whether the pair has a row.
func (p Pair) Present() bool { return p.present }

// ClusterSize returns the number of clusters actually populated for this
// pair (the count of leading non-NaN entries, assuming correlationSize==1;
// when correlationSize>1 it is the caller's responsibility to interpret
// the full value slice via At directly).
func (p Pair) ClusterSize() int { return p.clusterSize }

// At returns the correlation value for the given cluster. Bounds are
// checked with >= against the cluster count, per the redesign note fixing
// the original off-by-one.
func (p Pair) At(cluster int) (float32, error) {
	if cluster < 0 || cluster >= p.clusterSize {
		return 0, kerrors.E(kerrors.DomainError, "cluster index out of range")
	}
	return p.values[cluster*p.correlationSize], nil
}

// MaxAbs returns the largest absolute correlation across this pair's
// populated clusters, or 0 if the pair has no populated clusters. RMT
// thresholding prunes on this per-pair maximum rather than on any single
// cluster's value.
func (p Pair) MaxAbs() float32 {
	var m float32
	for c := 0; c < p.clusterSize; c++ {
		v := p.values[c*p.correlationSize]
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

// Read looks up the row for gene pair (i,j), canonicalizing so the larger
// index is the row coordinate. A pair with no stored row returns a Pair
// with Present()==false and a nil error.
func (m *Matrix) Read(i, j int) (Pair, error) {
	if j > i {
		i, j = j, i
	}
	ordinal, err := pairindex.Ordinal(i, j)
	if err != nil {
		return Pair{}, err
	}
	offset, found := m.r.Find(ordinal)
	if !found {
		return Pair{}, nil
	}
	width := m.maxModes * m.correlationSize
	buf := make([]byte, 4*width)
	if err := m.r.ReadPayload(offset, buf); err != nil {
		return Pair{}, err
	}
	values := make([]float32, width)
	clusterSize := 0
	for k := 0; k < width; k++ {
		values[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*k : 4*k+4]))
	}
	for k := 0; k < m.maxModes; k++ {
		if math.IsNaN(float64(values[k*m.correlationSize])) {
			break
		}
		clusterSize = k + 1
	}
	return Pair{present: true, values: values, clusterSize: clusterSize, correlationSize: m.correlationSize}, nil
}

// At returns the whole-matrix value at (row,col): 1 on the diagonal
// (without touching the store), otherwise the first (largest, by the
// kernel's descending-population convention) cluster's correlation for
// the canonicalized pair. This 2-D display convention is carried over
// from the original KINC CorrelationMatrix::data and is lossy: it
// discards every cluster but the largest.
func (m *Matrix) At(row, col int) (float32, error) {
	if row == col {
		return 1, nil
	}
	p, err := m.Read(row, col)
	if err != nil {
		return 0, err
	}
	if !p.Present() || p.ClusterSize() == 0 {
		return float32(math.NaN()), nil
	}
	return p.At(0)
}
