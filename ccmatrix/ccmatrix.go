// Package ccmatrix implements the cluster matrix (CCM): a thin, typed view
// over store.Store that persists, per gene pair, the GMM cluster count and
// the per-sample cluster labels produced by the clustering kernel.
//
// Grounded on the original KINC CorrelationMatrix::Pair read/write shape
// (addCluster/readCluster in original_source/src/correlationmatrix.cpp),
// generalized per the spec's note that the matrix/cluster-matrix/
// correlation-matrix inheritance hierarchy collapses into one store with a
// capability set of typed views.
package ccmatrix

import (
	"encoding/binary"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
	"github.com/bio-kinc/kinc-go/pairindex"
	"github.com/bio-kinc/kinc-go/store"
)

// Absent is the label assigned to a sample that was filtered out of a
// pair's clustering because its expression is non-finite (NaN or ±Inf) in
// either gene.
const Absent int8 = -1

func buildDescriptor(sampleSize uint32, maxK uint8) store.Descriptor {
	var d store.Descriptor
	binary.LittleEndian.PutUint32(d[0:4], sampleSize)
	d[4] = maxK
	return d
}

func parseDescriptor(d store.Descriptor) (sampleSize int, maxK int) {
	sampleSize = int(binary.LittleEndian.Uint32(d[0:4]))
	maxK = int(d[4])
	return
}

func rowStride(sampleSize int) int { return 1 + sampleSize }

// Writer builds a CCM file pair-by-pair in increasing ordinal order.
type Writer struct {
	s          *store.Writer
	sampleSize int
	maxK       int
}

// Create opens path for writing a new cluster matrix for geneCount genes
// and sampleSize samples per pair, where no pair may report more than
// maxK clusters.
func Create(path string, geneCount, sampleSize, maxK int) (*Writer, error) {
	if sampleSize < 0 || maxK < 0 || maxK > 255 {
		return nil, kerrors.E(kerrors.DomainError, "invalid sampleSize or maxK")
	}
	s, err := store.Create(path, store.TypeClusterMatrix, uint32(geneCount), buildDescriptor(uint32(sampleSize), uint8(maxK)))
	if err != nil {
		return nil, err
	}
	return &Writer{s: s, sampleSize: sampleSize, maxK: maxK}, nil
}

// WritePair appends the row for pair (i,j): clusterCount (K) and the
// per-sample labels (length must equal sampleSize, values in
// [-1,clusterCount)).
func (w *Writer) WritePair(i, j int, clusterCount int, labels []int8) error {
	if len(labels) != w.sampleSize {
		return kerrors.E(kerrors.DomainError, "label vector length does not match sample size")
	}
	if clusterCount < 0 || clusterCount > w.maxK {
		return kerrors.E(kerrors.DomainError, "cluster count exceeds maxK")
	}
	ordinal, err := pairindex.Ordinal(i, j)
	if err != nil {
		return err
	}
	row := make([]byte, rowStride(w.sampleSize))
	row[0] = byte(clusterCount)
	for s, l := range labels {
		row[1+s] = byte(l)
	}
	return w.s.Write(ordinal, row)
}

// Finish seals the cluster matrix.
func (w *Writer) Finish() error { return w.s.Finish() }

// Abort discards a tentative (unfinished) cluster matrix.
func (w *Writer) Abort() error { return w.s.Abort() }

// Matrix provides read-only, random access to a sealed cluster matrix.
type Matrix struct {
	r          *store.Reader
	sampleSize int
	maxK       int
}

// Open opens a sealed cluster matrix file.
func Open(path string) (*Matrix, error) {
	r, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if r.TypeTag() != store.TypeClusterMatrix {
		r.Close()
		return nil, kerrors.E(kerrors.FormatError, "not a cluster matrix store")
	}
	sampleSize, maxK := parseDescriptor(r.Descriptor())
	return &Matrix{r: r, sampleSize: sampleSize, maxK: maxK}, nil
}

// Close releases the underlying store.
func (m *Matrix) Close() error { return m.r.Close() }

// GeneCount returns the number of genes the matrix covers.
func (m *Matrix) GeneCount() int { return m.r.GeneCount() }

// SampleSize returns the number of samples each pair's label vector
// covers.
func (m *Matrix) SampleSize() int { return m.sampleSize }

// Pair holds a copy of one pair's row; it stays usable after the Matrix is
// closed.
type Pair struct {
	present bool
	k       int
	labels  []int8
}

// Present reports whether the pair has a row (false if the pair was
// skipped by the kernel).
func (p Pair) Present() bool { return p.present }

// ClusterSize returns the pair's cluster count K.
func (p Pair) ClusterSize() int { return p.k }

// Label returns the cluster label assigned to sample s, or a DomainError
// if s is out of range.
func (p Pair) Label(s int) (int8, error) {
	if s < 0 || s >= len(p.labels) {
		return 0, kerrors.E(kerrors.DomainError, "sample index out of range")
	}
	return p.labels[s], nil
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
	buf := make([]byte, rowStride(m.sampleSize))
	if err := m.r.ReadPayload(offset, buf); err != nil {
		return Pair{}, err
	}
	labels := make([]int8, m.sampleSize)
	for s := range labels {
		labels[s] = int8(buf[1+s])
	}
	return Pair{present: true, k: int(buf[0]), labels: labels}, nil
}
