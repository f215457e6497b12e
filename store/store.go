// Package store implements the sparse, pair-keyed, append-only binary
// format shared by the cluster matrix (CCM) and correlation matrix (CMX)
// encodings: a fixed header, a contiguous payload region written in
// increasing pair-ordinal order, and a sealed index block mapping each
// present ordinal to its payload offset.
//
// The on-disk layout (little-endian throughout) is:
//
//	magic[8]  version u16  typeTag u16  geneCount u32
//	descriptor[32]
//	dataOffset u64  indexOffset u64  indexCount u64  checksum u64
//	<payload region, dataOffset..indexOffset>
//	<index block: indexCount * (ordinal u64, offset u64), sorted ascending>
//
// Grounded on github.com/grailbio/bio/encoding/bam's Index reader (plain
// encoding/binary scalar reads behind a magic check) and on
// encoding/pam/fieldio's two-phase Writer/seal lifecycle.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// DescriptorSize is the fixed width, in bytes, of the type-specific payload
// descriptor embedded in every header.
const DescriptorSize = 32

const (
	magic         = "KINCPAIR"
	version       = uint16(1)
	headerFixed   = 8 + 2 + 2 + 4 // magic + version + typeTag + geneCount
	headerTrailer = 8 + 8 + 8 + 8 // dataOffset + indexOffset + indexCount + checksum
	// HeaderSize is the total size, in bytes, of the fixed header that
	// precedes the payload region.
	HeaderSize      = headerFixed + DescriptorSize + headerTrailer
	indexRecordSize = 8 + 8 // ordinal + offset
)

// Type tags identify which typed view (CCM or CMX) a store's payload
// descriptor belongs to.
const (
	TypeClusterMatrix     = uint16(1)
	TypeCorrelationMatrix = uint16(2)
)

// Descriptor is the opaque, type-specific payload descriptor embedded in
// the header. CCM and CMX each interpret it differently.
type Descriptor [DescriptorSize]byte

// Header is the fixed, self-describing prefix of a store file.
type Header struct {
	Version     uint16
	TypeTag     uint16
	GeneCount   uint32
	Descriptor  Descriptor
	DataOffset  uint64
	IndexOffset uint64
	IndexCount  uint64
	Checksum    uint64
}

type indexEntry struct {
	Ordinal uint64
	Offset  uint64
}

// Writer builds a store file. Rows must be written in strictly increasing
// pair-ordinal order; the store is tentative (not safely readable) until
// Finish is called.
type Writer struct {
	f          *os.File
	w          *bufio.Writer
	typeTag    uint16
	geneCount  uint32
	descriptor Descriptor
	offset     uint64
	hasWritten bool
	lastOrd    uint64
	index      []indexEntry
	checksum   uint64
	finished   bool
}

// Create opens path for writing a fresh store of the given type, gene
// count and payload descriptor, creating or truncating the file. The file
// handle is not locked against other processes; Finish (on success) or
// Abort (on failure or cancellation) releases it.
func Create(path string, typeTag uint16, geneCount uint32, descriptor Descriptor) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, kerrors.E(kerrors.IOError, err, "create store "+path)
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		f.Close()
		return nil, kerrors.E(kerrors.IOError, err, "reserve header")
	}
	return &Writer{
		f:          f,
		w:          bufio.NewWriter(f),
		typeTag:    typeTag,
		geneCount:  geneCount,
		descriptor: descriptor,
	}, nil
}

// Write appends payload as the row for pair ordinal. ordinal must be
// strictly greater than any previously written ordinal.
func (w *Writer) Write(ordinal uint64, payload []byte) error {
	if w.finished {
		return kerrors.E(kerrors.DomainError, "store is already sealed")
	}
	if w.hasWritten && ordinal <= w.lastOrd {
		return kerrors.E(kerrors.OrderingError, fmt.Sprintf(
			"ordinal %d is not greater than last written ordinal %d", ordinal, w.lastOrd))
	}

	abs := uint64(HeaderSize) + w.offset
	n, err := w.w.Write(payload)
	if err != nil || n != len(payload) {
		return kerrors.E(kerrors.IOError, err, "short write of payload row")
	}

	w.index = append(w.index, indexEntry{Ordinal: ordinal, Offset: abs})
	w.checksum = chainChecksum(w.checksum, payload)
	w.offset += uint64(len(payload))
	w.lastOrd = ordinal
	w.hasWritten = true
	return nil
}

// chainChecksum folds payload into the running store checksum. Order
// sensitive, so rows written out of sequence (which Write already
// forbids) would also be caught on reopen.
func chainChecksum(prev uint64, payload []byte) uint64 {
	var prevBytes [8]byte
	binary.LittleEndian.PutUint64(prevBytes[:], prev)
	return farm.Hash64(append(prevBytes[:], payload...))
}

// Abort discards a tentative (unfinished) store, releasing its file handle
// without sealing an index. Safe to call after Finish (no-op).
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	return w.f.Close()
}

// Finish flushes the payload region, appends the sealed index block,
// rewrites the header with the final offsets and checksum, fsyncs, and
// releases the file handle. The store is read-only after Finish returns.
func (w *Writer) Finish() error {
	if w.finished {
		return kerrors.E(kerrors.DomainError, "store is already sealed")
	}

	indexOffset := uint64(HeaderSize) + w.offset
	idxBuf := make([]byte, 0, len(w.index)*indexRecordSize)
	for _, e := range w.index {
		idxBuf = appendU64(idxBuf, e.Ordinal)
		idxBuf = appendU64(idxBuf, e.Offset)
	}
	if _, err := w.w.Write(idxBuf); err != nil {
		w.f.Close()
		return kerrors.E(kerrors.IOError, err, "write index block")
	}
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return kerrors.E(kerrors.IOError, err, "flush payload")
	}

	hdr := Header{
		Version:     version,
		TypeTag:     w.typeTag,
		GeneCount:   w.geneCount,
		Descriptor:  w.descriptor,
		DataOffset:  uint64(HeaderSize),
		IndexOffset: indexOffset,
		IndexCount:  uint64(len(w.index)),
		Checksum:    w.checksum,
	}
	hb := marshalHeader(hdr)
	if _, err := w.f.WriteAt(hb, 0); err != nil {
		w.f.Close()
		return kerrors.E(kerrors.IOError, err, "rewrite header")
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return kerrors.E(kerrors.IOError, err, "fsync")
	}
	w.finished = true
	if err := w.f.Close(); err != nil {
		return kerrors.E(kerrors.IOError, err, "close store")
	}
	return nil
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func marshalHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:8], magic)
	binary.LittleEndian.PutUint16(b[8:10], h.Version)
	binary.LittleEndian.PutUint16(b[10:12], h.TypeTag)
	binary.LittleEndian.PutUint32(b[12:16], h.GeneCount)
	copy(b[16:16+DescriptorSize], h.Descriptor[:])
	off := 16 + DescriptorSize
	binary.LittleEndian.PutUint64(b[off:off+8], h.DataOffset)
	binary.LittleEndian.PutUint64(b[off+8:off+16], h.IndexOffset)
	binary.LittleEndian.PutUint64(b[off+16:off+24], h.IndexCount)
	binary.LittleEndian.PutUint64(b[off+24:off+32], h.Checksum)
	return b
}

func unmarshalHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, kerrors.E(kerrors.FormatError, "truncated header")
	}
	if string(b[0:8]) != magic {
		return h, kerrors.E(kerrors.FormatError, "bad magic")
	}
	h.Version = binary.LittleEndian.Uint16(b[8:10])
	if h.Version != version {
		return h, kerrors.E(kerrors.FormatError, fmt.Sprintf("unsupported version %d", h.Version))
	}
	h.TypeTag = binary.LittleEndian.Uint16(b[10:12])
	h.GeneCount = binary.LittleEndian.Uint32(b[12:16])
	copy(h.Descriptor[:], b[16:16+DescriptorSize])
	off := 16 + DescriptorSize
	h.DataOffset = binary.LittleEndian.Uint64(b[off : off+8])
	h.IndexOffset = binary.LittleEndian.Uint64(b[off+8 : off+16])
	h.IndexCount = binary.LittleEndian.Uint64(b[off+16 : off+24])
	h.Checksum = binary.LittleEndian.Uint64(b[off+24 : off+32])
	return h, nil
}

// Reader provides random-access and sequential reads over a sealed store.
type Reader struct {
	f      *os.File
	header Header
	index  []indexEntry
}

// Open opens a sealed store file, verifying its magic, version and index
// size invariants, and checks the payload checksum.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kerrors.E(kerrors.IOError, err, "open store "+path)
	}
	hb := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, hb); err != nil {
		f.Close()
		return nil, kerrors.E(kerrors.FormatError, err, "read header")
	}
	hdr, err := unmarshalHeader(hb)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kerrors.E(kerrors.IOError, err, "stat store")
	}
	wantSize := hdr.IndexOffset + hdr.IndexCount*indexRecordSize
	if uint64(info.Size()) != wantSize {
		f.Close()
		return nil, kerrors.E(kerrors.FormatError, fmt.Sprintf(
			"trailing index block size mismatch: file is %d bytes, expected %d", info.Size(), wantSize))
	}

	idxBuf := make([]byte, hdr.IndexCount*indexRecordSize)
	if _, err := f.ReadAt(idxBuf, int64(hdr.IndexOffset)); err != nil {
		f.Close()
		return nil, kerrors.E(kerrors.FormatError, err, "read index block")
	}
	index := make([]indexEntry, hdr.IndexCount)
	var lastOrd uint64
	var checksum uint64
	for i := range index {
		b := idxBuf[i*indexRecordSize : (i+1)*indexRecordSize]
		ord := binary.LittleEndian.Uint64(b[0:8])
		off := binary.LittleEndian.Uint64(b[8:16])
		if i > 0 && ord <= lastOrd {
			f.Close()
			return nil, kerrors.E(kerrors.FormatError, "index is not strictly increasing")
		}
		index[i] = indexEntry{Ordinal: ord, Offset: off}
		lastOrd = ord
	}

	payload := make([]byte, hdr.IndexOffset-hdr.DataOffset)
	if _, err := f.ReadAt(payload, int64(hdr.DataOffset)); err != nil {
		f.Close()
		return nil, kerrors.E(kerrors.FormatError, err, "read payload for checksum")
	}
	for i := range index {
		start := index[i].Offset - hdr.DataOffset
		var end uint64
		if i+1 < len(index) {
			end = index[i+1].Offset - hdr.DataOffset
		} else {
			end = uint64(len(payload))
		}
		checksum = chainChecksum(checksum, payload[start:end])
	}
	if checksum != hdr.Checksum {
		f.Close()
		return nil, kerrors.E(kerrors.FormatError, "payload checksum mismatch")
	}

	return &Reader{f: f, header: hdr, index: index}, nil
}

// GeneCount returns the number of genes the store was initialized with.
func (r *Reader) GeneCount() int { return int(r.header.GeneCount) }

// TypeTag returns the store's type tag (TypeClusterMatrix or
// TypeCorrelationMatrix).
func (r *Reader) TypeTag() uint16 { return r.header.TypeTag }

// Descriptor returns the type-specific payload descriptor embedded in the
// header.
func (r *Reader) Descriptor() Descriptor { return r.header.Descriptor }

// IndexCount returns the number of present (non-absent) pairs in the
// store.
func (r *Reader) IndexCount() int { return len(r.index) }

// Find performs a binary search for ordinal's payload offset.
func (r *Reader) Find(ordinal uint64) (offset uint64, found bool) {
	i := sort.Search(len(r.index), func(i int) bool { return r.index[i].Ordinal >= ordinal })
	if i < len(r.index) && r.index[i].Ordinal == ordinal {
		return r.index[i].Offset, true
	}
	return 0, false
}

// ReadPayload performs a positioned read of len(buf) bytes starting at
// offset, failing with an IOError on a short read.
func (r *Reader) ReadPayload(offset uint64, buf []byte) error {
	n, err := r.f.ReadAt(buf, int64(offset))
	if err != nil || n != len(buf) {
		return kerrors.E(kerrors.IOError, err, "short read of payload row")
	}
	return nil
}

// Ordinals returns every present pair ordinal in increasing order, for
// sequential scans.
func (r *Reader) Ordinals() []uint64 {
	out := make([]uint64, len(r.index))
	for i, e := range r.index {
		out[i] = e.Ordinal
	}
	return out
}

// Close releases the store's file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
