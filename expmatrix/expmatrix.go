// Package expmatrix implements the dense gene-by-sample expression matrix
// (EMX): a read-only, in-memory matrix loaded from a tab-separated text
// file (or a previously saved binary snapshot), with row-major storage and
// an optional log transform.
//
// Grounded on original_source/src/ematrix.h for the header shape (sample
// count, gene count, transform flag, name tables) and on
// github.com/grailbio/bio/encoding/fasta/fasta.go for the text-parsing
// style (bufio.Scanner, github.com/pkg/errors wrapping, in-memory result).
package expmatrix

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// Transform is the elementwise transform applied to positive expression
// values on load.
type Transform uint8

// The four transforms the original KINC EMatrix supports.
const (
	NoTransform Transform = iota
	LnTransform
	Log2Transform
	Log10Transform
)

func (t Transform) apply(v float32) float32 {
	if t == NoTransform {
		return v
	}
	if math.IsNaN(float64(v)) || v <= 0 {
		return float32(math.NaN())
	}
	x := float64(v)
	switch t {
	case LnTransform:
		return float32(math.Log(x))
	case Log2Transform:
		return float32(math.Log2(x))
	case Log10Transform:
		return float32(math.Log10(x))
	default:
		return v
	}
}

// DefaultNaNToken is the sentinel text token loadText treats as a missing
// value when no override is given.
const DefaultNaNToken = "NA"

// Matrix is a dense, read-only gene x sample expression matrix.
type Matrix struct {
	geneNames   []string
	sampleNames []string
	data        []float32 // row-major geneCount x sampleCount
	transform   Transform
}

// RowCount returns the number of genes.
func (m *Matrix) RowCount() int { return len(m.geneNames) }

// ColumnCount returns the number of samples.
func (m *Matrix) ColumnCount() int { return len(m.sampleNames) }

// Transform returns the transform that was applied on load.
func (m *Matrix) Transform() Transform { return m.transform }

func (m *Matrix) rowStride() int { return len(m.sampleNames) }

// At returns the expression value of gene g in sample s.
func (m *Matrix) At(g, s int) (float32, error) {
	if g < 0 || g >= m.RowCount() || s < 0 || s >= m.ColumnCount() {
		return 0, kerrors.E(kerrors.DomainError, "gene/sample index out of range")
	}
	return m.data[g*m.rowStride()+s], nil
}

// GeneName returns the name of gene g.
func (m *Matrix) GeneName(g int) (string, error) {
	if g < 0 || g >= m.RowCount() {
		return "", kerrors.E(kerrors.DomainError, "gene index out of range")
	}
	return m.geneNames[g], nil
}

// SampleName returns the name of sample s.
func (m *Matrix) SampleName(s int) (string, error) {
	if s < 0 || s >= m.ColumnCount() {
		return "", kerrors.E(kerrors.DomainError, "sample index out of range")
	}
	return m.sampleNames[s], nil
}

// Gene returns the full expression row for gene g. The returned slice
// aliases the matrix's internal storage and must not be modified.
func (m *Matrix) Gene(g int) ([]float32, error) {
	if g < 0 || g >= m.RowCount() {
		return nil, kerrors.E(kerrors.DomainError, "gene index out of range")
	}
	stride := m.rowStride()
	return m.data[g*stride : (g+1)*stride], nil
}

// Suggest returns the closest gene or sample name to the given (possibly
// mistyped) name, using Jaro-Winkler distance, along with its similarity
// score in [0,1]. It is a convenience for CLI tooling, not part of the
// core clustering path.
func (m *Matrix) Suggest(name string) (best string, score float64) {
	consider := func(candidates []string) {
		for _, c := range candidates {
			s := matchr.JaroWinkler(name, c)
			if s > score {
				score = s
				best = c
			}
		}
	}
	consider(m.geneNames)
	consider(m.sampleNames)
	return best, score
}

// LoadText parses a tab-separated expression matrix: line 1 holds the
// sample names, lines 2..G+1 hold a gene name followed by the sample
// values. Empty fields and nanToken are treated as missing (NaN). If
// transform is not NoTransform it is applied elementwise to positive
// values; non-positive values become NaN. Trailing blank lines are
// ignored.
func LoadText(r io.Reader, transform Transform, nanToken string) (*Matrix, error) {
	if nanToken == "" {
		nanToken = DefaultNaNToken
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, kerrors.E(kerrors.FormatError, "empty expression matrix input")
	}
	header := strings.TrimRight(scanner.Text(), "\r")
	if strings.TrimSpace(header) == "" {
		return nil, kerrors.E(kerrors.FormatError, "missing sample name header")
	}
	sampleNames := strings.Split(header, "\t")
	sampleCount := len(sampleNames)

	var geneNames []string
	var data []float32
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != sampleCount+1 {
			return nil, kerrors.E(kerrors.FormatError, "row has wrong number of fields: "+fields[0])
		}
		geneNames = append(geneNames, fields[0])
		for _, tok := range fields[1:] {
			v := float32(math.NaN())
			if tok != "" && tok != nanToken {
				f, err := strconv.ParseFloat(tok, 32)
				if err != nil {
					return nil, errors.Wrapf(err, "parsing value %q for gene %s", tok, fields[0])
				}
				v = float32(f)
			}
			data = append(data, transform.apply(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading expression matrix")
	}

	return &Matrix{
		geneNames:   geneNames,
		sampleNames: sampleNames,
		data:        data,
		transform:   transform,
	}, nil
}

// LoadTextFile opens path (which may name a local or remote location
// understood by github.com/grailbio/base/file, e.g. s3://...) and parses
// it with LoadText.
func LoadTextFile(ctx context.Context, path string, transform Transform, nanToken string) (*Matrix, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, kerrors.E(kerrors.IOError, err, "open expression matrix "+path)
	}
	defer f.Close(ctx)
	return LoadText(f.Reader(ctx), transform, nanToken)
}

// LoadTextFileDefault is LoadTextFile with a background context, for
// callers (CLI front ends) that have none of their own to thread through.
func LoadTextFileDefault(path string, transform Transform, nanToken string) (*Matrix, error) {
	return LoadTextFile(vcontext.Background(), path, transform, nanToken)
}

const (
	binMagic   = "KINCEMX\x00"
	binVersion = uint16(1)
)

// Save persists the matrix in its compact binary form: a fixed header
// followed by the sample-name table, the gene-name table, and the
// row-major data region, so a later Open need not re-parse text.
func (m *Matrix) Save(ctx context.Context, path string) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return kerrors.E(kerrors.IOError, err, "create expression matrix "+path)
	}
	w := f.Writer(ctx)

	hdr := make([]byte, 8+2+4+4+1)
	copy(hdr[0:8], binMagic)
	binary.LittleEndian.PutUint16(hdr[8:10], binVersion)
	binary.LittleEndian.PutUint32(hdr[10:14], uint32(m.RowCount()))
	binary.LittleEndian.PutUint32(hdr[14:18], uint32(m.ColumnCount()))
	hdr[18] = byte(m.transform)
	if _, err := w.Write(hdr); err != nil {
		f.Close(ctx)
		return kerrors.E(kerrors.IOError, err, "write header")
	}

	if err := writeNameTable(w, m.sampleNames); err != nil {
		f.Close(ctx)
		return err
	}
	if err := writeNameTable(w, m.geneNames); err != nil {
		f.Close(ctx)
		return err
	}

	buf := make([]byte, 4*len(m.data))
	for i, v := range m.data {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], math.Float32bits(v))
	}
	if _, err := w.Write(buf); err != nil {
		f.Close(ctx)
		return kerrors.E(kerrors.IOError, err, "write data region")
	}
	if err := f.Close(ctx); err != nil {
		return kerrors.E(kerrors.IOError, err, "close expression matrix")
	}
	return nil
}

func writeNameTable(w io.Writer, names []string) error {
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(names)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return kerrors.E(kerrors.IOError, err, "write name table count")
	}
	for _, n := range names {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(n)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return kerrors.E(kerrors.IOError, err, "write name length")
		}
		if _, err := io.WriteString(w, n); err != nil {
			return kerrors.E(kerrors.IOError, err, "write name bytes")
		}
	}
	return nil
}

func readNameTable(r io.Reader) ([]string, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, kerrors.E(kerrors.FormatError, err, "read name table count")
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	names := make([]string, count)
	for i := range names {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, kerrors.E(kerrors.FormatError, err, "read name length")
		}
		n := binary.LittleEndian.Uint16(lenBuf[:])
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, kerrors.E(kerrors.FormatError, err, "read name bytes")
		}
		names[i] = string(b)
	}
	return names, nil
}

// SaveDefault is Save with a background context.
func (m *Matrix) SaveDefault(path string) error {
	return m.Save(vcontext.Background(), path)
}

// Open loads a matrix previously written by Save.
func Open(ctx context.Context, path string) (*Matrix, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, kerrors.E(kerrors.IOError, err, "open expression matrix "+path)
	}
	defer f.Close(ctx)
	r := f.Reader(ctx)

	hdr := make([]byte, 8+2+4+4+1)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, kerrors.E(kerrors.FormatError, err, "read header")
	}
	if string(hdr[0:8]) != binMagic {
		return nil, kerrors.E(kerrors.FormatError, "bad magic")
	}
	if v := binary.LittleEndian.Uint16(hdr[8:10]); v != binVersion {
		return nil, kerrors.E(kerrors.FormatError, "unsupported version")
	}
	geneCount := binary.LittleEndian.Uint32(hdr[10:14])
	sampleCount := binary.LittleEndian.Uint32(hdr[14:18])
	transform := Transform(hdr[18])

	sampleNames, err := readNameTable(r)
	if err != nil {
		return nil, err
	}
	geneNames, err := readNameTable(r)
	if err != nil {
		return nil, err
	}
	if uint32(len(sampleNames)) != sampleCount || uint32(len(geneNames)) != geneCount {
		return nil, kerrors.E(kerrors.FormatError, "name table count mismatch")
	}

	data := make([]float32, geneCount*sampleCount)
	buf := make([]byte, 4*len(data))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, kerrors.E(kerrors.FormatError, err, "read data region")
	}
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i : 4*i+4]))
	}

	return &Matrix{
		geneNames:   geneNames,
		sampleNames: sampleNames,
		data:        data,
		transform:   transform,
	}, nil
}

// OpenDefault is Open with a background context.
func OpenDefault(path string) (*Matrix, error) {
	return Open(vcontext.Background(), path)
}
