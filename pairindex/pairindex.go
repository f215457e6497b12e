// Package pairindex gives the canonical ordering and addressing scheme for
// unordered gene pairs (i,j) with i>j, shared by the cluster and correlation
// matrix stores.
package pairindex

import (
	"math"

	"github.com/bio-kinc/kinc-go/internal/kerrors"
)

// Ordinal returns the linear index of the unordered pair (i,j) in canonical
// order: the larger of the two gene indices is always treated as the row
// coordinate. It fails with a DomainError if i==j or either index is
// negative.
func Ordinal(i, j int) (uint64, error) {
	if i < 0 || j < 0 {
		return 0, kerrors.E(kerrors.DomainError, "negative gene index")
	}
	if i == j {
		return 0, kerrors.E(kerrors.DomainError, "gene pair must have distinct indices")
	}
	if j > i {
		i, j = j, i
	}
	return uint64(i)*uint64(i-1)/2 + uint64(j), nil
}

// Pair inverts Ordinal: it returns the (i,j) with i>j such that
// Ordinal(i,j) == ordinal. It fails with a DomainError if ordinal is out of
// range for geneCount genes (geneCount<=0 disables the range check).
func Pair(ordinal uint64, geneCount int) (i, j int, err error) {
	// i is the largest integer such that i*(i-1)/2 <= ordinal; solve via the
	// quadratic formula and correct for floating-point rounding.
	i = int(math.Floor((1 + math.Sqrt(1+8*float64(ordinal))) / 2))
	for uint64(i)*uint64(i-1)/2 > ordinal {
		i--
	}
	for uint64(i+1)*uint64(i)/2 <= ordinal {
		i++
	}
	j = int(ordinal - uint64(i)*uint64(i-1)/2)

	if geneCount > 0 && (i >= geneCount || j < 0 || j >= i) {
		return 0, 0, kerrors.E(kerrors.DomainError, "pair ordinal out of range")
	}
	return i, j, nil
}

// Count returns the number of distinct unordered pairs among geneCount genes.
func Count(geneCount int) uint64 {
	if geneCount <= 1 {
		return 0
	}
	n := uint64(geneCount)
	return n * (n - 1) / 2
}

// Iterator produces every pair (i,j), i>j, among geneCount genes in
// increasing ordinal order. Use it the way bufio.Scanner is used: call Next
// until it returns false, reading the current pair with I, J and Ordinal in
// between.
type Iterator struct {
	geneCount int
	i, j      int
	started   bool
	ordinal   uint64
}

// NewIterator creates an Iterator over all pairs among geneCount genes.
func NewIterator(geneCount int) *Iterator {
	return &Iterator{geneCount: geneCount, i: 1, j: 0}
}

// Next advances the iterator to the next pair and reports whether one is
// available.
func (it *Iterator) Next() bool {
	if it.geneCount < 2 {
		return false
	}
	if !it.started {
		it.started = true
	} else {
		it.j++
		if it.j >= it.i {
			it.i++
			it.j = 0
		}
	}
	if it.i >= it.geneCount {
		return false
	}
	it.ordinal = uint64(it.i)*uint64(it.i-1)/2 + uint64(it.j)
	return true
}

// I returns the current pair's row gene index (the larger of the two).
func (it *Iterator) I() int { return it.i }

// J returns the current pair's column gene index (the smaller of the two).
func (it *Iterator) J() int { return it.j }

// Ordinal returns the current pair's linear ordinal.
func (it *Iterator) Ordinal() uint64 { return it.ordinal }
