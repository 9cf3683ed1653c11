// Package sigs calculates k-mer signatures from sequence data and
// stores collections of them in GAMBIT signature (.gs) files.
//
// A signature is the sorted set of distinct k-mer indices extracted
// from one genome under a kmer.Spec. Collections are kept in sparse
// coordinate layout: one contiguous values array plus a bounds array
// delimiting each signature, which lets distance code scan them as a
// single read-only buffer.
package sigs

import (
	"fmt"
	"sort"

	"github.com/jlumpe/gambit/internal/kmer"
)

// Unsigned constrains the integer widths a signature's indices may be
// stored in. The width for a given spec is kmer.Spec.Width.
type Unsigned interface {
	~uint16 | ~uint32 | ~uint64
}

// Array holds N signatures in concatenated layout. Signature i is
// Values[Bounds[i]:Bounds[i+1]]. Invariants: Bounds[0] == 0, Bounds is
// monotone non-decreasing, Bounds[N] == len(Values), and every
// signature slice is strictly sorted.
type Array[T Unsigned] struct {
	Values []T
	Bounds []int64
}

// NewArray concatenates the given signatures into a single Array.
func NewArray[T Unsigned](signatures [][]T) *Array[T] {
	bounds := make([]int64, len(signatures)+1)
	var total int64
	for i, sig := range signatures {
		total += int64(len(sig))
		bounds[i+1] = total
	}

	values := make([]T, 0, total)
	for _, sig := range signatures {
		values = append(values, sig...)
	}

	return &Array[T]{Values: values, Bounds: bounds}
}

// Len returns the number of signatures.
func (a *Array[T]) Len() int { return len(a.Bounds) - 1 }

// At returns the ith signature as a view into Values.
func (a *Array[T]) At(i int) []T {
	return a.Values[a.Bounds[i]:a.Bounds[i+1]]
}

// SizeOf returns the length of the ith signature.
func (a *Array[T]) SizeOf(i int) int {
	return int(a.Bounds[i+1] - a.Bounds[i])
}

// Widen returns the ith signature as uint64 indices, copying.
func (a *Array[T]) Widen(i int) []uint64 {
	sig := a.At(i)
	out := make([]uint64, len(sig))
	for j, v := range sig {
		out[j] = uint64(v)
	}
	return out
}

// Validate checks the Array invariants against spec. It is used when
// signatures arrive from untrusted storage.
func (a *Array[T]) Validate(spec *kmer.Spec) error {
	if len(a.Bounds) == 0 || a.Bounds[0] != 0 {
		return fmt.Errorf("bounds must start at 0")
	}
	if a.Bounds[len(a.Bounds)-1] != int64(len(a.Values)) {
		return fmt.Errorf("bounds end %d does not match values length %d",
			a.Bounds[len(a.Bounds)-1], len(a.Values))
	}
	for i := 1; i < len(a.Bounds); i++ {
		if a.Bounds[i] < a.Bounds[i-1] {
			return fmt.Errorf("bounds not monotone at %d", i)
		}
	}

	max := spec.MaxIndex()
	for i := 0; i < a.Len(); i++ {
		sig := a.At(i)
		for j, v := range sig {
			if uint64(v) > max {
				return fmt.Errorf("signature %d: index %d out of range for k=%d", i, v, spec.K())
			}
			if j > 0 && v <= sig[j-1] {
				return fmt.Errorf("signature %d not strictly sorted at element %d", i, j)
			}
		}
	}
	return nil
}

// sortIndices sorts a builder accumulation in ascending order.
func sortIndices(indices []uint64) {
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
}
