// Package kmer encodes fixed-length nucleotide k-mers as 2-bit-packed
// integer indices and back. All functions operate on ASCII nucleotide
// bytes; the order A, C, G, T defines how indices are assigned, so
// lexicographic order on k-mer strings equals numeric order on indices.
package kmer

import (
	"fmt"
)

// Nucleotides are the four upper-case DNA bases in index order.
const Nucleotides = "ACGT"

// MaxK is the largest supported k; indices for larger k would overflow
// a uint64.
const MaxK = 32

// codes maps an ASCII byte to its 2-bit nucleotide code, or -1 for
// anything that isn't one of ACGT (either case).
var codes [256]int8

// complements maps a nucleotide byte to its complement, preserving
// case. Every other byte maps to itself.
var complements [256]byte

func init() {
	for i := range codes {
		codes[i] = -1
		complements[i] = byte(i)
	}
	for code, nuc := range []byte(Nucleotides) {
		codes[nuc] = int8(code)
		codes[nuc|0x20] = int8(code) // lower case
	}
	for _, p := range [][2]byte{{'A', 'T'}, {'C', 'G'}} {
		a, b := p[0], p[1]
		complements[a], complements[b] = b, a
		complements[a|0x20], complements[b|0x20] = b|0x20, a|0x20
	}
}

// InvalidNucleotideError reports a byte that is not one of the four
// nucleotide codes.
type InvalidNucleotideError struct {
	Byte byte
	Pos  int
}

func (e *InvalidNucleotideError) Error() string {
	return fmt.Sprintf("invalid nucleotide %q at position %d", e.Byte, e.Pos)
}

// Encode packs a k-mer into its integer index, most significant base
// first. Lower-case bytes are accepted. Returns an
// InvalidNucleotideError for any byte outside ACGT/acgt.
func Encode(seq []byte) (uint64, error) {
	if len(seq) > MaxK {
		return 0, fmt.Errorf("k-mer length %d exceeds maximum of %d", len(seq), MaxK)
	}

	var idx uint64
	for i, b := range seq {
		c := codes[b]
		if c < 0 {
			return 0, &InvalidNucleotideError{Byte: b, Pos: i}
		}
		idx = idx<<2 | uint64(c)
	}
	return idx, nil
}

// EncodeRC encodes the reverse complement of seq without materializing
// it: bases are consumed in reverse order and complemented in code
// space (the complement of code c is 3-c).
func EncodeRC(seq []byte) (uint64, error) {
	if len(seq) > MaxK {
		return 0, fmt.Errorf("k-mer length %d exceeds maximum of %d", len(seq), MaxK)
	}

	var idx uint64
	for i := len(seq) - 1; i >= 0; i-- {
		c := codes[seq[i]]
		if c < 0 {
			return 0, &InvalidNucleotideError{Byte: seq[i], Pos: i}
		}
		idx = idx<<2 | uint64(3-c)
	}
	return idx, nil
}

// Decode is the inverse of Encode. The result is always upper case.
func Decode(idx uint64, k int) []byte {
	seq := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		seq[i] = Nucleotides[idx&3]
		idx >>= 2
	}
	return seq
}

// RevComp returns the byte-wise reverse complement of seq. Bytes that
// are not nucleotide codes pass through unchanged and case is
// preserved.
func RevComp(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complements[b]
	}
	return out
}
