package kmer

import (
	"bytes"
	"fmt"
)

// Default search parameters used by GAMBIT reference databases.
const (
	DefaultPrefix = "ATGAC"
	DefaultK      = 11
)

// Spec is the parameter pair controlling which k-mers a signature
// contains: a constant prefix that anchors matches and the number of
// bases k collected after it. A Spec is immutable once constructed.
type Spec struct {
	prefix []byte
	k      int
}

// InvalidSpecError reports parameters that cannot form a valid Spec.
type InvalidSpecError struct {
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return "invalid k-mer spec: " + e.Reason
}

// NewSpec validates and creates a Spec. The prefix must be a non-empty
// string of ACGT bytes (lower case is accepted and normalized) and k
// must be in [1, MaxK].
func NewSpec(prefix []byte, k int) (*Spec, error) {
	if k < 1 || k > MaxK {
		return nil, &InvalidSpecError{Reason: fmt.Sprintf("k must be in [1, %d], got %d", MaxK, k)}
	}
	if len(prefix) == 0 {
		return nil, &InvalidSpecError{Reason: "prefix must not be empty"}
	}

	up := make([]byte, len(prefix))
	for i, b := range prefix {
		if codes[b] < 0 {
			return nil, &InvalidSpecError{Reason: fmt.Sprintf("prefix contains invalid nucleotide %q", b)}
		}
		up[i] = b &^ 0x20
	}

	return &Spec{prefix: up, k: k}, nil
}

// DefaultSpec returns the spec used by published GAMBIT databases.
func DefaultSpec() *Spec {
	s, err := NewSpec([]byte(DefaultPrefix), DefaultK)
	if err != nil {
		panic(err)
	}
	return s
}

// Prefix returns the upper-cased prefix. Callers must not modify it.
func (s *Spec) Prefix() []byte { return s.prefix }

// K returns the number of bases collected after the prefix.
func (s *Spec) K() int { return s.k }

// PrefixLen returns the prefix length in bases.
func (s *Spec) PrefixLen() int { return len(s.prefix) }

// TotalLen returns the full length of a matched k-mer including its
// prefix.
func (s *Spec) TotalLen() int { return len(s.prefix) + s.k }

// NKmers returns the cardinality of the index space, 4^k. For k=32
// the true value 2^64 is not representable; callers needing a bound
// should use MaxIndex instead.
func (s *Spec) NKmers() uint64 { return 1 << (2 * uint(s.k)) }

// MaxIndex returns the largest valid k-mer index, 4^k - 1, without
// overflowing at k=32.
func (s *Spec) MaxIndex() uint64 {
	if s.k == MaxK {
		return ^uint64(0)
	}
	return s.NKmers() - 1
}

// Width returns the smallest unsigned integer width (16, 32 or 64
// bits) able to hold every index in [0, 4^k).
func (s *Spec) Width() int {
	switch {
	case s.k <= 8:
		return 16
	case s.k <= 16:
		return 32
	default:
		return 64
	}
}

// Equal reports whether two specs have the same prefix and k.
func (s *Spec) Equal(other *Spec) bool {
	return s.k == other.k && bytes.Equal(s.prefix, other.prefix)
}

func (s *Spec) String() string {
	return fmt.Sprintf("KmerSpec(%s/%d)", s.prefix, s.k)
}
