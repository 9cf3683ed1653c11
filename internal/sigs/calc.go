package sigs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/shenwei356/bio/seqio/fastx"

	"github.com/jlumpe/gambit/internal/kmer"
	"github.com/jlumpe/gambit/internal/workers"
)

// accumulator tracks the distinct k-mer indices found so far in one
// genome. Each builder worker owns one; they are never shared.
type accumulator map[uint64]struct{}

// CalcSignature scans the given nucleotide sequences (e.g. the contigs
// of one genome) for prefix-anchored k-mers on both strands and
// returns the resulting signature: the sorted set of distinct k-mer
// indices. Candidates containing a non-ACGT byte in the k-mer body are
// silently discarded.
func CalcSignature(spec *kmer.Spec, seqs [][]byte) []uint64 {
	acc := make(accumulator)
	for _, seq := range seqs {
		findKmers(spec, seq, acc)
	}
	return acc.signature()
}

func (acc accumulator) signature() []uint64 {
	out := make([]uint64, 0, len(acc))
	for idx := range acc {
		out = append(out, idx)
	}
	sortIndices(out)
	return out
}

// findKmers adds the indices of all prefix-anchored k-mers in seq to
// acc. Matching is case-insensitive; the sequence is upper-cased once
// if it contains any lower-case nucleotide.
func findKmers(spec *kmer.Spec, seq []byte, acc accumulator) {
	if bytes.ContainsAny(seq, "acgt") {
		seq = bytes.ToUpper(seq)
	}

	prefix := spec.Prefix()
	plen := spec.PrefixLen()
	k := spec.K()

	// Forward strand: k bases immediately after each prefix match.
	for start := 0; ; {
		loc := bytes.Index(seq[start:], prefix)
		if loc < 0 {
			break
		}
		p := start + loc

		if p+plen+k <= len(seq) {
			if idx, err := kmer.Encode(seq[p+plen : p+plen+k]); err == nil {
				acc[idx] = struct{}{}
			}
		}
		start = p + 1
	}

	// Reverse strand: k bases immediately before each match of the
	// reverse-complemented prefix, encoded as their reverse complement.
	rcprefix := kmer.RevComp(prefix)
	for start := 0; ; {
		loc := bytes.Index(seq[start:], rcprefix)
		if loc < 0 {
			break
		}
		p := start + loc

		if p >= k {
			if idx, err := kmer.EncodeRC(seq[p-k : p]); err == nil {
				acc[idx] = struct{}{}
			}
		}
		start = p + 1
	}
}

// CalcFileSignature parses a FASTA file (optionally gzipped) and
// returns the signature over all of its sequences.
func CalcFileSignature(spec *kmer.Spec, path string) ([]uint64, error) {
	reader, err := fastx.NewReader(nil, path, "")
	if err != nil {
		return nil, fmt.Errorf("failed to open sequence file %s: %w", path, err)
	}
	defer reader.Close()

	acc := make(accumulator)
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		findKmers(spec, record.Seq.Seq, acc)
	}

	return acc.signature(), nil
}

// CalcOptions control parallel signature calculation over many input
// files.
type CalcOptions struct {
	// Pool to run file parses on. Nil runs on a pool sized to the
	// hardware thread count.
	Pool *workers.Pool

	// OnFile, if set, is called once per completed file. It must be
	// safe for concurrent use; progress displays hook in here.
	OnFile func()
}

// CalcFileSignatures computes a signature per input file in parallel.
// The context is polled between files; on cancellation the partial
// output is discarded.
func CalcFileSignatures(ctx context.Context, spec *kmer.Spec, files []string, opts CalcOptions) ([][]uint64, error) {
	pool := opts.Pool
	if pool == nil {
		pool = workers.New(0)
		defer pool.Close()
	}

	out := make([][]uint64, len(files))
	err := pool.Each(ctx, len(files), func(i int) error {
		sig, err := CalcFileSignature(spec, files[i])
		if err != nil {
			return err
		}
		out[i] = sig
		if opts.OnFile != nil {
			opts.OnFile()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
