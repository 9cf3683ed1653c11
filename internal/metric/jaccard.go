// Package metric computes Jaccard distances between k-mer signatures
// in sparse coordinate format.
package metric

import (
	"context"

	"github.com/jlumpe/gambit/internal/sigs"
	"github.com/jlumpe/gambit/internal/workers"
)

// Distance returns the Jaccard distance 1 - |A∩B| / |A∪B| between two
// strictly sorted index arrays, which may be stored at different
// widths. A linear merge counts the union u; the number of elements
// not shared by both sets falls out as 2u - |A| - |B| without a second
// pass.
//
// Both empty is defined as distance 0. The result is always in [0, 1]
// and bit-exactly symmetric in its arguments.
func Distance[A, B sigs.Unsigned](a []A, b []B) float32 {
	var i, j, u int

	for i < len(a) && j < len(b) {
		u++
		av, bv := uint64(a[i]), uint64(b[j])
		if av <= bv {
			i++
		}
		if bv <= av {
			j++
		}
	}
	u += (len(a) - i) + (len(b) - j)

	if u == 0 {
		return 0
	}
	return float32(2*u-len(a)-len(b)) / float32(u)
}

// Refs is the container capability the one-vs-many engine needs from a
// reference signature collection. *sigs.Array implements it; so does
// any lazily loaded variant.
type Refs[T sigs.Unsigned] interface {
	Len() int
	At(i int) []T
}

// Distances computes the distance from query to every signature in
// refs, fanning out over the pool with dynamic work stealing. Each
// output slot is written exactly once, so the result equals the
// sequential computation regardless of worker count. On error or
// cancellation the partial output is discarded.
func Distances[T sigs.Unsigned](ctx context.Context, query []uint64, refs Refs[T], pool *workers.Pool) ([]float32, error) {
	out := make([]float32, refs.Len())
	err := pool.Each(ctx, refs.Len(), func(i int) error {
		out[i] = Distance(query, refs.At(i))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FileOptions control a streaming distance scan over a signature file.
type FileOptions struct {
	// Pool to fan pair computations out on. Nil runs on a temporary
	// pool sized to the hardware thread count.
	Pool *workers.Pool

	// Chunk is the number of reference signatures loaded per batch.
	// Zero or negative loads the whole file at once.
	Chunk int

	// OnChunk, if set, is called after each batch with the number of
	// signatures completed.
	OnChunk func(done int)
}

// FileDistances scans a signature file one chunk at a time, computing
// the distance from query to every stored signature. The inner loop is
// dispatched once on the file's stored index width.
func FileDistances(ctx context.Context, query []uint64, r *sigs.Reader, opts FileOptions) ([]float32, error) {
	pool := opts.Pool
	if pool == nil {
		pool = workers.New(0)
		defer pool.Close()
	}

	switch r.Width() {
	case 16:
		return fileDistances[uint16](ctx, query, r, pool, opts)
	case 32:
		return fileDistances[uint32](ctx, query, r, pool, opts)
	default:
		return fileDistances[uint64](ctx, query, r, pool, opts)
	}
}

func fileDistances[T sigs.Unsigned](ctx context.Context, query []uint64, r *sigs.Reader, pool *workers.Pool, opts FileOptions) ([]float32, error) {
	n := r.Len()
	chunk := opts.Chunk
	if chunk <= 0 || chunk > n {
		chunk = n
	}

	out := make([]float32, 0, n)
	for start := 0; start < n; start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := chunk
		if start+size > n {
			size = n - start
		}
		arr, err := sigs.LoadChunk[T](r, start, size)
		if err != nil {
			return nil, err
		}

		dists, err := Distances(ctx, query, arr, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, dists...)

		if opts.OnChunk != nil {
			opts.OnChunk(size)
		}
	}

	return out, nil
}
