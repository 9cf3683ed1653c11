// Package query runs genome queries against a reference database:
// signature calculation, the distance scan, classification and result
// assembly.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jlumpe/gambit/internal/classify"
	"github.com/jlumpe/gambit/internal/kmer"
	"github.com/jlumpe/gambit/internal/metric"
	"github.com/jlumpe/gambit/internal/refdb"
	"github.com/jlumpe/gambit/internal/sigs"
	"github.com/jlumpe/gambit/internal/workers"
)

// Version of the tool, reported in results and by the CLI.
const Version = "1.0.0"

// DefaultChunk is the number of reference signatures scanned per batch
// during the distance pass.
const DefaultChunk = 1000

// Params control how queries are run.
type Params struct {
	// Strict reconciles all within-threshold matches instead of
	// trusting only the closest reference.
	Strict bool

	// Cores bounds the worker pool; <= 0 uses all hardware threads.
	Cores int

	// Chunk is the reference batch size for the distance scan; <= 0
	// selects DefaultChunk.
	Chunk int

	// OnQuery, if set, is called once per classified query.
	OnQuery func()
}

// TaxonInfo is the exported description of a taxon in results.
type TaxonInfo struct {
	Name      string   `json:"name"`
	Rank      string   `json:"rank"`
	NCBIID    *int64   `json:"ncbi_id"`
	Threshold *float64 `json:"threshold"`
}

// GenomeInfo is the exported description of a reference genome match.
type GenomeInfo struct {
	Key         string  `json:"key"`
	Description string  `json:"description"`
	Distance    float32 `json:"distance"`
}

// Item is the result for a single query genome.
type Item struct {
	Query     string      `json:"query"`
	Predicted *TaxonInfo  `json:"predicted"`
	Next      *TaxonInfo  `json:"next"`
	Closest   *GenomeInfo `json:"closest"`
	Primary   *GenomeInfo `json:"primary"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Results holds the items for one run plus run metadata.
type Results struct {
	Items     []Item       `json:"items"`
	Strict    bool         `json:"strict"`
	Version   string       `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	DBParams  refdb.Params `json:"db_params"`
}

// MismatchError reports a query whose k-mer spec differs from the
// reference database's.
type MismatchError struct {
	Query string
	Refs  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("query k-mer spec %s does not match reference spec %s", e.Query, e.Refs)
}

// CheckSpec verifies that signatures built under spec are comparable
// to the database's references.
func CheckSpec(db *refdb.DB, spec *kmer.Spec) error {
	if !spec.Equal(db.Sigs.Spec()) {
		return &MismatchError{Query: spec.String(), Refs: db.Sigs.Spec().String()}
	}
	return nil
}

// Run queries the database with pre-computed signatures, one per
// label. Signatures must have been built under the database's k-mer
// spec (see CheckSpec).
func Run(ctx context.Context, db *refdb.DB, signatures [][]uint64, labels []string, params Params) (*Results, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("no queries supplied")
	}
	if len(labels) != len(signatures) {
		return nil, fmt.Errorf("got %d labels for %d queries", len(labels), len(signatures))
	}

	chunk := params.Chunk
	if chunk <= 0 {
		chunk = DefaultChunk
	}

	pool := workers.New(params.Cores)
	defer pool.Close()

	results := &Results{
		Strict:    params.Strict,
		Version:   Version,
		Timestamp: time.Now(),
		DBParams:  db.Params,
	}

	for qi, sig := range signatures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dists, err := metric.FileDistances(ctx, sig, db.Sigs, metric.FileOptions{
			Pool:  pool,
			Chunk: chunk,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to compute distances for %s: %w", labels[qi], err)
		}

		cls := classify.Classify(db, dists, params.Strict)
		results.Items = append(results.Items, buildItem(db, labels[qi], cls))

		if params.OnQuery != nil {
			params.OnQuery()
		}
	}

	return results, nil
}

// RunFiles calculates signatures for the given FASTA files and queries
// the database with them. Labels default to the file paths.
func RunFiles(ctx context.Context, db *refdb.DB, files, labels []string, params Params, calcOpts sigs.CalcOptions) (*Results, error) {
	if labels == nil {
		labels = files
	}

	spec := db.Sigs.Spec()
	if calcOpts.Pool == nil {
		pool := workers.New(params.Cores)
		defer pool.Close()
		calcOpts.Pool = pool
	}

	signatures, err := sigs.CalcFileSignatures(ctx, spec, files, calcOpts)
	if err != nil {
		return nil, err
	}

	return Run(ctx, db, signatures, labels, params)
}

// RunSigFile queries the database with every signature in an existing
// signature file. The file's spec must match the database's.
func RunSigFile(ctx context.Context, db *refdb.DB, r *sigs.Reader, params Params) (*Results, error) {
	if err := CheckSpec(db, r.Spec()); err != nil {
		return nil, err
	}

	n := r.Len()
	signatures := make([][]uint64, n)
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		sig, err := r.SignatureAt(i)
		if err != nil {
			return nil, err
		}
		signatures[i] = sig

		if ids := r.IDs(); ids != nil {
			labels[i] = ids[i]
		} else {
			labels[i] = fmt.Sprintf("%d", i+1)
		}
	}

	return Run(ctx, db, signatures, labels, params)
}

func taxonInfo(db *refdb.DB, taxon int32) *TaxonInfo {
	if taxon == refdb.NoTaxon {
		return nil
	}
	n := db.Taxonomy.Node(taxon)
	return &TaxonInfo{
		Name:      n.Name,
		Rank:      n.Rank,
		NCBIID:    n.NCBIID,
		Threshold: n.Threshold,
	}
}

func genomeInfo(db *refdb.DB, i int, dist float32) *GenomeInfo {
	if i == classify.NoGenome {
		return nil
	}
	g := db.Genome(i)
	return &GenomeInfo{Key: g.Key, Description: g.Description, Distance: dist}
}

func buildItem(db *refdb.DB, label string, cls *classify.Result) Item {
	item := Item{
		Query:     label,
		Predicted: taxonInfo(db, cls.Predicted),
		Next:      taxonInfo(db, cls.Next),
		Closest:   genomeInfo(db, cls.Closest, cls.ClosestDistance),
		Warnings:  cls.Warnings,
	}
	if cls.Primary != classify.NoGenome {
		item.Primary = genomeInfo(db, cls.Primary, cls.PrimaryDistance)
	}
	return item
}
