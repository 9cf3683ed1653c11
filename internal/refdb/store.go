// Package refdb provides a read-only view of a GAMBIT reference
// database: genome metadata and the taxonomy forest stored in a
// badger key-value directory (.gdb), bound to the signatures of a
// signature file.
package refdb

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Store record keys. Genomes are keyed by signature index so a prefix
// scan yields them in signature order.
const (
	genomeKeyPrefix = "genome:"
	taxonKeyPrefix  = "taxon:"
	paramsKey       = "params"
)

// GenomeRecord is the stored form of one reference genome's metadata.
type GenomeRecord struct {
	Key            string `msgpack:"key"`
	Description    string `msgpack:"description"`
	SignatureIndex int    `msgpack:"signature_index"`
	TaxonID        *int64 `msgpack:"taxon_id"`
}

// TaxonRecord is the stored form of one taxonomy node.
type TaxonRecord struct {
	ID        int64    `msgpack:"id"`
	Name      string   `msgpack:"name"`
	Rank      string   `msgpack:"rank"`
	NCBIID    *int64   `msgpack:"ncbi_id"`
	ParentID  *int64   `msgpack:"parent_id"`
	Threshold *float64 `msgpack:"threshold"`
	Report    bool     `msgpack:"report"`
}

// Params carries database-level settings opaque to the core; they are
// passed through to query results.
type Params struct {
	ClassificationVersion string                 `msgpack:"classification_version" json:"classification_version"`
	Extra                 map[string]interface{} `msgpack:"extra" json:"extra,omitempty"`
}

func genomeKey(signatureIndex int) []byte {
	return []byte(fmt.Sprintf("%s%010d", genomeKeyPrefix, signatureIndex))
}

func taxonKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%016x", taxonKeyPrefix, id))
}

func openBadger(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(readOnly).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store %s: %w", path, err)
	}
	return db, nil
}

// Create writes a new metadata store at path (a directory). Genome
// records must carry signature indices forming exactly [0, N).
func Create(path string, genomes []GenomeRecord, taxa []TaxonRecord, params Params) error {
	// Validate the taxonomy before writing anything.
	if _, err := buildTaxonomy(taxa); err != nil {
		return fmt.Errorf("invalid taxonomy: %w", err)
	}

	seen := make(map[int]bool, len(genomes))
	for _, g := range genomes {
		if g.SignatureIndex < 0 || g.SignatureIndex >= len(genomes) || seen[g.SignatureIndex] {
			return fmt.Errorf("genome %q has invalid or duplicate signature index %d", g.Key, g.SignatureIndex)
		}
		seen[g.SignatureIndex] = true
	}

	db, err := openBadger(path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	put := func(key []byte, v interface{}) error {
		buf, err := msgpack.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		return wb.Set(key, buf)
	}

	for _, g := range genomes {
		if err := put(genomeKey(g.SignatureIndex), &g); err != nil {
			return err
		}
	}
	for _, t := range taxa {
		if err := put(taxonKey(t.ID), &t); err != nil {
			return err
		}
	}
	if err := put([]byte(paramsKey), &params); err != nil {
		return err
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write metadata store: %w", err)
	}
	return nil
}

// readAll loads every record of the store.
func readAll(db *badger.DB) (genomes []GenomeRecord, taxa []TaxonRecord, params Params, err error) {
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(val []byte) error {
				switch {
				case len(key) > len(genomeKeyPrefix) && key[:len(genomeKeyPrefix)] == genomeKeyPrefix:
					var g GenomeRecord
					if err := msgpack.Unmarshal(val, &g); err != nil {
						return fmt.Errorf("failed to decode genome record %s: %w", key, err)
					}
					genomes = append(genomes, g)
				case len(key) > len(taxonKeyPrefix) && key[:len(taxonKeyPrefix)] == taxonKeyPrefix:
					var t TaxonRecord
					if err := msgpack.Unmarshal(val, &t); err != nil {
						return fmt.Errorf("failed to decode taxon record %s: %w", key, err)
					}
					taxa = append(taxa, t)
				case key == paramsKey:
					if err := msgpack.Unmarshal(val, &params); err != nil {
						return fmt.Errorf("failed to decode params record: %w", err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return
}
