package refdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jlumpe/gambit/internal/sigs"
)

// Genome is the in-memory view of one reference genome.
type Genome struct {
	// Key is the stable external accession of the genome, matching its
	// ID in the signature file.
	Key string

	// Description is a short human-readable label.
	Description string

	// Taxon is the arena index of the genome's taxon, or NoTaxon.
	Taxon int32
}

// MismatchError reports disagreement between a signature file and the
// metadata store it is paired with.
type MismatchError struct {
	Detail string
}

func (e *MismatchError) Error() string {
	return "signature file does not match metadata store: " + e.Detail
}

// DB binds a signature file to the genome metadata and taxonomy it was
// built from. All fields are immutable after Load and safe to share
// across goroutines.
type DB struct {
	Sigs     *sigs.Reader
	Taxonomy *Taxonomy
	Params   Params

	genomes []Genome // indexed by signature index
}

// Load opens the metadata store at gdbPath and binds it to an already
// opened signature file. Every signature ID must correspond to exactly
// one genome record and vice versa; any disagreement fails with a
// MismatchError.
func Load(gdbPath string, r *sigs.Reader) (*DB, error) {
	store, err := openBadger(gdbPath, true)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	genomeRecs, taxonRecs, params, err := readAll(store)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata store: %w", err)
	}

	tx, err := buildTaxonomy(taxonRecs)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	ids := r.IDs()
	if ids == nil {
		return nil, &MismatchError{Detail: "signature file carries no genome IDs"}
	}
	if len(genomeRecs) != len(ids) {
		return nil, &MismatchError{
			Detail: fmt.Sprintf("%d genome records for %d signatures", len(genomeRecs), len(ids)),
		}
	}

	genomes := make([]Genome, len(ids))
	filled := make([]bool, len(ids))
	var missing []string

	byKey := make(map[string]int, len(ids))
	for i, id := range ids {
		byKey[id] = i
	}

	for _, rec := range genomeRecs {
		i, ok := byKey[rec.Key]
		if !ok {
			missing = append(missing, rec.Key)
			continue
		}
		if rec.SignatureIndex != i {
			return nil, &MismatchError{
				Detail: fmt.Sprintf("genome %q stored at signature index %d but signature file has it at %d",
					rec.Key, rec.SignatureIndex, i),
			}
		}
		if filled[i] {
			return nil, &MismatchError{Detail: fmt.Sprintf("duplicate genome record for %q", rec.Key)}
		}
		filled[i] = true

		taxon := NoTaxon
		if rec.TaxonID != nil {
			taxon = tx.ByID(*rec.TaxonID)
			if taxon == NoTaxon {
				return nil, fmt.Errorf("genome %q references unknown taxon %d", rec.Key, *rec.TaxonID)
			}
		}
		genomes[i] = Genome{Key: rec.Key, Description: rec.Description, Taxon: taxon}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MismatchError{
			Detail: fmt.Sprintf("genome records with no signature: %s", strings.Join(missing, ", ")),
		}
	}
	for i, ok := range filled {
		if !ok {
			return nil, &MismatchError{
				Detail: fmt.Sprintf("signature %q has no genome record", ids[i]),
			}
		}
	}

	return &DB{
		Sigs:     r,
		Taxonomy: tx,
		Params:   params,
		genomes:  genomes,
	}, nil
}

// NumRefs returns the number of reference genomes.
func (db *DB) NumRefs() int { return len(db.genomes) }

// Genome returns the genome bound to signature index i.
func (db *DB) Genome(i int) *Genome { return &db.genomes[i] }

// TaxonOf returns the taxon arena index for signature index i, or
// NoTaxon when the genome is unclassified.
func (db *DB) TaxonOf(i int) int32 { return db.genomes[i].Taxon }
