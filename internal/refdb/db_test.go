package refdb

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jlumpe/gambit/internal/kmer"
	"github.com/jlumpe/gambit/internal/sigs"
)

func testGenomes() []GenomeRecord {
	return []GenomeRecord{
		{Key: "GCF_000005845", Description: "Escherichia coli K-12", SignatureIndex: 0, TaxonID: i64(3)},
		{Key: "GCF_000026225", Description: "Escherichia fergusonii", SignatureIndex: 1, TaxonID: i64(4)},
		{Key: "GCF_000006945", Description: "Salmonella enterica", SignatureIndex: 2, TaxonID: i64(6)},
		{Key: "GCF_000000000", Description: "unclassified isolate", SignatureIndex: 3},
	}
}

var testSignatures = [][]uint64{
	{0, 1, 2, 3},
	{0, 1, 2, 9},
	{4, 5, 6, 7},
	{9, 10, 11},
}

// createTestDB writes a complete database directory: badger metadata
// store plus signature file.
func createTestDB(t *testing.T, genomes []GenomeRecord, ids []string) string {
	t.Helper()
	dir := t.TempDir()

	spec, err := kmer.NewSpec([]byte("ATGAC"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := sigs.Create(filepath.Join(dir, "refs.gs"), spec, testSignatures, sigs.WriteOptions{IDs: ids}); err != nil {
		t.Fatal(err)
	}

	params := Params{ClassificationVersion: "1.0"}
	if err := Create(filepath.Join(dir, "genomes.gdb"), genomes, testTaxa(), params); err != nil {
		t.Fatal(err)
	}
	return dir
}

func defaultIDs() []string {
	return []string{"GCF_000005845", "GCF_000026225", "GCF_000006945", "GCF_000000000"}
}

func TestOpenDir(t *testing.T) {
	dir := createTestDB(t, testGenomes(), defaultIDs())

	db, err := OpenDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if db.NumRefs() != 4 {
		t.Fatalf("NumRefs() = %d, want 4", db.NumRefs())
	}
	if db.Params.ClassificationVersion != "1.0" {
		t.Errorf("Params = %+v", db.Params)
	}

	g := db.Genome(0)
	if g.Key != "GCF_000005845" || g.Description != "Escherichia coli K-12" {
		t.Errorf("Genome(0) = %+v", g)
	}
	if got := db.TaxonOf(0); got != db.Taxonomy.ByID(3) {
		t.Errorf("TaxonOf(0) = %d", got)
	}
	if got := db.TaxonOf(3); got != NoTaxon {
		t.Errorf("TaxonOf(3) = %d, want NoTaxon for unclassified genome", got)
	}

	sig, err := db.Sigs.SignatureAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 4 || sig[3] != 9 {
		t.Errorf("SignatureAt(1) = %v", sig)
	}
}

func TestLoad_mismatch(t *testing.T) {
	tests := []struct {
		name    string
		genomes []GenomeRecord
		ids     []string
	}{
		{
			"missing genome record",
			testGenomes()[:3],
			defaultIDs(),
		},
		{
			"unknown signature id",
			testGenomes(),
			[]string{"GCF_000005845", "GCF_000026225", "GCF_000006945", "SOMETHING_ELSE"},
		},
		{
			"ids absent from signature file",
			testGenomes(),
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()

			spec, err := kmer.NewSpec([]byte("ATGAC"), 3)
			if err != nil {
				t.Fatal(err)
			}
			if err := sigs.Create(filepath.Join(dir, "refs.gs"), spec, testSignatures, sigs.WriteOptions{IDs: tt.ids}); err != nil {
				t.Fatal(err)
			}
			if err := Create(filepath.Join(dir, "genomes.gdb"), tt.genomes, testTaxa(), Params{}); err != nil {
				t.Fatal(err)
			}

			_, err = OpenDir(dir)
			if err == nil {
				t.Fatal("expected mismatch error")
			}
			var mm *MismatchError
			if !errors.As(err, &mm) {
				t.Errorf("expected MismatchError, got %T: %v", err, err)
			}
		})
	}
}

func TestCreate_rejectsBadRecords(t *testing.T) {
	dir := t.TempDir()

	bad := testGenomes()
	bad[1].SignatureIndex = 0 // duplicate
	if err := Create(filepath.Join(dir, "dup.gdb"), bad, testTaxa(), Params{}); err == nil {
		t.Error("duplicate signature index should be rejected")
	}

	badTaxa := testTaxa()
	badTaxa[0].ParentID = i64(3) // family under its own grandchild
	if err := Create(filepath.Join(dir, "cycle.gdb"), testGenomes(), badTaxa, Params{}); err == nil {
		t.Error("cyclic taxonomy should be rejected")
	}
}

func TestLocateFiles_errors(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := LocateFiles(dir); err == nil {
		t.Error("empty directory should fail")
	}
}
