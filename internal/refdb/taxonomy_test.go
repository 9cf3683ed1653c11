package refdb

import (
	"reflect"
	"testing"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

// testTaxa builds this forest:
//
//	1 Enterobacteriaceae (family, τ=0.5)
//	└── 2 Escherichia (genus, τ=0.3)
//	    ├── 3 E. coli (species, τ=0.2)
//	    └── 4 E. fergusonii (species, τ=0.2)
//	5 Salmonella (genus, τ=0.3)
//	└── 6 S. enterica (species, τ=0.2)
func testTaxa() []TaxonRecord {
	return []TaxonRecord{
		{ID: 1, Name: "Enterobacteriaceae", Rank: "family", Threshold: f64(0.5), Report: true},
		{ID: 2, Name: "Escherichia", Rank: "genus", ParentID: i64(1), Threshold: f64(0.3), Report: true},
		{ID: 3, Name: "Escherichia coli", Rank: "species", ParentID: i64(2), Threshold: f64(0.2), Report: true, NCBIID: i64(562)},
		{ID: 4, Name: "Escherichia fergusonii", Rank: "species", ParentID: i64(2), Threshold: f64(0.2), Report: true},
		{ID: 5, Name: "Salmonella", Rank: "genus", Threshold: f64(0.3), Report: true},
		{ID: 6, Name: "Salmonella enterica", Rank: "species", ParentID: i64(5), Threshold: f64(0.2), Report: true},
	}
}

func TestBuildTaxonomy(t *testing.T) {
	tx, err := buildTaxonomy(testTaxa())
	if err != nil {
		t.Fatal(err)
	}

	if tx.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", tx.Len())
	}
	if len(tx.Roots()) != 2 {
		t.Fatalf("Roots() = %v, want two roots", tx.Roots())
	}

	coli := tx.ByID(3)
	genus := tx.ByID(2)
	family := tx.ByID(1)

	if tx.Parent(coli) != genus || tx.Parent(genus) != family || tx.Parent(family) != NoTaxon {
		t.Error("parent chain of E. coli is wrong")
	}
	if got := tx.Ancestors(coli, true); !reflect.DeepEqual(got, []int32{coli, genus, family}) {
		t.Errorf("Ancestors(incSelf) = %v", got)
	}
	if got := tx.Ancestors(coli, false); !reflect.DeepEqual(got, []int32{genus, family}) {
		t.Errorf("Ancestors(!incSelf) = %v", got)
	}
	if got := tx.Lineage(coli); !reflect.DeepEqual(got, []int32{family, genus, coli}) {
		t.Errorf("Lineage() = %v", got)
	}
}

func TestTaxonomy_walks(t *testing.T) {
	tx, err := buildTaxonomy(testTaxa())
	if err != nil {
		t.Fatal(err)
	}

	coli := tx.ByID(3)
	ferg := tx.ByID(4)
	genus := tx.ByID(2)
	family := tx.ByID(1)
	salm := tx.ByID(5)

	if !tx.IsAncestor(family, coli) || !tx.IsAncestor(coli, coli) {
		t.Error("IsAncestor should include self and transitive ancestors")
	}
	if tx.IsAncestor(coli, family) || tx.IsAncestor(salm, coli) {
		t.Error("IsAncestor should reject descendants and other trees")
	}

	if got := tx.LCA(coli, ferg); got != genus {
		t.Errorf("LCA(coli, fergusonii) = %v, want genus", got)
	}
	if got := tx.LCA(coli, coli); got != coli {
		t.Errorf("LCA(coli, coli) = %v", got)
	}
	if got := tx.LCA(coli, tx.ByID(6)); got != NoTaxon {
		t.Errorf("LCA across trees = %v, want NoTaxon", got)
	}

	sub := tx.Subtree(family)
	if len(sub) != 4 {
		t.Errorf("Subtree(family) = %v, want 4 nodes", sub)
	}
}

func TestBuildTaxonomy_errors(t *testing.T) {
	tests := []struct {
		name string
		taxa []TaxonRecord
	}{
		{
			"duplicate id",
			[]TaxonRecord{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}},
		},
		{
			"unknown parent",
			[]TaxonRecord{{ID: 1, Name: "a", ParentID: i64(99)}},
		},
		{
			"self parent",
			[]TaxonRecord{{ID: 1, Name: "a", ParentID: i64(1)}},
		},
		{
			"two-node cycle",
			[]TaxonRecord{
				{ID: 1, Name: "a", ParentID: i64(2)},
				{ID: 2, Name: "b", ParentID: i64(1)},
			},
		},
		{
			"threshold exceeds ancestor",
			[]TaxonRecord{
				{ID: 1, Name: "genus", Threshold: f64(0.2)},
				{ID: 2, Name: "species", ParentID: i64(1), Threshold: f64(0.4)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildTaxonomy(tt.taxa); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildTaxonomy_thresholdGap(t *testing.T) {
	// An unset threshold between two set ones is fine as long as the
	// set ones are monotone.
	taxa := []TaxonRecord{
		{ID: 1, Name: "family", Threshold: f64(0.5)},
		{ID: 2, Name: "structural", ParentID: i64(1)},
		{ID: 3, Name: "species", ParentID: i64(2), Threshold: f64(0.1)},
	}
	if _, err := buildTaxonomy(taxa); err != nil {
		t.Fatalf("monotone thresholds across a gap should be accepted: %v", err)
	}
}
