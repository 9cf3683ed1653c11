package refdb

import (
	"fmt"
)

// NoTaxon marks the absence of a taxon in index-valued fields.
const NoTaxon int32 = -1

// Taxon is one node of the taxonomy forest. Nodes live in a Taxonomy
// arena and reference each other by 32-bit index, which makes cycles
// impossible by construction and parent walks O(1).
type Taxon struct {
	ID     int64
	Name   string
	Rank   string
	NCBIID *int64

	// Threshold is the classification distance cutoff, nil when the
	// taxon only establishes tree structure.
	Threshold *float64

	// Report marks the taxon as eligible to be a final prediction.
	Report bool

	parent   int32
	children []int32
}

// Taxonomy is an immutable rooted forest of taxa, loaded once from the
// metadata store.
type Taxonomy struct {
	nodes []Taxon
	roots []int32
	byID  map[int64]int32
}

// buildTaxonomy arranges taxon records into an arena, resolving parent
// IDs to indices. Children keep the insertion order of the records.
func buildTaxonomy(records []TaxonRecord) (*Taxonomy, error) {
	tx := &Taxonomy{
		nodes: make([]Taxon, len(records)),
		byID:  make(map[int64]int32, len(records)),
	}

	for i, rec := range records {
		if _, dup := tx.byID[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate taxon id %d", rec.ID)
		}
		tx.nodes[i] = Taxon{
			ID:        rec.ID,
			Name:      rec.Name,
			Rank:      rec.Rank,
			NCBIID:    rec.NCBIID,
			Threshold: rec.Threshold,
			Report:    rec.Report,
			parent:    NoTaxon,
		}
		tx.byID[rec.ID] = int32(i)
	}

	for i, rec := range records {
		pid := rec.ParentID
		if pid == nil {
			tx.roots = append(tx.roots, int32(i))
			continue
		}
		p, ok := tx.byID[*pid]
		if !ok {
			return nil, fmt.Errorf("taxon %d references unknown parent %d", rec.ID, *pid)
		}
		if p == int32(i) {
			return nil, fmt.Errorf("taxon %d is its own parent", rec.ID)
		}
		tx.nodes[i].parent = p
		tx.nodes[p].children = append(tx.nodes[p].children, int32(i))
	}

	// A node reachable from a root can never be part of a cycle; any
	// leftover nodes form cycles among themselves.
	reached := 0
	var visit func(i int32)
	visit = func(i int32) {
		reached++
		for _, c := range tx.nodes[i].children {
			visit(c)
		}
	}
	for _, r := range tx.roots {
		visit(r)
	}
	if reached != len(tx.nodes) {
		return nil, fmt.Errorf("taxonomy contains a parent cycle")
	}

	// Thresholds must refine monotonically: a child's cutoff can never
	// exceed that of an ancestor. Checking the nearest thresholded
	// ancestor covers the whole chain by induction.
	for i := range tx.nodes {
		t := &tx.nodes[i]
		if t.Threshold == nil {
			continue
		}
		for p := t.parent; p != NoTaxon; p = tx.nodes[p].parent {
			if pt := tx.nodes[p].Threshold; pt != nil {
				if *t.Threshold > *pt {
					return nil, fmt.Errorf("taxon %d threshold %v exceeds ancestor %d threshold %v",
						t.ID, *t.Threshold, tx.nodes[p].ID, *pt)
				}
				break
			}
		}
	}

	return tx, nil
}

// Len returns the number of taxa.
func (tx *Taxonomy) Len() int { return len(tx.nodes) }

// Node returns the taxon at the given arena index.
func (tx *Taxonomy) Node(i int32) *Taxon { return &tx.nodes[i] }

// ByID returns the arena index for a taxon ID, or NoTaxon.
func (tx *Taxonomy) ByID(id int64) int32 {
	if i, ok := tx.byID[id]; ok {
		return i
	}
	return NoTaxon
}

// Roots returns the root indices of the forest.
func (tx *Taxonomy) Roots() []int32 { return tx.roots }

// Parent returns the parent index of i, or NoTaxon for roots.
func (tx *Taxonomy) Parent(i int32) int32 { return tx.nodes[i].parent }

// Children returns the ordered child indices of i.
func (tx *Taxonomy) Children(i int32) []int32 { return tx.nodes[i].children }

// Ancestors returns the chain from i upward, bottom to top, optionally
// including i itself.
func (tx *Taxonomy) Ancestors(i int32, incSelf bool) []int32 {
	var out []int32
	cur := i
	if !incSelf {
		cur = tx.nodes[i].parent
	}
	for cur != NoTaxon {
		out = append(out, cur)
		cur = tx.nodes[cur].parent
	}
	return out
}

// Lineage returns the chain from i's root down to i itself.
func (tx *Taxonomy) Lineage(i int32) []int32 {
	anc := tx.Ancestors(i, true)
	for l, r := 0, len(anc)-1; l < r; l, r = l+1, r-1 {
		anc[l], anc[r] = anc[r], anc[l]
	}
	return anc
}

// IsAncestor reports whether a is an ancestor of i, or i itself.
func (tx *Taxonomy) IsAncestor(a, i int32) bool {
	for cur := i; cur != NoTaxon; cur = tx.nodes[cur].parent {
		if cur == a {
			return true
		}
	}
	return false
}

// Subtree returns i and all of its descendants in preorder.
func (tx *Taxonomy) Subtree(i int32) []int32 {
	out := []int32{i}
	for k := 0; k < len(out); k++ {
		out = append(out, tx.nodes[out[k]].children...)
	}
	return out
}

// LCA returns the lowest common ancestor of a and b, or NoTaxon when
// they lie in different trees.
func (tx *Taxonomy) LCA(a, b int32) int32 {
	la := tx.Lineage(a)
	lb := tx.Lineage(b)

	best := NoTaxon
	for i := 0; i < len(la) && i < len(lb); i++ {
		if la[i] != lb[i] {
			break
		}
		best = la[i]
	}
	return best
}
