// Package classify turns a vector of query-to-reference distances and
// a reference taxonomy into a conservative taxonomic prediction. The
// guiding policy is to prefer no prediction over a wrong one.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jlumpe/gambit/internal/refdb"
)

// NoGenome marks the absence of a reference in index-valued fields.
const NoGenome = -1

// Result is the outcome of classifying a single query.
type Result struct {
	// Predicted is the most specific reportable taxon supported by the
	// distances, or refdb.NoTaxon when no confident prediction exists.
	Predicted int32

	// Primary is the signature index of the reference driving the
	// prediction, or NoGenome. In non-strict mode it equals Closest
	// whenever a prediction was made.
	Primary int

	// Closest is the signature index of the overall nearest reference
	// (smallest index on ties). NoGenome only when the reference set is
	// empty.
	Closest         int
	ClosestDistance float32
	PrimaryDistance float32

	// Next is the next most specific taxon in the closest reference's
	// lineage whose threshold was not met, or refdb.NoTaxon.
	Next int32

	// Warnings are non-fatal notes about the classification.
	Warnings []string
}

// matchingTaxon walks the ancestry of taxon (inclusive) and returns
// the most specific node whose threshold is set and satisfied by d.
func matchingTaxon(tx *refdb.Taxonomy, taxon int32, d float32) int32 {
	for cur := taxon; cur != refdb.NoTaxon; cur = tx.Parent(cur) {
		if thr := tx.Node(cur).Threshold; thr != nil && float64(d) <= *thr {
			return cur
		}
	}
	return refdb.NoTaxon
}

// nextTaxon returns the next most specific taxon in the lineage of
// taxon for which the threshold was not met by d: the nearest node
// with a threshold below the first satisfied ancestor, or the most
// general thresholded ancestor when none is satisfied. Ancestors
// without a threshold are skipped; taxon itself is always a candidate.
func nextTaxon(tx *refdb.Taxonomy, taxon int32, d float32) int32 {
	lo := refdb.NoTaxon
	hi := taxon

	for hi != refdb.NoTaxon {
		if thr := tx.Node(hi).Threshold; thr != nil && float64(d) <= *thr {
			return lo
		}
		lo = hi

		hi = tx.Parent(hi)
		for hi != refdb.NoTaxon && tx.Node(hi).Threshold == nil {
			hi = tx.Parent(hi)
		}
	}
	return lo
}

// reportableAncestor returns the most specific reportable taxon in the
// ancestry of taxon (inclusive), or refdb.NoTaxon.
func reportableAncestor(tx *refdb.Taxonomy, taxon int32) int32 {
	for cur := taxon; cur != refdb.NoTaxon; cur = tx.Parent(cur) {
		if tx.Node(cur).Report {
			return cur
		}
	}
	return refdb.NoTaxon
}

// consensusTaxon reduces a set of matched taxa to a single consensus.
// When all taxa lie on one lineage the most specific is the consensus
// and the second return value is empty. Incomparable taxa resolve to
// their lowest common ancestor, returned along with the taxa that are
// strict descendants of it. If the taxa span different trees the
// consensus is refdb.NoTaxon and every input is returned.
func consensusTaxon(tx *refdb.Taxonomy, taxa []int32) (int32, []int32) {
	if len(taxa) == 0 {
		return refdb.NoTaxon, nil
	}

	indexOf := func(chain []int32, t int32) int {
		for i, c := range chain {
			if c == t {
				return i
			}
		}
		return -1
	}

	// Current consensus and its ancestors, bottom to top.
	trunk := tx.Ancestors(taxa[0], true)

	for _, taxon := range taxa[1:] {
		if indexOf(trunk, taxon) >= 0 {
			continue
		}

		joined := false
		for _, a := range tx.Ancestors(taxon, false) {
			i := indexOf(trunk, a)
			if i < 0 {
				continue
			}
			if i == 0 {
				// Directly descended from the current consensus; the
				// deeper taxon takes over.
				trunk = tx.Ancestors(taxon, true)
			} else {
				trunk = trunk[i:]
			}
			joined = true
			break
		}
		if !joined {
			out := make([]int32, len(taxa))
			copy(out, taxa)
			return refdb.NoTaxon, out
		}
	}

	var others []int32
	for _, t := range taxa {
		if indexOf(trunk, t) < 0 {
			others = append(others, t)
		}
	}
	return trunk[0], others
}

// Classify predicts the taxonomy of one query from its distances to
// every reference in db. In non-strict mode only the closest reference
// is considered; strict mode finds all references within threshold and
// reconciles their taxa.
func Classify(db *refdb.DB, dists []float32, strict bool) *Result {
	res := &Result{
		Predicted: refdb.NoTaxon,
		Primary:   NoGenome,
		Closest:   NoGenome,
		Next:      refdb.NoTaxon,
	}
	if len(dists) == 0 {
		return res
	}

	tx := db.Taxonomy

	closest := 0
	for i, d := range dists {
		if d < dists[closest] {
			closest = i
		}
	}
	res.Closest = closest
	res.ClosestDistance = dists[closest]

	closestTaxon := db.TaxonOf(closest)
	matched := refdb.NoTaxon
	if closestTaxon != refdb.NoTaxon {
		matched = matchingTaxon(tx, closestTaxon, dists[closest])
		res.Next = nextTaxon(tx, closestTaxon, dists[closest])

		if tx.Node(closestTaxon).Threshold == nil {
			res.warnf("taxon %s of closest match has no distance threshold",
				shortRepr(tx, closestTaxon))
		}
	}

	if !strict {
		if matched != refdb.NoTaxon {
			res.Predicted = reportableAncestor(tx, matched)
			res.Primary = closest
			res.PrimaryDistance = dists[closest]
		}
	} else {
		classifyStrict(db, dists, res)
	}

	// A match existed but nothing reportable covers it: the taxonomy
	// annotation has a gap worth surfacing.
	if res.Predicted == refdb.NoTaxon && matched != refdb.NoTaxon {
		res.warnf("no prediction: distance %v is within the threshold of taxon %s but no reportable taxon covers it",
			res.ClosestDistance, shortRepr(tx, matched))
	}

	return res
}

// classifyStrict fills in Predicted and Primary from all references
// within threshold, reconciling disagreements between their taxa.
func classifyStrict(db *refdb.DB, dists []float32, res *Result) {
	tx := db.Taxonomy

	// Matched taxa in first-seen order, with the references matched to
	// each. Deterministic regardless of map iteration.
	var matchedTaxa []int32
	matchRefs := make(map[int32][]int)

	for i, d := range dists {
		taxon := db.TaxonOf(i)
		if taxon == refdb.NoTaxon {
			continue
		}
		m := matchingTaxon(tx, taxon, d)
		if m == refdb.NoTaxon {
			continue
		}
		if _, seen := matchRefs[m]; !seen {
			matchedTaxa = append(matchedTaxa, m)
		}
		matchRefs[m] = append(matchRefs[m], i)
	}

	if len(matchedTaxa) == 0 {
		return
	}

	consensus, others := consensusTaxon(tx, matchedTaxa)

	if len(others) > 0 && consensus != refdb.NoTaxon {
		res.warnf("query matched %d inconsistent taxa: %s; reporting their lowest common ancestor",
			len(others), joinShortReprs(tx, others))
	}
	if consensus == refdb.NoTaxon {
		res.warnf("matched taxa have no common ancestor: %s", joinShortReprs(tx, others))
		return
	}

	// Primary match: closest reference whose matched taxon lies on the
	// consensus lineage.
	primary := NoGenome
	for _, taxon := range matchedTaxa {
		if !tx.IsAncestor(consensus, taxon) {
			continue
		}
		for _, i := range matchRefs[taxon] {
			if primary == NoGenome || dists[i] < dists[primary] {
				primary = i
			}
		}
	}

	res.Predicted = reportableAncestor(tx, consensus)
	if res.Predicted != refdb.NoTaxon && primary != NoGenome {
		res.Primary = primary
		res.PrimaryDistance = dists[primary]
	}

	if primary != NoGenome && primary != res.Closest {
		res.warnf("primary reference match is not the closest reference")
	}
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func shortRepr(tx *refdb.Taxonomy, taxon int32) string {
	n := tx.Node(taxon)
	return fmt.Sprintf("%d:%s", n.ID, n.Name)
}

func joinShortReprs(tx *refdb.Taxonomy, taxa []int32) string {
	reprs := make([]string, len(taxa))
	for i, t := range taxa {
		reprs[i] = shortRepr(tx, t)
	}
	sort.Strings(reprs)
	return strings.Join(reprs, ", ")
}
