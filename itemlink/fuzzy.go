package itemlink

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
)

const (
	// fuzzySearchRadius is how far past the nearest candidate a fuzzy match
	// looks, as a multiple of the nearest distance.
	fuzzySearchRadius = 2.5
	// fuzzyWeightBias keeps the nearest candidate's weight finite.
	fuzzyWeightBias = 0.1
	// prunePower skews PruneLinks towards removing the weakest links.
	prunePower = 3
)

// FuzzyResult is a re-projected link between two indices of the new point set.
type FuzzyResult struct {
	Index1, Index2 int
	Weight         float64
}

type fuzzyMatch struct {
	index  int
	weight float64
}

// FuzzyLink re-projects links captured on old positions onto the points in
// all. Each old endpoint spreads over nearby new points, each old link
// spreads over the cross product of its endpoints' matches, and the result is
// pruned to maxFinal links. Links landing on the same new pair are summed,
// so opposite signs cancel and a pair whose sum is near zero is dropped.
// Otherwise total absolute weight is preserved, except for what PruneLinks
// drops when existing is already longer than maxFinal.
func FuzzyLink(existing []WeightedLink, all []r3.Vec, maxFinal, maxIntermediate int, rnd rng.Source) []FuzzyResult {
	if len(existing) == 0 || len(all) < 2 || maxFinal <= 0 {
		return nil
	}
	if maxIntermediate < 1 {
		maxIntermediate = 1
	}

	if len(existing) > maxFinal {
		existing = PruneLinks(existing, maxFinal, rnd)
	}

	idx := newSpatialIndex(all)
	matches := make(map[r3.Vec][]fuzzyMatch)
	matchesFor := func(p r3.Vec) []fuzzyMatch {
		if m, ok := matches[p]; ok {
			return m
		}
		m := closestFuzzy(idx, p, maxIntermediate)
		matches[p] = m
		return m
	}

	acc := make(map[[2]int]float64)
	for _, link := range existing {
		for _, r := range spreadLink(idx, link, matchesFor(link.From), matchesFor(link.To), maxFinal) {
			acc[[2]int{r.Index1, r.Index2}] += r.Weight
		}
	}

	results := make([]FuzzyResult, 0, len(acc))
	for k, w := range acc {
		if geom.IsNearZero(w) {
			continue
		}
		results = append(results, FuzzyResult{Index1: k[0], Index2: k[1], Weight: w})
	}

	if len(results) > maxFinal {
		results = pruneStrongest(results, maxFinal)
	}

	slices.SortFunc(results, func(a, b FuzzyResult) int {
		if c := cmp.Compare(a.Index1, b.Index1); c != 0 {
			return c
		}
		return cmp.Compare(a.Index2, b.Index2)
	})
	return results
}

// closestFuzzy matches p to one or more points. An exact hit gets the full
// weight. Otherwise every point within fuzzySearchRadius of the nearest
// distance is a candidate (closest maxCount kept), weighted by
// 1/(excess+bias) where excess is how much farther than the nearest it is,
// relative to the nearest.
func closestFuzzy(idx *spatialIndex, p r3.Vec, maxCount int) []fuzzyMatch {
	first, ok := idx.nearest(p)
	if !ok {
		return nil
	}
	if geom.IsNearZero(first.dist) {
		return []fuzzyMatch{{index: first.index, weight: 1}}
	}

	nearestDist := math.Sqrt(first.dist)
	radius := fuzzySearchRadius * nearestDist
	cands := idx.within(p, radius*radius)
	if len(cands) > maxCount {
		cands = cands[:maxCount]
	}

	weights := make([]float64, len(cands))
	for i, c := range cands {
		excess := (math.Sqrt(c.dist) - nearestDist) / nearestDist
		weights[i] = 1 / (excess + fuzzyWeightBias)
	}
	floats.Scale(1/floats.Sum(weights), weights)

	out := make([]fuzzyMatch, len(cands))
	for i, c := range cands {
		out[i] = fuzzyMatch{index: c.index, weight: weights[i]}
	}
	return out
}

// spreadLink distributes one link's weight over the strongest maxCount
// combinations of its endpoint matches.
func spreadLink(idx *spatialIndex, link WeightedLink, from, to []fuzzyMatch, maxCount int) []FuzzyResult {
	var combos []FuzzyResult
	for _, a := range from {
		for _, b := range to {
			if a.index == b.index {
				continue
			}
			combos = append(combos, FuzzyResult{Index1: a.index, Index2: b.index, Weight: a.weight * b.weight})
		}
	}

	if len(combos) == 0 {
		// Both ends collapsed onto the same point: use the next closest for To.
		if len(from) == 0 {
			return nil
		}
		self := from[0].index
		for _, n := range idx.nearestN(link.To, 2) {
			if n.index != self {
				combos = append(combos, FuzzyResult{Index1: self, Index2: n.index, Weight: 1})
				break
			}
		}
		if len(combos) == 0 {
			return nil
		}
	}

	slices.SortStableFunc(combos, func(a, b FuzzyResult) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	if len(combos) > maxCount {
		combos = combos[:maxCount]
	}

	sum := 0.0
	for _, c := range combos {
		sum += c.Weight
	}
	for i := range combos {
		combos[i].Weight = combos[i].Weight / sum * link.Weight
	}
	return combos
}

// pruneStrongest keeps the max links of largest magnitude and scales them up
// so they carry the total magnitude of everything that was there before.
func pruneStrongest(results []FuzzyResult, max int) []FuzzyResult {
	slices.SortStableFunc(results, func(a, b FuzzyResult) int {
		if c := cmp.Compare(math.Abs(b.Weight), math.Abs(a.Weight)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Index1, b.Index1); c != 0 {
			return c
		}
		return cmp.Compare(a.Index2, b.Index2)
	})

	total, kept := 0.0, 0.0
	for i, r := range results {
		total += math.Abs(r.Weight)
		if i < max {
			kept += math.Abs(r.Weight)
		}
	}

	out := slices.Clone(results[:max])
	if geom.IsNearZero(kept) {
		return out
	}
	scale := total / kept
	for i := range out {
		out[i].Weight *= scale
	}
	return out
}

// PruneLinks removes links until max remain, without redistributing weight.
// Removal is random but skewed towards the weakest links by magnitude.
// Survivors keep their original order.
func PruneLinks(links []WeightedLink, max int, rnd rng.Source) []WeightedLink {
	if max <= 0 {
		return nil
	}
	if len(links) <= max {
		return slices.Clone(links)
	}

	// Weakest first.
	order := make([]int, len(links))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(math.Abs(links[a].Weight), math.Abs(links[b].Weight))
	})

	removed := make([]bool, len(links))
	for n := len(links) - max; n > 0; n-- {
		pos := int(math.Pow(rnd.Float64(), prunePower) * float64(len(order)))
		if pos >= len(order) {
			pos = len(order) - 1
		}
		removed[order[pos]] = true
		order = slices.Delete(order, pos, pos+1)
	}

	out := make([]WeightedLink, 0, max)
	for i, l := range links {
		if !removed[i] {
			out = append(out, l)
		}
	}
	return out
}
