package itemlink

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
)

// Link12 links every item of items2 to an item of items1.
//
// Without overflow each item2 goes to its nearest item1. With overflow the
// item2s are placed closest first, each on the item1 that minimizes link
// cost plus burden: the nearest item1 is free, any other costs its
// resistance from the nearest, and burden is linked size over capacity.
//
// extra adds further links on top, each to the nearest item1 the item2 is
// not linked to yet.
func Link12(items1, items2 []Item, overflow *OverflowArgs, extra *ExtraArgs, rnd rng.Source) []Link {
	if len(items1) == 0 || len(items2) == 0 {
		return nil
	}

	idx := newSpatialIndex(positions(items1))
	nearest := make([]neighbor, len(items2))
	for j, it := range items2 {
		nearest[j], _ = idx.nearest(it.Position)
	}

	var links []Link
	if overflow == nil || len(items1) == 1 {
		links = make([]Link, len(items2))
		for j, n := range nearest {
			links[j] = Link{Index1: n.index, Index2: j}
		}
	} else {
		links = linkByBurden(items1, items2, nearest, overflow.LinkResistanceMult)
	}

	if extra != nil && extra.Percent > 0 {
		links = append(links, extraLinks(items1, items2, idx, links, *extra, rnd)...)
	}

	slices.SortFunc(links, compareLinks)
	return links
}

func compareLinks(a, b Link) int {
	if c := cmp.Compare(a.Index1, b.Index1); c != 0 {
		return c
	}
	return cmp.Compare(a.Index2, b.Index2)
}

// resistances returns the pairwise item1 link resistance: distance over the
// bounding diagonal of every item, times mult.
func resistances(items1, items2 []Item, mult float64) [][]float64 {
	all := append(positions(items1), positions(items2)...)
	diag := geom.BoundingDiagonal(all)
	if geom.IsNearZero(diag) {
		diag = 1
	}

	out := make([][]float64, len(items1))
	for a := range items1 {
		out[a] = make([]float64, len(items1))
	}
	for a := range items1 {
		for b := a + 1; b < len(items1); b++ {
			r := r3.Norm(r3.Sub(items1[a].Position, items1[b].Position)) / diag * mult
			out[a][b] = r
			out[b][a] = r
		}
	}
	return out
}

func burden(load, capacity float64) float64 {
	if capacity < geom.NearZero {
		capacity = geom.NearZero
	}
	return load / capacity
}

func linkByBurden(items1, items2 []Item, nearest []neighbor, mult float64) []Link {
	resist := resistances(items1, items2, mult)

	order := make([]int, len(items2))
	for j := range order {
		order[j] = j
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(nearest[a].dist, nearest[b].dist)
	})

	load := make([]float64, len(items1))
	links := make([]Link, 0, len(items2))
	for _, j := range order {
		home := nearest[j].index
		best, bestCost := home, math.Inf(1)
		for i := range items1 {
			cost := burden(load[i]+items2[j].Size, items1[i].Size)
			if i != home {
				cost += resist[home][i]
			}
			if cost < bestCost {
				best, bestCost = i, cost
			}
		}
		load[best] += items2[j].Size
		links = append(links, Link{Index1: best, Index2: j})
	}
	return links
}

// extraLinks picks which item2s get additional links and wires each to its
// nearest item1 that it is not linked to yet.
func extraLinks(items1, items2 []Item, idx *spatialIndex, existing []Link, args ExtraArgs, rnd rng.Source) []Link {
	if len(items1) < 2 {
		return nil
	}

	weights := make([]float64, len(items2))
	for j, it := range items2 {
		weights[j] = 1
		if args.BySize {
			weights[j] = it.Size
		}
	}

	total := args.Percent * float64(len(items2))
	var picks []int
	if args.EvenlyDistribute {
		passes := int(math.Floor(args.Percent))
		for p := 0; p < passes; p++ {
			for j := range items2 {
				picks = append(picks, j)
			}
		}
		remainder := int(math.Round(total)) - passes*len(items2)
		picks = append(picks, sampleDistinct(weights, remainder, rnd)...)
	} else {
		for n := int(math.Round(total)); n > 0; n-- {
			picks = append(picks, rng.Weighted(rnd, weights))
		}
	}

	linked := make(map[Link]bool, len(existing)+len(picks))
	for _, l := range existing {
		linked[l] = true
	}

	var out []Link
	for _, j := range picks {
		for _, n := range idx.nearestN(items2[j].Position, len(items1)) {
			l := Link{Index1: n.index, Index2: j}
			if linked[l] {
				continue
			}
			linked[l] = true
			out = append(out, l)
			break
		}
	}
	return out
}

// sampleDistinct draws up to n distinct indices by weight.
func sampleDistinct(weights []float64, n int, rnd rng.Source) []int {
	if n <= 0 {
		return nil
	}
	if n >= len(weights) {
		out := make([]int, len(weights))
		for i := range out {
			out[i] = i
		}
		return out
	}

	remaining := slices.Clone(weights)
	taken := make([]bool, len(weights))
	out := make([]int, 0, n)
	for len(out) < n {
		i := rng.Weighted(rnd, remaining)
		if taken[i] {
			// Only zero weights left; take the first free slot.
			i = slices.Index(taken, false)
		}
		taken[i] = true
		remaining[i] = 0
		out = append(out, i)
	}
	return out
}
