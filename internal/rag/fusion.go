package rag

import "sort"

// DefaultRRFK is the reciprocal-rank fusion smoothing constant. It dampens
// the gap between rank 1 and rank N so agreement between sources matters
// more than either source's top position.
const DefaultRRFK = 60

// MergeRRF fuses two ranked hit lists with reciprocal-rank fusion. Each list
// contributes 1/(k+rank) per chunk, rank starting at 1; a chunk present in
// both lists accumulates both terms, which is how cross-source agreement is
// rewarded. The output is sorted by descending fused score with ties broken
// by first-encountered order. Empty inputs are valid.
func MergeRRF(a, b []Hit, k int) []Hit {
	if k <= 0 {
		k = DefaultRRFK
	}

	scores := make(map[string]float64)
	var order []string

	accumulate := func(hits []Hit) {
		for rank, h := range hits {
			if _, seen := scores[h.ChunkID]; !seen {
				order = append(order, h.ChunkID)
			}
			scores[h.ChunkID] += 1.0 / float64(k+rank+1)
		}
	}
	accumulate(a)
	accumulate(b)

	merged := make([]Hit, 0, len(order))
	for _, id := range order {
		merged = append(merged, Hit{ChunkID: id, Score: scores[id]})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}

// ExpandNeighbors widens each hit to include chunks within radius positions
// in the global corpus order, recovering thoughts cut at chunk-window
// boundaries. Seeds are processed in fusion-rank order; IDs missing from the
// order are skipped silently; output is deduplicated and preserves first-seen
// order.
func ExpandNeighbors(ids []string, order []string, radius int) []string {
	if radius < 0 {
		radius = 0
	}

	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		base, ok := index[id]
		if !ok {
			continue
		}
		lo := base - radius
		if lo < 0 {
			lo = 0
		}
		hi := base + radius
		if hi > len(order)-1 {
			hi = len(order) - 1
		}
		for j := lo; j <= hi; j++ {
			cand := order[j]
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			out = append(out, cand)
		}
	}
	return out
}
