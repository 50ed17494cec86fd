package rag

import (
	"math"
	"testing"
)

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

func TestMergeRRF_ScoreContributions(t *testing.T) {
	a := []Hit{{ChunkID: "x", Score: 12.0}, {ChunkID: "y", Score: 8.0}}
	b := []Hit{{ChunkID: "y", Score: 0.9}, {ChunkID: "z", Score: 0.8}}
	k := 60

	merged := MergeRRF(a, b, k)

	scores := make(map[string]float64, len(merged))
	for _, h := range merged {
		scores[h.ChunkID] = h.Score
	}

	// y appears in both lists: 1/(60+2) + 1/(60+1).
	wantY := 1.0/62 + 1.0/61
	if math.Abs(scores["y"]-wantY) > 1e-12 {
		t.Errorf("score(y) = %v, want %v", scores["y"], wantY)
	}
	// x only in list a at rank 1.
	if math.Abs(scores["x"]-1.0/61) > 1e-12 {
		t.Errorf("score(x) = %v, want %v", scores["x"], 1.0/61)
	}
	// z only in list b at rank 2.
	if math.Abs(scores["z"]-1.0/62) > 1e-12 {
		t.Errorf("score(z) = %v, want %v", scores["z"], 1.0/62)
	}

	// Merged order is non-increasing in score.
	for i := 1; i < len(merged); i++ {
		if merged[i].Score > merged[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
	if merged[0].ChunkID != "y" {
		t.Errorf("top fused hit = %s, want y", merged[0].ChunkID)
	}
}

func TestMergeRRF_TiesKeepInsertionOrder(t *testing.T) {
	// c and d never co-occur and sit at the same rank of their lists, so
	// their fused scores tie; first-encountered order must win.
	a := []Hit{{ChunkID: "c", Score: 1}}
	b := []Hit{{ChunkID: "d", Score: 1}}

	merged := MergeRRF(a, b, 60)
	got := hitIDs(merged)
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("tie order = %v, want [c d]", got)
	}
}

func TestMergeRRF_EmptyInputs(t *testing.T) {
	if got := MergeRRF(nil, nil, 60); len(got) != 0 {
		t.Errorf("MergeRRF(nil, nil) = %v, want empty", got)
	}

	only := MergeRRF([]Hit{{ChunkID: "a"}}, nil, 60)
	if len(only) != 1 || only[0].ChunkID != "a" {
		t.Errorf("MergeRRF with one empty list = %v", only)
	}
}

func TestExpandNeighbors_Radius1RecoversWindow(t *testing.T) {
	order := []string{"A", "B", "C", "D"}
	// Fused order from lexical [B D] and dense [B C]: B first (both lists),
	// then C and D by insertion order on the tie.
	fused := []string{"B", "C", "D"}

	got := ExpandNeighbors(fused, order, 1)
	want := []string{"A", "B", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("ExpandNeighbors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExpandNeighbors()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExpandNeighbors_RadiusZeroIsDedupFilter(t *testing.T) {
	order := []string{"A", "B", "C"}
	got := ExpandNeighbors([]string{"C", "ghost", "A", "C"}, order, 0)
	want := []string{"C", "A"}
	if len(got) != len(want) {
		t.Fatalf("ExpandNeighbors() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ExpandNeighbors()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExpandNeighbors_IdempotentAtRadiusZero(t *testing.T) {
	order := []string{"A", "B", "C", "D", "E"}
	expanded := ExpandNeighbors([]string{"B", "D"}, order, 1)

	again := ExpandNeighbors(expanded, order, 0)
	if len(again) != len(expanded) {
		t.Fatalf("re-expansion changed length: %v vs %v", again, expanded)
	}
	for i := range expanded {
		if again[i] != expanded[i] {
			t.Errorf("re-expansion changed order at %d: %v vs %v", i, again, expanded)
		}
	}
}

func TestExpandNeighbors_ClipsBounds(t *testing.T) {
	order := []string{"A", "B"}
	got := ExpandNeighbors([]string{"A"}, order, 5)
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("ExpandNeighbors() = %v, want [A B]", got)
	}
}

func TestExpandNeighbors_Empty(t *testing.T) {
	if got := ExpandNeighbors(nil, []string{"A"}, 1); len(got) != 0 {
		t.Errorf("ExpandNeighbors(nil) = %v, want empty", got)
	}
	if got := ExpandNeighbors([]string{"A"}, nil, 1); len(got) != 0 {
		t.Errorf("ExpandNeighbors with empty order = %v, want empty", got)
	}
}
