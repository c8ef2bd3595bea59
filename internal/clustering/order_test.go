package clustering

import (
	"math"
	"slices"
	"testing"
)

// pairedCosim returns a 4x4 matrix where 0-1 and 2-3 are close and every
// other pair is far apart, so the cheapest cycle interleaves the pairs.
func pairedCosim() [][]float64 {
	c := [][]float64{
		{0, 0.9, 0.1, 0.1},
		{0.9, 0, 0.1, 0.1},
		{0.1, 0.1, 0, 0.9},
		{0.1, 0.1, 0.9, 0},
	}
	return c
}

func TestExhaustiveOrder(t *testing.T) {
	got := exhaustiveOrder(pairedCosim(), DefaultSpacing)
	if want := []int{0, 2, 1, 3}; !slices.Equal(got, want) {
		t.Errorf("exhaustiveOrder() = %v, want %v", got, want)
	}
	if cost := cycleCost(pairedCosim(), got, DefaultSpacing); math.Abs(cost-0.8) > tolerance {
		t.Errorf("cycleCost() = %v, want 0.8", cost)
	}
}

func TestExhaustiveOrder_TiesKeepFirstPermutation(t *testing.T) {
	cosim := make([][]float64, 5)
	for i := range cosim {
		cosim[i] = make([]float64, 5)
	}

	got := exhaustiveOrder(cosim, DefaultSpacing)
	if want := []int{0, 1, 2, 3, 4}; !slices.Equal(got, want) {
		t.Errorf("exhaustiveOrder() = %v, want identity", got)
	}
}

func TestGreedyOrder(t *testing.T) {
	tests := []struct {
		name  string
		cosim [][]float64
		want  []int
	}{
		{"paired", pairedCosim(), []int{0, 2, 1, 3}},
		{"ties go to lowest index", [][]float64{
			{0, 0.5, 0.5},
			{0.5, 0, 0.5},
			{0.5, 0.5, 0},
		}, []int{0, 1, 2}},
		{"single", [][]float64{{0}}, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := greedyOrder(tt.cosim); !slices.Equal(got, tt.want) {
				t.Errorf("greedyOrder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextPermutation(t *testing.T) {
	p := []int{0, 1, 2, 3}
	seen := map[[4]int]bool{[4]int(p): true}
	prev := slices.Clone(p)

	for nextPermutation(p) {
		if slices.Compare(p, prev) <= 0 {
			t.Fatalf("permutation %v does not follow %v", p, prev)
		}
		seen[[4]int(p)] = true
		prev = slices.Clone(p)
	}

	if len(seen) != 24 {
		t.Errorf("visited %d permutations, want 24", len(seen))
	}
	if !slices.Equal(p, []int{3, 2, 1, 0}) {
		t.Errorf("final permutation = %v, want [3 2 1 0]", p)
	}
}

func TestEngineOrder_SwitchesToGreedy(t *testing.T) {
	e := NewEngine(Config{MaxExhaustive: 3})

	// With four clusters the greedy walk from 0 takes 2 then 1 then 3.
	if got := e.order(pairedCosim()); !slices.Equal(got, []int{0, 2, 1, 3}) {
		t.Errorf("order() = %v", got)
	}
}
