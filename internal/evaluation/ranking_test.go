package evaluation

import (
	"math"
	"testing"
)

func TestRelevances(t *testing.T) {
	got := Relevances([]string{"X", "A", "X", "B"}, []string{"A", "B", "C"})
	want := []int{0, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("Relevances() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Relevances()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNDCG(t *testing.T) {
	tests := []struct {
		name       string
		relevances []int
		k          int
		want       float64
	}{
		{"perfect", []int{1, 1, 0}, 3, 1},
		{"nothing relevant", []int{0, 0}, 2, 0},
		{"empty", nil, 5, 0},
		{"k zero", []int{1}, 0, 0},
		{"shifted", []int{0, 1, 1}, 3, (1/math.Log2(3) + 0.5) / (1 + 1/math.Log2(3))},
		{"k beyond length", []int{1}, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NDCG(tt.relevances, tt.k); !approx(got, tt.want) {
				t.Errorf("NDCG() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMRR(t *testing.T) {
	if got := MRR([]int{0, 0, 1}); !approx(got, 1.0/3) {
		t.Errorf("MRR() = %v", got)
	}
	if got := MRR([]int{0, 0}); got != 0 {
		t.Errorf("MRR() = %v, want 0", got)
	}
}

func TestAveragePrecision(t *testing.T) {
	rel := []int{0, 1, 1}
	if got := AveragePrecision(rel, 3); !approx(got, (0.5+2.0/3)/3) {
		t.Errorf("AveragePrecision(total=3) = %v", got)
	}
	if got := AveragePrecision(rel, 0); !approx(got, (0.5+2.0/3)/2) {
		t.Errorf("AveragePrecision(total=0) = %v", got)
	}
	if got := AveragePrecision(nil, 0); got != 0 {
		t.Errorf("AveragePrecision(nil) = %v", got)
	}
}

func TestRank(t *testing.T) {
	r := Rank([]string{"X", "A"}, []string{"A"}, []int{1, 2})
	if !approx(r.MRR, 0.5) || !approx(r.AP, 0.5) {
		t.Errorf("Rank() = %+v", r)
	}
	if r.NDCG[1] != 0 {
		t.Errorf("NDCG@1 = %v, want 0", r.NDCG[1])
	}
	if !approx(r.NDCG[2], 1/math.Log2(3)) {
		t.Errorf("NDCG@2 = %v", r.NDCG[2])
	}
}
