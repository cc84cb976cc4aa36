package evaluation

import (
	"math"
	"sort"
)

// Ranking holds order-aware metrics for one group. The retrieval sink returns
// identifiers in rank order, so these complement the set scores.
type Ranking struct {
	MRR  float64         `json:"mrr"`
	AP   float64         `json:"ap"`
	NDCG map[int]float64 `json:"ndcg,omitempty"`
}

// Relevances marks each deduplicated prediction 1 if it is in gt, else 0.
func Relevances(pred, gt []string) []int {
	truth := toSet(gt)
	ranked := Dedup(pred)
	rel := make([]int, len(ranked))
	for i, id := range ranked {
		if _, ok := truth[id]; ok {
			rel[i] = 1
		}
	}
	return rel
}

// Rank computes MRR, average precision and NDCG at each k.
func Rank(pred, gt []string, ks []int) Ranking {
	rel := Relevances(pred, gt)
	r := Ranking{
		MRR: MRR(rel),
		AP:  AveragePrecision(rel, len(toSet(gt))),
	}
	if len(ks) > 0 {
		r.NDCG = make(map[int]float64, len(ks))
		for _, k := range ks {
			r.NDCG[k] = NDCG(rel, k)
		}
	}
	return r
}

// NDCG calculates normalized discounted cumulative gain at k.
func NDCG(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k <= 0 {
		return 0
	}

	idcgRel := make([]int, len(relevances))
	copy(idcgRel, relevances)
	sort.Sort(sort.Reverse(sort.IntSlice(idcgRel)))

	idcg := dcg(idcgRel, k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

func dcg(relevances []int, k int) float64 {
	sum := float64(relevances[0])
	for i := 1; i < k; i++ {
		sum += float64(relevances[i]) / math.Log2(float64(i+2))
	}
	return sum
}

// MRR returns the reciprocal rank of the first relevant prediction.
func MRR(relevances []int) float64 {
	for i, r := range relevances {
		if r > 0 {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision averages precision at each relevant rank over the number
// of relevant identifiers. A non-positive total falls back to the relevant
// predictions found.
func AveragePrecision(relevances []int, total int) float64 {
	relevant := 0
	sum := 0.0
	for i, r := range relevances {
		if r > 0 {
			relevant++
			sum += float64(relevant) / float64(i+1)
		}
	}
	if total <= 0 {
		total = relevant
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}
