package evaluation

// Scores holds precision, recall and F1.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Score compares pred and gt as sets. Order and duplicates are ignored.
func Score(pred, gt []string) Scores {
	p, g := toSet(pred), toSet(gt)
	tp := 0
	for id := range p {
		if _, ok := g[id]; ok {
			tp++
		}
	}
	return scores(tp, len(p), len(g))
}

// ScoreMultiset compares pred and gt as multisets: an identifier matches
// min(count in pred, count in gt) times.
func ScoreMultiset(pred, gt []string) Scores {
	counts := make(map[string]int, len(gt))
	for _, id := range gt {
		counts[id]++
	}
	tp := 0
	for _, id := range pred {
		if counts[id] > 0 {
			counts[id]--
			tp++
		}
	}
	return scores(tp, len(pred), len(gt))
}

func scores(tp, predicted, truth int) Scores {
	var s Scores
	if predicted > 0 {
		s.Precision = float64(tp) / float64(predicted)
	}
	if truth > 0 {
		s.Recall = float64(tp) / float64(truth)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Macro averages per-group precision, recall and F1 independently.
func Macro(groups []Scores) Scores {
	if len(groups) == 0 {
		return Scores{}
	}
	var sum Scores
	for _, s := range groups {
		sum.Precision += s.Precision
		sum.Recall += s.Recall
		sum.F1 += s.F1
	}
	n := float64(len(groups))
	return Scores{
		Precision: sum.Precision / n,
		Recall:    sum.Recall / n,
		F1:        sum.F1 / n,
	}
}

// Micro pools every group's deduplicated predictions and ground truth, keeping
// repeats across groups, and scores the pools once.
func Micro(preds, gts [][]string) Scores {
	var allPred, allGT []string
	for _, p := range preds {
		allPred = append(allPred, Dedup(p)...)
	}
	for _, g := range gts {
		allGT = append(allGT, Dedup(g)...)
	}
	return ScoreMultiset(allPred, allGT)
}

// Dedup returns ids without repeats, in first-seen order.
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
