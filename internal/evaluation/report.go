package evaluation

import (
	"fmt"
	"io"
	"time"
)

// GroupResult is the outcome for one group.
type GroupResult struct {
	Key         string   `json:"key"`
	Predictions []string `json:"predictions"`
	GroundTruth []string `json:"ground_truth"`
	Predicted   int      `json:"predicted"`
	Truth       int      `json:"truth"`
	Matched     int      `json:"matched"`
	Scores      Scores   `json:"scores"`
	Ranking     Ranking  `json:"ranking"`
	ParseFailed bool     `json:"parse_failed,omitempty"`
}

// Report aggregates every group of a run.
type Report struct {
	RunID         string        `json:"run_id,omitempty"`
	Mode          string        `json:"mode,omitempty"`
	Groups        []GroupResult `json:"groups"`
	Micro         Scores        `json:"micro"`
	Macro         Scores        `json:"macro"`
	MeanMRR       float64       `json:"mean_mrr"`
	MAP           float64       `json:"map"`
	ParseFailures int           `json:"parse_failures"`
	Duration      time.Duration `json:"duration"`
}

// NewReport aggregates group results.
func NewReport(groups []GroupResult) *Report {
	r := &Report{Groups: groups}
	if len(groups) == 0 {
		return r
	}

	preds := make([][]string, len(groups))
	gts := make([][]string, len(groups))
	scores := make([]Scores, len(groups))
	for i, g := range groups {
		preds[i] = g.Predictions
		gts[i] = g.GroundTruth
		scores[i] = g.Scores
		r.MeanMRR += g.Ranking.MRR
		r.MAP += g.Ranking.AP
		if g.ParseFailed {
			r.ParseFailures++
		}
	}

	n := float64(len(groups))
	r.MeanMRR /= n
	r.MAP /= n
	r.Micro = Micro(preds, gts)
	r.Macro = Macro(scores)
	return r
}

// WriteText prints one line per group followed by the aggregates.
func (r *Report) WriteText(w io.Writer) error {
	for _, g := range r.Groups {
		status := ""
		if g.ParseFailed {
			status = " (unparseable response)"
		}
		if _, err := fmt.Fprintf(w, "topic %s: returned %d, ground truth %d, matched %d, P=%.4f R=%.4f F1=%.4f%s\n",
			g.Key, g.Predicted, g.Truth, g.Matched,
			g.Scores.Precision, g.Scores.Recall, g.Scores.F1, status); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w,
		"Micro Precision: %.4f, Micro Recall: %.4f, Micro F1: %.4f\n"+
			"Macro Precision: %.4f, Macro Recall: %.4f, Macro F1: %.4f\n"+
			"MRR: %.4f, MAP: %.4f\n",
		r.Micro.Precision, r.Micro.Recall, r.Micro.F1,
		r.Macro.Precision, r.Macro.Recall, r.Macro.F1,
		r.MeanMRR, r.MAP)
	return err
}
