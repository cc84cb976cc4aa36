// Package evaluation scores retrieval answers against ground-truth trial
// sets.
package evaluation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trialmatch/trialrag/internal/bus"
	"github.com/trialmatch/trialrag/internal/cache"
	"github.com/trialmatch/trialrag/internal/lightrag"
	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// Retriever answers a query with the sink's raw response text.
type Retriever interface {
	Query(ctx context.Context, query string, param lightrag.QueryParam) (string, error)
}

// Options configures an evaluation run.
type Options struct {
	// Param is sent with every query.
	Param lightrag.QueryParam

	// DisableCache sends every query to the sink even when a cache is given.
	DisableCache bool

	// Concurrency bounds in-flight queries. Values below 1 mean sequential.
	Concurrency int

	// Ks are the NDCG cutoffs reported per group.
	Ks []int
}

// DefaultOptions returns the options used for trial retrieval runs.
func DefaultOptions() Options {
	return Options{
		Param:        lightrag.DefaultQueryParam(),
		DisableCache: true,
		Concurrency:  1,
		Ks:           []int{1, 5, 10, 20},
	}
}

// Evaluator issues one query per group and scores the answers.
type Evaluator struct {
	retriever Retriever
	opts      Options
	bus       bus.Bus
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewEvaluator creates an Evaluator. c, eventBus and m may be nil.
func NewEvaluator(r Retriever, c cache.Cache, opts Options, log *logger.Logger, eventBus bus.Bus, m *metrics.Metrics) (*Evaluator, error) {
	if err := opts.Param.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.Default()
	}
	if eventBus == nil {
		eventBus = bus.Nop{}
	}
	log = log.WithComponent("evaluation")

	if c != nil && !opts.DisableCache {
		r = cache.NewCachedRetriever(r, c, log, m)
	}

	return &Evaluator{
		retriever: r,
		opts:      opts,
		bus:       eventBus,
		metrics:   m,
		log:       log,
	}, nil
}

// Evaluate queries every group and aggregates the scores. A sink failure
// aborts the run. An unparseable answer scores as an empty prediction set.
// Results keep the order of groups regardless of concurrency.
func (e *Evaluator) Evaluate(ctx context.Context, groups []Group) (*Report, error) {
	start := time.Now()
	runID := bus.NewRunID()
	results := make([]GroupResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.evaluateGroup(gctx, runID, grp)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := NewReport(results)
	report.RunID = runID
	report.Mode = e.opts.Param.Mode
	report.Duration = time.Since(start)

	e.metrics.SetScores("micro", report.Micro.Precision, report.Micro.Recall, report.Micro.F1)
	e.metrics.SetScores("macro", report.Macro.Precision, report.Macro.Recall, report.Macro.F1)

	event := bus.NewEvent(bus.TopicEvaluationReport, "evaluation", runID, report)
	if err := e.bus.Publish(ctx, bus.TopicEvaluationReport, event); err != nil {
		e.log.Debug("Failed to publish report event", "error", err)
	}

	e.log.Info("Evaluation complete",
		"groups", len(results),
		"parse_failures", report.ParseFailures,
		"micro_f1", report.Micro.F1,
		"macro_f1", report.Macro.F1,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

func (e *Evaluator) evaluateGroup(ctx context.Context, runID string, grp Group) (GroupResult, error) {
	log := e.log.WithGroupKey(grp.Key)

	raw, err := e.retriever.Query(ctx, grp.Query, e.opts.Param)
	if err != nil {
		if errors.CodeOf(err) == "" {
			err = errors.SinkError("query failed", err)
		}
		return GroupResult{}, err
	}

	pred, perr := ParsePredictions(raw)
	if perr != nil {
		log.Warn("Unparseable response, scoring as empty", "error", perr)
	}
	res := ScoreGroup(grp.Key, PredictionsOrEmpty(pred, perr), grp.GroundTruth, e.opts.Ks)
	res.ParseFailed = perr != nil

	log.Debug("Group scored",
		"predicted", res.Predicted,
		"ground_truth", res.Truth,
		"matched", res.Matched,
	)
	e.metrics.GroupEvaluated(res.ParseFailed)

	event := bus.NewEvent(bus.TopicEvaluationGroup, "evaluation", runID, res)
	if err := e.bus.Publish(ctx, bus.TopicEvaluationGroup, event); err != nil {
		log.Debug("Failed to publish group event", "error", err)
	}
	return res, nil
}

// ScoreGroup scores one group's predictions against its ground truth.
func ScoreGroup(key string, pred, gt []string, ks []int) GroupResult {
	pred, gt = Dedup(pred), Dedup(gt)
	return GroupResult{
		Key:         key,
		Predictions: pred,
		GroundTruth: gt,
		Predicted:   len(pred),
		Truth:       len(gt),
		Matched:     matched(pred, gt),
		Scores:      Score(pred, gt),
		Ranking:     Rank(pred, gt, ks),
	}
}

func matched(pred, gt []string) int {
	truth := toSet(gt)
	n := 0
	for _, id := range pred {
		if _, ok := truth[id]; ok {
			n++
		}
	}
	return n
}
