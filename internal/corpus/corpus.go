// Package corpus turns a merged trial table into documents and submits them
// to an indexing sink.
package corpus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/trialmatch/trialrag/internal/bus"
	"github.com/trialmatch/trialrag/internal/document"
	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/hash"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
	"github.com/trialmatch/trialrag/internal/table"
)

// IndexColumn is the unnamed positional index column of exported trial CSVs.
const IndexColumn = "Unnamed: 0"

// Indexer is the sink documents are submitted to.
type Indexer interface {
	// Insert submits one document. id is the external identifier and
	// sourcePath the provenance tag cited by the sink.
	Insert(ctx context.Context, text, id, sourcePath string) error

	// Finalize flushes the sink once every document was submitted.
	Finalize(ctx context.Context) error
}

// Config configures a Builder.
type Config struct {
	// IDColumn names the identifier column.
	IDColumn string

	// Synth controls document rendering.
	Synth document.Options

	// DropColumns are removed before synthesis.
	DropColumns []string
}

// DefaultConfig returns the configuration for AACT trial tables.
func DefaultConfig() Config {
	return Config{
		IDColumn:    "nct_id",
		Synth:       document.DefaultOptions(),
		DropColumns: []string{IndexColumn},
	}
}

// Result summarizes a build.
type Result struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Inserted int           `json:"inserted"`
	Empty    int           `json:"empty"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Builder drives synthesis and submission. Documents are submitted one at a
// time in table order.
type Builder struct {
	cfg     Config
	indexer Indexer
	bus     bus.Bus
	metrics *metrics.Metrics
	log     *logger.Logger

	mu       sync.RWMutex
	progress ProgressCallback
}

// NewBuilder creates a Builder. eventBus and m may be nil.
func NewBuilder(cfg Config, indexer Indexer, log *logger.Logger, eventBus bus.Bus, m *metrics.Metrics) *Builder {
	if cfg.IDColumn == "" {
		cfg.IDColumn = DefaultConfig().IDColumn
	}
	if cfg.Synth.IDColumn == "" {
		cfg.Synth = document.DefaultOptions()
	}
	cfg.Synth.IDColumn = cfg.IDColumn
	if log == nil {
		log = logger.Default()
	}
	if eventBus == nil {
		eventBus = bus.Nop{}
	}
	return &Builder{
		cfg:     cfg,
		indexer: indexer,
		bus:     eventBus,
		metrics: m,
		log:     log.WithComponent("corpus"),
	}
}

// SetProgressCallback sets the callback for progress updates.
func (b *Builder) SetProgressCallback(cb ProgressCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = cb
}

// Prepare restricts tbl to identifiers in allow (nil keeps every row),
// keeps the first row per identifier and drops rows without one. The
// returned count is the number of rows dropped for a missing identifier.
func Prepare(tbl *table.Table, idColumn string, allow map[string]struct{}, drop ...string) (*table.Table, int) {
	if !tbl.HasColumn(idColumn) {
		return table.New(tbl.Columns...).Drop(drop...), tbl.Len()
	}

	skipped := 0
	withID := tbl.Where(func(r table.Row) bool {
		if r.Key(idColumn) == "" {
			skipped++
			return false
		}
		return true
	})

	return withID.Filter(idColumn, allow).DedupBy(idColumn).Drop(drop...), skipped
}

// Build prepares tbl, submits one document per row and finalizes the sink.
// The first failed insert aborts the run without finalizing.
func (b *Builder) Build(ctx context.Context, tbl *table.Table, allow map[string]struct{}) (*Result, error) {
	start := time.Now()
	runID := bus.NewRunID()
	log := &logger.Logger{Logger: b.log.With("run_id", runID)}

	if !tbl.HasColumn(b.cfg.IDColumn) {
		return nil, errors.ValidationError("table has no identifier column").
			WithDetail("column", b.cfg.IDColumn)
	}

	prepared, skipped := Prepare(tbl, b.cfg.IDColumn, allow, b.cfg.DropColumns...)
	total := prepared.Len()
	result := &Result{RunID: runID, Total: total, Skipped: skipped}

	b.mu.RLock()
	tracker := NewProgressTracker(b.progress)
	b.mu.RUnlock()

	log.Info("Building corpus", "rows", tbl.Len(), "documents", total, "skipped", skipped)

	for i, row := range prepared.Rows {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(errors.CodeTimeout, "corpus build cancelled", err).
				WithDetails(progressDetails(i, total))
		}

		doc := document.Synthesize(row, prepared.Columns, b.cfg.Synth)
		if err := b.indexer.Insert(ctx, doc.Text(), doc.ID, doc.ID); err != nil {
			log.WithRecord(doc.ID).Error("Insert failed", "processed", i, "total", total, "error", err)
			return result, errors.SinkError("document insert failed", err).
				WithDetails(progressDetails(i, total)).
				WithDetail("record_id", doc.ID)
		}

		result.Inserted++
		headerOnly := doc.HeaderOnly()
		if headerOnly {
			result.Empty++
		}
		b.metrics.DocumentIndexed(headerOnly)

		tracker.Inserted(i+1, total, doc.ID)
		b.publishProgress(ctx, runID, i+1, total, doc.ID, doc.Text())
	}

	tracker.Finalizing(total)
	if err := b.indexer.Finalize(ctx); err != nil {
		log.Error("Finalize failed", "error", err)
		return result, errors.SinkError("finalize failed", err).
			WithDetails(progressDetails(total, total))
	}

	result.Duration = time.Since(start)
	tracker.Complete(result.Inserted)
	b.publishComplete(ctx, result)

	log.Info("Corpus built",
		"inserted", result.Inserted,
		"empty", result.Empty,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func progressDetails(processed, total int) map[string]string {
	return map[string]string{
		"processed": strconv.Itoa(processed),
		"total":     strconv.Itoa(total),
	}
}

func (b *Builder) publishProgress(ctx context.Context, runID string, current, total int, id, text string) {
	event := bus.NewEvent(bus.TopicCorpusProgress, "corpus", runID, map[string]interface{}{
		"current":      current,
		"total":        total,
		"record_id":    id,
		"content_hash": hash.SHA256Short([]byte(text), 16),
	})
	if err := b.bus.Publish(ctx, bus.TopicCorpusProgress, event); err != nil {
		b.log.Debug("Failed to publish progress event", "error", err)
	}
}

func (b *Builder) publishComplete(ctx context.Context, result *Result) {
	event := bus.NewEvent(bus.TopicCorpusComplete, "corpus", result.RunID, result)
	if err := b.bus.Publish(ctx, bus.TopicCorpusComplete, event); err != nil {
		b.log.Debug("Failed to publish complete event", "error", err)
	}
}
