package corpus

import "sync"

// Stages reported by the builder.
const (
	StageInserting  = "inserting"
	StageFinalizing = "finalizing"
	StageComplete   = "complete"
)

// ProgressCallback is called with build progress updates.
type ProgressCallback func(Progress)

// Progress represents corpus build progress.
type Progress struct {
	Stage    string  `json:"stage"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Percent  float64 `json:"percent"`
	RecordID string  `json:"record_id,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// ProgressTracker serializes progress updates to a callback.
type ProgressTracker struct {
	callback ProgressCallback
	mu       sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback ProgressCallback) *ProgressTracker {
	return &ProgressTracker{callback: callback}
}

// Update computes the percentage and forwards p.
func (t *ProgressTracker) Update(p Progress) {
	if t == nil || t.callback == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Total > 0 && p.Percent == 0 {
		p.Percent = float64(p.Current) / float64(p.Total) * 100
	}

	t.callback(p)
}

// Inserted reports that the current-th of total documents was accepted.
func (t *ProgressTracker) Inserted(current, total int, id string) {
	t.Update(Progress{
		Stage:    StageInserting,
		Current:  current,
		Total:    total,
		RecordID: id,
		Message:  "Inserting documents",
	})
}

// Finalizing reports that every document was submitted.
func (t *ProgressTracker) Finalizing(total int) {
	t.Update(Progress{
		Stage:   StageFinalizing,
		Current: total,
		Total:   total,
		Message: "Waiting for the sink to finalize",
	})
}

// Complete reports completion.
func (t *ProgressTracker) Complete(inserted int) {
	t.Update(Progress{
		Stage:   StageComplete,
		Current: inserted,
		Total:   inserted,
		Percent: 100,
		Message: "Corpus build complete",
	})
}
