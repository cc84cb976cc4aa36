package metrics

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.ObserveQuery("fetch", time.Second, nil)
	m.AddRowsFetched(3)
	m.DocumentIndexed(false)
	m.ObserveSink("insert", time.Second, errors.New("boom"))
	m.GroupEvaluated(true)
	m.CacheLookup("hit")
	m.SetScores("micro", 1, 1, 1)
	m.RecordBusPublish("corpus.progress", nil)

	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile() on nil = %v", err)
	}
	if m.Registry() != nil {
		t.Error("Registry() on nil should be nil")
	}
}

func TestObserveQuery(t *testing.T) {
	m := New()

	m.ObserveQuery("fetch", 10*time.Millisecond, nil)
	m.ObserveQuery("fetch", 20*time.Millisecond, nil)
	m.ObserveQuery("count", time.Millisecond, errors.New("down"))

	if got := testutil.ToFloat64(m.StoreQueries.WithLabelValues("fetch", "success")); got != 2 {
		t.Errorf("fetch success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StoreQueries.WithLabelValues("count", "error")); got != 1 {
		t.Errorf("count error = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.StoreQueryDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.AddRowsFetched(5)
	m.AddRowsFetched(0)
	m.DocumentIndexed(false)
	m.DocumentIndexed(true)
	m.DocumentIndexed(false)
	m.GroupEvaluated(false)
	m.GroupEvaluated(true)
	m.CacheLookup("miss")
	m.RecordBusPublish("corpus.complete", nil)
	m.RecordBusPublish("corpus.complete", errors.New("broker down"))

	if got := testutil.ToFloat64(m.RowsFetched); got != 5 {
		t.Errorf("RowsFetched = %v, want 5", got)
	}

	expected := `
		# HELP trialrag_documents_indexed_total Documents inserted into the sink by kind
		# TYPE trialrag_documents_indexed_total counter
		trialrag_documents_indexed_total{kind="content"} 2
		trialrag_documents_indexed_total{kind="header_only"} 1
	`
	if err := testutil.CollectAndCompare(m.DocumentsIndexed, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected documents metric: %v", err)
	}

	if got := testutil.ToFloat64(m.EvalGroups.WithLabelValues("parse_error")); got != 1 {
		t.Errorf("parse_error groups = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BusPublishes.WithLabelValues("corpus.complete", "error")); got != 1 {
		t.Errorf("bus publish errors = %v, want 1", got)
	}
}

func TestSetScores(t *testing.T) {
	m := New()
	m.SetScores("macro", 0.5, 0.25, 1.0/3)

	if got := testutil.ToFloat64(m.EvalScore.WithLabelValues("macro", "recall")); got != 0.25 {
		t.Errorf("macro recall = %v, want 0.25", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AddRowsFetched(7)

	path := filepath.Join(t.TempDir(), "trialrag.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "trialrag_rows_fetched_total 7") {
		t.Errorf("textfile content = %s", data)
	}

	if err := m.WriteTextfile(""); err != nil {
		t.Errorf("empty path should be a no-op, got %v", err)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSink("insert", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `trialrag_sink_requests_total{operation="insert",status="success"} 1`) {
		t.Errorf("body missing sink counter: %s", rec.Body.String())
	}
}
