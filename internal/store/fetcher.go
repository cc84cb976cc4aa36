// Package store fetches trial eligibility records from the AACT Postgres
// mirror.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
	"github.com/trialmatch/trialrag/internal/table"
)

// Column names of the eligibility result set.
const (
	ColumnID       = "nct_id"
	ColumnCriteria = "eligibility_criteria"
)

var relationPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Opener returns a fresh database handle. Each fetch opens and closes its own
// handle.
type Opener func(ctx context.Context) (*sql.DB, error)

// PostgresOpener opens handles with the lib/pq driver.
func PostgresOpener(dsn string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("postgres", dsn)
	}
}

// Config configures the fetcher.
type Config struct {
	// StudiesRelation is the (optionally schema-qualified) studies table.
	StudiesRelation string

	// CriteriaRelation is the (optionally schema-qualified) eligibilities table.
	CriteriaRelation string

	// ConnectTimeout bounds the connectivity check before each query.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the AACT layout.
func DefaultConfig() Config {
	return Config{
		StudiesRelation:  "ctgov.studies",
		CriteriaRelation: "ctgov.eligibilities",
		ConnectTimeout:   300 * time.Second,
	}
}

// Batch is the result of one eligibility fetch.
type Batch struct {
	Columns []string
	Rows    []table.Row

	// LastID is the identifier of the last returned row. It is informational
	// only and never used to page.
	LastID    string
	HasCursor bool
}

// Table returns the batch as a table.
func (b *Batch) Table() *table.Table {
	t := table.New(b.Columns...)
	t.Rows = append(t.Rows, b.Rows...)
	return t
}

// Fetcher queries eligibility criteria for sets of trial identifiers.
type Fetcher struct {
	open    Opener
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics

	eligibilityQuery string
	countQuery       string
}

// NewFetcher creates a fetcher. Relation names are validated because they are
// interpolated into SQL.
func NewFetcher(open Opener, cfg Config, log *logger.Logger, m *metrics.Metrics) (*Fetcher, error) {
	if open == nil {
		return nil, errors.ValidationError("opener is required")
	}
	if !relationPattern.MatchString(cfg.StudiesRelation) {
		return nil, errors.ValidationError(fmt.Sprintf("invalid studies relation %q", cfg.StudiesRelation))
	}
	if !relationPattern.MatchString(cfg.CriteriaRelation) {
		return nil, errors.ValidationError(fmt.Sprintf("invalid criteria relation %q", cfg.CriteriaRelation))
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if log == nil {
		log = logger.Default()
	}

	return &Fetcher{
		open:    open,
		cfg:     cfg,
		log:     log.WithComponent("fetcher"),
		metrics: m,
		eligibilityQuery: fmt.Sprintf(`
		SELECT s.nct_id, e.criteria AS eligibility_criteria
		FROM %s s
		LEFT JOIN %s e ON s.nct_id = e.nct_id
		WHERE s.nct_id = ANY($1)`, cfg.StudiesRelation, cfg.CriteriaRelation),
		countQuery: fmt.Sprintf(`SELECT COUNT(*) FROM %s`, cfg.StudiesRelation),
	}, nil
}

// FetchEligibility returns the eligibility rows for ids. ids may be a single
// scalar, a slice or a map (whose keys are used). Row order is whatever the
// database returns.
func (f *Fetcher) FetchEligibility(ctx context.Context, ids any) (*Batch, error) {
	list := NormalizeIDs(ids)
	start := time.Now()

	db, err := f.connect(ctx)
	if err != nil {
		f.metrics.ObserveQuery("fetch", time.Since(start), err)
		return nil, err
	}
	defer f.close(db)

	batch, err := f.queryEligibility(ctx, db, list)
	f.metrics.ObserveQuery("fetch", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	f.metrics.AddRowsFetched(len(batch.Rows))

	f.log.Debug("Fetched eligibility batch",
		"requested", len(list),
		"rows", len(batch.Rows),
		"last_id", batch.LastID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return batch, nil
}

func (f *Fetcher) queryEligibility(ctx context.Context, db *sql.DB, ids []string) (*Batch, error) {
	rows, err := db.QueryContext(ctx, f.eligibilityQuery, pq.Array(ids))
	if err != nil {
		return nil, errors.QueryError("eligibility query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.QueryError("reading result columns", err)
	}

	batch := &Batch{Columns: cols}
	idIdx := indexOf(cols, ColumnID)

	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.QueryError("scanning eligibility row", err)
		}

		vals := make([]table.Value, len(cols))
		for i, ns := range raw {
			if ns.Valid {
				vals[i] = table.String(ns.String)
			}
		}
		batch.Rows = append(batch.Rows, table.NewRow(cols, vals))

		if idIdx >= 0 && raw[idIdx].Valid {
			batch.LastID = raw[idIdx].String
			batch.HasCursor = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.QueryError("iterating eligibility rows", err)
	}

	return batch, nil
}

// CountTotal returns the number of rows in the studies table.
func (f *Fetcher) CountTotal(ctx context.Context) (int64, error) {
	start := time.Now()

	db, err := f.connect(ctx)
	if err != nil {
		f.metrics.ObserveQuery("count", time.Since(start), err)
		return 0, err
	}
	defer f.close(db)

	var n int64
	err = db.QueryRowContext(ctx, f.countQuery).Scan(&n)
	f.metrics.ObserveQuery("count", time.Since(start), err)
	if err != nil {
		return 0, errors.QueryError("count query failed", err)
	}
	return n, nil
}

// FetchAll fetches ids in batches of size and concatenates the results into
// one table. The first failing batch aborts the run.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string, size int) (*table.Table, error) {
	out := table.New(ColumnID, ColumnCriteria)
	chunks := Batches(ids, size)

	for i, chunk := range chunks {
		batch, err := f.FetchEligibility(ctx, chunk)
		if err != nil {
			return nil, errors.Wrap(errors.CodeOf(err), fmt.Sprintf("batch %d/%d failed", i+1, len(chunks)), err)
		}
		out.Concat(batch.Table())

		f.log.Info("Fetched batch",
			"batch", i+1,
			"batches", len(chunks),
			"rows", len(batch.Rows),
			"last_id", batch.LastID,
		)
	}
	return out, nil
}

func (f *Fetcher) connect(ctx context.Context) (*sql.DB, error) {
	db, err := f.open(ctx)
	if err != nil {
		return nil, errors.ConnectionError("opening database", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.ConnectionError("database unreachable", err)
	}
	return db, nil
}

func (f *Fetcher) close(db *sql.DB) {
	if err := db.Close(); err != nil {
		f.log.Debug("Closing database handle", "error", err)
	}
}

// NormalizeIDs converts an identifier collection to a list of strings.
// Slices and arrays keep their order, map keys are sorted, and any other
// value becomes a one-element list. nil yields an empty list.
func NormalizeIDs(ids any) []string {
	switch v := ids.(type) {
	case nil:
		return []string{}
	case string:
		return []string{v}
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case map[string]struct{}:
		return sortedKeys(v)
	}

	rv := reflect.ValueOf(ids)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]string, rv.Len())
		for i := range out {
			out[i] = fmt.Sprint(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out = append(out, fmt.Sprint(iter.Key().Interface()))
		}
		sort.Strings(out)
		return out
	default:
		return []string{fmt.Sprint(ids)}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Batches splits ids into consecutive chunks of at most size elements. A
// non-positive size yields a single chunk.
func Batches(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 || size >= len(ids) {
		return [][]string{ids}
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// DedupIDs trims ids and removes empties and duplicates, keeping first-seen
// order.
func DedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
