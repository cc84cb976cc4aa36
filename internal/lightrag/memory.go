package lightrag

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
)

// MemoryDocument is a document held by MemoryStore.
type MemoryDocument struct {
	ID         string
	Text       string
	SourcePath string
}

// MemoryStore is an in-process sink used for dry runs and tests. Inserts
// are upserts keyed by identifier. Queries rank documents by how many query
// terms they contain and answer with a JSON array of identifiers.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]MemoryDocument
	order     []string
	finalized int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]MemoryDocument)}
}

// Insert upserts a document.
func (s *MemoryStore) Insert(ctx context.Context, text, id, sourcePath string) error {
	if err := ctx.Err(); err != nil {
		return errors.SinkError("insert cancelled", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.docs[id] = MemoryDocument{ID: id, Text: text, SourcePath: sourcePath}
	return nil
}

// Finalize records that a batch was committed.
func (s *MemoryStore) Finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.SinkError("finalize cancelled", err)
	}
	s.mu.Lock()
	s.finalized++
	s.mu.Unlock()
	return nil
}

// Query returns a JSON array with the identifiers of the top_k documents
// sharing the most terms with query. Ties keep insertion order.
func (s *MemoryStore) Query(ctx context.Context, query string, param QueryParam) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.SinkError("query cancelled", err)
	}
	terms := tokenize(query)

	s.mu.RLock()
	type scored struct {
		id    string
		score int
	}
	var hits []scored
	for _, id := range s.order {
		words := make(map[string]struct{})
		for _, w := range tokenize(s.docs[id].Text) {
			words[w] = struct{}{}
		}
		n := 0
		for _, t := range terms {
			if _, ok := words[t]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{id: id, score: n})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	limit := param.TopK
	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	ids := make([]string, 0, limit)
	for _, h := range hits[:limit] {
		ids = append(ids, h.id)
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return "", errors.InternalError("encoding response", err)
	}
	return string(data), nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Get returns a stored document.
func (s *MemoryStore) Get(id string) (MemoryDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

// Documents returns all documents in first-insert order.
func (s *MemoryStore) Documents() []MemoryDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MemoryDocument, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

// Finalized returns how many times Finalize succeeded.
func (s *MemoryStore) Finalized() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
