package lightrag

import (
	"fmt"
	"strconv"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/hash"
)

// Retrieval modes accepted by the query endpoint.
const (
	ModeLocal  = "local"
	ModeGlobal = "global"
	ModeHybrid = "hybrid"
	ModeNaive  = "naive"
	ModeMix    = "mix"
	ModeBypass = "bypass"
)

var validModes = map[string]bool{
	ModeLocal: true, ModeGlobal: true, ModeHybrid: true,
	ModeNaive: true, ModeMix: true, ModeBypass: true,
}

// QueryParam is the retrieval configuration sent with every query.
type QueryParam struct {
	Mode              string `json:"mode"`
	TopK              int    `json:"top_k"`
	ChunkTopK         int    `json:"chunk_top_k"`
	MaxEntityTokens   int    `json:"max_entity_tokens"`
	MaxRelationTokens int    `json:"max_relation_tokens"`
	EnableRerank      bool   `json:"enable_rerank"`
	ResponseType      string `json:"response_type,omitempty"`
	Stream            bool   `json:"stream"`
	OnlyNeedContext   bool   `json:"only_need_context"`
	OnlyNeedPrompt    bool   `json:"only_need_prompt"`
}

// DefaultQueryParam returns the evaluation defaults.
func DefaultQueryParam() QueryParam {
	return QueryParam{
		Mode:              ModeHybrid,
		TopK:              20,
		ChunkTopK:         20,
		MaxEntityTokens:   10000,
		MaxRelationTokens: 10000,
		ResponseType:      "Single Paragraph",
	}
}

// Validate checks the parameters.
func (p QueryParam) Validate() error {
	if !validModes[p.Mode] {
		return errors.ValidationError(fmt.Sprintf("invalid query mode %q", p.Mode))
	}
	if p.TopK < 1 {
		return errors.ValidationError("top_k must be at least 1")
	}
	if p.ChunkTopK < 1 {
		return errors.ValidationError("chunk_top_k must be at least 1")
	}
	if p.MaxEntityTokens < 0 || p.MaxRelationTokens < 0 {
		return errors.ValidationError("token budgets must not be negative")
	}
	return nil
}

// CacheKey returns a stable key for query under these parameters.
func (p QueryParam) CacheKey(query string) string {
	return hash.Key(
		p.Mode,
		strconv.Itoa(p.TopK),
		strconv.Itoa(p.ChunkTopK),
		strconv.Itoa(p.MaxEntityTokens),
		strconv.Itoa(p.MaxRelationTokens),
		strconv.FormatBool(p.EnableRerank),
		p.ResponseType,
		strconv.FormatBool(p.OnlyNeedContext),
		strconv.FormatBool(p.OnlyNeedPrompt),
		query,
	)
}
