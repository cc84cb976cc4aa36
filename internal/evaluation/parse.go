package evaluation

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/security"
)

// ParsePredictions decodes a retrieval response that should be a JSON array
// of identifier strings. A null document or a null element is rejected. The
// result is deduplicated in rank order.
func ParsePredictions(raw string) ([]string, error) {
	var elems []*string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &elems); err != nil {
		return nil, notStringArray(raw, err)
	}
	if elems == nil {
		return nil, notStringArray(raw, nil)
	}

	ids := make([]string, len(elems))
	for i, e := range elems {
		if e == nil {
			return nil, notStringArray(raw, nil).WithDetail("index", strconv.Itoa(i))
		}
		ids[i] = *e
	}
	return Dedup(ids), nil
}

func notStringArray(raw string, err error) *errors.AppError {
	return errors.ParseError("response is not a JSON array of strings", err).
		WithDetail("response", security.SanitizeForLog(raw))
}

// PredictionsOrEmpty maps a parse failure to the empty prediction set.
func PredictionsOrEmpty(ids []string, err error) []string {
	if err != nil {
		return []string{}
	}
	return ids
}
