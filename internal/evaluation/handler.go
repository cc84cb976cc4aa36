package evaluation

import (
	"encoding/json"
	"net/http"

	"github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/security"
)

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	evaluator *Evaluator
	ks        []int
}

// NewHandler creates a new evaluation handler. e may be nil, in which case
// only offline scoring is served.
func NewHandler(e *Evaluator) *Handler {
	h := &Handler{evaluator: e, ks: DefaultOptions().Ks}
	if e != nil {
		h.ks = e.opts.Ks
	}
	return h
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluation/score", h.handleScore)
}

// EvaluateRequest asks for a live evaluation of groups.
type EvaluateRequest struct {
	Groups []Group `json:"groups"`
}

// ScoreRequest carries already collected predictions.
type ScoreRequest struct {
	Groups []struct {
		Key         string   `json:"key"`
		Predictions []string `json:"predictions"`
		GroundTruth []string `json:"ground_truth"`
	} `json:"groups"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if h.evaluator == nil {
		errors.WriteError(w, errors.ServiceUnavailableError("retrieval sink"))
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := validateGroups(req.Groups); err != nil {
		errors.WriteError(w, err)
		return
	}

	report, err := h.evaluator.Evaluate(r.Context(), req.Groups)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.ValidationError("invalid request body: "+err.Error()))
		return
	}

	if err := validateScoreRequest(req); err != nil {
		errors.WriteError(w, err)
		return
	}

	results := make([]GroupResult, len(req.Groups))
	for i, g := range req.Groups {
		results[i] = ScoreGroup(g.Key, g.Predictions, g.GroundTruth, h.ks)
	}
	writeJSON(w, NewReport(results))
}

func validateGroups(groups []Group) error {
	if err := security.ValidateGroupCount(len(groups)); err != nil {
		return errors.ValidationError(err.Error())
	}
	for _, g := range groups {
		if err := security.ValidateIdentifier("key", g.Key); err != nil {
			return errors.ValidationError(err.Error())
		}
		if err := security.ValidateQuery(g.Query); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("key", g.Key)
		}
		if err := security.ValidateIdentifiers("ground_truth", g.GroundTruth); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("key", g.Key)
		}
	}
	return nil
}

func validateScoreRequest(req ScoreRequest) error {
	if err := security.ValidateGroupCount(len(req.Groups)); err != nil {
		return errors.ValidationError(err.Error())
	}
	for _, g := range req.Groups {
		if err := security.ValidateIdentifier("key", g.Key); err != nil {
			return errors.ValidationError(err.Error())
		}
		if err := security.ValidateIdentifiers("predictions", g.Predictions); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("key", g.Key)
		}
		if err := security.ValidateIdentifiers("ground_truth", g.GroundTruth); err != nil {
			return errors.ValidationError(err.Error()).WithDetail("key", g.Key)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
