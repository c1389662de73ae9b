package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

const maxRequestBytes = 20 << 20 // 20MB, room for base64 photos

// Runner executes one analysis with typed errors; *client.Client implements it.
type Runner interface {
	Run(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error)
}

// AnalysisHandler serves the analysis function.
type AnalysisHandler struct {
	runners         map[model.Provider]Runner
	defaultProvider model.Provider
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(runners map[model.Provider]Runner, defaultProvider model.Provider) *AnalysisHandler {
	return &AnalysisHandler{runners: runners, defaultProvider: defaultProvider}
}

// Analyze handles POST /functions/v1/ai-menu-analysis. Success is a 200 with
// an AnalysisResponse body; failures are a non-2xx status with a text body.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var body model.FunctionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req, err := body.AnalysisRequest()
	if err != nil {
		writeFailure(w, body.RequestID, err)
		return
	}

	provider := body.Provider
	if provider == "" {
		provider = h.defaultProvider
	}
	runner, ok := h.runners[provider]
	if !ok {
		writeFailure(w, req.RequestID, errx.Newf(errx.ErrUnsupportedCombination, "provider %q is not served here", provider))
		return
	}

	resp, err := runner.Run(r.Context(), req)
	if err != nil {
		writeFailure(w, req.RequestID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeFailure(w http.ResponseWriter, requestID string, err error) {
	status := errx.StatusOf(err)
	logx.Warn().
		Err(err).
		Str("request_id", requestID).
		Str("error_code", string(errx.KindOf(err))).
		Int("status", status).
		Msg("Analysis function failed")

	msg := err.Error()
	if errx.KindOf(err) == errx.KindInternal {
		msg = errx.SystemErrorMessage
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logx.Error().Err(err).Msg("failed to write response")
	}
}
