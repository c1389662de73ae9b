package backends

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// Envelope is one outgoing analysis call: the validated request plus the
// composed prompt (text mode) or content parts (multimodal mode).
type Envelope struct {
	Request *model.AnalysisRequest
	Prompt  string
	Parts   []model.ContentPart
}

// Multimodal reports whether the envelope carries content parts.
func (e *Envelope) Multimodal() bool {
	return len(e.Parts) > 0
}

// Transport sends one envelope and returns the model's raw text. Errors are
// typed: authentication, transport or timeout.
type Transport interface {
	Send(ctx context.Context, env *Envelope) (string, error)
	Provider() model.Provider
	Mode() model.Mode
}

// authMarkers are substrings of SDK errors caused by bad credentials.
var authMarkers = []string{
	"API key not valid",
	"API_KEY_INVALID",
	"PERMISSION_DENIED",
	"UNAUTHENTICATED",
	"invalid_grant",
}

// classify maps an SDK or network error onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errx.Wrap(errx.ErrTimeout, err, "")
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	switch code {
	case 401, 403:
		return errx.Wrap(errx.ErrAuthentication, err, "")
	case 408, 504:
		return errx.Wrap(errx.ErrTimeout, err, "")
	}

	msg := err.Error()
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return errx.Wrap(errx.ErrAuthentication, err, "")
		}
	}
	return errx.Wrap(errx.ErrTransport, err, "")
}

// logUsage computes and logs usage cost for one model call.
func logUsage(requestID string, provider model.Provider, modelName string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("request_id", requestID).
		Str("provider", string(provider)).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
