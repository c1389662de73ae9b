package model

import (
	"strings"

	errx "github.com/menu-lens/server/internal/core/error"
)

// Suitability is the three-valued verdict assigned to a menu item.
type Suitability string

const (
	SuitabilityGood    Suitability = "good"
	SuitabilityCareful Suitability = "careful"
	SuitabilityAvoid   Suitability = "avoid"
)

// AllSuitabilities lists the verdicts in rank order.
var AllSuitabilities = []Suitability{SuitabilityGood, SuitabilityCareful, SuitabilityAvoid}

// Rank orders verdicts good < careful < avoid.
func (s Suitability) Rank() int {
	switch s {
	case SuitabilityGood:
		return 0
	case SuitabilityCareful:
		return 1
	case SuitabilityAvoid:
		return 2
	default:
		return 3
	}
}

// Valid reports whether s is one of the canonical literals.
func (s Suitability) Valid() bool {
	return s.Rank() < 3
}

// Provider is the logical AI provider.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderVertex Provider = "vertex"
)

// Mode selects direct SDK calls (local) or the server-side function (remote).
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// RequestType is the wire discriminator used by the remote function.
type RequestType string

const (
	RequestAnalyze           RequestType = "analyze"
	RequestAnalyzeMultimodal RequestType = "analyze_multimodal"
)

// AnalysisRequest carries either Items (text mode) or ContentParts
// (multimodal mode), never both.
type AnalysisRequest struct {
	RequestID          string             `json:"requestId"`
	DietaryPreferences DietaryPreferences `json:"dietaryPreferences"`
	Items              []MenuItem         `json:"menuItems,omitempty"`
	ContentParts       []ContentPart      `json:"contentParts,omitempty"`
	Context            string             `json:"context,omitempty"`
}

// Multimodal reports whether the request is in multimodal mode.
func (r *AnalysisRequest) Multimodal() bool {
	return len(r.ContentParts) > 0
}

// Type returns the wire discriminator for the request.
func (r *AnalysisRequest) Type() RequestType {
	if r.Multimodal() {
		return RequestAnalyzeMultimodal
	}
	return RequestAnalyze
}

// Validate checks the request shape. Violations are caller bugs
// and come back as invalid_request errors.
func (r *AnalysisRequest) Validate() error {
	if r == nil {
		return errx.Newf(errx.ErrInvalidRequest, "request is nil")
	}
	if strings.TrimSpace(r.RequestID) == "" {
		return errx.Newf(errx.ErrInvalidRequest, "requestId is required")
	}
	if len(r.Items) > 0 && len(r.ContentParts) > 0 {
		return errx.Newf(errx.ErrInvalidRequest, "menuItems and contentParts are mutually exclusive")
	}
	if len(r.Items) == 0 && len(r.ContentParts) == 0 {
		return errx.Newf(errx.ErrInvalidRequest, "either menuItems or contentParts must be provided")
	}
	if err := r.DietaryPreferences.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(r.Items))
	for i, it := range r.Items {
		if strings.TrimSpace(it.ID) == "" {
			return errx.Newf(errx.ErrInvalidRequest, "menu item %d has no id", i)
		}
		if strings.TrimSpace(it.Name) == "" {
			return errx.Newf(errx.ErrInvalidRequest, "menu item %q has no name", it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return errx.Newf(errx.ErrInvalidRequest, "duplicate menu item id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	images := 0
	for i, p := range r.ContentParts {
		switch p.Type {
		case ContentImage:
			if strings.TrimSpace(p.Data) == "" {
				return errx.Newf(errx.ErrInvalidRequest, "content part %d has empty image data", i)
			}
			images++
		case ContentText:
		default:
			return errx.Newf(errx.ErrInvalidRequest, "content part %d has unknown type %q", i, p.Type)
		}
	}
	if len(r.ContentParts) > 0 && images == 0 {
		return errx.Newf(errx.ErrInvalidRequest, "multimodal request has no image part")
	}
	return nil
}

// Validate enforces that a custom diet names its restrictions.
func (p DietaryPreferences) Validate() error {
	switch p.DietaryType {
	case DietVegan, DietVegetarian:
		return nil
	case DietCustom:
		if strings.TrimSpace(p.CustomRestrictions) == "" {
			return errx.Newf(errx.ErrInvalidRequest, "custom dietary type requires customRestrictions")
		}
		return nil
	default:
		return errx.Newf(errx.ErrInvalidRequest, "unknown dietaryType %q", p.DietaryType)
	}
}

// FoodAnalysisResult is the verdict for one item. Only the response parser
// creates these.
type FoodAnalysisResult struct {
	ItemID         string      `json:"itemId"`
	ItemName       string      `json:"itemName"`
	Suitability    Suitability `json:"suitability"`
	Explanation    string      `json:"explanation"`
	QuestionsToAsk []string    `json:"questionsToAsk,omitempty"`
	Confidence     float64     `json:"confidence"`
	Concerns       []string    `json:"concerns,omitempty"`
}

// AnalysisResponse is the canonical result of one analysis exchange.
// Success == false implies Results is empty and Message is set.
type AnalysisResponse struct {
	Success          bool                 `json:"success"`
	Results          []FoodAnalysisResult `json:"results"`
	Confidence       float64              `json:"confidence"`
	Message          string               `json:"message,omitempty"`
	RequestID        string               `json:"requestId"`
	ProcessingTimeMs int64                `json:"processingTime"`

	// Set only on failures so callers can pick between retry and go-back.
	ErrorCode errx.Kind `json:"errorCode,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
}

// FailedResponse builds the success:false response for err.
func FailedResponse(requestID string, err error) *AnalysisResponse {
	msg := "analysis failed"
	if err != nil {
		msg = err.Error()
	}
	return &AnalysisResponse{
		Success:   false,
		Results:   []FoodAnalysisResult{},
		Message:   msg,
		RequestID: requestID,
		ErrorCode: errx.KindOf(err),
		Retryable: errx.Retryable(err),
	}
}

// FunctionRequest is the body of the remote analysis function call.
type FunctionRequest struct {
	Type               RequestType        `json:"type"`
	Provider           Provider           `json:"provider"`
	RequestID          string             `json:"requestId"`
	DietaryPreferences DietaryPreferences `json:"dietaryPreferences"`
	MenuItems          []MenuItem         `json:"menuItems,omitempty"`
	ContentParts       []ContentPart      `json:"contentParts,omitempty"`
	Context            string             `json:"context,omitempty"`
}

// NewFunctionRequest wraps req for the remote function of provider.
func NewFunctionRequest(provider Provider, req *AnalysisRequest) *FunctionRequest {
	return &FunctionRequest{
		Type:               req.Type(),
		Provider:           provider,
		RequestID:          req.RequestID,
		DietaryPreferences: req.DietaryPreferences,
		MenuItems:          req.Items,
		ContentParts:       req.ContentParts,
		Context:            req.Context,
	}
}

// AnalysisRequest unwraps the body, checking that the declared type matches
// the payload.
func (f *FunctionRequest) AnalysisRequest() (*AnalysisRequest, error) {
	req := &AnalysisRequest{
		RequestID:          f.RequestID,
		DietaryPreferences: f.DietaryPreferences,
		Items:              f.MenuItems,
		ContentParts:       f.ContentParts,
		Context:            f.Context,
	}
	if f.Type != "" && f.Type != req.Type() {
		return nil, errx.Newf(errx.ErrInvalidRequest, "type %q does not match the request payload", f.Type)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
