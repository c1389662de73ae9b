package parsers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// basic safety limits to avoid pathological model output
const (
	maxContentLen = 256 * 1024 // 256KB
	maxResults    = 500        // maximum number of results kept
	maxListLen    = 20         // questions / concerns per item
	maxErrSnippet = 200        // limit error snippet size
)

type rawResponse struct {
	Success          *bool           `json:"success"`
	Results          json.RawMessage `json:"results"`
	Confidence       json.RawMessage `json:"confidence"`
	Message          json.RawMessage `json:"message"`
	RequestID        json.RawMessage `json:"requestId"`
	ProcessingTime   json.RawMessage `json:"processingTime"`
	ProcessingTimeMs json.RawMessage `json:"processingTimeMs"`
}

type rawResult struct {
	ItemID         json.RawMessage `json:"itemId"`
	ItemName       json.RawMessage `json:"itemName"`
	Suitability    json.RawMessage `json:"suitability"`
	Explanation    json.RawMessage `json:"explanation"`
	QuestionsToAsk json.RawMessage `json:"questionsToAsk"`
	Confidence     json.RawMessage `json:"confidence"`
	Concerns       json.RawMessage `json:"concerns"`
}

// Parse turns raw model text into the canonical AnalysisResponse. It tries a
// strict decode first and one repair pass second; if both fail the output is
// a schema violation. Individual malformed items are dropped, not fatal.
func Parse(content string, expectedRequestID string) (resp *model.AnalysisResponse, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "response_parser").Msgf("panic recovered: %v", r)
			err = errx.Wrap(errx.ErrSchemaViolation, fmt.Errorf("response parser panic: %v", r), "")
			resp = nil
		}
	}()

	if strings.TrimSpace(content) == "" {
		return nil, errx.Newf(errx.ErrSchemaViolation, "model returned empty output")
	}
	if len(content) > maxContentLen {
		return nil, errx.Newf(errx.ErrSchemaViolation, "model output exceeds %d bytes", maxContentLen)
	}

	doc, strictErr := decode(content)
	if strictErr != nil {
		repaired := repairJSON(content)
		var repairErr error
		doc, repairErr = decode(repaired)
		if repairErr != nil {
			logx.Warn().
				Str("component", "response_parser").
				Str("request_id", expectedRequestID).
				Str("snippet", safeSnippet(content)).
				AnErr("strict_error", strictErr).
				AnErr("repair_error", repairErr).
				Msg("model output is not valid JSON")
			return nil, errx.Wrap(errx.ErrSchemaViolation, repairErr, "model output is not valid JSON")
		}
		logx.Debug().
			Str("component", "response_parser").
			Str("request_id", expectedRequestID).
			Msg("model output repaired before parsing")
	}

	return build(doc, expectedRequestID)
}

type document struct {
	raw            rawResponse
	items          []json.RawMessage
	resultsPresent bool
}

// decode accepts a JSON object in the response shape, or a bare array of
// results.
func decode(s string) (*document, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty input")
	}

	switch s[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, err
		}
		ok := true
		return &document{raw: rawResponse{Success: &ok}, items: items, resultsPresent: true}, nil
	case '{':
		var raw rawResponse
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, err
		}
		doc := &document{raw: raw}
		if !isNull(raw.Results) {
			if err := json.Unmarshal(raw.Results, &doc.items); err != nil {
				return nil, fmt.Errorf("results is not an array: %w", err)
			}
			doc.resultsPresent = true
		}
		if !doc.resultsPresent && raw.Success == nil {
			return nil, fmt.Errorf("object has neither success nor results")
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("not a JSON object")
	}
}

func build(doc *document, expectedRequestID string) (*model.AnalysisResponse, error) {
	var issues []string
	addIssue := func(msg string) {
		issues = append(issues, msg)
	}

	out := &model.AnalysisResponse{
		Results: make([]model.FoodAnalysisResult, 0, len(doc.items)),
	}

	missingConfidence := make(map[int]bool)
	seen := make(map[string]struct{}, len(doc.items))
	for i, rawItem := range doc.items {
		if len(out.Results) >= maxResults {
			addIssue(fmt.Sprintf("results capped at %d", maxResults))
			break
		}
		r, hasConfidence, reason := buildResult(rawItem, addIssue)
		if reason != "" {
			addIssue(fmt.Sprintf("result %d dropped: %s", i, reason))
			continue
		}
		if _, dup := seen[r.ItemID]; dup {
			addIssue(fmt.Sprintf("result %d dropped: duplicate itemId %q", i, r.ItemID))
			continue
		}
		seen[r.ItemID] = struct{}{}
		if !hasConfidence {
			missingConfidence[len(out.Results)] = true
		}
		out.Results = append(out.Results, r)
	}

	// request-level confidence; falls back to the mean of item confidences
	if v, ok := asFloat(doc.raw.Confidence); ok {
		out.Confidence = clampUnit(v, "confidence", addIssue)
	} else {
		sum, n := 0.0, 0
		for i, r := range out.Results {
			if !missingConfidence[i] {
				sum += r.Confidence
				n++
			}
		}
		if n > 0 {
			out.Confidence = sum / float64(n)
		}
	}
	for i := range out.Results {
		if missingConfidence[i] {
			out.Results[i].Confidence = out.Confidence
		}
	}

	if doc.raw.Success != nil {
		out.Success = *doc.raw.Success
	} else {
		out.Success = doc.resultsPresent
	}
	out.Message, _ = asString(doc.raw.Message)
	if !out.Success {
		out.Results = []model.FoodAnalysisResult{}
		if out.Message == "" {
			out.Message = "the model could not analyze this menu"
		}
	}

	modelRequestID, _ := asString(doc.raw.RequestID)
	out.RequestID = modelRequestID
	if expectedRequestID != "" {
		if modelRequestID != expectedRequestID {
			logx.Warn().
				Str("component", "response_parser").
				Str("request_id", expectedRequestID).
				Str("model_request_id", modelRequestID).
				Msg("model echoed a different requestId; accepting response")
		}
		out.RequestID = expectedRequestID
	}

	pt, ok := asFloat(doc.raw.ProcessingTime)
	if !ok {
		pt, ok = asFloat(doc.raw.ProcessingTimeMs)
	}
	if ok && pt > 0 && pt < math.MaxInt64 {
		out.ProcessingTimeMs = int64(pt)
	}

	if len(issues) > 0 {
		logx.Warn().
			Str("component", "response_parser").
			Str("request_id", out.RequestID).
			Int("kept", len(out.Results)).
			Int("received", len(doc.items)).
			Strs("issues", issues).
			Msg("model output needed corrections")
	}
	return out, nil
}

// buildResult validates one result. A non-empty reason means the item is dropped.
func buildResult(raw json.RawMessage, addIssue func(string)) (model.FoodAnalysisResult, bool, string) {
	var r model.FoodAnalysisResult
	var ri rawResult
	if err := json.Unmarshal(raw, &ri); err != nil {
		return r, false, "not an object"
	}

	name, _ := asString(ri.ItemName)
	if name == "" {
		return r, false, "missing itemName"
	}
	label, _ := asString(ri.Suitability)
	if label == "" {
		return r, false, "missing suitability"
	}
	suitability, ok := NormalizeSuitability(label)
	if !ok {
		return r, false, fmt.Sprintf("unknown suitability %q", safeSnippet(label))
	}
	explanation, _ := asString(ri.Explanation)
	if explanation == "" {
		return r, false, "missing explanation"
	}

	r.ItemName = name
	r.Suitability = suitability
	r.Explanation = explanation
	r.ItemID, _ = asString(ri.ItemID)
	if r.ItemID == "" {
		r.ItemID = generatedID(name)
	}

	conf, hasConfidence := asFloat(ri.Confidence)
	if hasConfidence {
		r.Confidence = clampUnit(conf, "item "+r.ItemID+" confidence", addIssue)
	}

	questions := asStringList(ri.QuestionsToAsk)
	if suitability == model.SuitabilityCareful {
		r.QuestionsToAsk = questions
	} else if len(questions) > 0 {
		logx.Debug().
			Str("component", "response_parser").
			Str("item_id", r.ItemID).
			Str("suitability", string(suitability)).
			Msg("dropping questionsToAsk on non-careful item")
	}
	r.Concerns = asStringList(ri.Concerns)
	return r, hasConfidence, ""
}

// NormalizeSuitability folds a model label into the canonical verdict. The
// UI vocabulary (safe / ask) is accepted alongside the canonical literals.
func NormalizeSuitability(label string) (model.Suitability, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "good", "safe", "suitable":
		return model.SuitabilityGood, true
	case "careful", "ask", "caution":
		return model.SuitabilityCareful, true
	case "avoid", "unsafe", "unsuitable":
		return model.SuitabilityAvoid, true
	default:
		return "", false
	}
}

// --- helpers ---

func clampUnit(v float64, field string, addIssue func(string)) float64 {
	switch {
	case math.IsNaN(v):
		addIssue(field + " is not a number")
		return 0
	case v < 0:
		addIssue(fmt.Sprintf("%s %.3g clamped to 0", field, v))
		return 0
	case v > 1:
		addIssue(fmt.Sprintf("%s %.3g clamped to 1", field, v))
		return 1
	default:
		return v
	}
}

// generatedID derives a stable id from the item name for results the model
// returned without one.
func generatedID(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name)))
	return "gen-" + hex.EncodeToString(sum[:5])
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// asString accepts JSON strings and numbers.
func asString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// asFloat accepts JSON numbers and numeric strings; "85%" reads as 0.85.
func asFloat(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	if percent {
		v /= 100
	}
	return v, true
}

// asStringList accepts an array of scalars or a single string; blanks are
// removed and the list is capped.
func asStringList(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		if s, ok := asString(raw); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, e := range elems {
		if len(out) >= maxListLen {
			break
		}
		if s, ok := asString(e); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return strings.ToValidUTF8(s[:maxErrSnippet], "")
}
