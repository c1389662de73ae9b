package backends

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menu-lens/server/internal/analysis/model"
)

type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     []byte `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string          `json:"responseMimeType"`
		ResponseSchema   json.RawMessage `json:"responseSchema"`
	} `json:"generationConfig"`
}

type geminiStub struct {
	mu       sync.Mutex
	paths    []string
	requests []generateRequest
}

func (s *geminiStub) handler(t *testing.T, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		text, _ := json.Marshal(reply)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(text) + `}]},"finishReason":"STOP"}],` +
			`"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":3,"totalTokenCount":8}}`))
	}
}

func newStubbedGemini(t *testing.T, jsonMode bool, reply string) (Transport, *geminiStub) {
	stub := &geminiStub{}
	srv := httptest.NewServer(stub.handler(t, reply))
	t.Cleanup(srv.Close)

	tr, err := newGeminiTransport(context.Background(), &model.BackendConfig{
		Gemini:     model.GeminiConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-test"},
		Generation: model.GenerationConfig{Temperature: 0.2, MaxOutputTokens: 512, JSONMode: jsonMode},
	}, model.ProviderGemini)
	require.NoError(t, err)
	return tr, stub
}

func TestGeminiTransportTextPath(t *testing.T) {
	const reply = `{"success":true,"results":[],"confidence":1,"requestId":"r1"}`

	for _, jsonMode := range []bool{true, false} {
		tr, stub := newStubbedGemini(t, jsonMode, reply)

		out, err := tr.Send(context.Background(), &Envelope{
			Request: &model.AnalysisRequest{RequestID: "r1"},
			Prompt:  "analyze these dishes",
		})
		require.NoError(t, err)
		assert.Equal(t, reply, out)

		require.Len(t, stub.requests, 1)
		req := stub.requests[0]
		assert.True(t, strings.HasSuffix(stub.paths[0], "gemini-test:generateContent"), stub.paths[0])
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 1)
		assert.Equal(t, "analyze these dishes", req.Contents[0].Parts[0].Text)

		if jsonMode {
			assert.Equal(t, jsonMIMEType, req.GenerationConfig.ResponseMimeType)
			assert.Contains(t, string(req.GenerationConfig.ResponseSchema), "suitability")
		} else {
			assert.Empty(t, req.GenerationConfig.ResponseMimeType)
			assert.Empty(t, req.GenerationConfig.ResponseSchema)
		}
	}
}

func TestGeminiTransportMultimodalPath(t *testing.T) {
	const reply = `{"success":true,"results":[],"confidence":1,"requestId":"r2"}`
	image := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

	for _, jsonMode := range []bool{true, false} {
		tr, stub := newStubbedGemini(t, jsonMode, reply)

		out, err := tr.Send(context.Background(), &Envelope{
			Request: &model.AnalysisRequest{RequestID: "r2"},
			Parts: []model.ContentPart{
				model.TextPart("instructions"),
				model.ImagePart("data:image/png;base64," + base64.StdEncoding.EncodeToString(image)),
				model.TextPart("trailer"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, reply, out)

		require.Len(t, stub.requests, 1)
		req := stub.requests[0]
		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 3)
		assert.Equal(t, "instructions", parts[0].Text)
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
		assert.Equal(t, image, parts[1].InlineData.Data)
		assert.Equal(t, "trailer", parts[2].Text)

		if jsonMode {
			assert.Equal(t, jsonMIMEType, req.GenerationConfig.ResponseMimeType)
		} else {
			assert.Empty(t, req.GenerationConfig.ResponseMimeType)
		}
	}
}

func TestResponseSchemaRequiresVerdictFields(t *testing.T) {
	s := responseSchema()
	assert.ElementsMatch(t, []string{"success", "results", "confidence", "requestId"}, s.Required)

	item := s.Properties["results"].Value.Items.Value
	assert.Contains(t, item.Required, "suitability")
	assert.Equal(t, []any{"good", "careful", "avoid"}, item.Properties["suitability"].Value.Enum)
}
