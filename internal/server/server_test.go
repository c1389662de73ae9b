package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menu-lens/server/internal/analysis/backends"
	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
)

type fakeRunner struct {
	calls int
	last  *model.AnalysisRequest
	err   error
}

func (f *fakeRunner) Run(_ context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.AnalysisResponse{Success: true, Results: []model.FoodAnalysisResult{}, Confidence: 1, RequestID: req.RequestID}, nil
}

func newTestRouter(t *testing.T, runner Runner) http.Handler {
	t.Helper()
	h, err := NewRouter(&Container{
		Runners:         map[model.Provider]Runner{model.ProviderGemini: runner},
		DefaultProvider: model.ProviderGemini,
		BearerToken:     "secret",
	})
	require.NoError(t, err)
	return h
}

func functionBody(t *testing.T, provider model.Provider) []byte {
	t.Helper()
	b, err := json.Marshal(model.NewFunctionRequest(provider, &model.AnalysisRequest{
		RequestID:          "r1",
		DietaryPreferences: model.DietaryPreferences{DietaryType: model.DietVegan},
		Items:              []model.MenuItem{{ID: "1", Name: "Tofu Curry", RawText: "Tofu Curry"}},
	}))
	require.NoError(t, err)
	return b
}

func post(h http.Handler, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, backends.FunctionPath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, &fakeRunner{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyzeRequiresBearer(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner)

	assert.Equal(t, http.StatusUnauthorized, post(h, "", functionBody(t, model.ProviderGemini)).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h, "wrong", functionBody(t, model.ProviderGemini)).Code)
	assert.Zero(t, runner.calls)
}

func TestAnalyzeSuccess(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner)

	rec := post(h, "secret", functionBody(t, model.ProviderGemini))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
	require.NotNil(t, runner.last)
	assert.Equal(t, "Tofu Curry", runner.last.Items[0].Name)
}

func TestAnalyzeErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"auth", errx.Newf(errx.ErrAuthentication, "bad key"), http.StatusUnauthorized},
		{"schema", errx.Newf(errx.ErrSchemaViolation, "prose"), http.StatusUnprocessableEntity},
		{"transport", errx.Newf(errx.ErrTransport, "reset"), http.StatusBadGateway},
		{"timeout", errx.Newf(errx.ErrTimeout, "slow"), http.StatusGatewayTimeout},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, &fakeRunner{err: tt.err})
			rec := post(h, "secret", functionBody(t, model.ProviderGemini))
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, rec.Body.String())
		})
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestRouter(t, runner)

	assert.Equal(t, http.StatusBadRequest, post(h, "secret", []byte("{not json")).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "secret", functionBody(t, model.ProviderVertex)).Code)

	mismatched := model.NewFunctionRequest(model.ProviderGemini, &model.AnalysisRequest{
		RequestID:          "r1",
		DietaryPreferences: model.DietaryPreferences{DietaryType: model.DietVegan},
		Items:              []model.MenuItem{{ID: "1", Name: "Tofu", RawText: "Tofu"}},
	})
	mismatched.Type = model.RequestAnalyzeMultimodal
	b, err := json.Marshal(mismatched)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, post(h, "secret", b).Code)

	assert.Zero(t, runner.calls)
}

func TestNewRouterValidatesContainer(t *testing.T) {
	_, err := NewRouter(&Container{Runners: map[model.Provider]Runner{model.ProviderGemini: &fakeRunner{}}})
	assert.Error(t, err)
	_, err = NewRouter(&Container{BearerToken: "t"})
	assert.Error(t, err)
}

func TestRemoteTransportAgainstRouter(t *testing.T) {
	runner := &fakeRunner{}
	srv := httptest.NewServer(newTestRouter(t, runner))
	defer srv.Close()

	tr, err := backends.NewRemoteTransport(model.ProviderGemini, model.RemoteConfig{BaseURL: srv.URL, BearerToken: "secret"}, srv.Client())
	require.NoError(t, err)

	raw, err := tr.Send(context.Background(), &backends.Envelope{Request: &model.AnalysisRequest{
		RequestID:          "r7",
		DietaryPreferences: model.DietaryPreferences{DietaryType: model.DietVegan},
		Items:              []model.MenuItem{{ID: "1", Name: "Tofu", RawText: "Tofu"}},
	}})
	require.NoError(t, err)
	assert.Contains(t, raw, `"requestId":"r7"`)
	assert.Equal(t, 1, runner.calls)
}
