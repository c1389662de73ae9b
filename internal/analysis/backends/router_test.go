package backends

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
)

type stubTransport struct {
	provider model.Provider
	mode     model.Mode
}

func (s *stubTransport) Send(context.Context, *Envelope) (string, error) {
	return "{}", nil
}

func (s *stubTransport) Provider() model.Provider {
	return s.provider
}

func (s *stubTransport) Mode() model.Mode {
	return s.mode
}

func TestRouterRejectsUnknownCombinations(t *testing.T) {
	r := NewRouter(&model.BackendConfig{})

	tests := []struct {
		provider model.Provider
		mode     model.Mode
	}{
		{"openai", model.ModeLocal},
		{model.ProviderGemini, "hybrid"},
		{"", ""},
		{"GEMINI", model.ModeLocal},
	}
	for _, tt := range tests {
		_, err := r.Resolve(context.Background(), tt.provider, tt.mode)
		assert.ErrorIs(t, err, errx.ErrUnsupportedCombination, "%s/%s", tt.provider, tt.mode)
	}
}

func TestRouterMemoizesTransports(t *testing.T) {
	builds := 0
	r := newRouter(&model.BackendConfig{}, map[route]factory{
		{model.ProviderGemini, model.ModeLocal}: func(_ context.Context, _ *model.BackendConfig, p model.Provider) (Transport, error) {
			builds++
			return &stubTransport{provider: p, mode: model.ModeLocal}, nil
		},
	})

	first, err := r.Resolve(context.Background(), model.ProviderGemini, model.ModeLocal)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), model.ProviderGemini, model.ModeLocal)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestRouterDoesNotMemoizeFailures(t *testing.T) {
	calls := 0
	r := newRouter(&model.BackendConfig{}, map[route]factory{
		{model.ProviderVertex, model.ModeRemote}: func(context.Context, *model.BackendConfig, model.Provider) (Transport, error) {
			calls++
			if calls == 1 {
				return nil, errx.Newf(errx.ErrAuthentication, "no token")
			}
			return &stubTransport{provider: model.ProviderVertex, mode: model.ModeRemote}, nil
		},
	})

	_, err := r.Resolve(context.Background(), model.ProviderVertex, model.ModeRemote)
	assert.ErrorIs(t, err, errx.ErrAuthentication)

	tr, err := r.Resolve(context.Background(), model.ProviderVertex, model.ModeRemote)
	require.NoError(t, err)
	assert.Equal(t, model.ModeRemote, tr.Mode())
}

func TestRouterCredentialFailures(t *testing.T) {
	tests := []struct {
		name     string
		cfg      model.BackendConfig
		provider model.Provider
		mode     model.Mode
	}{
		{"gemini without api key", model.BackendConfig{}, model.ProviderGemini, model.ModeLocal},
		{"vertex without project", model.BackendConfig{}, model.ProviderVertex, model.ModeLocal},
		{
			"vertex with malformed service account",
			model.BackendConfig{Vertex: model.VertexConfig{Project: "p", ServiceAccountJSON: "{not json"}},
			model.ProviderVertex, model.ModeLocal,
		},
		{"remote without base url", model.BackendConfig{}, model.ProviderGemini, model.ModeRemote},
		{
			"remote without token",
			model.BackendConfig{Remote: model.RemoteConfig{BaseURL: "https://example.com"}},
			model.ProviderVertex, model.ModeRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			_, err := NewRouter(&cfg).Resolve(context.Background(), tt.provider, tt.mode)
			assert.ErrorIs(t, err, errx.ErrAuthentication)
		})
	}
}

func TestRouterDefaultUsesConfig(t *testing.T) {
	cfg := &model.BackendConfig{
		Provider: model.ProviderVertex,
		Mode:     model.ModeRemote,
		Remote:   model.RemoteConfig{BaseURL: "https://functions.example.com", BearerToken: "secret"},
	}

	tr, err := NewRouter(cfg).Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ProviderVertex, tr.Provider())
	assert.Equal(t, model.ModeRemote, tr.Mode())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want *errx.AppError
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), errx.ErrTimeout},
		{"api 401", genai.APIError{Code: 401, Message: "bad key"}, errx.ErrAuthentication},
		{"api 504", genai.APIError{Code: 504, Message: "slow"}, errx.ErrTimeout},
		{"api 500", genai.APIError{Code: 500, Message: "boom"}, errx.ErrTransport},
		{"invalid key text", errors.New("Error 400, Message: API key not valid. Please pass a valid API key."), errx.ErrAuthentication},
		{"network", errors.New("dial tcp: connection refused"), errx.ErrTransport},
		{"already typed", errx.Newf(errx.ErrInvalidRequest, "bad part"), errx.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(ctx, tt.err), tt.want)
		})
	}
}
