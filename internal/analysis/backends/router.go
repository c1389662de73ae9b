package backends

import (
	"context"
	"sync"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// route is one cell of the provider x mode table.
type route struct {
	provider model.Provider
	mode     model.Mode
}

// factory builds the transport for one route from the start-up config.
type factory func(ctx context.Context, cfg *model.BackendConfig, provider model.Provider) (Transport, error)

// defaultRoutes is the closed set of supported combinations.
var defaultRoutes = map[route]factory{
	{model.ProviderGemini, model.ModeLocal}:  newGeminiTransport,
	{model.ProviderVertex, model.ModeLocal}:  newVertexTransport,
	{model.ProviderGemini, model.ModeRemote}: newRemoteTransport,
	{model.ProviderVertex, model.ModeRemote}: newRemoteTransport,
}

// Router resolves a provider and mode to a transport. Transports are built
// on first use and reused afterwards.
type Router struct {
	cfg    *model.BackendConfig
	routes map[route]factory

	mu    sync.Mutex
	built map[route]Transport
}

// NewRouter creates a router over cfg. cfg is read, never modified.
func NewRouter(cfg *model.BackendConfig) *Router {
	return newRouter(cfg, defaultRoutes)
}

func newRouter(cfg *model.BackendConfig, routes map[route]factory) *Router {
	return &Router{
		cfg:    cfg,
		routes: routes,
		built:  make(map[route]Transport, len(routes)),
	}
}

// Resolve returns the transport for provider and mode. Unknown combinations
// fail with an unsupported-combination error before any network call.
func (r *Router) Resolve(ctx context.Context, provider model.Provider, mode model.Mode) (Transport, error) {
	key := route{provider: provider, mode: mode}
	build, ok := r.routes[key]
	if !ok {
		return nil, errx.Newf(errx.ErrUnsupportedCombination, "unsupported provider/mode combination %q/%q", provider, mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.built[key]; ok {
		return t, nil
	}

	t, err := build(ctx, r.cfg, provider)
	if err != nil {
		logx.Error().Err(err).Str("provider", string(provider)).Str("mode", string(mode)).Msg("Error building transport")
		return nil, err
	}
	r.built[key] = t
	logx.Debug().Str("provider", string(provider)).Str("mode", string(mode)).Msg("Transport ready")
	return t, nil
}

// Default resolves the provider and mode named in the config.
func (r *Router) Default(ctx context.Context) (Transport, error) {
	return r.Resolve(ctx, r.cfg.Provider, r.cfg.Mode)
}
