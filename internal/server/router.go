package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/menu-lens/server/internal/analysis/backends"
	"github.com/menu-lens/server/internal/analysis/model"
)

// Container holds the dependencies of the function router.
type Container struct {
	// Runners maps each provider this server answers for to its analysis client.
	Runners         map[model.Provider]Runner
	DefaultProvider model.Provider
	BearerToken     string
}

// NewRouter creates the function router: the analysis function behind bearer
// auth, and an open health check.
func NewRouter(c *Container) (http.Handler, error) {
	if c.BearerToken == "" {
		return nil, fmt.Errorf("function bearer token is empty")
	}
	if len(c.Runners) == 0 {
		return nil, fmt.Errorf("no analysis runners configured")
	}

	r := mux.NewRouter()
	r.Use(requestLogger)

	analysisHandler := NewAnalysisHandler(c.Runners, c.DefaultProvider)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	functions := r.NewRoute().Subrouter()
	functions.Use(requireBearer(c.BearerToken))
	functions.HandleFunc(backends.FunctionPath, analysisHandler.Analyze).Methods(http.MethodPost)

	return r, nil
}
