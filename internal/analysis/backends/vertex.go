package backends

import (
	"context"
	"encoding/json"
	"strings"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

func newVertexTransport(ctx context.Context, cfg *model.BackendConfig, _ model.Provider) (Transport, error) {
	if strings.TrimSpace(cfg.Vertex.Project) == "" {
		return nil, errx.Newf(errx.ErrAuthentication, "VERTEX_PROJECT is not set")
	}
	creds, err := vertexCredentials(cfg.Vertex)
	if err != nil {
		return nil, err
	}

	t, err := newGenaiTransport(ctx, model.ProviderVertex, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     cfg.Vertex.Project,
		Location:    cfg.Vertex.Location,
		Credentials: creds,
	}, cfg.Vertex.Model, cfg.Generation)
	if err != nil {
		return nil, err
	}
	t.creds = creds
	return t, nil
}

// vertexCredentials builds service-account credentials from inline JSON, a
// key file, or the ambient application default credentials, in that order.
func vertexCredentials(cfg model.VertexConfig) (*auth.Credentials, error) {
	opts := &credentials.DetectOptions{
		Scopes: []string{cloudPlatformScope},
	}
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		raw := []byte(cfg.ServiceAccountJSON)
		if !json.Valid(raw) {
			return nil, errx.Newf(errx.ErrAuthentication, "VERTEX_SERVICE_ACCOUNT_JSON is not valid JSON")
		}
		opts.CredentialsJSON = raw
	case cfg.CredentialsFile != "":
		opts.CredentialsFile = cfg.CredentialsFile
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, errx.Wrap(errx.ErrAuthentication, err, "resolve vertex credentials")
	}
	return creds, nil
}
