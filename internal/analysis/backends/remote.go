package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

// FunctionPath is the route of the server-side analysis function.
const FunctionPath = "/functions/v1/ai-menu-analysis"

const (
	maxResponseBytes = 256 * 1024
	maxErrorBody     = 512
)

// remoteTransport posts the request to the analysis function, which runs the
// whole pipeline server-side and answers with an AnalysisResponse body.
type remoteTransport struct {
	provider   model.Provider
	endpoint   string
	token      string
	httpClient *http.Client
}

func newRemoteTransport(_ context.Context, cfg *model.BackendConfig, provider model.Provider) (Transport, error) {
	return NewRemoteTransport(provider, cfg.Remote, http.DefaultClient)
}

// NewRemoteTransport builds a remote-mode transport for provider. The
// caller's context bounds every call; httpClient carries no timeout of its own.
func NewRemoteTransport(provider model.Provider, cfg model.RemoteConfig, httpClient *http.Client) (Transport, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errx.Newf(errx.ErrAuthentication, "REMOTE_BASE_URL is not set")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errx.Wrap(errx.ErrAuthentication, err, "REMOTE_BASE_URL is not a valid URL")
	}
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return nil, errx.Newf(errx.ErrAuthentication, "REMOTE_BEARER_TOKEN is not set")
	}
	return &remoteTransport{
		provider:   provider,
		endpoint:   base + FunctionPath,
		token:      cfg.BearerToken,
		httpClient: httpClient,
	}, nil
}

func (t *remoteTransport) Provider() model.Provider { return t.provider }

func (t *remoteTransport) Mode() model.Mode { return model.ModeRemote }

func (t *remoteTransport) Send(ctx context.Context, env *Envelope) (string, error) {
	body, err := json.Marshal(model.NewFunctionRequest(t.provider, env.Request))
	if err != nil {
		return "", fmt.Errorf("marshal function request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errx.Wrap(errx.ErrTransport, err, "build function request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logx.Warn().
			Str("request_id", env.Request.RequestID).
			Str("provider", string(t.provider)).
			Int("status", resp.StatusCode).
			Msg("Analysis function returned an error")
		return "", statusError(resp.StatusCode, raw)
	}
	return string(raw), nil
}

// statusError maps a non-2xx function response onto the error taxonomy.
func statusError(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = strings.ToValidUTF8(text[:maxErrorBody], "")
	}
	cause := fmt.Errorf("analysis function returned %d: %s", status, text)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errx.Wrap(errx.ErrAuthentication, cause, "")
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errx.Wrap(errx.ErrTimeout, cause, "")
	case http.StatusUnprocessableEntity:
		return errx.Wrap(errx.ErrSchemaViolation, cause, "")
	case http.StatusBadRequest:
		return errx.Wrap(errx.ErrInvalidRequest, cause, "")
	default:
		return errx.Wrap(errx.ErrTransport, cause, "")
	}
}
