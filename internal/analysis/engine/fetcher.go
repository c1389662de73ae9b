package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

const (
	maxDocumentBytes = 2 << 20 // 2MB
	fetchUserAgent   = "menu-lens/1.0 (+menu analysis)"
)

// HTTPFetcher downloads menu pages over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

var _ DocumentFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher uses client, or http.DefaultClient when nil. Deadlines come
// from the caller's context.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errx.Wrap(errx.ErrInvalidRequest, err, "build document request")
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", errx.Wrap(errx.ErrTimeout, err, "fetch menu page")
		}
		return "", errx.Wrap(errx.ErrTransport, err, "fetch menu page")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logx.Warn().Str("url", rawURL).Int("status", resp.StatusCode).Msg("Menu page fetch failed")
		return "", errx.Wrap(errx.ErrTransport, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode), "fetch menu page")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return "", errx.Wrap(errx.ErrTransport, err, "read menu page")
	}
	if len(body) > maxDocumentBytes {
		logx.Warn().Str("url", rawURL).Int("limit_bytes", maxDocumentBytes).Msg("Menu page truncated")
		body = body[:maxDocumentBytes]
	}
	return strings.ToValidUTF8(string(body), ""), nil
}
