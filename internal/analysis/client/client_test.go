package client

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menu-lens/server/internal/analysis/backends"
	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls int
	envs  []*backends.Envelope
	reply func(ctx context.Context, env *backends.Envelope) (string, error)
}

func (f *fakeTransport) Send(ctx context.Context, env *backends.Envelope) (string, error) {
	f.mu.Lock()
	f.calls++
	f.envs = append(f.envs, env)
	f.mu.Unlock()
	return f.reply(ctx, env)
}

func (f *fakeTransport) Provider() model.Provider { return model.ProviderGemini }
func (f *fakeTransport) Mode() model.Mode         { return model.ModeLocal }

func replyWith(raw string) func(context.Context, *backends.Envelope) (string, error) {
	return func(context.Context, *backends.Envelope) (string, error) { return raw, nil }
}

func newTestClient(t *testing.T, ft *fakeTransport, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(context.Background(), ft, timeout)
	require.NoError(t, err)
	return c
}

func textRequest() *model.AnalysisRequest {
	return &model.AnalysisRequest{
		RequestID:          "r1",
		DietaryPreferences: model.DietaryPreferences{DietaryType: model.DietVegan},
		Items: []model.MenuItem{
			{ID: "1", Name: "Grilled Chicken Breast", Price: "$14", RawText: "Grilled Chicken Breast - $14"},
			{ID: "2", Name: "Vegan Buddha Bowl", Price: "$12", RawText: "Vegan Buddha Bowl - $12"},
		},
	}
}

const twoResults = `{"success":true,"results":[
	{"itemId":"1","itemName":"Grilled Chicken Breast","suitability":"avoid","explanation":"chicken","confidence":0.98},
	{"itemId":"2","itemName":"Vegan Buddha Bowl","suitability":"good","explanation":"plant based","confidence":0.9}
],"confidence":0.94,"requestId":"r1","processingTime":0}`

func TestAnalyzeTextSuccess(t *testing.T) {
	ft := &fakeTransport{reply: replyWith(twoResults)}
	c := newTestClient(t, ft, time.Second)

	resp, err := c.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, model.SuitabilityAvoid, resp.Results[0].Suitability)
	assert.GreaterOrEqual(t, resp.ProcessingTimeMs, int64(0))

	require.Equal(t, 1, ft.calls)
	env := ft.envs[0]
	assert.False(t, env.Multimodal())
	assert.Contains(t, env.Prompt, "Vegan Buddha Bowl")
	assert.Contains(t, env.Prompt, "r1")
}

func TestAnalyzeProseBecomesFailedResponse(t *testing.T) {
	ft := &fakeTransport{reply: replyWith("Sorry, I could not read that menu.")}
	c := newTestClient(t, ft, time.Second)

	resp, err := c.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, errx.KindSchemaViolation, resp.ErrorCode)
	assert.True(t, resp.Retryable)
	assert.Equal(t, 1, ft.calls)
}

func TestAnalyzeTransportFailureIsNotRetried(t *testing.T) {
	ft := &fakeTransport{reply: func(context.Context, *backends.Envelope) (string, error) {
		return "", errx.Wrap(errx.ErrTransport, errors.New("connection reset"), "")
	}}
	c := newTestClient(t, ft, time.Second)

	resp, err := c.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, errx.KindTransport, resp.ErrorCode)
	assert.True(t, resp.Retryable)
	assert.Equal(t, 1, ft.calls)

	_, err = c.Run(context.Background(), textRequest())
	assert.ErrorIs(t, err, errx.ErrTransport)
}

func TestAnalyzeTimeout(t *testing.T) {
	ft := &fakeTransport{reply: func(ctx context.Context, _ *backends.Envelope) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := newTestClient(t, ft, 20*time.Millisecond)

	resp, err := c.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, errx.KindTimeout, resp.ErrorCode)
	assert.True(t, resp.Retryable)
}

func TestAnalyzeAuthenticationIsNotRetryable(t *testing.T) {
	ft := &fakeTransport{reply: func(context.Context, *backends.Envelope) (string, error) {
		return "", errx.Newf(errx.ErrAuthentication, "API key not valid")
	}}
	c := newTestClient(t, ft, time.Second)

	resp, err := c.Analyze(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, errx.KindAuthentication, resp.ErrorCode)
	assert.False(t, resp.Retryable)
}

func TestAnalyzeRejectsMalformedRequests(t *testing.T) {
	ft := &fakeTransport{reply: replyWith(twoResults)}
	c := newTestClient(t, ft, time.Second)

	both := textRequest()
	both.ContentParts = []model.ContentPart{model.ImagePart("aGVsbG8=")}
	_, err := c.Analyze(context.Background(), both)
	assert.ErrorIs(t, err, errx.ErrInvalidRequest)

	_, err = c.AnalyzeMultimodal(context.Background(), textRequest())
	assert.ErrorIs(t, err, errx.ErrInvalidRequest)

	custom := textRequest()
	custom.DietaryPreferences = model.DietaryPreferences{DietaryType: model.DietCustom}
	_, err = c.Analyze(context.Background(), custom)
	assert.ErrorIs(t, err, errx.ErrInvalidRequest)

	assert.Zero(t, ft.calls)
}

func TestAnalyzeMultimodalPartOrder(t *testing.T) {
	ft := &fakeTransport{reply: replyWith(`{"success":true,"results":[],"confidence":0.5,"requestId":"img-1"}`)}
	c := newTestClient(t, ft, time.Second)

	image := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nfake"))
	req := &model.AnalysisRequest{
		RequestID:          "img-1",
		DietaryPreferences: model.DietaryPreferences{DietaryType: model.DietCustom, CustomRestrictions: "no peanuts"},
		ContentParts:       []model.ContentPart{model.ImagePart(image)},
	}

	resp, err := c.AnalyzeMultimodal(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Results)

	require.Equal(t, 1, ft.calls)
	parts := ft.envs[0].Parts
	require.Len(t, parts, 3)
	assert.Equal(t, model.ContentText, parts[0].Type)
	assert.Contains(t, parts[0].Data, "no peanuts")
	assert.Equal(t, model.ContentImage, parts[1].Type)
	assert.Equal(t, image, parts[1].Data)
	assert.Equal(t, model.ContentText, parts[2].Type)
}

func TestNewRejectsNilTransport(t *testing.T) {
	_, err := New(context.Background(), nil, time.Second)
	assert.Error(t, err)
}
