package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/menu-lens/server/internal/analysis/backends"
	"github.com/menu-lens/server/internal/analysis/model"
	"github.com/menu-lens/server/internal/analysis/observers"
	"github.com/menu-lens/server/internal/analysis/parsers"
	"github.com/menu-lens/server/internal/analysis/prompts"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

const (
	NodeCompose  = "compose"
	NodeSend     = "send"
	NodeValidate = "validate"
)

// DefaultTimeout applies when the client is built with a zero timeout.
const DefaultTimeout = 60 * time.Second

// exchange carries the envelope and the raw model text from send to validate.
type exchange struct {
	env *backends.Envelope
	raw string
}

// Client runs one analysis call per request: compose the prompt, send it
// through the transport, validate the model output. It never retries.
type Client struct {
	transport backends.Transport
	timeout   time.Duration
	runnable  compose.Runnable[*model.AnalysisRequest, *model.AnalysisResponse]
}

// New compiles the analysis chain around transport.
func New(ctx context.Context, transport backends.Transport, timeout time.Duration) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{transport: transport, timeout: timeout}

	chain := compose.NewChain[*model.AnalysisRequest, *model.AnalysisResponse]()
	chain.
		AppendLambda(compose.InvokableLambda(c.composeEnvelope), compose.WithNodeName(NodeCompose)).
		AppendLambda(compose.InvokableLambda(c.send), compose.WithNodeName(NodeSend)).
		AppendLambda(compose.InvokableLambda(c.validate), compose.WithNodeName(NodeValidate))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile analysis chain: %w", err)
	}
	c.runnable = runnable

	logx.Debug().
		Str("provider", string(transport.Provider())).
		Str("mode", string(transport.Mode())).
		Dur("timeout", timeout).
		Msg("Analysis chain compiled")
	return c, nil
}

// NewFromRouter resolves the transport for provider and mode and builds a
// client around it. Routing and credential errors surface here, before any
// request is made.
func NewFromRouter(ctx context.Context, router *backends.Router, provider model.Provider, mode model.Mode, timeout time.Duration) (*Client, error) {
	transport, err := router.Resolve(ctx, provider, mode)
	if err != nil {
		return nil, err
	}
	return New(ctx, transport, timeout)
}

// Provider reports the provider this client talks to.
func (c *Client) Provider() model.Provider {
	return c.transport.Provider()
}

// Run executes one analysis and returns typed errors: invalid_request for
// caller bugs, authentication, transport, timeout or schema_violation for
// everything after the request left the process.
func (c *Client) Run(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.runnable.Invoke(ctx, req, compose.WithCallbacks(observers.NewAllCallbacks()))
	elapsed := time.Since(start)
	if err != nil {
		err = normalize(ctx, err)
		logx.Warn().
			Err(err).
			Str("request_id", req.RequestID).
			Str("provider", string(c.transport.Provider())).
			Str("mode", string(c.transport.Mode())).
			Str("error_code", string(errx.KindOf(err))).
			Dur("elapsed", elapsed).
			Msg("Analysis failed")
		return nil, err
	}

	resp.ProcessingTimeMs = elapsed.Milliseconds()
	logx.Info().
		Str("request_id", req.RequestID).
		Str("provider", string(c.transport.Provider())).
		Bool("success", resp.Success).
		Int("results", len(resp.Results)).
		Int64("processing_ms", resp.ProcessingTimeMs).
		Msg("Analysis completed")
	return resp, nil
}

// Analyze runs a text-mode request. It always returns an AnalysisResponse;
// the only error is an invalid request.
func (c *Client) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	if req != nil && req.Multimodal() {
		return nil, errx.Newf(errx.ErrInvalidRequest, "analyze expects menuItems; use AnalyzeMultimodal for contentParts")
	}
	return c.respond(ctx, req)
}

// AnalyzeMultimodal runs a content-parts request with the same contract as Analyze.
func (c *Client) AnalyzeMultimodal(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	if req != nil && !req.Multimodal() {
		return nil, errx.Newf(errx.ErrInvalidRequest, "analyzeMultimodal expects contentParts")
	}
	return c.respond(ctx, req)
}

func (c *Client) respond(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResponse, error) {
	start := time.Now()
	resp, err := c.Run(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, errx.ErrInvalidRequest) {
		return nil, err
	}
	failed := model.FailedResponse(req.RequestID, err)
	failed.ProcessingTimeMs = time.Since(start).Milliseconds()
	return failed, nil
}

// composeEnvelope is the compose node.
func (c *Client) composeEnvelope(ctx context.Context, req *model.AnalysisRequest) (*backends.Envelope, error) {
	env := &backends.Envelope{Request: req}
	if req.Multimodal() {
		parts, err := prompts.ComposeMultimodal(ctx, req.DietaryPreferences, req.ContentParts, req.RequestID, req.Context)
		if err != nil {
			return nil, err
		}
		env.Parts = parts
		return env, nil
	}

	text, err := prompts.ComposeText(ctx, req.DietaryPreferences, req.Items, req.RequestID, req.Context)
	if err != nil {
		return nil, err
	}
	env.Prompt = text
	return env, nil
}

// send is the transport node.
func (c *Client) send(ctx context.Context, env *backends.Envelope) (*exchange, error) {
	raw, err := c.transport.Send(ctx, env)
	if err != nil {
		return nil, err
	}
	return &exchange{env: env, raw: raw}, nil
}

// validate is the parse node.
func (c *Client) validate(_ context.Context, ex *exchange) (*model.AnalysisResponse, error) {
	return parsers.Parse(ex.raw, ex.env.Request.RequestID)
}

// normalize unwraps the typed error from the chain's node error and
// classifies anything untyped.
func normalize(ctx context.Context, err error) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		err = appErr
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, errx.ErrTimeout) {
		return errx.Wrap(errx.ErrTimeout, err, "")
	}
	if appErr != nil {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errx.Wrap(errx.ErrTimeout, err, "")
	}
	return errx.Wrap(errx.ErrTransport, err, "")
}
