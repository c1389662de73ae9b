package backends

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/auth"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

const jsonMIMEType = "application/json"

// genaiTransport calls a Gemini model directly. Text prompts go through the
// Eino chat model; content parts go straight to the SDK so image bytes can be
// attached. JSON output mode applies to both.
type genaiTransport struct {
	provider  model.Provider
	client    *genai.Client
	chat      *gemini.ChatModel
	modelName string
	gen       model.GenerationConfig

	// creds is set for Vertex, where a token must be obtainable before a call
	creds *auth.Credentials
}

func newGeminiTransport(ctx context.Context, cfg *model.BackendConfig, _ model.Provider) (Transport, error) {
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return nil, errx.Newf(errx.ErrAuthentication, "GEMINI_API_KEY is not set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Gemini.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.Gemini.BaseURL
	}
	return newGenaiTransport(ctx, model.ProviderGemini, clientCfg, cfg.Gemini.Model, cfg.Generation)
}

func newGenaiTransport(ctx context.Context, provider model.Provider, clientCfg *genai.ClientConfig, modelName string, gen model.GenerationConfig) (*genaiTransport, error) {
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Str("provider", string(provider)).Msg("Error creating genai client")
		return nil, errx.Wrap(errx.ErrAuthentication, err, fmt.Sprintf("create %s client", provider))
	}

	temperature := gen.Temperature
	maxTokens := gen.MaxOutputTokens
	chatCfg := &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
	if gen.JSONMode {
		chatCfg.ResponseSchema = responseSchema()
	}
	chat, err := gemini.NewChatModel(ctx, chatCfg)
	if err != nil {
		logx.Error().Err(err).Str("provider", string(provider)).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating %s chat model: %w", provider, err)
	}

	return &genaiTransport{
		provider:  provider,
		client:    client,
		chat:      chat,
		modelName: modelName,
		gen:       gen,
	}, nil
}

func (t *genaiTransport) Provider() model.Provider { return t.provider }

func (t *genaiTransport) Mode() model.Mode { return model.ModeLocal }

func (t *genaiTransport) Send(ctx context.Context, env *Envelope) (string, error) {
	if t.creds != nil {
		if _, err := t.creds.Token(ctx); err != nil {
			return "", errx.Wrap(errx.ErrAuthentication, err, "acquire vertex access token")
		}
	}
	if env.Multimodal() {
		return t.sendParts(ctx, env)
	}
	return t.sendText(ctx, env)
}

func (t *genaiTransport) sendText(ctx context.Context, env *Envelope) (string, error) {
	out, err := t.chat.Generate(ctx, []*schema.Message{schema.UserMessage(env.Prompt)})
	if err != nil {
		return "", classify(ctx, err)
	}
	if out == nil {
		return "", errx.Newf(errx.ErrTransport, "%s returned no message", t.provider)
	}
	if out.ResponseMeta != nil {
		logUsage(env.Request.RequestID, t.provider, t.modelName, out.ResponseMeta.Usage)
	}
	if out.Content == "" && len(out.MultiContent) > 0 {
		var b strings.Builder
		for _, part := range out.MultiContent {
			b.WriteString(part.Text)
		}
		return b.String(), nil
	}
	return out.Content, nil
}

func (t *genaiTransport) sendParts(ctx context.Context, env *Envelope) (string, error) {
	parts := make([]*genai.Part, 0, len(env.Parts))
	for i, p := range env.Parts {
		switch p.Type {
		case model.ContentImage:
			data, mimeType, err := p.DecodeImage()
			if err != nil {
				return "", errx.Wrap(errx.ErrInvalidRequest, err, fmt.Sprintf("content part %d", i))
			}
			parts = append(parts, genai.NewPartFromBytes(data, mimeType))
		default:
			parts = append(parts, genai.NewPartFromText(p.Data))
		}
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(t.gen.Temperature),
		MaxOutputTokens: int32(t.gen.MaxOutputTokens),
	}
	if t.gen.JSONMode {
		genCfg.ResponseMIMEType = jsonMIMEType
	}

	resp, err := t.client.Models.GenerateContent(ctx, t.modelName,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, genCfg)
	if err != nil {
		return "", classify(ctx, err)
	}
	if resp == nil {
		return "", errx.Newf(errx.ErrTransport, "%s returned no response", t.provider)
	}
	if u := resp.UsageMetadata; u != nil {
		logUsage(env.Request.RequestID, t.provider, t.modelName, &schema.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		})
	}
	return resp.Text(), nil
}
