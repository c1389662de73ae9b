package prompts

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
)

var (
	//go:embed template/schema.txt
	outputSchema string
	//go:embed template/restriction_vegan.txt
	veganRestriction string
	//go:embed template/restriction_vegetarian.txt
	vegetarianRestriction string
	//go:embed template/restriction_custom.txt
	customRestriction string
	//go:embed template/text_prompt.txt
	textPrompt string
	//go:embed template/image_prompt.txt
	imagePrompt string
	//go:embed template/image_trailer.txt
	imageTrailer string
)

// OutputSchema returns the output-format section shared by every prompt.
func OutputSchema() string {
	return outputSchema
}

// ComposeText renders the full text-mode prompt. Identical inputs always
// render identical output.
func ComposeText(ctx context.Context, prefs model.DietaryPreferences, items []model.MenuItem, requestID, extraContext string) (string, error) {
	if len(items) == 0 {
		return "", errx.Newf(errx.ErrInvalidRequest, "no menu items to compose")
	}
	restrictions, err := RenderRestrictions(prefs)
	if err != nil {
		return "", err
	}
	listing, err := formatItems(items)
	if err != nil {
		return "", fmt.Errorf("format menu items: %w", err)
	}

	return render(ctx, textPrompt, map[string]any{
		"Schema":       outputSchema,
		"Restrictions": restrictions,
		"RequestID":    requestID,
		"Context":      strings.TrimSpace(extraContext),
		"Items":        listing,
	})
}

// ComposeMultimodal returns the ordered parts for an image request: the
// instruction text, then the image parts in their original order, then a
// short trailing instruction. Caller text parts are folded into the
// instruction as context.
func ComposeMultimodal(ctx context.Context, prefs model.DietaryPreferences, parts []model.ContentPart, requestID, extraContext string) ([]model.ContentPart, error) {
	var images []model.ContentPart
	notes := make([]string, 0, 2)
	if c := strings.TrimSpace(extraContext); c != "" {
		notes = append(notes, c)
	}
	for _, p := range parts {
		switch p.Type {
		case model.ContentImage:
			images = append(images, p)
		case model.ContentText:
			if t := strings.TrimSpace(p.Data); t != "" {
				notes = append(notes, t)
			}
		}
	}
	if len(images) == 0 {
		return nil, errx.Newf(errx.ErrInvalidRequest, "multimodal request has no image part")
	}

	restrictions, err := RenderRestrictions(prefs)
	if err != nil {
		return nil, err
	}
	instruction, err := render(ctx, imagePrompt, map[string]any{
		"Schema":       outputSchema,
		"Restrictions": restrictions,
		"RequestID":    requestID,
		"Context":      strings.Join(notes, "\n"),
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.ContentPart, 0, len(images)+2)
	out = append(out, model.TextPart(instruction))
	out = append(out, images...)
	out = append(out, model.TextPart(strings.TrimSpace(imageTrailer)))
	return out, nil
}

// RenderRestrictions returns the dietary-restriction section. Custom
// restrictions are echoed verbatim.
func RenderRestrictions(prefs model.DietaryPreferences) (string, error) {
	if err := prefs.Validate(); err != nil {
		return "", err
	}
	switch prefs.DietaryType {
	case model.DietVegan:
		return veganRestriction, nil
	case model.DietVegetarian:
		return vegetarianRestriction, nil
	default:
		return strings.NewReplacer("{{.CustomRestrictions}}", prefs.CustomRestrictions).Replace(customRestriction), nil
	}
}

// render formats a Go template through the Eino prompt component so prompt
// callbacks fire when a handler is attached to ctx.
func render(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(tmpl),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("render analysis prompt: empty result")
	}
	return msgs[0].Content, nil
}

type promptItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Category    string `json:"category,omitempty"`
}

// formatItems writes one JSON object per line in input order.
func formatItems(items []model.MenuItem) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, it := range items {
		if err := enc.Encode(promptItem{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Category:    it.Category,
		}); err != nil {
			return "", err
		}
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
