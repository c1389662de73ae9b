package model

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MenuItem is one dish as extracted from a menu or supplied by the caller.
type MenuItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Category    string `json:"category,omitempty"`
	RawText     string `json:"rawText"`
}

// DietType is the kind of restriction the user follows.
type DietType string

const (
	DietVegan      DietType = "vegan"
	DietVegetarian DietType = "vegetarian"
	DietCustom     DietType = "custom"
)

// DietaryPreferences is owned by the caller and read-only to the engine.
type DietaryPreferences struct {
	DietaryType        DietType  `json:"dietaryType"`
	CustomRestrictions string    `json:"customRestrictions,omitempty"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// ContentPartType tags a ContentPart.
type ContentPartType string

const (
	ContentText  ContentPartType = "text"
	ContentImage ContentPartType = "image"
)

// ContentPart is one element of a multimodal request. Data is plain text for
// text parts and base64 or a data URI for image parts.
type ContentPart struct {
	Type ContentPartType `json:"type"`
	Data string          `json:"data"`
}

// TextPart builds a text ContentPart.
func TextPart(s string) ContentPart {
	return ContentPart{Type: ContentText, Data: s}
}

// ImagePart builds an image ContentPart from base64 or a data URI.
func ImagePart(data string) ContentPart {
	return ContentPart{Type: ContentImage, Data: data}
}

// DecodeImage returns the raw bytes and MIME type of an image part. Data
// URIs carry their own type; bare base64 is sniffed.
func (p ContentPart) DecodeImage() ([]byte, string, error) {
	if p.Type != ContentImage {
		return nil, "", fmt.Errorf("content part is %q, not an image", p.Type)
	}
	payload := strings.TrimSpace(p.Data)
	mimeType := ""
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("image data URI is not base64 encoded")
		}
		mimeType = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("decode image base64: %w", err)
		}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
