package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/menu-lens/server/internal/analysis/model"
)

// DefaultTextWindow is the number of runes of trimmed text that identify a
// text menu.
const DefaultTextWindow = 500

// Fingerprint is the cache key of an analysis: a digest of the input type,
// the normalized source and the dietary preferences the verdicts depend on.
// LastUpdated is excluded so re-saving the same preferences keeps hits.
func Fingerprint(inputType model.InputType, normalizedSource string, prefs model.DietaryPreferences) string {
	h := sha256.New()
	for _, field := range []string{
		string(inputType),
		normalizedSource,
		string(prefs.DietaryType),
		strings.TrimSpace(prefs.CustomRestrictions),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText keeps the first window runes of the trimmed text.
func NormalizeText(text string, window int) string {
	if window <= 0 {
		window = DefaultTextWindow
	}
	text = strings.TrimSpace(text)
	if len(text) <= window {
		return text
	}
	runes := []rune(text)
	if len(runes) <= window {
		return text
	}
	return string(runes[:window])
}

// NormalizeURL trims the URL. Query strings stay; different queries can
// serve different menus.
func NormalizeURL(u string) string {
	return strings.TrimSpace(u)
}

// NormalizeImage is the hex SHA-256 of the image bytes.
func NormalizeImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
