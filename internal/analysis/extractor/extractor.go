package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/menu-lens/server/internal/analysis/model"
	errx "github.com/menu-lens/server/internal/core/error"
	logx "github.com/menu-lens/server/pkg/logger"
)

const (
	defaultMinSignal = 2
	defaultMaxItems  = 300
	maxInputLen      = 512 * 1024
)

// trailing price: "$14", "$ 12.50", "12,90 €", "250 THB", "120 บาท"
var trailingPrice = regexp.MustCompile(
	`(?:[$€£¥₹฿]\s?\d{1,6}(?:[.,]\d{1,2})?|\d{1,6}(?:[.,]\d{1,2})?\s?(?:[$€£¥₹฿]|USD|EUR|GBP|THB|บาท))\s*$`,
)

// separators between name, description and price
var (
	nameSeparators  = []string{" - ", " – ", " — ", ": ", " | "}
	trailingJunkSet = " \t-–—:|·.…"
)

// Extractor turns raw menu text into ordered MenuItems. It never infers
// categories or prices that are not written out.
type Extractor struct {
	minSignal int
	maxItems  int
}

func New(cfg model.ExtractorConfig) *Extractor {
	e := &Extractor{minSignal: cfg.MinSignal, maxItems: cfg.MaxItems}
	if e.minSignal <= 0 {
		e.minSignal = defaultMinSignal
	}
	if e.maxItems <= 0 {
		e.maxItems = defaultMaxItems
	}
	return e
}

// Extract splits raw text into line-like units and builds one MenuItem per
// unit that carries enough signal. Ids start at "1" in input order.
func (e *Extractor) Extract(rawText string) ([]model.MenuItem, error) {
	if len(rawText) > maxInputLen {
		logx.Warn().
			Str("component", "extractor").
			Int("max_len", maxInputLen).
			Int("orig_len", len(rawText)).
			Msg("input truncated due to size limit")
		rawText = strings.ToValidUTF8(rawText[:maxInputLen], "")
	}
	return e.fromUnits(splitUnits(rawText))
}

func (e *Extractor) fromUnits(units []string) ([]model.MenuItem, error) {
	items := make([]model.MenuItem, 0, len(units))
	for _, unit := range units {
		if !e.hasSignal(unit) {
			continue
		}
		if len(items) >= e.maxItems {
			logx.Warn().
				Str("component", "extractor").
				Int("max_items", e.maxItems).
				Msg("item extraction capped")
			break
		}
		item := parseUnit(unit)
		item.ID = strconv.Itoa(len(items) + 1)
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, errx.ErrEmptyExtraction
	}
	logx.Debug().Str("component", "extractor").Int("items", len(items)).Msg("menu items extracted")
	return items, nil
}

// hasSignal rejects units that are too short or carry no letters or digits,
// such as divider rows made of punctuation.
func (e *Extractor) hasSignal(unit string) bool {
	if utf8.RuneCountInString(unit) < e.minSignal {
		return false
	}
	for _, r := range unit {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func splitUnits(text string) []string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)
	lines := strings.Split(text, "\n")
	units := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			units = append(units, line)
		}
	}
	return units
}

// parseUnit splits "Name - description - $12" into its parts. Anything that
// cannot be split stays in Name.
func parseUnit(unit string) model.MenuItem {
	item := model.MenuItem{RawText: unit}

	rest := unit
	if loc := trailingPrice.FindStringIndex(rest); loc != nil {
		price := strings.TrimSpace(rest[loc[0]:loc[1]])
		head := strings.TrimRight(rest[:loc[0]], trailingJunkSet)
		if head != "" {
			item.Price = price
			rest = head
		}
	}

	name, desc := splitNameDescription(rest)
	item.Name = name
	item.Description = desc
	if item.Name == "" {
		item.Name = unit
		item.Price = ""
		item.Description = ""
	}
	return item
}

func splitNameDescription(s string) (string, string) {
	best := -1
	sepLen := 0
	for _, sep := range nameSeparators {
		if idx := strings.Index(s, sep); idx > 0 && (best < 0 || idx < best) {
			best = idx
			sepLen = len(sep)
		}
	}
	if best < 0 {
		return strings.TrimSpace(s), ""
	}
	name := strings.TrimSpace(s[:best])
	desc := strings.Trim(s[best+sepLen:], trailingJunkSet)
	return name, desc
}
