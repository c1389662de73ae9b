package projector

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/menu-lens/server/internal/analysis/model"
)

// Projector filters, sorts and buckets result lists. Name ordering follows
// the collation rules of its language tag.
type Projector struct {
	lang language.Tag
}

// New returns a projector collating names by lang; language.Und gives the
// root collation.
func New(lang language.Tag) *Projector {
	return &Projector{lang: lang}
}

// Apply returns the results selected by filter, in filter order. The input
// slice is not modified.
func (p *Projector) Apply(results []model.FoodAnalysisResult, filter model.ResultsFilter) []model.FoodAnalysisResult {
	var allowed map[model.Suitability]bool
	if filter.Suitabilities != nil {
		allowed = make(map[model.Suitability]bool, len(filter.Suitabilities))
		for _, s := range filter.Suitabilities {
			allowed[s] = true
		}
	}
	needle := strings.ToLower(strings.TrimSpace(filter.SearchText))

	out := make([]model.FoodAnalysisResult, 0, len(results))
	for _, r := range results {
		if allowed != nil && !allowed[r.Suitability] {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.ItemName), needle) &&
			!strings.Contains(strings.ToLower(r.Explanation), needle) {
			continue
		}
		out = append(out, r)
	}

	compare := p.comparator(filter.SortBy)
	if filter.SortDirection == model.SortDesc {
		asc := compare
		compare = func(a, b model.FoodAnalysisResult) int { return -asc(a, b) }
	}
	// stable: ties keep input order in both directions
	slices.SortStableFunc(out, compare)
	return out
}

func (p *Projector) comparator(key model.SortKey) func(a, b model.FoodAnalysisResult) int {
	switch key {
	case model.SortByName:
		// a Collator is not safe for concurrent use
		col := collate.New(p.lang, collate.IgnoreCase)
		return func(a, b model.FoodAnalysisResult) int {
			return col.CompareString(a.ItemName, b.ItemName)
		}
	case model.SortByConfidence:
		return func(a, b model.FoodAnalysisResult) int {
			return cmp.Compare(a.Confidence, b.Confidence)
		}
	default:
		return func(a, b model.FoodAnalysisResult) int {
			return cmp.Compare(a.Suitability.Rank(), b.Suitability.Rank())
		}
	}
}

// Categorize partitions results by verdict. Every input lands in exactly
// one bucket; results with an unknown verdict go to Careful.
func Categorize(results []model.FoodAnalysisResult) model.CategorizedResults {
	out := model.CategorizedResults{
		Good:       []model.FoodAnalysisResult{},
		Careful:    []model.FoodAnalysisResult{},
		Avoid:      []model.FoodAnalysisResult{},
		TotalItems: len(results),
	}
	for _, r := range results {
		switch r.Suitability {
		case model.SuitabilityGood:
			out.Good = append(out.Good, r)
		case model.SuitabilityAvoid:
			out.Avoid = append(out.Avoid, r)
		default:
			out.Careful = append(out.Careful, r)
		}
	}
	return out
}
