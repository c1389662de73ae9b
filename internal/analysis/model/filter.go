package model

// SortKey selects the primary ordering of a projected result list.
type SortKey string

const (
	SortByName        SortKey = "name"
	SortBySuitability SortKey = "suitability"
	SortByConfidence  SortKey = "confidence"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ResultsFilter drives the results projection. A nil Suitabilities selects
// every verdict; a non-nil empty slice selects none.
type ResultsFilter struct {
	Suitabilities []Suitability `json:"suitability,omitempty"`
	SearchText    string        `json:"searchText,omitempty"`
	SortBy        SortKey       `json:"sortBy"`
	SortDirection SortDirection `json:"sortDirection"`
}

// DefaultFilter selects all verdicts, sorted by suitability ascending.
func DefaultFilter() ResultsFilter {
	return ResultsFilter{
		Suitabilities: append([]Suitability(nil), AllSuitabilities...),
		SortBy:        SortBySuitability,
		SortDirection: SortAsc,
	}
}

// CategorizedResults partitions results by verdict. It is derived on every
// filter change and never cached.
type CategorizedResults struct {
	Good       []FoodAnalysisResult `json:"good"`
	Careful    []FoodAnalysisResult `json:"careful"`
	Avoid      []FoodAnalysisResult `json:"avoid"`
	TotalItems int                  `json:"totalItems"`
}
