package models

const (
	NoDetailsFound      = "No details found."
	NoSummaryFound      = "No summary found"
	DefaultRankReason   = "Product appears to match your search criteria."
	DefaultRecommendWhy = "This product was selected based on its features and value."
)

const (
	SpecKeyFeatures = "key_features"
	SpecPros        = "pros"
	SpecCons        = "cons"
	SpecSummary     = "summary"
)

// RawCandidate is one record as the product source returned it.
type RawCandidate struct {
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Source       string   `json:"source,omitempty"`
	PriceDisplay string   `json:"price,omitempty"`
	PriceNumeric *float64 `json:"extracted_price,omitempty"`
	OldPrice     string   `json:"old_price,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Reviews      *int     `json:"reviews,omitempty"`
	Image        string   `json:"thumbnail,omitempty"`
	Extensions   []string `json:"extensions,omitempty"`
}

type Specification struct {
	KeyFeatures []string `json:"key_features"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
	Summary     string   `json:"summary"`
}

func PlaceholderFor(key string) string {
	if key == SpecSummary {
		return NoSummaryFound
	}
	return "No " + key + " found"
}

func DefaultSpecification() Specification {
	return Specification{
		KeyFeatures: []string{PlaceholderFor(SpecKeyFeatures)},
		Pros:        []string{PlaceholderFor(SpecPros)},
		Cons:        []string{PlaceholderFor(SpecCons)},
		Summary:     NoSummaryFound,
	}
}

// Normalize backfills every empty field with its placeholder.
func (s *Specification) Normalize() {
	s.KeyFeatures = nonEmpty(s.KeyFeatures, SpecKeyFeatures)
	s.Pros = nonEmpty(s.Pros, SpecPros)
	s.Cons = nonEmpty(s.Cons, SpecCons)
	if s.Summary == "" {
		s.Summary = NoSummaryFound
	}
}

func nonEmpty(values []string, key string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{PlaceholderFor(key)}
	}
	return out
}

type Candidate struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	Source       string   `json:"source,omitempty"`
	PriceDisplay string   `json:"price,omitempty"`
	Price        *float64 `json:"price_numeric,omitempty"`
	OldPrice     string   `json:"old_price,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Reviews      *int     `json:"reviews,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Extensions   []string `json:"extensions,omitempty"`

	Details       string         `json:"details,omitempty"`
	Specification *Specification `json:"specification,omitempty"`

	HeuristicScore  float64 `json:"heuristic_score"`
	RelevanceScore  float64 `json:"llm_score"`
	CompositeScore  float64 `json:"composite_score"`
	FilteredByPrice bool    `json:"filtered_by_price,omitempty"`
	Rank            int     `json:"rank,omitempty"`

	RankReason           string `json:"rank_reason,omitempty"`
	Description          string `json:"description,omitempty"`
	RecommendationReason string `json:"recommendation_reason,omitempty"`
}

func NewCandidate(raw RawCandidate) Candidate {
	return Candidate{
		Title:        raw.Title,
		URL:          raw.Link,
		Source:       raw.Source,
		PriceDisplay: raw.PriceDisplay,
		Price:        raw.PriceNumeric,
		OldPrice:     raw.OldPrice,
		Rating:       raw.Rating,
		Reviews:      raw.Reviews,
		ImageURL:     raw.Image,
		Extensions:   raw.Extensions,
	}
}

type Recommendations struct {
	Text      string      `json:"text"`
	Products  []Candidate `json:"products"`
	Narrative string      `json:"narrative,omitempty"`
	Analysis  string      `json:"analysis,omitempty"`
}

// RankResult is the single result shape of the ranking stage.
type RankResult struct {
	Ranked          []Candidate     `json:"ranked"`
	Recommendations Recommendations `json:"recommendations"`
}

type ComparisonEntry struct {
	Title       string   `json:"title"`
	Price       string   `json:"price,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	KeyFeatures []string `json:"key_features"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
}

type ComparisonTable struct {
	Entries []ComparisonEntry `json:"entries"`
}
