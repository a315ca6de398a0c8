package models

// Identifiable is the only thing rank fusion needs to know about an item.
type Identifiable interface {
	GetID() string
}

// Item is a search hit for a section or scenario.
type Item struct {
	ID         string      `json:"id"`
	Type       ContentType `json:"type"`
	Title      string      `json:"title"`
	Snippet    string      `json:"snippet,omitempty"`
	Number     string      `json:"section_number,omitempty"`
	Slug       string      `json:"slug,omitempty"`
	LawSlug    string      `json:"law_slug,omitempty"`
	LawTitle   string      `json:"law_title,omitempty"`
	Category   string      `json:"category,omitempty"`
	Similarity float64     `json:"similarity,omitempty"` // set on semantic hits only
}

// GetID implements Identifiable.
func (i *Item) GetID() string { return i.ID }

// RankedResult is an item after rank fusion. Ranks are 1-based positions in the
// source list, nil when the item was absent from it.
type RankedResult[T Identifiable] struct {
	Item         T       `json:"item"`
	SemanticRank *int    `json:"semantic_rank"`
	KeywordRank  *int    `json:"keyword_rank"`
	FusedScore   float64 `json:"fused_score"`
}

// Search modes reported in SearchResponse.Mode.
const (
	ModeHybrid  = "hybrid"
	ModeKeyword = "keyword"
)

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*RankedResult[*Item] `json:"results"`
	Total     int                    `json:"total"` // fused candidates before truncation
	Mode      string                 `json:"mode"`
	QueryTime int64                  `json:"query_time_ms"`
	Query     string                 `json:"query"`

	// SemanticError explains why a hybrid search fell back to keyword-only.
	SemanticError string `json:"semantic_error,omitempty"`
}
