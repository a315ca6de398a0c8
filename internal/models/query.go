package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery marks a search request the caller must fix.
var ErrInvalidQuery = errors.New("invalid query")

// Filter type values accepted in SearchFilters.Type.
const (
	FilterAll      = "all"
	FilterSection  = "section"
	FilterScenario = "scenario"
)

// SearchFilters narrows a search to a content family, a law, or a scenario category.
type SearchFilters struct {
	Type     string `json:"type,omitempty"`
	LawSlug  string `json:"law,omitempty"`      // sections only
	Category string `json:"category,omitempty"` // scenarios only
}

// ContentTypes returns the families selected by the filter. Empty type means all.
func (f SearchFilters) ContentTypes() ([]ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(f.Type)) {
	case "", FilterAll:
		return ContentTypes, nil
	case FilterSection, "sections":
		return []ContentType{ContentSection}, nil
	case FilterScenario, "scenarios":
		return []ContentType{ContentScenario}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type filter %q", ErrInvalidQuery, f.Type)
	}
}

// SearchQuery is a hybrid search request.
type SearchQuery struct {
	Query           string        `json:"query"`
	Limit           int           `json:"limit,omitempty"`
	SemanticWeight  *float64      `json:"semantic_weight,omitempty"`  // nil uses the configured default
	SemanticEnabled *bool         `json:"semantic_enabled,omitempty"` // nil means enabled
	Filters         SearchFilters `json:"filters"`
}

// Validate trims the query and applies limit and weight defaults.
// A blank query is valid and yields no results.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int, defaultWeight float64) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.SemanticWeight == nil {
		w := defaultWeight
		q.SemanticWeight = &w
	}
	if w := *q.SemanticWeight; w < 0 || w > 1 {
		return fmt.Errorf("%w: semantic_weight %v outside [0,1]", ErrInvalidQuery, w)
	}
	if _, err := q.Filters.ContentTypes(); err != nil {
		return err
	}
	return nil
}

// Weight returns the semantic weight; call after Validate.
func (q *SearchQuery) Weight() float64 {
	if q.SemanticWeight == nil {
		return 0
	}
	return *q.SemanticWeight
}

// WantsSemantic reports whether the caller allows vector search.
func (q *SearchQuery) WantsSemantic() bool {
	return q.SemanticEnabled == nil || *q.SemanticEnabled
}
