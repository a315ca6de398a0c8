// Package keyword provides a BM25 keyword index over section and scenario text.
package keyword

import (
	"context"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

// SearchOptions tunes keyword search. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score of title matches. Values <= 0 mean 2.0.
	TitleBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	Fuzziness    int
}

// KeywordIndex defines keyword index operations.
type KeywordIndex interface {
	Index(ctx context.Context, doc *models.ContentDoc) error
	IndexBatch(ctx context.Context, docs []*models.ContentDoc) error
	Search(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
