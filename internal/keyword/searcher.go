package keyword

import (
	"context"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

// ItemLoader hydrates ids into items, keeping the given order.
type ItemLoader interface {
	GetItems(ctx context.Context, ct models.ContentType, ids []string) ([]*models.Item, error)
}

// IndexSearcher answers keyword searches from a KeywordIndex and loads the hits from the store.
type IndexSearcher struct {
	index  KeywordIndex
	loader ItemLoader
	opts   *SearchOptions
}

// NewIndexSearcher creates a searcher. opts may be nil.
func NewIndexSearcher(index KeywordIndex, loader ItemLoader, opts *SearchOptions) *IndexSearcher {
	return &IndexSearcher{index: index, loader: loader, opts: opts}
}

// SearchKeyword returns items in BM25 hit order. Hits whose row no longer exists are skipped.
func (s *IndexSearcher) SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error) {
	hits, err := s.index.Search(ctx, ct, query, limit, filters, s.opts)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*models.Item{}, nil
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return s.loader.GetItems(ctx, ct, ids)
}
