// Package storage defines the persistence interface for laws, sections and scenarios and
// provides Postgres (pgvector) and SQLite implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

var (
	// ErrPersistence wraps every read or write failure against the store.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound is returned when an id does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence layer used by search and the embedding lifecycle.
type Store interface {
	CreateLaw(ctx context.Context, law *models.Law) error
	CreateSection(ctx context.Context, section *models.Section) error
	CreateScenario(ctx context.Context, scenario *models.Scenario) error
	// UpdateSection and UpdateScenario change text fields only. The stored embedding and
	// content hash are kept, and a row whose text no longer matches its hash is excluded
	// from SearchSemantic until UpdateEmbedding runs for it again.
	UpdateSection(ctx context.Context, section *models.Section) error
	UpdateScenario(ctx context.Context, scenario *models.Scenario) error

	// ListContent returns text projections of a family without embeddings. A nil ids slice
	// lists every row; otherwise only the given ids, in no particular order.
	ListContent(ctx context.Context, ct models.ContentType, ids []string) ([]*models.ContentDoc, error)
	UpdateEmbedding(ctx context.Context, ct models.ContentType, id string, embedding []float32, contentHash string) error
	CountContent(ctx context.Context, ct models.ContentType) (total int64, embedded int64, err error)

	SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error)
	SearchSemantic(ctx context.Context, ct models.ContentType, embedding []float32, limit int, threshold float64, filters models.SearchFilters) ([]*models.Item, error)
	// GetItems returns items for ids in the order given, skipping ids that do not exist.
	GetItems(ctx context.Context, ct models.ContentType, ids []string) ([]*models.Item, error)

	Close() error
}

// snippetLength is the maximum number of runes in an item snippet.
const snippetLength = 200

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func unknownType(ct models.ContentType) error {
	return fmt.Errorf("%w: unknown content type %q", ErrPersistence, ct)
}

// likePattern builds a case-insensitive substring pattern, escaping LIKE wildcards with '\'.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(query)) + "%"
}

// staleOnCreate reports whether a row inserted with hash already carries an embedding
// computed for different text.
func staleOnCreate(embedding []float32, hash, text string) bool {
	return len(embedding) > 0 && hash != contenthash.Hash(text)
}

// snippet returns the first non-blank text, cut to snippetLength runes.
func snippet(texts ...string) string {
	for _, t := range texts {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) <= snippetLength {
			return t
		}
		runes := []rune(t)
		return strings.TrimSpace(string(runes[:snippetLength])) + "…"
	}
	return ""
}

// orderByIDs reorders items to follow ids, dropping ids with no item.
func orderByIDs(items []*models.Item, ids []string) []*models.Item {
	byID := make(map[string]*models.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]*models.Item, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if it, ok := byID[id]; ok && !seen[id] {
			out = append(out, it)
			seen[id] = true
		}
	}
	return out
}
