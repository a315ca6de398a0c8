package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

const defaultTitleBoost = 2.0

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize, no stemming.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("text", textFieldMapping)

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("type", exact)
	docMapping.AddFieldMappingsAt("law", exact)
	docMapping.AddFieldMappingsAt("category", exact)

	im.AddDocumentMapping("content", docMapping)
	im.DefaultType = "content"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory
// index. After a mapping change remove the directory and run reindex-keyword.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func fields(doc *models.ContentDoc) map[string]interface{} {
	return map[string]interface{}{
		"type":     string(doc.Type),
		"title":    doc.Title,
		"text":     doc.Text,
		"law":      doc.LawSlug,
		"category": doc.Category,
	}
}

// Index adds or replaces one document.
func (b *BleveIndex) Index(ctx context.Context, doc *models.ContentDoc) error {
	return b.index.Index(doc.ID, fields(doc))
}

// IndexBatch adds or replaces docs in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []*models.ContentDoc) error {
	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, fields(doc)); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a match over title and text, restricted to one content family and the
// filters, and returns up to limit hits by descending score.
func (b *BleveIndex) Search(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters, opts *SearchOptions) ([]*KeywordResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}
	titleBoost := defaultTitleBoost
	fuzziness := 0
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		if opts.FuzzyEnabled {
			fuzziness = opts.Fuzziness
			if fuzziness <= 0 {
				fuzziness = 1
			}
		}
	}

	title := matchQuery(query, "title", fuzziness)
	title.SetBoost(titleBoost)
	text := matchQuery(query, "text", fuzziness)

	clauses := []blevequery.Query{
		bleve.NewDisjunctionQuery(title, text),
		termQuery(string(ct), "type"),
	}
	if ct == models.ContentSection && filters.LawSlug != "" {
		clauses = append(clauses, termQuery(filters.LawSlug, "law"))
	}
	if ct == models.ContentScenario && filters.Category != "" {
		clauses = append(clauses, termQuery(filters.Category, "category"))
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(clauses...))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func matchQuery(query, field string, fuzziness int) *blevequery.MatchQuery {
	q := bleve.NewMatchQuery(query)
	q.SetField(field)
	if fuzziness > 0 {
		q.SetFuzziness(fuzziness)
	}
	return q
}

func termQuery(term, field string) *blevequery.TermQuery {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ KeywordIndex = (*BleveIndex)(nil)
