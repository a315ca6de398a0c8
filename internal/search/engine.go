package search

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/embedding"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

const tracerName = "github.com/catuchi/LawMadeSimple-sub002/internal/search"

// KeywordSearcher runs keyword search over one content family.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error)
}

// SemanticSearcher runs nearest-neighbour search over one content family.
type SemanticSearcher interface {
	SearchSemantic(ctx context.Context, ct models.ContentType, embedding []float32, limit int, threshold float64, filters models.SearchFilters) ([]*models.Item, error)
}

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine runs hybrid (keyword + semantic) search.
type Engine struct {
	keyword  KeywordSearcher
	semantic SemanticSearcher
	embedder QueryEmbedder
	embedCfg config.EmbeddingConfig
	cfg      config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used to report semantic fallbacks.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine. semantic and embedder may be nil, in which case every
// search is keyword-only.
func NewEngine(keyword KeywordSearcher, semantic SemanticSearcher, embedder QueryEmbedder, cfg *config.Config, opts ...EngineOption) *Engine {
	e := &Engine{
		keyword:  keyword,
		semantic: semantic,
		embedder: embedder,
		embedCfg: cfg.Embedding,
		cfg:      cfg.Search,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type familyResults struct {
	keyword  []*models.Item
	semantic []*models.Item
}

// Search validates the query, runs keyword and semantic search concurrently for each requested
// family, fuses each family with RRF and truncates to the limit. A semantic failure degrades
// the response to keyword-only; a keyword failure fails the request.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.Search")
	defer span.End()

	if err := ProcessQuery(query, e.cfg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	types, err := query.Filters.ContentTypes()
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Results: []*models.RankedResult[*models.Item]{},
		Mode:    models.ModeKeyword,
		Query:   query.Query,
	}
	if query.Query == "" {
		resp.QueryTime = time.Since(startTime).Milliseconds()
		return resp, nil
	}

	runSemantic := query.WantsSemantic()
	var semanticErr error
	if runSemantic {
		semanticErr = e.semanticUnavailable()
		runSemantic = semanticErr == nil
	}
	results := make([]familyResults, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range types {
		i, ct := i, ct
		g.Go(func() error {
			items, err := e.searchKeyword(gctx, ct, query)
			if err != nil {
				return fmt.Errorf("keyword search %s: %w", ct, err)
			}
			results[i].keyword = items
			return nil
		})
	}
	var semantic [][]*models.Item
	if runSemantic {
		g.Go(func() error {
			semantic, semanticErr = e.searchSemantic(gctx, types, query)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	switch {
	case semanticErr != nil:
		resp.SemanticError = semanticErr.Error()
		e.logger.Warn("semantic search unavailable, using keyword results only",
			zap.String("query", query.Query),
			zap.Error(semanticErr))
	case runSemantic:
		resp.Mode = models.ModeHybrid
		for i := range types {
			results[i].semantic = semantic[i]
		}
	}

	fused := make([][]*models.RankedResult[*models.Item], len(types))
	for i := range types {
		fused[i] = MergeWithRRF(results[i].semantic, results[i].keyword, query.Weight(), e.cfg.RRFK)
	}
	merged := mergeFamilies(fused...)
	resp.Total = len(merged)
	if len(merged) > query.Limit {
		merged = merged[:query.Limit]
	}
	resp.Results = merged
	resp.QueryTime = time.Since(startTime).Milliseconds()

	span.SetAttributes(
		attribute.String("search.mode", resp.Mode),
		attribute.Int("search.results", len(resp.Results)),
		attribute.Int("search.candidates", resp.Total),
	)
	return resp, nil
}

// semanticUnavailable returns why semantic search cannot run, or nil.
func (e *Engine) semanticUnavailable() error {
	if e.semantic == nil || e.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", embedding.ErrConfigurationInvalid)
	}
	if v := embedding.ValidateConfig(e.embedCfg); !v.Valid {
		return v.Err()
	}
	return nil
}

func (e *Engine) searchKeyword(ctx context.Context, ct models.ContentType, query *models.SearchQuery) ([]*models.Item, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.keyword")
	defer span.End()
	span.SetAttributes(attribute.String("content.type", string(ct)))

	limit := max(e.cfg.KeywordCandidates, query.Limit)
	items, err := e.keyword.SearchKeyword(ctx, ct, query.Query, limit, query.Filters)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return items, nil
}

// searchSemantic embeds the query once and searches every family. Any failure discards all
// semantic results so families are never fused from mixed modes.
func (e *Engine) searchSemantic(ctx context.Context, types []models.ContentType, query *models.SearchQuery) ([][]*models.Item, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.semantic")
	defer span.End()

	embedCtx := ctx
	if e.cfg.QueryEmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, e.cfg.QueryEmbedTimeout)
		defer cancel()
	}
	vec, err := e.embedder.Embed(embedCtx, query.Query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := e.embedCfg.MaxSemanticResults
	if limit <= 0 {
		limit = query.Limit
	}
	out := make([][]*models.Item, len(types))
	for i, ct := range types {
		items, err := e.semantic.SearchSemantic(ctx, ct, vec, limit, e.embedCfg.SimilarityThreshold, query.Filters)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("semantic search %s: %w", ct, err)
		}
		out[i] = items
	}
	return out, nil
}
