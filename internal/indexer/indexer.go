// Package indexer keeps stored embeddings consistent with section and scenario text: it finds
// stale rows, embeds them in batches, and reports embedding coverage.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
	"github.com/catuchi/LawMadeSimple-sub002/internal/embedding"
	"github.com/catuchi/LawMadeSimple-sub002/internal/keyword"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
	"github.com/catuchi/LawMadeSimple-sub002/internal/storage"
)

// degradedPendingRatio is the pending share above which health is degraded.
const degradedPendingRatio = 0.5

// Embedder is the part of the embedding generator the indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	CheckInput(text string) error
}

// Indexer embeds stale content and persists the result.
type Indexer struct {
	store        storage.Store
	embedder     Embedder
	embedCfg     config.EmbeddingConfig
	searchCfg    config.SearchConfig
	keywordIndex keyword.KeywordIndex // optional
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for batch progress and failures.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithKeywordIndex keeps the keyword index in step with stored content.
func WithKeywordIndex(ki keyword.KeywordIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = ki }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(store storage.Store, embedder Embedder, cfg *config.Config, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		embedCfg:  cfg.Embedding,
		searchCfg: cfg.Search,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Indexer) batchSize() int {
	if idx.embedCfg.BatchSize > 0 {
		return idx.embedCfg.BatchSize
	}
	return 1
}

// FindStale returns ids of ct whose content hash is absent or differs from the hash of the
// current text. Only text columns are read.
func (idx *Indexer) FindStale(ctx context.Context, ct models.ContentType) ([]string, error) {
	docs, err := idx.staleDocs(ctx, ct)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

func (idx *Indexer) staleDocs(ctx context.Context, ct models.ContentType) ([]*models.ContentDoc, error) {
	docs, err := idx.store.ListContent(ctx, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s content: %w", ct, err)
	}
	stale := make([]*models.ContentDoc, 0)
	for _, doc := range docs {
		if contenthash.IsStale(doc.ContentHash, doc.Text) {
			stale = append(stale, doc)
		}
	}
	return stale, nil
}

// EmbedBatch embeds the given ids of ct and stores embedding and hash per id. Ids are sent
// to the provider in chunks of the configured batch size; a failed chunk fails every id in it
// and leaves their stored state untouched. The error is non-nil only when the ids could not
// be loaded or ctx was already done.
func (idx *Indexer) EmbedBatch(ctx context.Context, ct models.ContentType, ids []string) (*models.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding generator", embedding.ErrConfigurationInvalid)
	}
	result := &models.BatchResult{Successful: []string{}, Failed: []models.FailedItem{}}
	if len(ids) == 0 {
		return result, nil
	}
	fail := func(id string, err error) {
		result.Failed = append(result.Failed, models.FailedItem{ID: id, Error: err.Error()})
	}

	docs, err := idx.store.ListContent(ctx, ct, ids)
	if err != nil {
		return nil, fmt.Errorf("load %s content: %w", ct, err)
	}
	byID := make(map[string]*models.ContentDoc, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	pending := make([]*models.ContentDoc, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		doc, ok := byID[id]
		if !ok {
			fail(id, storage.ErrNotFound)
			continue
		}
		if err := idx.embedder.CheckInput(doc.Text); err != nil {
			fail(id, err)
			continue
		}
		pending = append(pending, doc)
	}

	size := idx.batchSize()
	for start := 0; start < len(pending); start += size {
		chunk := pending[start:min(start+size, len(pending))]
		texts := make([]string, len(chunk))
		for i, doc := range chunk {
			texts[i] = doc.Text
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			idx.logger.Warn("embedding chunk failed",
				zap.String("type", string(ct)),
				zap.Int("items", len(chunk)),
				zap.Error(err))
			for _, doc := range chunk {
				fail(doc.ID, err)
			}
			continue
		}

		for i, doc := range chunk {
			hash := contenthash.Hash(doc.Text)
			if err := idx.store.UpdateEmbedding(ctx, ct, doc.ID, vectors[i], hash); err != nil {
				idx.logger.Warn("failed to store embedding", zap.String("id", doc.ID), zap.Error(err))
				fail(doc.ID, err)
				continue
			}
			result.Successful = append(result.Successful, doc.ID)
			idx.indexKeyword(ctx, doc, hash)
		}
	}

	idx.logger.Debug("embedded batch",
		zap.String("type", string(ct)),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (idx *Indexer) indexKeyword(ctx context.Context, doc *models.ContentDoc, hash string) {
	if idx.keywordIndex == nil {
		return
	}
	d := *doc
	d.ContentHash = hash
	if err := idx.keywordIndex.Index(ctx, &d); err != nil {
		idx.logger.Warn("failed to update keyword index", zap.String("id", doc.ID), zap.Error(err))
	}
}

// syncKeyword writes the current text of docs to the keyword index. Failures are logged;
// keyword search falls behind but backfill goes on.
func (idx *Indexer) syncKeyword(ctx context.Context, ct models.ContentType, docs []*models.ContentDoc) {
	if idx.keywordIndex == nil || len(docs) == 0 {
		return
	}
	if err := idx.keywordIndex.IndexBatch(ctx, docs); err != nil {
		idx.logger.Warn("failed to update keyword index",
			zap.String("type", string(ct)),
			zap.Int("items", len(docs)),
			zap.Error(err))
	}
}

// Backfill finds stale items per requested family and embeds them chunk by chunk.
// Cancellation is honoured between chunks. A dry run only counts stale items.
//
// Every stale item is written to the keyword index first, with its current text, so new and
// edited content is keyword-searchable even when embedding is skipped or fails.
func (idx *Indexer) Backfill(ctx context.Context, opts models.BackfillOptions) (*models.BackfillReport, error) {
	types := opts.Types
	if len(types) == 0 {
		types = models.ContentTypes
	}

	staleIDs := make(map[models.ContentType][]string, len(types))
	for _, ct := range types {
		docs, err := idx.staleDocs(ctx, ct)
		if err != nil {
			return nil, err
		}
		idx.syncKeyword(ctx, ct, docs)
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}
		if opts.Limit > 0 && len(ids) > opts.Limit {
			ids = ids[:opts.Limit]
		}
		staleIDs[ct] = ids
	}

	if !opts.DryRun {
		if v := embedding.ValidateConfig(idx.embedCfg); !v.Valid {
			return nil, v.Err()
		}
		if idx.embedder == nil {
			return nil, fmt.Errorf("%w: no embedding generator", embedding.ErrConfigurationInvalid)
		}
	}

	report := &models.BackfillReport{DryRun: opts.DryRun}
	size := idx.batchSize()
	for _, ct := range types {
		stale := staleIDs[ct]
		fam := &models.FamilyBackfill{Type: ct, Stale: len(stale)}
		report.Families = append(report.Families, fam)
		idx.logger.Info("backfill", zap.String("type", string(ct)), zap.Int("stale", len(stale)), zap.Bool("dry_run", opts.DryRun))
		if opts.DryRun {
			continue
		}

		for start := 0; start < len(stale); start += size {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			end := min(start+size, len(stale))
			res, err := idx.EmbedBatch(ctx, ct, stale[start:end])
			if err != nil {
				return report, err
			}
			fam.Successful += len(res.Successful)
			fam.Failed = append(fam.Failed, res.Failed...)
			idx.logger.Info("backfill progress",
				zap.String("type", string(ct)),
				zap.Int("done", end),
				zap.Int("total", len(stale)))
		}
	}
	return report, nil
}

// Stats returns count-based embedding coverage per family.
func (idx *Indexer) Stats(ctx context.Context) (*models.EmbeddingStats, error) {
	stats := &models.EmbeddingStats{}
	for _, ct := range models.ContentTypes {
		total, embedded, err := idx.store.CountContent(ctx, ct)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", ct, err)
		}
		fs := models.NewFamilyStats(total, embedded)
		switch ct {
		case models.ContentSection:
			stats.Sections = fs
		case models.ContentScenario:
			stats.Scenarios = fs
		}
	}
	stats.Overall = models.NewFamilyStats(
		stats.Sections.Total+stats.Scenarios.Total,
		stats.Sections.Embedded+stats.Scenarios.Embedded,
	)
	return stats, nil
}

// ConfigSummary returns the non-secret configuration with its validation result.
func (idx *Indexer) ConfigSummary() models.ConfigSummary {
	v := embedding.ValidateConfig(idx.embedCfg)
	return models.ConfigSummary{
		Provider:              idx.embedCfg.Provider,
		Model:                 idx.embedCfg.Model,
		Dimensions:            idx.embedCfg.Dimensions,
		BatchSize:             idx.embedCfg.BatchSize,
		MaxTokens:             idx.embedCfg.MaxTokens,
		SimilarityThreshold:   idx.embedCfg.SimilarityThreshold,
		MaxSemanticResults:    idx.embedCfg.MaxSemanticResults,
		RRFK:                  idx.searchCfg.RRFK,
		DefaultSemanticWeight: idx.searchCfg.DefaultSemanticWeight,
		Valid:                 v.Valid,
		Error:                 v.Error,
	}
}

// Health reports error when the configuration is invalid, degraded when more than half of
// all embeddable items are pending, healthy otherwise.
func (idx *Indexer) Health(ctx context.Context) (*models.HealthReport, error) {
	report := &models.HealthReport{Config: idx.ConfigSummary()}
	stats, err := idx.Stats(ctx)
	if err != nil {
		return nil, err
	}
	report.Statistics = stats

	switch {
	case !report.Config.Valid:
		report.Status = models.HealthError
	case stats.Overall.PendingRatio() > degradedPendingRatio:
		report.Status = models.HealthDegraded
	default:
		report.Status = models.HealthHealthy
	}
	return report, nil
}

// ReindexKeyword rebuilds the keyword index from the store and returns the documents indexed.
func (idx *Indexer) ReindexKeyword(ctx context.Context) (int, error) {
	if idx.keywordIndex == nil {
		return 0, fmt.Errorf("no keyword index configured")
	}
	n := 0
	for _, ct := range models.ContentTypes {
		docs, err := idx.store.ListContent(ctx, ct, nil)
		if err != nil {
			return n, fmt.Errorf("list %s content: %w", ct, err)
		}
		if err := idx.keywordIndex.IndexBatch(ctx, docs); err != nil {
			return n, fmt.Errorf("index %s: %w", ct, err)
		}
		n += len(docs)
		idx.logger.Info("reindexed keyword documents", zap.String("type", string(ct)), zap.Int("count", len(docs)))
	}
	return n, nil
}
