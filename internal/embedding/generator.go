package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
)

// BytesPerToken is the estimate used to check texts against the token ceiling.
const BytesPerToken = 4

// Generator wraps a Provider with batching, input checks, retries, throttling and a
// query-embedding cache. It implements Embedder.
type Generator struct {
	provider   Provider
	dimensions int
	batchSize  int
	maxTokens  int
	retry      RetryConfig
	limiter    *rate.Limiter
	cache      *Cache
	logger     *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRetryConfig overrides the backoff schedule.
func WithRetryConfig(rc RetryConfig) GeneratorOption {
	return func(g *Generator) {
		g.retry = rc
	}
}

// NewGenerator creates a Generator for provider using the limits in cfg.
func NewGenerator(provider Provider, cfg config.EmbeddingConfig, opts ...GeneratorOption) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is nil", ErrConfigurationInvalid)
	}
	if cfg.Dimensions <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: dimensions and batch size must be positive", ErrConfigurationInvalid)
	}
	cache, err := NewCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	g := &Generator{
		provider:   provider,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		maxTokens:  cfg.MaxTokens,
		retry:      DefaultRetryConfig(cfg.MaxRetries),
		limiter:    rate.NewLimiter(limit, 1),
		cache:      cache,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CheckInput rejects text the provider would refuse: blank text or text over the token ceiling.
func (g *Generator) CheckInput(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	if g.maxTokens > 0 {
		if est := (len(text) + BytesPerToken - 1) / BytesPerToken; est > g.maxTokens {
			return fmt.Errorf("%w: text of about %d tokens exceeds limit of %d", ErrInvalidInput, est, g.maxTokens)
		}
	}
	return nil
}

// Embed returns the embedding of a single text, consulting the cache first.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := g.cache.Get(text); ok {
		return emb, nil
	}
	out, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	g.cache.Set(text, out[0])
	return out[0], nil
}

// EmbedBatch embeds texts in order. Inputs beyond the batch ceiling are split into
// ceiling-sized provider calls; any failing call fails the whole batch.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if err := g.CheckInput(text); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		vectors, err := g.call(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (g *Generator) call(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, g.retry, IsRetryable, func() ([][]float32, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vectors, err := g.provider.CreateEmbeddings(ctx, texts)
		if err != nil {
			g.logger.Debug("embedding call failed",
				zap.String("provider", g.provider.Name()),
				zap.Int("texts", len(texts)),
				zap.Error(err))
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, &ProviderError{
				Kind:    ErrProviderUnavailable,
				Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)),
			}
		}
		for i, v := range vectors {
			if len(v) != g.dimensions {
				return nil, &ProviderError{
					Kind:    ErrProviderUnavailable,
					Message: fmt.Sprintf("embedding %d has dimension %d, want %d", i, len(v), g.dimensions),
				}
			}
		}
		return vectors, nil
	})
}

// Dimensions returns the configured vector dimension.
func (g *Generator) Dimensions() int {
	return g.dimensions
}

// Close closes the provider.
func (g *Generator) Close() error {
	return g.provider.Close()
}
