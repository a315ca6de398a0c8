package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/embedding"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
	"github.com/catuchi/LawMadeSimple-sub002/internal/storage"
)

type fakeKeyword struct {
	mu      sync.Mutex
	results map[models.ContentType][]*models.Item
	err     error
	limits  []int
}

func (f *fakeKeyword) SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results[ct], nil
}

type fakeSemantic struct {
	results map[models.ContentType][]*models.Item
	err     error
	calls   int
}

func (f *fakeSemantic) SearchSemantic(ctx context.Context, ct models.ContentType, emb []float32, limit int, threshold float64, filters models.SearchFilters) ([]*models.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results[ct], nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func items(ct models.ContentType, ids ...string) []*models.Item {
	out := make([]*models.Item, len(ids))
	for i, id := range ids {
		out[i] = &models.Item{ID: id, Type: ct, Title: "title " + id}
	}
	return out
}

func engineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Embedding = config.EmbeddingConfig{Provider: embedding.ProviderMock, Model: "mock", Dimensions: 2}
	config.ApplyDefaults(cfg)
	return cfg
}

func resultIDs(resp *models.SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Item.ID
	}
	return out
}

func TestEngine_hybrid(t *testing.T) {
	kw := &fakeKeyword{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "b", "c"),
	}}
	sem := &fakeSemantic{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "a", "b"),
	}}
	engine := NewEngine(kw, sem, &fakeEmbedder{}, engineConfig())

	resp, err := engine.Search(context.Background(), &models.SearchQuery{
		Query:   "arrest",
		Filters: models.SearchFilters{Type: models.FilterSection},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeHybrid {
		t.Errorf("mode = %s", resp.Mode)
	}
	if got, want := resultIDs(resp), []string{"b", "a", "c"}; !sameOrder(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d", resp.Total)
	}
	if resp.SemanticError != "" {
		t.Errorf("unexpected semantic error %q", resp.SemanticError)
	}
}

func TestEngine_keywordCandidatesAtLeastLimit(t *testing.T) {
	cfg := engineConfig()
	cfg.Search.KeywordCandidates = 5
	kw := &fakeKeyword{}
	engine := NewEngine(kw, &fakeSemantic{}, &fakeEmbedder{}, cfg)

	if _, err := engine.Search(context.Background(), &models.SearchQuery{Query: "bail", Limit: 20}); err != nil {
		t.Fatal(err)
	}
	for _, l := range kw.limits {
		if l != 20 {
			t.Errorf("keyword limit = %d, want 20", l)
		}
	}
}

func TestEngine_semanticFailureDegrades(t *testing.T) {
	kw := &fakeKeyword{results: map[models.ContentType][]*models.Item{
		models.ContentSection:  items(models.ContentSection, "s1"),
		models.ContentScenario: items(models.ContentScenario, "c1"),
	}}
	emb := &fakeEmbedder{err: embedding.ErrProviderUnavailable}
	sem := &fakeSemantic{}
	engine := NewEngine(kw, sem, emb, engineConfig())

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "tenant"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeKeyword || resp.SemanticError == "" {
		t.Errorf("mode = %s, semantic error = %q", resp.Mode, resp.SemanticError)
	}
	if sem.calls != 0 {
		t.Errorf("semantic search ran after embedding failed")
	}
	if got, want := resultIDs(resp), []string{"s1", "c1"}; !sameOrder(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	for _, r := range resp.Results {
		if r.SemanticRank != nil {
			t.Errorf("%s has semantic rank", r.Item.ID)
		}
	}
}

func TestEngine_semanticStoreFailureDegrades(t *testing.T) {
	kw := &fakeKeyword{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "s1"),
	}}
	sem := &fakeSemantic{err: storage.ErrPersistence}
	engine := NewEngine(kw, sem, &fakeEmbedder{}, engineConfig())

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "tenant"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeKeyword || len(resp.Results) != 1 {
		t.Errorf("mode = %s, results = %d", resp.Mode, len(resp.Results))
	}
}

func TestEngine_keywordFailureFails(t *testing.T) {
	kw := &fakeKeyword{err: storage.ErrPersistence}
	engine := NewEngine(kw, &fakeSemantic{}, &fakeEmbedder{}, engineConfig())

	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "tenant"})
	if !errors.Is(err, storage.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestEngine_semanticDisabledByQuery(t *testing.T) {
	kw := &fakeKeyword{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "s1"),
	}}
	emb := &fakeEmbedder{}
	engine := NewEngine(kw, &fakeSemantic{}, emb, engineConfig())

	off := false
	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "tenant", SemanticEnabled: &off})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeKeyword || emb.calls != 0 {
		t.Errorf("mode = %s, embed calls = %d", resp.Mode, emb.calls)
	}
	if resp.SemanticError != "" {
		t.Errorf("caller opt-out reported as error: %q", resp.SemanticError)
	}
}

func TestEngine_limitAppliedAfterFusion(t *testing.T) {
	// Keyword alone would put k1 first; fusion lifts shared item x above it.
	kw := &fakeKeyword{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "k1", "x"),
	}}
	sem := &fakeSemantic{results: map[models.ContentType][]*models.Item{
		models.ContentSection: items(models.ContentSection, "x"),
	}}
	engine := NewEngine(kw, sem, &fakeEmbedder{}, engineConfig())

	resp, err := engine.Search(context.Background(), &models.SearchQuery{
		Query:   "q",
		Limit:   1,
		Filters: models.SearchFilters{Type: models.FilterSection},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultIDs(resp); !sameOrder(got, []string{"x"}) {
		t.Errorf("results = %v, want [x]", got)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestEngine_blankQuery(t *testing.T) {
	kw := &fakeKeyword{}
	engine := NewEngine(kw, &fakeSemantic{}, &fakeEmbedder{}, engineConfig())

	resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || len(kw.limits) != 0 {
		t.Errorf("blank query searched: %d results, %d keyword calls", len(resp.Results), len(kw.limits))
	}
}

func TestEngine_invalidQuery(t *testing.T) {
	engine := NewEngine(&fakeKeyword{}, nil, nil, engineConfig())

	bad := 1.5
	_, err := engine.Search(context.Background(), &models.SearchQuery{Query: "x", SemanticWeight: &bad})
	if !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("weight: err = %v", err)
	}
	_, err = engine.Search(context.Background(), &models.SearchQuery{Query: "x", Filters: models.SearchFilters{Type: "statute"}})
	if !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("type: err = %v", err)
	}
}

func TestEngine_invalidEmbeddingConfigFallsBackToKeyword(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	law := &models.Law{Slug: "acja", Title: "Administration of Criminal Justice Act"}
	if err := store.CreateLaw(ctx, law); err != nil {
		t.Fatal(err)
	}
	for _, sec := range []*models.Section{
		{LawID: law.ID, Number: "6", Title: "Arrest without warrant", Content: "A police officer may arrest without warrant."},
		{LawID: law.ID, Number: "7", Title: "Bail", Content: "Conditions for bail after arrest."},
		{LawID: law.ID, Number: "8", Title: "Search of premises", Content: "Searches require a warrant."},
	} {
		if err := store.CreateSection(ctx, sec); err != nil {
			t.Fatal(err)
		}
	}

	cfg := engineConfig()
	cfg.Embedding.Provider = embedding.ProviderOpenAI
	cfg.Embedding.APIKey = ""
	engine := NewEngine(store, store, &fakeEmbedder{}, cfg)

	resp, err := engine.Search(ctx, &models.SearchQuery{Query: "arrest", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != models.ModeKeyword || resp.SemanticError == "" {
		t.Errorf("mode = %s, semantic error = %q", resp.Mode, resp.SemanticError)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %v, want 2 arrest sections", resultIDs(resp))
	}
	for _, r := range resp.Results {
		if r.SemanticRank != nil || r.KeywordRank == nil {
			t.Errorf("%s ranks = %v/%v", r.Item.Title, r.SemanticRank, r.KeywordRank)
		}
	}
	if resp.Results[0].Item.Title != "Arrest without warrant" {
		t.Errorf("first = %q", resp.Results[0].Item.Title)
	}
}
