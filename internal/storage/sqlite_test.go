package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	laws := []*models.Law{
		{ID: "law-const", Slug: "constitution", Title: "Constitution of the Federal Republic of Nigeria"},
		{ID: "law-acja", Slug: "acja", Title: "Administration of Criminal Justice Act"},
	}
	for _, l := range laws {
		if err := store.CreateLaw(ctx, l); err != nil {
			t.Fatal(err)
		}
	}
	sections := []*models.Section{
		{ID: "sec-35", LawID: "law-const", Number: "35", Title: "Right to personal liberty", Content: "Every person shall be entitled to personal liberty. A person under arrest shall be informed."},
		{ID: "sec-6", LawID: "law-acja", Number: "6", Title: "Arrest without warrant", Summary: "When police may arrest.", Content: "A police officer may arrest without warrant."},
		{ID: "sec-41", LawID: "law-const", Number: "41", Title: "Freedom of movement", Content: "Every citizen is entitled to move freely."},
	}
	for _, s := range sections {
		if err := store.CreateSection(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	scenarios := []*models.Scenario{
		{ID: "scn-1", Slug: "police-stop", Title: "Stopped by police", Description: "What to do if police stop you.", Keywords: []string{"arrest", "checkpoint"}, Category: "police"},
		{ID: "scn-2", Slug: "landlord", Title: "Landlord eviction", Description: "Your landlord wants you out.", Keywords: []string{"tenancy"}, Category: "housing"},
	}
	for _, sc := range scenarios {
		if err := store.CreateScenario(ctx, sc); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(items []*models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLiteStorage_createAssignsIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStorage(filepath.Join(dir, "nested", "law.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	law := &models.Law{Slug: "labour", Title: "Labour Act"}
	if err := store.CreateLaw(ctx, law); err != nil {
		t.Fatal(err)
	}
	if law.ID == "" {
		t.Error("law ID should be assigned")
	}
	sec := &models.Section{LawID: law.ID, Number: "1", Title: "Wages"}
	if err := store.CreateSection(ctx, sec); err != nil {
		t.Fatal(err)
	}
	if sec.ID == "" || sec.CreatedAt.IsZero() {
		t.Errorf("section not initialised: %+v", sec)
	}
	if err := store.CreateLaw(ctx, &models.Law{Slug: "labour", Title: "dup"}); !errors.Is(err, ErrPersistence) {
		t.Errorf("duplicate slug: got %v, want ErrPersistence", err)
	}
}

func TestSQLiteStorage_ListContent(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	docs, err := store.ListContent(ctx, models.ContentSection, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(docs))
	}
	var sec6 *models.ContentDoc
	for _, d := range docs {
		if d.ID == "sec-6" {
			sec6 = d
		}
	}
	if sec6 == nil {
		t.Fatal("sec-6 missing")
	}
	want := "Arrest without warrant\n\nWhen police may arrest.\n\nA police officer may arrest without warrant."
	if sec6.Text != want {
		t.Errorf("text = %q, want %q", sec6.Text, want)
	}
	if sec6.LawSlug != "acja" || sec6.ContentHash != "" {
		t.Errorf("unexpected projection: %+v", sec6)
	}

	scn, err := store.ListContent(ctx, models.ContentScenario, []string{"scn-1", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(scn) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(scn))
	}
	if !strings.HasSuffix(scn[0].Text, "Keywords: arrest, checkpoint") || scn[0].Category != "police" {
		t.Errorf("unexpected scenario projection: %+v", scn[0])
	}

	empty, err := store.ListContent(ctx, models.ContentScenario, []string{})
	if err != nil || len(empty) != 0 {
		t.Errorf("empty id list: %v, %v", empty, err)
	}
}

func TestSQLiteStorage_UpdateEmbeddingAndCount(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	total, embedded, err := store.CountContent(ctx, models.ContentSection)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || embedded != 0 {
		t.Errorf("count = %d/%d, want 3/0", total, embedded)
	}

	if err := store.UpdateEmbedding(ctx, models.ContentSection, "sec-35", []float32{1, 0}, "abc"); err != nil {
		t.Fatal(err)
	}
	total, embedded, _ = store.CountContent(ctx, models.ContentSection)
	if total != 3 || embedded != 1 {
		t.Errorf("count = %d/%d, want 3/1", total, embedded)
	}
	docs, _ := store.ListContent(ctx, models.ContentSection, []string{"sec-35"})
	if len(docs) != 1 || docs[0].ContentHash != "abc" {
		t.Errorf("hash not stored: %+v", docs)
	}

	err = store.UpdateEmbedding(ctx, models.ContentSection, "nope", []float32{1}, "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, _, err := store.CountContent(ctx, "bogus"); !errors.Is(err, ErrPersistence) {
		t.Errorf("got %v, want ErrPersistence", err)
	}
}

func TestSQLiteStorage_UpdateKeepsHash(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	if err := store.UpdateEmbedding(ctx, models.ContentScenario, "scn-2", []float32{1}, "old-hash"); err != nil {
		t.Fatal(err)
	}
	sc := &models.Scenario{ID: "scn-2", Slug: "landlord", Title: "Landlord eviction notice", Description: "changed", Category: "housing"}
	if err := store.UpdateScenario(ctx, sc); err != nil {
		t.Fatal(err)
	}
	docs, _ := store.ListContent(ctx, models.ContentScenario, []string{"scn-2"})
	if docs[0].ContentHash != "old-hash" || !strings.HasPrefix(docs[0].Text, "Landlord eviction notice") {
		t.Errorf("unexpected doc after update: %+v", docs[0])
	}
	if err := store.UpdateSection(ctx, &models.Section{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorage_SearchKeyword(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	tests := []struct {
		name    string
		ct      models.ContentType
		query   string
		limit   int
		filters models.SearchFilters
		want    []string
	}{
		{"title match first", models.ContentSection, "ARREST", 10, models.SearchFilters{}, []string{"sec-6", "sec-35"}},
		{"limit", models.ContentSection, "arrest", 1, models.SearchFilters{}, []string{"sec-6"}},
		{"law filter", models.ContentSection, "arrest", 10, models.SearchFilters{LawSlug: "constitution"}, []string{"sec-35"}},
		{"section number", models.ContentSection, "41", 10, models.SearchFilters{}, []string{"sec-41"}},
		{"no match", models.ContentSection, "tax", 10, models.SearchFilters{}, []string{}},
		{"blank", models.ContentSection, "   ", 10, models.SearchFilters{}, []string{}},
		{"wildcard escaped", models.ContentSection, "%", 10, models.SearchFilters{}, []string{}},
		{"scenario keywords", models.ContentScenario, "checkpoint", 10, models.SearchFilters{}, []string{"scn-1"}},
		{"scenario category", models.ContentScenario, "landlord", 10, models.SearchFilters{Category: "police"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := store.SearchKeyword(ctx, tt.ct, tt.query, tt.limit, tt.filters)
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(items); !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	items, _ := store.SearchKeyword(ctx, models.ContentSection, "warrant", 10, models.SearchFilters{})
	if len(items) != 1 || items[0].LawTitle != "Administration of Criminal Justice Act" || items[0].Snippet != "When police may arrest." {
		t.Errorf("unexpected item payload: %+v", items)
	}
}

func TestSQLiteStorage_SearchSemantic(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	vectors := map[string][]float32{
		"sec-35": {1, 0, 0},
		"sec-6":  {0.8, 0.6, 0},
		"sec-41": {0, 0, 1},
	}
	for id, v := range vectors {
		if err := store.UpdateEmbedding(ctx, models.ContentSection, id, v, "h"); err != nil {
			t.Fatal(err)
		}
	}

	items, err := store.SearchSemantic(ctx, models.ContentSection, []float32{1, 0, 0}, 10, 0.3, models.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(items); !equalIDs(got, []string{"sec-35", "sec-6"}) {
		t.Fatalf("got %v", got)
	}
	if items[0].Similarity < 0.999 || items[1].Similarity < 0.79 || items[1].Similarity > 0.81 {
		t.Errorf("unexpected similarities: %v, %v", items[0].Similarity, items[1].Similarity)
	}

	items, _ = store.SearchSemantic(ctx, models.ContentSection, []float32{1, 0, 0}, 1, 0.3, models.SearchFilters{})
	if len(items) != 1 {
		t.Errorf("limit not applied: %v", ids(items))
	}
	items, _ = store.SearchSemantic(ctx, models.ContentSection, []float32{1, 0, 0}, 10, 0.3, models.SearchFilters{LawSlug: "acja"})
	if got := ids(items); !equalIDs(got, []string{"sec-6"}) {
		t.Errorf("law filter: got %v", got)
	}
	items, _ = store.SearchSemantic(ctx, models.ContentScenario, []float32{1, 0, 0}, 10, 0.3, models.SearchFilters{})
	if len(items) != 0 {
		t.Errorf("scenarios without embeddings should not match: %v", ids(items))
	}
}

func TestSQLiteStorage_SearchSemanticSkipsChangedText(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	docs, err := store.ListContent(ctx, models.ContentSection, []string{"sec-6"})
	if err != nil {
		t.Fatal(err)
	}
	old := []float32{1, 0, 0}
	if err := store.UpdateEmbedding(ctx, models.ContentSection, "sec-6", old, contenthash.Hash(docs[0].Text)); err != nil {
		t.Fatal(err)
	}
	items, _ := store.SearchSemantic(ctx, models.ContentSection, old, 10, 0.99, models.SearchFilters{})
	if got := ids(items); !equalIDs(got, []string{"sec-6"}) {
		t.Fatalf("before update: got %v", got)
	}

	// Same text: the embedding still describes the row.
	same := &models.Section{ID: "sec-6", LawID: "law-acja", Number: "6", Title: "Arrest without warrant", Summary: "When police may arrest.", Content: "A police officer may arrest without warrant."}
	if err := store.UpdateSection(ctx, same); err != nil {
		t.Fatal(err)
	}
	items, _ = store.SearchSemantic(ctx, models.ContentSection, old, 10, 0.99, models.SearchFilters{})
	if len(items) != 1 {
		t.Fatalf("unchanged text should stay searchable, got %v", ids(items))
	}

	changed := &models.Section{ID: "sec-6", LawID: "law-acja", Number: "6", Title: "Tenancy", Content: "Landlord rules."}
	if err := store.UpdateSection(ctx, changed); err != nil {
		t.Fatal(err)
	}
	items, err = store.SearchSemantic(ctx, models.ContentSection, old, 10, 0.99, models.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("changed text served by old embedding: %+v", items)
	}
	if _, embedded, _ := store.CountContent(ctx, models.ContentSection); embedded != 1 {
		t.Errorf("embedding should be kept, embedded = %d", embedded)
	}

	if err := store.UpdateEmbedding(ctx, models.ContentSection, "sec-6", []float32{0, 1, 0}, contenthash.Hash(changed.EmbeddingText())); err != nil {
		t.Fatal(err)
	}
	items, _ = store.SearchSemantic(ctx, models.ContentSection, []float32{0, 1, 0}, 10, 0.99, models.SearchFilters{})
	if got := ids(items); !equalIDs(got, []string{"sec-6"}) {
		t.Errorf("after re-embed: got %v", got)
	}
}

func TestSQLiteStorage_UpdateScenarioChangedTextHidesEmbedding(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	if err := store.UpdateEmbedding(ctx, models.ContentScenario, "scn-2", []float32{0, 0, 1}, "hash-of-other-text"); err != nil {
		t.Fatal(err)
	}
	sc := &models.Scenario{ID: "scn-2", Slug: "landlord", Title: "Landlord eviction", Description: "Rewritten.", Category: "housing"}
	if err := store.UpdateScenario(ctx, sc); err != nil {
		t.Fatal(err)
	}
	items, _ := store.SearchSemantic(ctx, models.ContentScenario, []float32{0, 0, 1}, 10, 0.5, models.SearchFilters{})
	if len(items) != 0 {
		t.Errorf("got %v, want no scenarios", ids(items))
	}
}

func TestNewSQLiteStorage_addsStaleColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE sections (
		id TEXT PRIMARY KEY, law_id TEXT NOT NULL, section_number TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '', summary TEXT NOT NULL DEFAULT '', content TEXT NOT NULL DEFAULT '',
		embedding BLOB, content_hash TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP, updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.CreateLaw(ctx, &models.Law{ID: "l", Slug: "l", Title: "L"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSection(ctx, &models.Section{ID: "s", LawID: "l", Title: "Bail"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateEmbedding(ctx, models.ContentSection, "s", []float32{1, 0}, "h"); err != nil {
		t.Fatal(err)
	}
	items, err := store.SearchSemantic(ctx, models.ContentSection, []float32{1, 0}, 10, 0.5, models.SearchFilters{})
	if err != nil || len(items) != 1 {
		t.Errorf("got %v, %v", ids(items), err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

func TestSQLiteStorage_SearchKeywordFoldsUnicode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateLaw(ctx, &models.Law{ID: "law-t", Slug: "tenancy", Title: "Tenancy Law"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSection(ctx, &models.Section{ID: "sec-e", LawID: "law-t", Title: "ÉVICTION NOTICE", Content: "Notice to quit before ÀWỌN court order."}); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"éviction", "ÉVICTION", "Éviction notice"} {
		items, err := store.SearchKeyword(ctx, models.ContentSection, q, 10, models.SearchFilters{})
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(items); !equalIDs(got, []string{"sec-e"}) {
			t.Errorf("%q: got %v", q, got)
		}
	}
}

func TestSQLiteStorage_GetItemsOrder(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	items, err := store.GetItems(context.Background(), models.ContentSection, []string{"sec-41", "missing", "sec-35"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(items); !equalIDs(got, []string{"sec-41", "sec-35"}) {
		t.Errorf("got %v", got)
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")}, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := Migrate(context.Background(), store); err != nil {
		t.Errorf("migrate: %v", err)
	}
	if err := Ping(context.Background(), store); err != nil {
		t.Errorf("ping: %v", err)
	}
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}, 4); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(config.DatabaseConfig{Driver: "postgres"}, 4); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"Arrest": "%arrest%",
		"50%":    `%50\%%`,
		"a_b":    `%a\_b%`,
		`c:\x`:   `%c:\\x%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("", "  spaced   out  "); got != "spaced out" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("ß", snippetLength+10)
	got := snippet(long)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != snippetLength+1 {
		t.Errorf("long snippet not cut: %d runes", len([]rune(got)))
	}
}
