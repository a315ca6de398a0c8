package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
)

type lawRow struct {
	bun.BaseModel `bun:"table:laws,alias:law"`
	ID            string    `bun:"id,pk"`
	Slug          string    `bun:"slug,notnull,unique"`
	Title         string    `bun:"title,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type sectionRow struct {
	bun.BaseModel `bun:"table:sections,alias:s"`
	ID            string           `bun:"id,pk"`
	LawID         string           `bun:"law_id,notnull"`
	Number        string           `bun:"section_number"`
	Title         string           `bun:"title"`
	Summary       string           `bun:"summary"`
	Content       string           `bun:"content"`
	Embedding     *pgvector.Vector `bun:"embedding,type:vector"`
	ContentHash   sql.NullString   `bun:"content_hash"`
	Stale         bool             `bun:"stale,notnull"`
	CreatedAt     time.Time        `bun:"created_at"`
	UpdatedAt     time.Time        `bun:"updated_at"`
	Law           *lawRow          `bun:"rel:belongs-to,join:law_id=id"`
}

type scenarioRow struct {
	bun.BaseModel `bun:"table:scenarios,alias:sc"`
	ID            string           `bun:"id,pk"`
	Slug          string           `bun:"slug,notnull"`
	Title         string           `bun:"title"`
	Description   string           `bun:"description"`
	Keywords      []string         `bun:"keywords,array"`
	Category      string           `bun:"category"`
	Embedding     *pgvector.Vector `bun:"embedding,type:vector"`
	ContentHash   sql.NullString   `bun:"content_hash"`
	Stale         bool             `bun:"stale,notnull"`
	CreatedAt     time.Time        `bun:"created_at"`
	UpdatedAt     time.Time        `bun:"updated_at"`
}

type similarityRow struct {
	ID         string  `bun:"id"`
	Similarity float64 `bun:"similarity"`
}

// PostgresStore implements Store on Postgres (Supabase) with the pgvector extension.
type PostgresStore struct {
	db         *bun.DB
	dimensions int
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithQueryDebug logs every SQL query to stderr.
func WithQueryDebug(enabled bool) PostgresOption {
	return func(s *PostgresStore) {
		if enabled {
			s.db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
		}
	}
}

// NewPostgresStore connects to dsn. dimensions is the vector column size used by Migrate.
func NewPostgresStore(dsn string, dimensions int, opts ...PostgresOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	s := &PostgresStore{
		db:         bun.NewDB(sqldb, pgdialect.New()),
		dimensions: dimensions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks that the database accepts connections.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}

// Migrate creates the vector extension, tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return persistErr("create extension", err)
	}
	if _, err := s.db.NewCreateTable().Model((*lawRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return persistErr("create laws", err)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			law_id TEXT NOT NULL REFERENCES laws(id) ON DELETE CASCADE,
			section_number TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			content_hash TEXT,
			stale BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`ALTER TABLE sections ADD COLUMN IF NOT EXISTS stale BOOLEAN NOT NULL DEFAULT false`,
		`CREATE INDEX IF NOT EXISTS sections_law_id_idx ON sections (law_id)`,
		`CREATE INDEX IF NOT EXISTS sections_embedding_idx ON sections USING hnsw (embedding vector_cosine_ops)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS scenarios (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			keywords TEXT[] NOT NULL DEFAULT '{}',
			category TEXT NOT NULL DEFAULT '',
			embedding vector(%d),
			content_hash TEXT,
			stale BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`ALTER TABLE scenarios ADD COLUMN IF NOT EXISTS stale BOOLEAN NOT NULL DEFAULT false`,
		`CREATE INDEX IF NOT EXISTS scenarios_category_idx ON scenarios (category)`,
		`CREATE INDEX IF NOT EXISTS scenarios_embedding_idx ON scenarios USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}

func vectorOrNil(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateLaw inserts a law. An empty ID is replaced by a new UUID.
func (s *PostgresStore) CreateLaw(ctx context.Context, law *models.Law) error {
	if law.ID == "" {
		law.ID = uuid.NewString()
	}
	law.CreatedAt = time.Now()
	row := &lawRow{ID: law.ID, Slug: law.Slug, Title: law.Title, CreatedAt: law.CreatedAt}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return persistErr("create law", err)
	}
	return nil
}

// CreateSection inserts a section. An empty ID is replaced by a new UUID.
func (s *PostgresStore) CreateSection(ctx context.Context, sec *models.Section) error {
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	now := time.Now()
	sec.CreatedAt, sec.UpdatedAt = now, now
	row := &sectionRow{
		ID:          sec.ID,
		LawID:       sec.LawID,
		Number:      sec.Number,
		Title:       sec.Title,
		Summary:     sec.Summary,
		Content:     sec.Content,
		Embedding:   vectorOrNil(sec.Embedding),
		ContentHash: nullString(sec.ContentHash),
		Stale:       staleOnCreate(sec.Embedding, sec.ContentHash, sec.EmbeddingText()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return persistErr("create section", err)
	}
	return nil
}

// CreateScenario inserts a scenario. An empty ID is replaced by a new UUID.
func (s *PostgresStore) CreateScenario(ctx context.Context, sc *models.Scenario) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now()
	sc.CreatedAt, sc.UpdatedAt = now, now
	row := &scenarioRow{
		ID:          sc.ID,
		Slug:        sc.Slug,
		Title:       sc.Title,
		Description: sc.Description,
		Keywords:    nonNil(sc.Keywords),
		Category:    sc.Category,
		Embedding:   vectorOrNil(sc.Embedding),
		ContentHash: nullString(sc.ContentHash),
		Stale:       staleOnCreate(sc.Embedding, sc.ContentHash, sc.EmbeddingText()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return persistErr("create scenario", err)
	}
	return nil
}

// pgStaleExpr flags a row whose stored hash no longer matches the hash of its new text.
const pgStaleExpr = "stale = (content_hash IS NULL OR content_hash <> ?)"

// UpdateSection updates the text fields of an existing section. A text change keeps the
// embedding but hides it from vector search until it is regenerated.
func (s *PostgresStore) UpdateSection(ctx context.Context, sec *models.Section) error {
	sec.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().Model((*sectionRow)(nil)).
		Set("law_id = ?", sec.LawID).
		Set("section_number = ?", sec.Number).
		Set("title = ?", sec.Title).
		Set("summary = ?", sec.Summary).
		Set("content = ?", sec.Content).
		Set("updated_at = ?", sec.UpdatedAt).
		Set(pgStaleExpr, contenthash.Hash(sec.EmbeddingText())).
		Where("id = ?", sec.ID).
		Exec(ctx)
	return checkAffected("update section", sec.ID, res, err)
}

// UpdateScenario updates the text fields of an existing scenario, flagging it like UpdateSection.
func (s *PostgresStore) UpdateScenario(ctx context.Context, sc *models.Scenario) error {
	sc.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().Model((*scenarioRow)(nil)).
		Set("slug = ?", sc.Slug).
		Set("title = ?", sc.Title).
		Set("description = ?", sc.Description).
		Set("keywords = ?", pgdialect.Array(nonNil(sc.Keywords))).
		Set("category = ?", sc.Category).
		Set("updated_at = ?", sc.UpdatedAt).
		Set(pgStaleExpr, contenthash.Hash(sc.EmbeddingText())).
		Where("id = ?", sc.ID).
		Exec(ctx)
	return checkAffected("update scenario", sc.ID, res, err)
}

// ListContent selects only text columns; the embedding column is never read.
func (s *PostgresStore) ListContent(ctx context.Context, ct models.ContentType, ids []string) ([]*models.ContentDoc, error) {
	if ids != nil && len(ids) == 0 {
		return []*models.ContentDoc{}, nil
	}
	switch ct {
	case models.ContentSection:
		var rows []sectionRow
		q := s.db.NewSelect().Model(&rows).
			ColumnExpr("s.id, s.title, s.summary, s.content, s.content_hash").
			Relation("Law", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Column("slug") }).
			OrderExpr("s.id")
		if ids != nil {
			q = q.Where("s.id IN (?)", bun.In(ids))
		}
		if err := q.Scan(ctx); err != nil {
			return nil, persistErr("list sections", err)
		}
		docs := make([]*models.ContentDoc, len(rows))
		for i, r := range rows {
			docs[i] = &models.ContentDoc{
				ID:          r.ID,
				Type:        ct,
				Title:       r.Title,
				Text:        models.SectionEmbeddingText(r.Title, r.Summary, r.Content),
				ContentHash: r.ContentHash.String,
			}
			if r.Law != nil {
				docs[i].LawSlug = r.Law.Slug
			}
		}
		return docs, nil
	case models.ContentScenario:
		var rows []scenarioRow
		q := s.db.NewSelect().Model(&rows).
			ColumnExpr("sc.id, sc.title, sc.description, sc.keywords, sc.category, sc.content_hash").
			OrderExpr("sc.id")
		if ids != nil {
			q = q.Where("sc.id IN (?)", bun.In(ids))
		}
		if err := q.Scan(ctx); err != nil {
			return nil, persistErr("list scenarios", err)
		}
		docs := make([]*models.ContentDoc, len(rows))
		for i, r := range rows {
			docs[i] = &models.ContentDoc{
				ID:          r.ID,
				Type:        ct,
				Title:       r.Title,
				Text:        models.ScenarioEmbeddingText(r.Title, r.Description, r.Keywords),
				Category:    r.Category,
				ContentHash: r.ContentHash.String,
			}
		}
		return docs, nil
	default:
		return nil, unknownType(ct)
	}
}

// UpdateEmbedding stores the embedding and content hash for one row and clears its stale flag.
func (s *PostgresStore) UpdateEmbedding(ctx context.Context, ct models.ContentType, id string, embedding []float32, contentHash string) error {
	var q *bun.UpdateQuery
	switch ct {
	case models.ContentSection:
		q = s.db.NewUpdate().Model((*sectionRow)(nil))
	case models.ContentScenario:
		q = s.db.NewUpdate().Model((*scenarioRow)(nil))
	default:
		return unknownType(ct)
	}
	res, err := q.
		Set("embedding = ?", vectorOrNil(embedding)).
		Set("content_hash = ?", nullString(contentHash)).
		Set("stale = false").
		Where("id = ?", id).
		Exec(ctx)
	return checkAffected("update embedding", id, res, err)
}

// CountContent returns the number of rows and the number with an embedding.
func (s *PostgresStore) CountContent(ctx context.Context, ct models.ContentType) (int64, int64, error) {
	var model any
	switch ct {
	case models.ContentSection:
		model = (*sectionRow)(nil)
	case models.ContentScenario:
		model = (*scenarioRow)(nil)
	default:
		return 0, 0, unknownType(ct)
	}
	total, err := s.db.NewSelect().Model(model).Count(ctx)
	if err != nil {
		return 0, 0, persistErr("count "+string(ct)+"s", err)
	}
	embedded, err := s.db.NewSelect().Model(model).Where("embedding IS NOT NULL").Count(ctx)
	if err != nil {
		return 0, 0, persistErr("count embedded "+string(ct)+"s", err)
	}
	return int64(total), int64(embedded), nil
}

// SearchKeyword runs a case-insensitive ILIKE match. Title matches rank first.
func (s *PostgresStore) SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []*models.Item{}, nil
	}
	pat := likePattern(query)

	switch ct {
	case models.ContentSection:
		var rows []sectionRow
		if err := s.sectionKeywordQuery(&rows, pat, limit, filters).Scan(ctx); err != nil {
			return nil, persistErr("keyword search sections", err)
		}
		return sectionItems(rows), nil
	case models.ContentScenario:
		var rows []scenarioRow
		if err := s.scenarioKeywordQuery(&rows, pat, limit, filters).Scan(ctx); err != nil {
			return nil, persistErr("keyword search scenarios", err)
		}
		return scenarioItems(rows), nil
	default:
		return nil, unknownType(ct)
	}
}

func (s *PostgresStore) sectionKeywordQuery(rows *[]sectionRow, pat string, limit int, filters models.SearchFilters) *bun.SelectQuery {
	q := s.db.NewSelect().Model(rows).
		ExcludeColumn("embedding").
		Relation("Law").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("s.title ILIKE ?", pat).
				WhereOr("s.summary ILIKE ?", pat).
				WhereOr("s.content ILIKE ?", pat).
				WhereOr("s.section_number ILIKE ?", pat)
		}).
		OrderExpr("CASE WHEN s.title ILIKE ? THEN 0 ELSE 1 END", pat).
		OrderExpr("s.title, s.id").
		Limit(limit)
	if filters.LawSlug != "" {
		q = q.Where("law.slug = ?", filters.LawSlug)
	}
	return q
}

func (s *PostgresStore) scenarioKeywordQuery(rows *[]scenarioRow, pat string, limit int, filters models.SearchFilters) *bun.SelectQuery {
	q := s.db.NewSelect().Model(rows).
		ExcludeColumn("embedding").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("sc.title ILIKE ?", pat).
				WhereOr("sc.description ILIKE ?", pat).
				WhereOr("array_to_string(sc.keywords, ' ') ILIKE ?", pat)
		}).
		OrderExpr("CASE WHEN sc.title ILIKE ? THEN 0 ELSE 1 END", pat).
		OrderExpr("sc.title, sc.id").
		Limit(limit)
	if filters.Category != "" {
		q = q.Where("sc.category = ?", filters.Category)
	}
	return q
}

// SearchSemantic orders rows by pgvector cosine distance and keeps those at or above threshold.
// Rows whose text changed after they were embedded are skipped.
func (s *PostgresStore) SearchSemantic(ctx context.Context, ct models.ContentType, embedding []float32, limit int, threshold float64, filters models.SearchFilters) ([]*models.Item, error) {
	if limit <= 0 || len(embedding) == 0 {
		return []*models.Item{}, nil
	}
	q, err := s.semanticQuery(ct, embedding, limit, threshold, filters)
	if err != nil {
		return nil, err
	}
	var hits []similarityRow
	if err := q.Scan(ctx, &hits); err != nil {
		return nil, persistErr("semantic search "+string(ct)+"s", err)
	}
	if len(hits) == 0 {
		return []*models.Item{}, nil
	}

	ids := make([]string, len(hits))
	sim := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		sim[h.ID] = h.Similarity
	}
	items, err := s.GetItems(ctx, ct, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		it.Similarity = sim[it.ID]
	}
	return items, nil
}

func (s *PostgresStore) semanticQuery(ct models.ContentType, embedding []float32, limit int, threshold float64, filters models.SearchFilters) (*bun.SelectQuery, error) {
	vec := pgvector.NewVector(embedding)

	var q *bun.SelectQuery
	switch ct {
	case models.ContentSection:
		q = s.db.NewSelect().TableExpr("sections AS s")
		if filters.LawSlug != "" {
			q = q.Join("JOIN laws AS law ON law.id = s.law_id").Where("law.slug = ?", filters.LawSlug)
		}
	case models.ContentScenario:
		q = s.db.NewSelect().TableExpr("scenarios AS s")
		if filters.Category != "" {
			q = q.Where("s.category = ?", filters.Category)
		}
	default:
		return nil, unknownType(ct)
	}

	return q.
		ColumnExpr("s.id").
		ColumnExpr("1 - (s.embedding <=> ?::vector) AS similarity", vec).
		Where("s.embedding IS NOT NULL").
		Where("NOT s.stale").
		Where("1 - (s.embedding <=> ?::vector) >= ?", vec, threshold).
		OrderExpr("s.embedding <=> ?::vector", vec).
		OrderExpr("s.id").
		Limit(limit), nil
}

// GetItems returns items for ids in the order given.
func (s *PostgresStore) GetItems(ctx context.Context, ct models.ContentType, ids []string) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}
	switch ct {
	case models.ContentSection:
		var rows []sectionRow
		err := s.db.NewSelect().Model(&rows).
			ExcludeColumn("embedding").
			Relation("Law").
			Where("s.id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return nil, persistErr("get sections", err)
		}
		return orderByIDs(sectionItems(rows), ids), nil
	case models.ContentScenario:
		var rows []scenarioRow
		err := s.db.NewSelect().Model(&rows).
			ExcludeColumn("embedding").
			Where("sc.id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return nil, persistErr("get scenarios", err)
		}
		return orderByIDs(scenarioItems(rows), ids), nil
	default:
		return nil, unknownType(ct)
	}
}

func sectionItems(rows []sectionRow) []*models.Item {
	items := make([]*models.Item, len(rows))
	for i, r := range rows {
		items[i] = &models.Item{
			ID:      r.ID,
			Type:    models.ContentSection,
			Title:   r.Title,
			Number:  r.Number,
			Snippet: snippet(r.Summary, r.Content),
		}
		if r.Law != nil {
			items[i].LawSlug = r.Law.Slug
			items[i].LawTitle = r.Law.Title
		}
	}
	return items
}

func scenarioItems(rows []scenarioRow) []*models.Item {
	items := make([]*models.Item, len(rows))
	for i, r := range rows {
		items[i] = &models.Item{
			ID:       r.ID,
			Type:     models.ContentScenario,
			Title:    r.Title,
			Slug:     r.Slug,
			Category: r.Category,
			Snippet:  snippet(r.Description),
		}
	}
	return items
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
