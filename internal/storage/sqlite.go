package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/catuchi/LawMadeSimple-sub002/internal/contenthash"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
	"github.com/catuchi/LawMadeSimple-sub002/internal/vector"
)

// sqliteDriver is go-sqlite3 with a unicode_lower function, since SQLite's LOWER only folds
// ASCII letters.
const sqliteDriver = "sqlite3_lawsearch"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

// SQLiteStorage implements Store using SQLite. Embeddings are stored as float32 blobs and
// compared in process; it is meant for local development and tests.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(sqliteDriver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS laws (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sections (
		id TEXT PRIMARY KEY,
		law_id TEXT NOT NULL,
		section_number TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		content_hash TEXT,
		stale INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (law_id) REFERENCES laws(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sections_law_id ON sections(law_id);

	CREATE TABLE IF NOT EXISTS scenarios (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		category TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		content_hash TEXT,
		stale INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scenarios_category ON scenarios(category);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	// Databases created before the stale flag existed get the column added in place.
	for _, table := range []string{"sections", "scenarios"} {
		if err := addColumnIfMissing(db, table, "stale", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + decl)
	return err
}


func tableFor(ct models.ContentType) (string, error) {
	switch ct {
	case models.ContentSection:
		return "sections", nil
	case models.ContentScenario:
		return "scenarios", nil
	default:
		return "", unknownType(ct)
	}
}

func blobOrNull(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vector.Encode(v)
}

func textOrNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// CreateLaw inserts a law. An empty ID is replaced by a new UUID.
func (s *SQLiteStorage) CreateLaw(ctx context.Context, law *models.Law) error {
	if law.ID == "" {
		law.ID = uuid.NewString()
	}
	law.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO laws (id, slug, title, created_at) VALUES (?, ?, ?, ?)`,
		law.ID, law.Slug, law.Title, law.CreatedAt,
	)
	if err != nil {
		return persistErr("create law", err)
	}
	return nil
}

// CreateSection inserts a section. An empty ID is replaced by a new UUID.
func (s *SQLiteStorage) CreateSection(ctx context.Context, sec *models.Section) error {
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	now := time.Now()
	sec.CreatedAt = now
	sec.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (id, law_id, section_number, title, summary, content, embedding, content_hash, stale, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.ID, sec.LawID, sec.Number, sec.Title, sec.Summary, sec.Content,
		blobOrNull(sec.Embedding), textOrNull(sec.ContentHash),
		staleOnCreate(sec.Embedding, sec.ContentHash, sec.EmbeddingText()), sec.CreatedAt, sec.UpdatedAt,
	)
	if err != nil {
		return persistErr("create section", err)
	}
	return nil
}

// CreateScenario inserts a scenario. An empty ID is replaced by a new UUID.
func (s *SQLiteStorage) CreateScenario(ctx context.Context, sc *models.Scenario) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	keywords, err := json.Marshal(nonNil(sc.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	now := time.Now()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, slug, title, description, keywords, category, embedding, content_hash, stale, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Slug, sc.Title, sc.Description, string(keywords), sc.Category,
		blobOrNull(sc.Embedding), textOrNull(sc.ContentHash),
		staleOnCreate(sc.Embedding, sc.ContentHash, sc.EmbeddingText()), sc.CreatedAt, sc.UpdatedAt,
	)
	if err != nil {
		return persistErr("create scenario", err)
	}
	return nil
}

// sqliteStaleExpr flags a row whose stored hash no longer matches the hash of its new text.
const sqliteStaleExpr = `stale = CASE WHEN content_hash IS NULL OR content_hash <> ? THEN 1 ELSE 0 END`

// UpdateSection updates the text fields of an existing section. The embedding is kept but
// excluded from vector search until it is regenerated for the new text.
func (s *SQLiteStorage) UpdateSection(ctx context.Context, sec *models.Section) error {
	sec.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sections SET law_id = ?, section_number = ?, title = ?, summary = ?, content = ?, updated_at = ?, `+sqliteStaleExpr+`
		 WHERE id = ?`,
		sec.LawID, sec.Number, sec.Title, sec.Summary, sec.Content, sec.UpdatedAt,
		contenthash.Hash(sec.EmbeddingText()), sec.ID,
	)
	return checkAffected("update section", sec.ID, result, err)
}

// UpdateScenario updates the text fields of an existing scenario. Like UpdateSection, a
// text change parks the old embedding until it is regenerated.
func (s *SQLiteStorage) UpdateScenario(ctx context.Context, sc *models.Scenario) error {
	keywords, err := json.Marshal(nonNil(sc.Keywords))
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	sc.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE scenarios SET slug = ?, title = ?, description = ?, keywords = ?, category = ?, updated_at = ?, `+sqliteStaleExpr+`
		 WHERE id = ?`,
		sc.Slug, sc.Title, sc.Description, string(keywords), sc.Category, sc.UpdatedAt,
		contenthash.Hash(sc.EmbeddingText()), sc.ID,
	)
	return checkAffected("update scenario", sc.ID, result, err)
}

func checkAffected(op, id string, result sql.Result, err error) error {
	if err != nil {
		return persistErr(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return persistErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func decodeKeywords(raw string) []string {
	var kw []string
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &kw); err != nil {
		return nil
	}
	return kw
}

// ListContent returns text projections without touching the embedding column.
func (s *SQLiteStorage) ListContent(ctx context.Context, ct models.ContentType, ids []string) ([]*models.ContentDoc, error) {
	if ids != nil && len(ids) == 0 {
		return []*models.ContentDoc{}, nil
	}
	var (
		query string
		args  []any
	)
	switch ct {
	case models.ContentSection:
		query = `SELECT s.id, s.title, s.summary, s.content, COALESCE(s.content_hash, ''), COALESCE(l.slug, '')
			FROM sections s LEFT JOIN laws l ON l.id = s.law_id`
		if ids != nil {
			ph, a := placeholders(ids)
			query += ` WHERE s.id IN (` + ph + `)`
			args = a
		}
		query += ` ORDER BY s.id`
	case models.ContentScenario:
		query = `SELECT id, title, description, keywords, category, COALESCE(content_hash, '') FROM scenarios`
		if ids != nil {
			ph, a := placeholders(ids)
			query += ` WHERE id IN (` + ph + `)`
			args = a
		}
		query += ` ORDER BY id`
	default:
		return nil, unknownType(ct)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list content", err)
	}
	defer rows.Close()

	var docs []*models.ContentDoc
	for rows.Next() {
		doc := &models.ContentDoc{Type: ct}
		switch ct {
		case models.ContentSection:
			var summary, content string
			if err := rows.Scan(&doc.ID, &doc.Title, &summary, &content, &doc.ContentHash, &doc.LawSlug); err != nil {
				return nil, persistErr("scan section", err)
			}
			doc.Text = models.SectionEmbeddingText(doc.Title, summary, content)
		case models.ContentScenario:
			var description, keywords string
			if err := rows.Scan(&doc.ID, &doc.Title, &description, &keywords, &doc.Category, &doc.ContentHash); err != nil {
				return nil, persistErr("scan scenario", err)
			}
			doc.Text = models.ScenarioEmbeddingText(doc.Title, description, decodeKeywords(keywords))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list content", err)
	}
	return docs, nil
}

// UpdateEmbedding stores the embedding and content hash for one row and clears its stale flag.
func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, ct models.ContentType, id string, embedding []float32, contentHash string) error {
	table, err := tableFor(ct)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET embedding = ?, content_hash = ?, stale = 0 WHERE id = ?`,
		blobOrNull(embedding), textOrNull(contentHash), id,
	)
	return checkAffected("update embedding", id, result, err)
}

// CountContent returns the number of rows and the number with an embedding.
func (s *SQLiteStorage) CountContent(ctx context.Context, ct models.ContentType) (int64, int64, error) {
	table, err := tableFor(ct)
	if err != nil {
		return 0, 0, err
	}
	var total, embedded int64
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(embedding) FROM `+table).Scan(&total, &embedded)
	if err != nil {
		return 0, 0, persistErr("count "+table, err)
	}
	return total, embedded, nil
}

const sqliteSectionItemSelect = `SELECT s.id, s.section_number, s.title, s.summary, s.content, COALESCE(l.slug, ''), COALESCE(l.title, '')
	FROM sections s LEFT JOIN laws l ON l.id = s.law_id`

const sqliteScenarioItemSelect = `SELECT id, slug, title, description, category FROM scenarios`

// SearchKeyword runs a case-insensitive substring match. Title matches rank first. Both
// sides are folded with Unicode rules, so "ÉVICTION" matches "éviction".
func (s *SQLiteStorage) SearchKeyword(ctx context.Context, ct models.ContentType, query string, limit int, filters models.SearchFilters) ([]*models.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []*models.Item{}, nil
	}
	pat := likePattern(query)

	var (
		q    string
		args []any
	)
	switch ct {
	case models.ContentSection:
		q = sqliteSectionItemSelect + `
			WHERE (unicode_lower(s.title) LIKE ? ESCAPE '\' OR unicode_lower(s.summary) LIKE ? ESCAPE '\'
				OR unicode_lower(s.content) LIKE ? ESCAPE '\' OR unicode_lower(s.section_number) LIKE ? ESCAPE '\')`
		args = []any{pat, pat, pat, pat}
		if filters.LawSlug != "" {
			q += ` AND l.slug = ?`
			args = append(args, filters.LawSlug)
		}
		q += ` ORDER BY CASE WHEN unicode_lower(s.title) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, s.title, s.id LIMIT ?`
		args = append(args, pat, limit)
	case models.ContentScenario:
		q = sqliteScenarioItemSelect + `
			WHERE (unicode_lower(title) LIKE ? ESCAPE '\' OR unicode_lower(description) LIKE ? ESCAPE '\'
				OR unicode_lower(keywords) LIKE ? ESCAPE '\')`
		args = []any{pat, pat, pat}
		if filters.Category != "" {
			q += ` AND category = ?`
			args = append(args, filters.Category)
		}
		q += ` ORDER BY CASE WHEN unicode_lower(title) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, title, id LIMIT ?`
		args = append(args, pat, limit)
	default:
		return nil, unknownType(ct)
	}
	return s.queryItems(ctx, ct, q, args...)
}

// SearchSemantic scores every current embedding of the family by cosine similarity. Rows
// whose text changed after they were embedded are skipped.
func (s *SQLiteStorage) SearchSemantic(ctx context.Context, ct models.ContentType, embedding []float32, limit int, threshold float64, filters models.SearchFilters) ([]*models.Item, error) {
	if limit <= 0 || len(embedding) == 0 {
		return []*models.Item{}, nil
	}
	var (
		q    string
		args []any
	)
	switch ct {
	case models.ContentSection:
		q = `SELECT s.id, s.embedding FROM sections s LEFT JOIN laws l ON l.id = s.law_id WHERE s.embedding IS NOT NULL AND s.stale = 0`
		if filters.LawSlug != "" {
			q += ` AND l.slug = ?`
			args = append(args, filters.LawSlug)
		}
	case models.ContentScenario:
		q = `SELECT id, embedding FROM scenarios WHERE embedding IS NOT NULL AND stale = 0`
		if filters.Category != "" {
			q += ` AND category = ?`
			args = append(args, filters.Category)
		}
	default:
		return nil, unknownType(ct)
	}

	candidates, err := s.loadVectors(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	matches := vector.TopK(embedding, candidates, threshold, limit)
	if len(matches) == 0 {
		return []*models.Item{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	items, err := s.GetItems(ctx, ct, ids)
	if err != nil {
		return nil, err
	}
	sim := make(map[string]float64, len(matches))
	for _, m := range matches {
		sim[m.ID] = m.Similarity
	}
	for _, it := range items {
		it.Similarity = sim[it.ID]
	}
	return items, nil
}

func (s *SQLiteStorage) loadVectors(ctx context.Context, q string, args ...any) ([]vector.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("load embeddings", err)
	}
	defer rows.Close()

	var out []vector.Candidate
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, persistErr("scan embedding", err)
		}
		v, err := vector.Decode(blob)
		if err != nil {
			return nil, persistErr("decode embedding "+id, err)
		}
		out = append(out, vector.Candidate{ID: id, Vector: v})
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("load embeddings", err)
	}
	return out, nil
}

// GetItems returns items for ids in the order given.
func (s *SQLiteStorage) GetItems(ctx context.Context, ct models.ContentType, ids []string) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}
	ph, args := placeholders(ids)
	var q string
	switch ct {
	case models.ContentSection:
		q = sqliteSectionItemSelect + ` WHERE s.id IN (` + ph + `)`
	case models.ContentScenario:
		q = sqliteScenarioItemSelect + ` WHERE id IN (` + ph + `)`
	default:
		return nil, unknownType(ct)
	}
	items, err := s.queryItems(ctx, ct, q, args...)
	if err != nil {
		return nil, err
	}
	return orderByIDs(items, ids), nil
}

func (s *SQLiteStorage) queryItems(ctx context.Context, ct models.ContentType, q string, args ...any) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("query "+string(ct)+"s", err)
	}
	defer rows.Close()

	items := []*models.Item{}
	for rows.Next() {
		it := &models.Item{Type: ct}
		switch ct {
		case models.ContentSection:
			var summary, content string
			if err := rows.Scan(&it.ID, &it.Number, &it.Title, &summary, &content, &it.LawSlug, &it.LawTitle); err != nil {
				return nil, persistErr("scan section", err)
			}
			it.Snippet = snippet(summary, content)
		case models.ContentScenario:
			var description string
			if err := rows.Scan(&it.ID, &it.Slug, &it.Title, &description, &it.Category); err != nil {
				return nil, persistErr("scan scenario", err)
			}
			it.Snippet = snippet(description)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query "+string(ct)+"s", err)
	}
	return items, nil
}

// Migrate re-applies the idempotent schema.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := initSchema(s.db); err != nil {
		return persistErr("migrate", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStorage)(nil)
