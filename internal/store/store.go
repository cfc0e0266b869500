package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// ListOpts controls article listing. Since and Until bound published_at.
type ListOpts struct {
	Source source.SourceType
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Store is the persistence interface.
type Store interface {
	UpsertArticle(ctx context.Context, a *source.Article) error
	UpsertArticles(ctx context.Context, articles []source.Article) (int, error)
	GetArticle(ctx context.Context, id string) (*source.Article, error)
	ListArticles(ctx context.Context, opts ListOpts) ([]source.Article, error)
	CountArticlesBySource(ctx context.Context) (map[source.SourceType]int, error)
	ListGraphPending(ctx context.Context, limit int) ([]source.Article, error)
	MarkGraphProcessed(ctx context.Context, articleID string, at time.Time) error

	GetTrendingCache(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	PutTrendingCache(ctx context.Context, key string, payload []byte, computedAt, expiresAt time.Time) error

	UpsertEntity(ctx context.Context, e *Entity) (bool, error)
	GetEntity(ctx context.Context, id string) (*Entity, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error)
	CountEntities(ctx context.Context) (int, error)
	UpsertRelation(ctx context.Context, r *Relation, step, maxWeight float64) (bool, error)
	ListRelations(ctx context.Context, entityID string) ([]Relation, error)
	CountRelations(ctx context.Context) (int, error)
	AddMention(ctx context.Context, entityID, articleID string) error
	Neighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error)

	GetCard(ctx context.Context, userID, itemID string) (*Card, error)
	SaveCard(ctx context.Context, c *Card) error
	ListDueCards(ctx context.Context, userID string, asOf time.Time, limit int) ([]Card, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const articleColumns = `id, source, external_id, title, title_translated, url, summary, author, language, tags, published_at, collected_at`

func (s *SQLiteStore) UpsertArticle(ctx context.Context, a *source.Article) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags %s: %w", a.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			title_translated = CASE WHEN excluded.title_translated != '' THEN excluded.title_translated ELSE articles.title_translated END,
			url = excluded.url,
			summary = excluded.summary,
			tags = excluded.tags,
			collected_at = excluded.collected_at
	`, a.ID, a.Source, a.ExternalID, a.Title, a.TitleTranslated, a.URL, a.Summary,
		a.Author, a.Language, string(tagsJSON), a.PublishedAt.UTC(), a.CollectedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert article %s: %w", a.ID, err)
	}
	return nil
}

// UpsertArticles stores each article on its own. A row that fails is skipped
// and its error joined into the result; n counts the rows stored.
func (s *SQLiteStore) UpsertArticles(ctx context.Context, articles []source.Article) (int, error) {
	var (
		n    int
		errs []error
	)
	for i := range articles {
		if err := s.UpsertArticle(ctx, &articles[i]); err != nil {
			if ctx.Err() != nil {
				return n, err
			}
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*source.Article, error) {
	var a source.Article
	err := s.db.GetContext(ctx, &a, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get article %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	decodeTags(&a)
	return &a, nil
}

func (s *SQLiteStore) ListArticles(ctx context.Context, opts ListOpts) ([]source.Article, error) {
	query := "SELECT " + articleColumns + " FROM articles WHERE 1=1"
	var args []any

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if !opts.Since.IsZero() {
		query += " AND published_at >= ?"
		args = append(args, opts.Since.UTC())
	}
	if !opts.Until.IsZero() {
		query += " AND published_at <= ?"
		args = append(args, opts.Until.UTC())
	}

	query += " ORDER BY published_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var articles []source.Article
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	for i := range articles {
		decodeTags(&articles[i])
	}
	return articles, nil
}

func (s *SQLiteStore) CountArticlesBySource(ctx context.Context) (map[source.SourceType]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source, COUNT(*) AS cnt FROM articles GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count articles by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[source.SourceType]int)
	for rows.Next() {
		var src string
		var cnt int
		if err := rows.Scan(&src, &cnt); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		counts[source.SourceType(src)] = cnt
	}
	return counts, rows.Err()
}

// ListGraphPending returns articles not yet run through entity extraction, oldest first.
func (s *SQLiteStore) ListGraphPending(ctx context.Context, limit int) ([]source.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	var articles []source.Article
	err := s.db.SelectContext(ctx, &articles,
		"SELECT "+articleColumns+" FROM articles WHERE graph_processed_at IS NULL ORDER BY published_at ASC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("list graph pending: %w", err)
	}
	for i := range articles {
		decodeTags(&articles[i])
	}
	return articles, nil
}

func (s *SQLiteStore) MarkGraphProcessed(ctx context.Context, articleID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE articles SET graph_processed_at = ? WHERE id = ?", at.UTC(), articleID)
	if err != nil {
		return fmt.Errorf("mark graph processed %s: %w", articleID, err)
	}
	return nil
}

// GetTrendingCache returns the cached payload for key if it has not expired at now.
func (s *SQLiteStore) GetTrendingCache(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var row struct {
		Payload   string    `db:"payload"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT payload, expires_at FROM trending_cache WHERE cache_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get trending cache %s: %w", key, err)
	}
	if !now.Before(row.ExpiresAt) {
		return nil, false, nil
	}
	return []byte(row.Payload), true, nil
}

func (s *SQLiteStore) PutTrendingCache(ctx context.Context, key string, payload []byte, computedAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trending_cache (cache_key, payload, computed_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload = excluded.payload,
			computed_at = excluded.computed_at,
			expires_at = excluded.expires_at
	`, key, string(payload), computedAt.UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("put trending cache %s: %w", key, err)
	}
	return nil
}

func decodeTags(a *source.Article) {
	if a.TagsJSON == "" {
		return
	}
	_ = json.Unmarshal([]byte(a.TagsJSON), &a.Tags)
}
