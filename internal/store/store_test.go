package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func TestArticleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := source.Article{
		ID: "rss:feed:1", Source: source.SourceRSS, ExternalID: "1",
		Title: "OpenAI launches GPT-5", URL: "https://example.com/1",
		Language: "en", Tags: []string{"gpt-5", "openai"},
		PublishedAt: base.Add(-time.Hour), CollectedAt: base,
	}
	require.NoError(t, s.UpsertArticle(ctx, &a))

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, []string{"gpt-5", "openai"}, got.Tags)
	assert.True(t, got.PublishedAt.Equal(a.PublishedAt))

	// A later collect without a translation keeps the stored one.
	a.TitleTranslated = "오픈AI GPT-5 출시"
	require.NoError(t, s.UpsertArticle(ctx, &a))
	a.TitleTranslated = ""
	require.NoError(t, s.UpsertArticle(ctx, &a))
	got, err = s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "오픈AI GPT-5 출시", got.TitleTranslated)

	_, err = s.GetArticle(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertArticlesSkipsConflictingRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mk := func(id, externalID string) source.Article {
		return source.Article{
			ID: id, Source: source.SourceRSS, ExternalID: externalID, Title: id,
			PublishedAt: base, CollectedAt: base,
		}
	}
	batch := []source.Article{
		mk("rss:feed-a:g1", "g1"),
		mk("rss:feed-b:g1", "g1"), // same (source, external_id), different id
		mk("rss:feed-a:g2", "g2"),
	}

	n, err := s.UpsertArticles(ctx, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rss:feed-b:g1")
	assert.Equal(t, 2, n)

	for _, id := range []string{"rss:feed-a:g1", "rss:feed-a:g2"} {
		_, err := s.GetArticle(ctx, id)
		assert.NoError(t, err, id)
	}

	// Feed-scoped external ids keep both copies.
	n, err = s.UpsertArticles(ctx, []source.Article{mk("rss:feed-b:g1", "feed-b:g1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := s.CountArticlesBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[source.SourceRSS])
}

func TestListArticlesWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, age := range []time.Duration{time.Hour, 30 * time.Hour, 60 * time.Hour} {
		a := source.Article{
			ID: string(rune('a' + i)), Source: source.SourceHackerNews, ExternalID: string(rune('a' + i)),
			Title: "t", PublishedAt: base.Add(-age), CollectedAt: base,
		}
		require.NoError(t, s.UpsertArticle(ctx, &a))
	}

	got, err := s.ListArticles(ctx, ListOpts{Since: base.Add(-48 * time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID, "newest first")

	counts, err := s.CountArticlesBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[source.SourceHackerNews])
}

func TestGraphPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"x", "y"} {
		a := source.Article{ID: id, Source: source.SourceRSS, ExternalID: id, Title: id, PublishedAt: base, CollectedAt: base}
		require.NoError(t, s.UpsertArticle(ctx, &a))
	}
	require.NoError(t, s.MarkGraphProcessed(ctx, "x", base))

	pending, err := s.ListGraphPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "y", pending[0].ID)
}

func TestTrendingCacheExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutTrendingCache(ctx, "24h", []byte(`[1]`), base, base.Add(time.Hour)))

	payload, ok, err := s.GetTrendingCache(ctx, "24h", base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[1]`, string(payload))

	_, ok, err = s.GetTrendingCache(ctx, "24h", base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expired at exactly expires_at")

	_, ok, err = s.GetTrendingCache(ctx, "6h", base)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertEntityByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &Entity{ID: "e1", Name: "OpenAI", Type: "organization", CreatedAt: base}
	created, err := s.UpsertEntity(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	again := &Entity{ID: "e2", Name: "OpenAI", Type: "company", CreatedAt: base}
	created, err = s.UpsertEntity(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "e1", again.ID)
	assert.Equal(t, "organization", again.Type, "existing type is kept")

	n, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRelationIncrementsWeight(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 1; i <= 5; i++ {
		r := &Relation{
			ID: "r" + string(rune('0'+i)), SourceID: "a", TargetID: "b", Type: "develops",
			Weight: 0.7, Evidence: []Evidence{{ArticleID: "art", Quote: "a develops b"}},
			FirstSeen: base, LastSeen: base.Add(time.Duration(i) * time.Hour),
		}
		inserted, err := s.UpsertRelation(ctx, r, 0.1, 1.0)
		require.NoError(t, err)
		assert.Equal(t, i == 1, inserted)
		assert.Equal(t, "r1", r.ID)
		assert.InDelta(t, min(1.0, 0.7+0.1*float64(i-1)), r.Weight, 1e-9)
		assert.True(t, r.LastSeen.Equal(base.Add(time.Duration(i)*time.Hour)))
		assert.Len(t, r.Evidence, 1)
	}

	n, err := s.CountRelations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRelationConcurrentWriters(t *testing.T) {
	for _, n := range []int{3, 8} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)

			var inserted atomic.Int32
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < n; i++ {
				i := i
				g.Go(func() error {
					r := &Relation{
						ID: fmt.Sprintf("r%d", i), SourceID: "openai", TargetID: "gpt-5", Type: "develops",
						Weight: 0.7, FirstSeen: base, LastSeen: base,
					}
					ok, err := s.UpsertRelation(gctx, r, 0.1, 1.0)
					if ok {
						inserted.Add(1)
					}
					return err
				})
			}
			require.NoError(t, g.Wait())
			assert.EqualValues(t, 1, inserted.Load())

			count, err := s.CountRelations(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			rels, err := s.ListRelations(ctx, "openai")
			require.NoError(t, err)
			require.Len(t, rels, 1)
			assert.InDelta(t, min(1.0, 0.7+0.1*float64(n-1)), rels[0].Weight, 1e-9)
		})
	}
}

func TestNeighbors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.UpsertEntity(ctx, &Entity{ID: name, Name: "N-" + name, CreatedAt: base})
		require.NoError(t, err)
	}
	edges := [][2]string{{"a", "b"}, {"c", "a"}, {"b", "d"}, {"d", "e"}}
	for i, e := range edges {
		_, err := s.UpsertRelation(ctx, &Relation{
			ID: string(rune('0' + i)), SourceID: e[0], TargetID: e[1], Type: "related_to",
			Weight: 0.7, FirstSeen: base, LastSeen: base,
		}, 0.1, 1.0)
		require.NoError(t, err)
	}

	got, err := s.Neighbors(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 1, got[0].Depth)
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, "d", got[2].ID)
	assert.Equal(t, 2, got[2].Depth)

	got, err = s.Neighbors(ctx, "zzz", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	rels, err := s.ListRelations(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	found, err := s.SearchEntities(ctx, "n-", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestCardsDue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cards := []Card{
		{UserID: "u1", ItemID: "later", EaseFactor: 2.5, IntervalDays: 6, DueAt: base.Add(48 * time.Hour), LastReviewedAt: base},
		{UserID: "u1", ItemID: "now", EaseFactor: 2.5, IntervalDays: 1, DueAt: base.Add(-time.Hour), LastReviewedAt: base},
		{UserID: "u2", ItemID: "other", EaseFactor: 2.5, IntervalDays: 1, DueAt: base.Add(-time.Hour), LastReviewedAt: base},
	}
	for i := range cards {
		require.NoError(t, s.SaveCard(ctx, &cards[i]))
	}

	due, err := s.ListDueCards(ctx, "u1", base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "now", due[0].ItemID)

	cards[0].Repetitions = 3
	require.NoError(t, s.SaveCard(ctx, &cards[0]))
	got, err := s.GetCard(ctx, "u1", "later")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Repetitions)

	_, err = s.GetCard(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
