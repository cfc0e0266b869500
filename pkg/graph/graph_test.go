package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/event"
	"github.com/elonfeng/aipulse/pkg/llm"
	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleExtraction() Extraction {
	return Extraction{
		Entities: []ExtractedEntity{
			{Name: "OpenAI", Type: "organization"},
			{Name: "GPT-5", Type: "model"},
			{Name: " OpenAI ", Type: "company"},
			{Name: "", Type: "model"},
		},
		Relations: []ExtractedRelation{
			{Source: "OpenAI", Target: "GPT-5", Type: "develops", Evidence: "OpenAI unveiled GPT-5"},
			{Source: "OpenAI", Target: "Anthropic", Type: "competes_with"},
			{Source: "GPT-5", Target: "GPT-5", Type: "based_on"},
		},
	}
}

func TestIngestCreatesAndSkips(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := NewIngester(s)

	res, err := in.Ingest(ctx, "rss:1", sampleExtraction())
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntitiesCreated)
	assert.Equal(t, 0, res.EntitiesMatched)
	assert.Equal(t, 1, res.RelationsInserted)
	assert.Equal(t, 2, res.RelationsSkipped)

	found, err := s.SearchEntities(ctx, "openai", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "organization", found[0].Type)

	rels, err := s.ListRelations(ctx, found[0].ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "develops", rels[0].Type)
	assert.Equal(t, InitialWeight, rels[0].Weight)
	assert.Equal(t, []store.Evidence{{ArticleID: "rss:1", Quote: "OpenAI unveiled GPT-5"}}, rels[0].Evidence)
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := NewIngester(s)

	for n := 1; n <= 6; n++ {
		res, err := in.Ingest(ctx, "rss:1", sampleExtraction())
		require.NoError(t, err)
		if n > 1 {
			assert.Equal(t, 0, res.EntitiesCreated)
			assert.Equal(t, 2, res.EntitiesMatched)
			assert.Equal(t, 1, res.RelationsReinforced)
		}

		entities, err := s.CountEntities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, entities)
		relations, err := s.CountRelations(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, relations)

		found, err := s.SearchEntities(ctx, "openai", 1)
		require.NoError(t, err)
		rels, err := s.ListRelations(ctx, found[0].ID)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.InDelta(t, min(MaxWeight, InitialWeight+WeightStep*float64(n-1)), rels[0].Weight, 1e-9)
	}
}

func TestIngestRelationTypeIsPartOfKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	in := NewIngester(s)

	x := Extraction{
		Entities: []ExtractedEntity{{Name: "Meta"}, {Name: "Llama 4"}},
		Relations: []ExtractedRelation{
			{Source: "Meta", Target: "Llama 4", Type: "Releases"},
			{Source: "Meta", Target: "Llama 4", Type: "develops"},
			{Source: "Llama 4", Target: "Meta", Type: "releases"},
			{Source: "Meta", Target: "Llama 4"},
		},
	}
	res, err := in.Ingest(ctx, "", x)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RelationsInserted)
}

type fakeExtractor struct {
	byArticle map[string]Extraction
	errs      map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, a source.Article) (Extraction, error) {
	if err := f.errs[a.ID]; err != nil {
		return Extraction{}, err
	}
	return f.byArticle[a.ID], nil
}

func seedArticles(t *testing.T, s *store.SQLiteStore, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, s.UpsertArticle(context.Background(), &source.Article{
			ID: id, Source: source.SourceRSS, ExternalID: id, Title: "title " + id,
			PublishedAt: now.Add(time.Duration(i) * time.Minute), CollectedAt: now,
		}))
	}
}

func TestPipelineRunPending(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedArticles(t, s, "ok", "timeout", "garbled")

	x := &fakeExtractor{
		byArticle: map[string]Extraction{"ok": sampleExtraction()},
		errs: map[string]error{
			"timeout": errors.New("context deadline exceeded"),
			"garbled": &llm.ParseError{Raw: "nope", Err: errors.New("no json value found")},
		},
	}
	var events []event.Event
	bus := event.NewBus(event.ObserverFunc(func(_ context.Context, e event.Event) error {
		events = append(events, e)
		return nil
	}))

	p := NewPipeline(s, x, NewIngester(s), bus, 10)
	sum, err := p.RunPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Articles)
	assert.Equal(t, 2, sum.Failed)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "ok", sum.Results[0].ArticleID)

	require.Len(t, events, 1)
	assert.Equal(t, event.GraphIngested, events[0].Type)

	pending, err := s.ListGraphPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the transient failure is retried")
	assert.Equal(t, "timeout", pending[0].ID)
}

func TestPipelineIngestArticle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	seedArticles(t, s, "a1")

	p := NewPipeline(s, &fakeExtractor{byArticle: map[string]Extraction{"a1": sampleExtraction()}}, NewIngester(s), nil, 0)
	res, err := p.IngestArticle(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.EntitiesCreated)

	_, err = p.IngestArticle(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExtractorParsesAnswer(t *testing.T) {
	c := completerFunc(func(context.Context, string) (string, error) {
		return "Here you go:\n```json\n" +
			`{"entities":[{"name":"Anthropic","type":"organization"},{"name":"Claude","type":"model"}],` +
			`"relations":[{"source":"Anthropic","target":"Claude","type":"develops","evidence":"Anthropic released Claude"}]}` +
			"\n```", nil
	})
	x, err := NewExtractor(c).Extract(context.Background(), source.Article{ID: "a", Title: "Claude update"})
	require.NoError(t, err)
	assert.Len(t, x.Entities, 2)
	require.Len(t, x.Relations, 1)
	assert.Equal(t, "develops", x.Relations[0].Type)
}

func TestExtractorMalformedAnswer(t *testing.T) {
	c := completerFunc(func(context.Context, string) (string, error) { return "no entities here", nil })
	_, err := NewExtractor(c).Extract(context.Background(), source.Article{ID: "a"})
	var perr *llm.ParseError
	assert.ErrorAs(t, err, &perr)
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func TestBrowser(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := NewIngester(s).Ingest(ctx, "", Extraction{
		Entities: []ExtractedEntity{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E"}},
		Relations: []ExtractedRelation{
			{Source: "A", Target: "B"}, {Source: "B", Target: "C"}, {Source: "C", Target: "D"}, {Source: "D", Target: "E"},
		},
	})
	require.NoError(t, err)

	b := NewBrowser(s)
	found, err := b.Search(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	a := found[0]

	got, err := b.Neighbors(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3, "depth is clamped to MaxDepth")

	got, err = b.Neighbors(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)

	rels, err := b.Relations(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	_, err = b.Neighbors(ctx, "missing", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	none, err := b.Search(ctx, "zzz", 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
