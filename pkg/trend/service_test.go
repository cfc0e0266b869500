package trend

import (
	"context"
	"errors"
	"fmt"
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

type fakeCompleter struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func sampleTopics() []Topic {
	return []Topic{
		{Topic: "gpt-5", Frequency: 10, Growth: 400,
			RelatedArticles: []ArticleRef{{ID: "a", PublishedAt: now.Add(-3 * time.Hour)}, {ID: "b", PublishedAt: now.Add(-time.Hour)}},
			RelatedKeywords: []string{"openai", "launch"}},
		{Topic: "openai", Frequency: 6, Growth: 200,
			RelatedArticles: []ArticleRef{{ID: "b", PublishedAt: now.Add(-time.Hour)}, {ID: "c", PublishedAt: now.Add(-2 * time.Hour)}},
			RelatedKeywords: []string{"gpt-5", "pricing"}},
		{Topic: "robotics", Frequency: 3, Growth: 100,
			RelatedArticles: []ArticleRef{}, RelatedKeywords: []string{}},
	}
}

func TestMergeGroups(t *testing.T) {
	got, err := Merge(sampleTopics(), []Group{
		{Label: "GPT-5 Release", Keywords: []string{"GPT-5", "openai", "unknown"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	merged := got[0]
	assert.Equal(t, "GPT-5 Release", merged.Topic)
	assert.Equal(t, 16, merged.Frequency)
	assert.Equal(t, 400.0, merged.Growth)
	ids := []string{}
	for _, a := range merged.RelatedArticles {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids)
	assert.Equal(t, []string{"launch", "pricing"}, merged.RelatedKeywords)

	assert.Equal(t, "robotics", got[1].Topic, "ungrouped topics are kept")
}

func TestMergeWithoutUsableGroups(t *testing.T) {
	_, err := Merge(sampleTopics(), []Group{{Label: "x", Keywords: []string{"nope"}}})
	assert.Error(t, err)
	_, err = Merge(sampleTopics(), nil)
	assert.Error(t, err)
}

func TestLLMRefinerParsesGroups(t *testing.T) {
	c := &fakeCompleter{answer: "```json\n[{\"label\":\"Robots\",\"keywords\":[\"robotics\"]}]\n```"}
	got, err := NewLLMRefiner(c).Refine(context.Background(), 24, sampleTopics())
	require.NoError(t, err)
	_, ok := findTopic(got, "Robots")
	assert.True(t, ok)
	assert.Len(t, got, 3)
}

func TestLLMRefinerMalformedAnswer(t *testing.T) {
	c := &fakeCompleter{answer: "I could not find any groups."}
	_, err := NewLLMRefiner(c).Refine(context.Background(), 24, sampleTopics())
	var perr *llm.ParseError
	assert.ErrorAs(t, err, &perr)
}

func newService(t *testing.T, opts Options) (*Service, *store.SQLiteStore, *time.Time) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "trend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := now
	svc := NewService(s, opts)
	svc.now = func() time.Time { return clock }
	return svc, s, &clock
}

func seed(t *testing.T, s *store.SQLiteStore, articles ...source.Article) {
	t.Helper()
	for i := range articles {
		articles[i].ExternalID = articles[i].ID
		articles[i].CollectedAt = now
	}
	n, err := s.UpsertArticles(context.Background(), articles)
	require.NoError(t, err)
	require.Equal(t, len(articles), n)
}

func TestServiceCachesResult(t *testing.T) {
	ctx := context.Background()
	var events []event.Event
	bus := event.NewBus(event.ObserverFunc(func(_ context.Context, e event.Event) error {
		events = append(events, e)
		return nil
	}))
	svc, s, clock := newService(t, Options{CacheTTL: time.Hour, Bus: bus})

	seed(t, s, article("a1", time.Hour, "x", "mistral"))

	first, err := svc.Trending(ctx, 24, 10, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, first.Topics, 1)
	assert.Equal(t, now.Add(time.Hour), first.ExpiresAt)

	seed(t, s, article("a2", time.Hour, "x", "deepseek"))

	*clock = now.Add(30 * time.Minute)
	second, err := svc.Trending(ctx, 24, 10, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Len(t, second.Topics, 1, "cached result ignores new articles")

	forced, err := svc.Trending(ctx, 24, 10, true)
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.Len(t, forced.Topics, 2)

	*clock = now.Add(2 * time.Hour)
	expired, err := svc.Trending(ctx, 24, 10, false)
	require.NoError(t, err)
	assert.False(t, expired.Cached)

	require.Len(t, events, 3)
	assert.Equal(t, event.TrendingComputed, events[0].Type)
}

func TestServiceCacheIsPerWindow(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, Options{})
	seed(t, s, article("a1", 10*time.Hour, "x", "mistral"))

	day, err := svc.Trending(ctx, 24, 0, false)
	require.NoError(t, err)
	assert.Len(t, day.Topics, 1)

	short, err := svc.Trending(ctx, 6, 0, false)
	require.NoError(t, err)
	assert.False(t, short.Cached)
	assert.Empty(t, short.Topics)
}

func TestServiceAppliesLimit(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, Options{Limit: 2})
	for i := 0; i < 5; i++ {
		seed(t, s, article(fmt.Sprintf("a%d", i), time.Hour, "x", fmt.Sprintf("tag%d", i)))
	}

	res, err := svc.Trending(ctx, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 24, res.Hours)
	assert.Len(t, res.Topics, 2)

	res, err = svc.Trending(ctx, 0, 4, false)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Len(t, res.Topics, 4, "the full list is cached and limited on read")
}

func TestServiceCapAppliesPerWindow(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t, Options{MaxArticles: 4})
	for i := 0; i < 4; i++ {
		seed(t, s,
			article(fmt.Sprintf("cur%d", i), time.Duration(i+1)*time.Hour, "x", "gpt-5"),
			article(fmt.Sprintf("prev%d", i), time.Duration(i+25)*time.Hour, "x", "gpt-5"),
		)
	}

	res, err := svc.Trending(ctx, 24, 10, true)
	require.NoError(t, err)
	_, ok := findTopic(res.Topics, "gpt-5")
	assert.False(t, ok, "flat keyword with 4 articles per window is not trending")

	seed(t, s, article("cur4", 5*time.Hour, "x", "gpt-5"), article("cur5", 6*time.Hour, "x", "gpt-5"))
	res, err = svc.Trending(ctx, 24, 10, true)
	require.NoError(t, err)
	_, ok = findTopic(res.Topics, "gpt-5")
	assert.False(t, ok, "the cap trims the current window, not the previous one")
}

func TestServiceRefineFallback(t *testing.T) {
	ctx := context.Background()
	c := &fakeCompleter{err: errors.New("upstream timeout")}
	svc, s, _ := newService(t, Options{Refiner: NewLLMRefiner(c)})
	seed(t, s, article("a1", time.Hour, "x", "mistral"))

	res, err := svc.Trending(ctx, 24, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, c.calls)
	assert.False(t, res.Refined)
	require.Len(t, res.Topics, 1)
	assert.Equal(t, "mistral", res.Topics[0].Topic)
}

func TestServiceRefineApplied(t *testing.T) {
	ctx := context.Background()
	c := &fakeCompleter{answer: `[{"label":"Mistral AI","keywords":["mistral"]}]`}
	svc, s, _ := newService(t, Options{Refiner: NewLLMRefiner(c)})
	seed(t, s, article("a1", time.Hour, "x", "mistral"))

	res, err := svc.Trending(ctx, 24, 10, false)
	require.NoError(t, err)
	assert.True(t, res.Refined)
	assert.Equal(t, "Mistral AI", res.Topics[0].Topic)
}

func TestServiceEmptyCorpus(t *testing.T) {
	c := &fakeCompleter{}
	svc, _, _ := newService(t, Options{Refiner: NewLLMRefiner(c)})

	res, err := svc.Trending(context.Background(), 24, 10, false)
	require.NoError(t, err)
	assert.Empty(t, res.Topics)
	assert.Zero(t, c.calls, "nothing to refine")
}
