package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/metrics"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/event"
	"github.com/elonfeng/aipulse/pkg/source"
)

// ArticleStore is the persistence the Service needs.
type ArticleStore interface {
	ListArticles(ctx context.Context, opts store.ListOpts) ([]source.Article, error)
	GetTrendingCache(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	PutTrendingCache(ctx context.Context, key string, payload []byte, computedAt, expiresAt time.Time) error
}

// Options configures a Service. Zero values take defaults.
type Options struct {
	WindowHours int
	CacheTTL    time.Duration
	Limit       int
	// MaxArticles bounds how many articles are loaded per window.
	MaxArticles int
	Refiner     Refiner
	Bus         *event.Bus
}

// Result is a served trending list.
type Result struct {
	Hours      int       `json:"hours"`
	Topics     []Topic   `json:"topics"`
	Refined    bool      `json:"refined"`
	Cached     bool      `json:"cached"`
	ComputedAt time.Time `json:"computed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Service computes trending topics and caches them per window.
type Service struct {
	store       ArticleStore
	windowHours int
	ttl         time.Duration
	limit       int
	maxArticles int
	refiner     Refiner
	bus         *event.Bus
	now         func() time.Time
}

// NewService creates a trending service.
func NewService(s ArticleStore, opts Options) *Service {
	if opts.WindowHours <= 0 {
		opts.WindowHours = DefaultWindowHours
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 5000
	}
	return &Service{
		store:       s,
		windowHours: opts.WindowHours,
		ttl:         opts.CacheTTL,
		limit:       opts.Limit,
		maxArticles: opts.MaxArticles,
		refiner:     opts.Refiner,
		bus:         opts.Bus,
		now:         time.Now,
	}
}

// WindowHours returns the default window.
func (s *Service) WindowHours() int { return s.windowHours }

// Limit returns the default number of topics served.
func (s *Service) Limit() int { return s.limit }

// Trending returns up to limit topics for the given window. An unexpired cached
// result is served unless refresh is set. hours and limit <= 0 use the defaults.
func (s *Service) Trending(ctx context.Context, hours, limit int, refresh bool) (*Result, error) {
	if hours <= 0 {
		hours = s.windowHours
	}
	if limit <= 0 {
		limit = s.limit
	}
	now := s.now().UTC()
	key := cacheKey(hours)

	if !refresh {
		if res, ok := s.cached(ctx, key, now); ok {
			metrics.TrendingRequests.WithLabelValues("cache_hit").Inc()
			return res.limited(limit), nil
		}
	}

	res, err := s.compute(ctx, hours, now)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal trending result: %w", err)
	}
	if err := s.store.PutTrendingCache(ctx, key, payload, res.ComputedAt, res.ExpiresAt); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("trending cache write failed")
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, event.Event{
			Type:    event.TrendingComputed,
			Time:    now,
			Payload: map[string]any{"hours": hours, "topics": len(res.Topics), "refined": res.Refined},
		}); err != nil {
			logging.Warn().Err(err).Msg("publish trending event")
		}
	}

	return res.limited(limit), nil
}

func (s *Service) cached(ctx context.Context, key string, now time.Time) (*Result, bool) {
	payload, ok, err := s.store.GetTrendingCache(ctx, key, now)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("trending cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("trending cache entry unreadable")
		return nil, false
	}
	res.Cached = true
	return &res, true
}

func (s *Service) compute(ctx context.Context, hours int, now time.Time) (*Result, error) {
	articles, err := s.load(ctx, hours, now)
	if err != nil {
		return nil, err
	}

	topics := Score(articles, hours, now)
	refined := false
	if s.refiner != nil && len(topics) > 0 {
		out, err := s.refiner.Refine(ctx, hours, topics)
		if err != nil {
			metrics.TrendingRequests.WithLabelValues("refine_failed").Inc()
			logging.Warn().Err(err).Int("topics", len(topics)).Msg("trend refinement failed, using unrefined topics")
		} else {
			topics = out
			refined = true
		}
	}

	metrics.TrendingRequests.WithLabelValues("computed").Inc()
	metrics.TrendingTopics.Set(float64(len(topics)))
	logging.Info().Int("hours", hours).Int("articles", len(articles)).Int("topics", len(topics)).
		Bool("refined", refined).Msg("trending computed")

	return &Result{
		Hours:      hours,
		Topics:     topics,
		Refined:    refined,
		ComputedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}, nil
}

// load reads the current and previous windows with separate queries so the
// article cap never trims one window in favour of the other.
func (s *Service) load(ctx context.Context, hours int, now time.Time) ([]source.Article, error) {
	span := time.Duration(hours) * time.Hour
	windows := []struct {
		name         string
		since, until time.Time
	}{
		{"current", now.Add(-span), now},
		{"previous", now.Add(-2 * span), now.Add(-span)},
	}

	seen := make(map[string]bool)
	var all []source.Article
	for _, w := range windows {
		articles, err := s.store.ListArticles(ctx, store.ListOpts{Since: w.since, Until: w.until, Limit: s.maxArticles})
		if err != nil {
			return nil, fmt.Errorf("list %s window articles: %w", w.name, err)
		}
		if len(articles) >= s.maxArticles {
			logging.Warn().Str("window", w.name).Int("hours", hours).Int("cap", s.maxArticles).
				Msg("trending window reached the article cap, oldest articles ignored")
		}
		for _, a := range articles {
			// Both queries include the shared boundary instant.
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			all = append(all, a)
		}
	}
	return all, nil
}

func (r *Result) limited(limit int) *Result {
	if len(r.Topics) > limit {
		r.Topics = r.Topics[:limit]
	}
	return r
}

func cacheKey(hours int) string {
	return fmt.Sprintf("trending:%dh", hours)
}
