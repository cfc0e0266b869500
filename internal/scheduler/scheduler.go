package scheduler

import (
	"context"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/pkg/graph"
	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/elonfeng/aipulse/pkg/trend"
	"github.com/rs/zerolog"
)

// Intervals configures how often each job runs.
type Intervals struct {
	Collect time.Duration
	Trend   time.Duration
	Graph   time.Duration
}

// Scheduler runs periodic collection, trending recomputation and graph ingestion.
type Scheduler struct {
	collector *source.Collector
	trends    *trend.Service
	pipeline  *graph.Pipeline // nil disables graph ingestion
	every     Intervals
	log       zerolog.Logger
}

// New creates a new scheduler.
func New(c *source.Collector, trends *trend.Service, pipeline *graph.Pipeline, every Intervals) *Scheduler {
	if every.Collect <= 0 {
		every.Collect = 15 * time.Minute
	}
	if every.Trend <= 0 {
		every.Trend = time.Hour
	}
	if every.Graph <= 0 {
		every.Graph = 30 * time.Minute
	}
	return &Scheduler{
		collector: c,
		trends:    trends,
		pipeline:  pipeline,
		every:     every,
		log:       logging.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	collectTicker := time.NewTicker(s.every.Collect)
	trendTicker := time.NewTicker(s.every.Trend)
	defer collectTicker.Stop()
	defer trendTicker.Stop()

	var graphC <-chan time.Time
	if s.pipeline != nil {
		graphTicker := time.NewTicker(s.every.Graph)
		defer graphTicker.Stop()
		graphC = graphTicker.C
	}

	// Run immediately on start.
	s.collect(ctx)
	s.refreshTrends(ctx)
	s.ingestGraph(ctx)

	s.log.Info().Dur("collect", s.every.Collect).Dur("trend", s.every.Trend).
		Dur("graph", s.every.Graph).Bool("graph_enabled", s.pipeline != nil).Msg("running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return ctx.Err()
		case <-collectTicker.C:
			s.collect(ctx)
		case <-trendTicker.C:
			s.refreshTrends(ctx)
		case <-graphC:
			s.ingestGraph(ctx)
		}
	}
}

func (s *Scheduler) collect(ctx context.Context) {
	if s.collector == nil {
		return
	}
	rep := s.collector.Collect(ctx)
	s.log.Info().Int("articles", rep.Total()).Int("errors", len(rep.Errors)).Msg("collection done")
}

// refreshTrends recomputes the default window, bypassing the cache. The
// service publishes trending.computed for each recomputation.
func (s *Scheduler) refreshTrends(ctx context.Context) {
	res, err := s.trends.Trending(ctx, 0, 0, true)
	if err != nil {
		s.log.Error().Err(err).Msg("trending refresh failed")
		return
	}
	s.log.Info().Int("hours", res.Hours).Int("topics", len(res.Topics)).Msg("trending refreshed")
}

func (s *Scheduler) ingestGraph(ctx context.Context) {
	if s.pipeline == nil {
		return
	}
	if _, err := s.pipeline.RunPending(ctx); err != nil && ctx.Err() == nil {
		s.log.Error().Err(err).Msg("graph ingestion failed")
	}
}
