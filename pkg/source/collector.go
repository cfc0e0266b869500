package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/metrics"
)

// Sink stores collected articles and returns how many were stored. Rows it
// could not store are reported through the error.
type Sink interface {
	UpsertArticles(ctx context.Context, articles []Article) (int, error)
}

// Report is the outcome of one collection run.
type Report struct {
	Collected map[string]int `json:"collected"`
	Errors    []string       `json:"errors,omitempty"`
}

// Total returns the number of articles stored.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Collected {
		n += c
	}
	return n
}

// Collector runs sources one after another and stores what they return.
type Collector struct {
	sources    []Source
	sink       Sink
	translator *Translator
}

// NewCollector creates a collector. translator may be nil.
func NewCollector(sources []Source, sink Sink, translator *Translator) *Collector {
	return &Collector{sources: sources, sink: sink, translator: translator}
}

// Sources returns the configured sources.
func (c *Collector) Sources() []Source { return c.sources }

// Select returns a collector restricted to the named sources, matched by full or short name.
func (c *Collector) Select(names []string) (*Collector, error) {
	if len(names) == 0 {
		return c, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var picked []Source
	for _, s := range c.sources {
		if wanted[string(s.Name())] || wanted[ShortName(s.Name())] {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("no matching sources for: %s", strings.Join(names, ", "))
	}
	return &Collector{sources: picked, sink: c.sink, translator: c.translator}, nil
}

// Collect runs every source. A failing source is reported and does not stop the others.
func (c *Collector) Collect(ctx context.Context) Report {
	rep := Report{Collected: make(map[string]int, len(c.sources))}

	for _, src := range c.sources {
		name := string(src.Name())
		articles, err := src.Collect(ctx)
		if err != nil {
			metrics.CollectErrors.WithLabelValues(name).Inc()
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", name, err))
			logging.Warn().Err(err).Str("source", name).Msg("collect failed")
			continue
		}

		if c.translator != nil {
			c.translator.Translate(ctx, articles)
		}

		stored, err := c.sink.UpsertArticles(ctx, articles)
		if err != nil {
			metrics.CollectErrors.WithLabelValues(name).Inc()
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s store: %v", name, err))
			logging.Warn().Err(err).Str("source", name).Int("stored", stored).
				Int("failed", len(articles)-stored).Msg("store articles failed")
		}
		if stored == 0 {
			continue
		}

		metrics.ArticlesCollected.WithLabelValues(name).Add(float64(stored))
		rep.Collected[name] = stored
		logging.Info().Str("source", name).Int("articles", stored).Msg("collected")
	}
	return rep
}
