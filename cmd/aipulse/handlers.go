package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/aipulse/internal/config"
	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/scheduler"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/event"
	"github.com/elonfeng/aipulse/pkg/graph"
	"github.com/elonfeng/aipulse/pkg/llm"
	"github.com/elonfeng/aipulse/pkg/server"
	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/elonfeng/aipulse/pkg/srs"
	"github.com/elonfeng/aipulse/pkg/trend"
	"golang.org/x/sync/errgroup"
)

// app holds the components wired from one config.
type app struct {
	cfg       *config.Config
	db        *store.SQLiteStore
	bus       *event.Bus
	llm       llm.Completer // nil without an api key
	collector *source.Collector
	trends    *trend.Service
	reviewer  *srs.Reviewer
	browser   *graph.Browser
	pipeline  *graph.Pipeline // nil without an api key
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, db: db, bus: buildBus(cfg)}

	if cfg.LLM.Enabled() {
		client := llm.New(llm.Options{
			Provider: cfg.LLM.Provider,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.LLM.ParseTimeout(),
		})
		a.llm = client
		logging.Info().Str("provider", client.Provider()).Str("model", client.Model()).Msg("llm enabled")
	}

	var translator *source.Translator
	if cfg.Translation.Enabled && a.llm != nil {
		translator = source.NewTranslator(a.llm, cfg.Translation.TargetLanguage)
	}
	filter := source.NewFilter(cfg.Filter.ExtraKeywords, cfg.Filter.ExcludeKeywords)
	a.collector = source.NewCollector(buildSources(cfg, filter), db, translator)

	topts := trend.Options{
		WindowHours: cfg.Trending.WindowHours,
		CacheTTL:    cfg.Trending.ParseCacheTTL(),
		Limit:       cfg.Trending.Limit,
		Bus:         a.bus,
	}
	if cfg.Trending.Refine && a.llm != nil {
		topts.Refiner = trend.NewLLMRefiner(a.llm)
	}
	a.trends = trend.NewService(db, topts)

	a.reviewer = srs.NewReviewer(db, a.bus)
	a.browser = graph.NewBrowser(db)
	if cfg.Graph.Enabled && a.llm != nil {
		a.pipeline = graph.NewPipeline(db, graph.NewExtractor(a.llm), graph.NewIngester(db), a.bus, cfg.Graph.BatchSize)
	}

	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

func buildSources(cfg *config.Config, filter *source.Filter) []source.Source {
	var sources []source.Source

	if cfg.Sources.HackerNews.Enabled {
		sources = append(sources, source.NewHackerNews(cfg.Sources.HackerNews.Limit, filter))
	}
	if cfg.Sources.ArXiv.Enabled {
		sources = append(sources, source.NewArXiv(cfg.Sources.ArXiv.Categories, cfg.Sources.ArXiv.MaxResults))
	}
	if cfg.Sources.RSS.Enabled {
		feeds := make([]source.RSSFeed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = source.RSSFeed{Name: f.Name, URL: f.URL, Language: f.Language}
		}
		sources = append(sources, source.NewRSS(feeds, filter))
	}

	return sources
}

func buildBus(cfg *config.Config) *event.Bus {
	bus := event.NewBus()
	if cfg.Events.Log {
		bus.Subscribe(event.Log{})
	}
	if cfg.Events.Webhook.Enabled && cfg.Events.Webhook.URL != "" {
		bus.Subscribe(event.NewWebhook(cfg.Events.Webhook.URL, cfg.Events.Webhook.Secret))
	}
	return bus
}

func runCollect(ctx context.Context, names []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.collector.Select(names)
	if err != nil {
		return err
	}

	rep := c.Collect(ctx)
	fmt.Fprintf(os.Stderr, "\ntotal: %d articles from %d sources\n", rep.Total(), len(c.Sources()))
	if len(rep.Errors) > 0 && rep.Total() == 0 {
		return fmt.Errorf("collection failed: %s", strings.Join(rep.Errors, "; "))
	}
	return nil
}

type trendsOptions struct {
	hours   int
	limit   int
	json    bool
	refresh bool
}

func runTrends(ctx context.Context, opts trendsOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.trends.Trending(ctx, opts.hours, opts.limit, opts.refresh)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Topics) == 0 {
		fmt.Println("no trending topics (try collecting data first: aipulse collect)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROWTH\tFREQ\tTOPIC\tRELATED")
	for _, t := range res.Topics {
		fmt.Fprintf(w, "%+.0f%%\t%d\t%s\t%s\n", t.Growth, t.Frequency, t.Topic, strings.Join(t.RelatedKeywords, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	state := "computed"
	if res.Cached {
		state = "cached"
	}
	fmt.Fprintf(os.Stderr, "\n%dh window, %s at %s\n", res.Hours, state, res.ComputedAt.Local().Format(time.RFC3339))
	return nil
}

func runReview(ctx context.Context, user, item string, quality int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	card, err := a.reviewer.Review(ctx, user, item, quality)
	if err != nil {
		return err
	}
	fmt.Printf("%s/%s: repetitions=%d ease=%.2f interval=%dd due=%s\n",
		card.UserID, card.ItemID, card.Repetitions, card.EaseFactor, card.IntervalDays,
		card.DueAt.Format("2006-01-02"))
	return nil
}

func runGraphIngest(ctx context.Context, articleID string, pending bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.pipeline == nil {
		return errors.New("graph ingestion needs graph.enabled and an LLM api key (OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}

	if pending {
		sum, err := a.pipeline.RunPending(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("processed %d articles (%d failed)\n", sum.Articles, sum.Failed)
		return nil
	}

	res, err := a.pipeline.IngestArticle(ctx, articleID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: entities +%d/=%d, relations +%d/^%d, skipped %d\n",
		res.ArticleID, res.EntitiesCreated, res.EntitiesMatched,
		res.RelationsInserted, res.RelationsReinforced, res.RelationsSkipped)
	return nil
}

func runGraphNeighbors(ctx context.Context, entity string, depth int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveEntity(ctx, a.db, entity)
	if err != nil {
		return err
	}
	neighbors, err := a.browser.Neighbors(ctx, id, depth)
	if err != nil {
		return err
	}

	if len(neighbors) == 0 {
		fmt.Println("no connected entities")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEPTH\tNAME\tTYPE\tID")
	for _, n := range neighbors {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.Depth, n.Name, n.Type, n.ID)
	}
	return w.Flush()
}

// resolveEntity accepts an entity id or its exact name.
func resolveEntity(ctx context.Context, db *store.SQLiteStore, ref string) (string, error) {
	if e, err := db.GetEntity(ctx, ref); err == nil {
		return e.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	matches, err := db.SearchEntities(ctx, ref, 100)
	if err != nil {
		return "", err
	}
	for _, e := range matches {
		if e.Name == strings.TrimSpace(ref) {
			return e.ID, nil
		}
	}
	return "", fmt.Errorf("entity %q: %w", ref, store.ErrNotFound)
}

func (a *app) server(port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(server.Deps{
		Articles:  a.db,
		Trends:    a.trends,
		Reviewer:  a.reviewer,
		Graph:     a.browser,
		Pipeline:  a.pipeline,
		Collector: a.collector,
	}, port)
}

func runServe(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.server(port).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(a.collector, a.trends, a.pipeline, scheduler.Intervals{
		Collect: a.cfg.Schedule.ParseCollectInterval(),
		Trend:   a.cfg.Schedule.ParseTrendInterval(),
		Graph:   a.cfg.Schedule.ParseGraphInterval(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.server(port).ListenAndServe(gctx)
	})

	err = g.Wait()
	logging.Info().Msg("shut down")
	return err
}
