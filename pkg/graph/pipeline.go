package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/pkg/event"
	"github.com/elonfeng/aipulse/pkg/llm"
	"github.com/elonfeng/aipulse/pkg/source"
)

// EntityExtractor turns an article into an Extraction.
type EntityExtractor interface {
	Extract(ctx context.Context, a source.Article) (Extraction, error)
}

// ArticleSource is the article access the Pipeline needs.
type ArticleSource interface {
	GetArticle(ctx context.Context, id string) (*source.Article, error)
	ListGraphPending(ctx context.Context, limit int) ([]source.Article, error)
	MarkGraphProcessed(ctx context.Context, articleID string, at time.Time) error
}

// Summary totals one pipeline batch.
type Summary struct {
	Articles int      `json:"articles"`
	Failed   int      `json:"failed"`
	Results  []Result `json:"results"`
}

// Pipeline extracts and ingests articles that have not been graph-processed yet.
type Pipeline struct {
	articles  ArticleSource
	extractor EntityExtractor
	ingester  *Ingester
	bus       *event.Bus
	batchSize int
	now       func() time.Time
}

// NewPipeline creates a pipeline. bus may be nil.
func NewPipeline(articles ArticleSource, x EntityExtractor, in *Ingester, bus *event.Bus, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Pipeline{
		articles:  articles,
		extractor: x,
		ingester:  in,
		bus:       bus,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// RunPending processes up to one batch of pending articles, oldest first. A
// failing article is logged and left for the next run, except when the model's
// answer is malformed: that article is marked processed so it is not retried forever.
func (p *Pipeline) RunPending(ctx context.Context) (Summary, error) {
	pending, err := p.articles.ListGraphPending(ctx, p.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("list graph pending: %w", err)
	}

	sum := Summary{Results: []Result{}}
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Articles++

		res, err := p.process(ctx, a)
		if err != nil {
			sum.Failed++
			logging.Warn().Err(err).Str("article", a.ID).Msg("graph ingestion failed")
			continue
		}
		sum.Results = append(sum.Results, res)
	}

	if sum.Articles > 0 {
		logging.Info().Int("articles", sum.Articles).Int("failed", sum.Failed).Msg("graph batch done")
		p.publish(ctx, sum)
	}
	return sum, nil
}

// IngestArticle extracts and ingests one article by id, regardless of whether
// it was processed before.
func (p *Pipeline) IngestArticle(ctx context.Context, articleID string) (Result, error) {
	a, err := p.articles.GetArticle(ctx, articleID)
	if err != nil {
		return Result{}, err
	}
	res, err := p.process(ctx, *a)
	if err != nil {
		return Result{}, err
	}
	p.publish(ctx, Summary{Articles: 1, Results: []Result{res}})
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, a source.Article) (Result, error) {
	x, err := p.extractor.Extract(ctx, a)
	if err != nil {
		var perr *llm.ParseError
		if errors.As(err, &perr) {
			if merr := p.articles.MarkGraphProcessed(ctx, a.ID, p.now()); merr != nil {
				logging.Warn().Err(merr).Str("article", a.ID).Msg("mark graph processed")
			}
		}
		return Result{}, err
	}

	res, err := p.ingester.Ingest(ctx, a.ID, x)
	if err != nil {
		return res, err
	}
	if err := p.articles.MarkGraphProcessed(ctx, a.ID, p.now()); err != nil {
		return res, err
	}
	logging.Debug().Str("article", a.ID).Int("entities", res.EntitiesCreated+res.EntitiesMatched).
		Int("relations", res.RelationsInserted+res.RelationsReinforced).Msg("article ingested")
	return res, nil
}

func (p *Pipeline) publish(ctx context.Context, sum Summary) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, event.Event{Type: event.GraphIngested, Time: p.now().UTC(), Payload: sum}); err != nil {
		logging.Warn().Err(err).Msg("publish graph event")
	}
}
