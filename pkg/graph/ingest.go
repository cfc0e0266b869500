package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/metrics"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/google/uuid"
)

const (
	InitialWeight = 0.7
	WeightStep    = 0.1
	MaxWeight     = 1.0

	defaultRelationType = "related_to"
)

// GraphStore is the persistence the Ingester needs.
type GraphStore interface {
	UpsertEntity(ctx context.Context, e *store.Entity) (bool, error)
	UpsertRelation(ctx context.Context, r *store.Relation, step, maxWeight float64) (bool, error)
	AddMention(ctx context.Context, entityID, articleID string) error
}

// Result summarizes one ingested extraction.
type Result struct {
	ArticleID           string `json:"article_id"`
	EntitiesCreated     int    `json:"entities_created"`
	EntitiesMatched     int    `json:"entities_matched"`
	RelationsInserted   int    `json:"relations_inserted"`
	RelationsReinforced int    `json:"relations_reinforced"`
	RelationsSkipped    int    `json:"relations_skipped"`
}

// Ingester merges extractions into the graph.
type Ingester struct {
	store GraphStore
	now   func() time.Time
}

// NewIngester creates an ingester.
func NewIngester(s GraphStore) *Ingester {
	return &Ingester{store: s, now: time.Now}
}

// Ingest merges x, extracted from articleID, into the graph.
//
// Entities resolve by exact trimmed name and are created when absent. A relation
// resolves by (source, target, type): a new one starts at InitialWeight with the
// article's quote as evidence, a known one gains WeightStep up to MaxWeight.
// Relations whose endpoints are not among x's entities are skipped.
func (in *Ingester) Ingest(ctx context.Context, articleID string, x Extraction) (Result, error) {
	res := Result{ArticleID: articleID}
	now := in.now().UTC()

	ids := make(map[string]string, len(x.Entities))
	for _, ee := range x.Entities {
		name := strings.TrimSpace(ee.Name)
		if name == "" {
			continue
		}
		if _, ok := ids[name]; ok {
			continue
		}

		e := &store.Entity{
			ID:        uuid.NewString(),
			Name:      name,
			Type:      strings.ToLower(strings.TrimSpace(ee.Type)),
			CreatedAt: now,
		}
		created, err := in.store.UpsertEntity(ctx, e)
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", articleID, err)
		}
		if created {
			res.EntitiesCreated++
			metrics.GraphEntitiesCreated.Inc()
		} else {
			res.EntitiesMatched++
		}
		ids[name] = e.ID

		if articleID != "" {
			if err := in.store.AddMention(ctx, e.ID, articleID); err != nil {
				return res, fmt.Errorf("ingest %s: %w", articleID, err)
			}
		}
	}

	for _, xr := range x.Relations {
		src, srcOK := ids[strings.TrimSpace(xr.Source)]
		dst, dstOK := ids[strings.TrimSpace(xr.Target)]
		if !srcOK || !dstOK || src == dst {
			res.RelationsSkipped++
			metrics.GraphRelations.WithLabelValues("skipped").Inc()
			logging.Debug().Str("article", articleID).Str("source", xr.Source).Str("target", xr.Target).
				Str("type", xr.Type).Msg("relation skipped: endpoint not resolved")
			continue
		}

		relType := strings.ToLower(strings.TrimSpace(xr.Type))
		if relType == "" {
			relType = defaultRelationType
		}

		r := &store.Relation{
			ID:        uuid.NewString(),
			SourceID:  src,
			TargetID:  dst,
			Type:      relType,
			Weight:    InitialWeight,
			FirstSeen: now,
			LastSeen:  now,
		}
		if quote := strings.TrimSpace(xr.Evidence); quote != "" {
			r.Evidence = []store.Evidence{{ArticleID: articleID, Quote: quote}}
		}

		inserted, err := in.store.UpsertRelation(ctx, r, WeightStep, MaxWeight)
		if err != nil {
			return res, fmt.Errorf("ingest %s: %w", articleID, err)
		}
		if inserted {
			res.RelationsInserted++
			metrics.GraphRelations.WithLabelValues("inserted").Inc()
		} else {
			res.RelationsReinforced++
			metrics.GraphRelations.WithLabelValues("reinforced").Inc()
		}
	}

	if res.RelationsSkipped > 0 {
		logging.Info().Str("article", articleID).Int("skipped", res.RelationsSkipped).Msg("relations skipped")
	}
	return res, nil
}
