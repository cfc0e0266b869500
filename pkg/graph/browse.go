package graph

import (
	"context"

	"github.com/elonfeng/aipulse/internal/store"
)

// MaxDepth bounds neighbor traversal.
const MaxDepth = 3

// Reader is the read side of the graph store.
type Reader interface {
	GetEntity(ctx context.Context, id string) (*store.Entity, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]store.Entity, error)
	ListRelations(ctx context.Context, entityID string) ([]store.Relation, error)
	Neighbors(ctx context.Context, entityID string, depth int) ([]store.Neighbor, error)
}

// Browser answers knowledge graph queries.
type Browser struct {
	store Reader
}

func NewBrowser(r Reader) *Browser {
	return &Browser{store: r}
}

// Search matches entity names case-insensitively by substring.
func (b *Browser) Search(ctx context.Context, query string, limit int) ([]store.Entity, error) {
	out, err := b.store.SearchEntities(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.Entity{}
	}
	return out, nil
}

// Neighbors returns entities within depth hops of id, clamped to [1, MaxDepth].
// Unknown ids are store.ErrNotFound.
func (b *Browser) Neighbors(ctx context.Context, id string, depth int) ([]store.Neighbor, error) {
	if _, err := b.store.GetEntity(ctx, id); err != nil {
		return nil, err
	}
	depth = min(max(depth, 1), MaxDepth)
	return b.store.Neighbors(ctx, id, depth)
}

// Relations returns the relations touching id, strongest first.
func (b *Browser) Relations(ctx context.Context, id string) ([]store.Relation, error) {
	if _, err := b.store.GetEntity(ctx, id); err != nil {
		return nil, err
	}
	out, err := b.store.ListRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.Relation{}
	}
	return out, nil
}
