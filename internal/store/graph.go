package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Entity is a knowledge graph node, unique by exact name.
type Entity struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"entity_type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Evidence is a supporting quote for a relation.
type Evidence struct {
	ArticleID string `json:"article_id"`
	Quote     string `json:"quote"`
}

// Relation is a weighted, typed edge between two entities.
type Relation struct {
	ID           string     `db:"id" json:"id"`
	SourceID     string     `db:"source_id" json:"source_id"`
	TargetID     string     `db:"target_id" json:"target_id"`
	Type         string     `db:"relation_type" json:"type"`
	Weight       float64    `db:"weight" json:"weight"`
	EvidenceJSON string     `db:"evidence" json:"-"`
	Evidence     []Evidence `db:"-" json:"evidence"`
	FirstSeen    time.Time  `db:"first_seen" json:"first_seen"`
	LastSeen     time.Time  `db:"last_seen" json:"last_seen"`
}

// Neighbor is an entity reached from a start entity at Depth hops.
type Neighbor struct {
	Entity
	Depth int `json:"depth"`
}

// UpsertEntity inserts e unless an entity with the same name exists, then loads the
// stored row into e. It reports whether a new row was created.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, e *Entity) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, entity_type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, e.ID, e.Name, e.Type, e.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("upsert entity %q: %w", e.Name, err)
	}
	n, _ := res.RowsAffected()

	if err := s.db.GetContext(ctx, e, "SELECT id, name, entity_type, created_at FROM entities WHERE name = ?", e.Name); err != nil {
		return false, fmt.Errorf("load entity %q: %w", e.Name, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	err := s.db.GetContext(ctx, &e, "SELECT id, name, entity_type, created_at FROM entities WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// SearchEntities matches names case-insensitively by substring.
func (s *SQLiteStore) SearchEntities(ctx context.Context, query string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var out []Entity
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, name, entity_type, created_at FROM entities
		WHERE lower(name) LIKE ?
		ORDER BY name ASC
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM entities"); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

// UpsertRelation inserts r with its initial weight and evidence, or, when the
// (source, target, type) key exists, raises the stored weight by step capped at
// maxWeight and refreshes last_seen. The increment runs inside the statement, so
// concurrent writers cannot lose updates. r is reloaded from the stored row.
func (s *SQLiteStore) UpsertRelation(ctx context.Context, r *Relation, step, maxWeight float64) (bool, error) {
	evidence := r.Evidence
	if evidence == nil {
		evidence = []Evidence{}
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return false, fmt.Errorf("marshal evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relations (id, source_id, target_id, relation_type, weight, evidence, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation_type) DO UPDATE SET
			weight = MIN(?, ROUND(relations.weight + ?, 6)),
			last_seen = excluded.last_seen
	`, r.ID, r.SourceID, r.TargetID, r.Type, r.Weight, string(evidenceJSON),
		r.FirstSeen.UTC(), r.LastSeen.UTC(), maxWeight, step)
	if err != nil {
		return false, fmt.Errorf("upsert relation %s-%s->%s: %w", r.SourceID, r.Type, r.TargetID, err)
	}

	newID := r.ID
	err = s.db.GetContext(ctx, r, `
		SELECT id, source_id, target_id, relation_type, weight, evidence, first_seen, last_seen
		FROM relations WHERE source_id = ? AND target_id = ? AND relation_type = ?
	`, r.SourceID, r.TargetID, r.Type)
	if err != nil {
		return false, fmt.Errorf("load relation: %w", err)
	}
	decodeEvidence(r)
	return r.ID == newID, nil
}

// ListRelations returns relations touching entityID in either direction, strongest first.
func (s *SQLiteStore) ListRelations(ctx context.Context, entityID string) ([]Relation, error) {
	var out []Relation
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, source_id, target_id, relation_type, weight, evidence, first_seen, last_seen
		FROM relations WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC, last_seen DESC
	`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("list relations %s: %w", entityID, err)
	}
	for i := range out {
		decodeEvidence(&out[i])
	}
	return out, nil
}

func (s *SQLiteStore) CountRelations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM relations"); err != nil {
		return 0, fmt.Errorf("count relations: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) AddMention(ctx context.Context, entityID, articleID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO entity_mentions (entity_id, article_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		entityID, articleID)
	if err != nil {
		return fmt.Errorf("add mention %s/%s: %w", entityID, articleID, err)
	}
	return nil
}

// Neighbors walks relations breadth-first in both directions up to depth hops.
// Entities on the same level are ordered by id.
func (s *SQLiteStore) Neighbors(ctx context.Context, entityID string, depth int) ([]Neighbor, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return []Neighbor{}, nil
	}
	if depth < 1 {
		depth = 1
	}

	seen := map[string]int{entityID: 0}
	frontier := []string{entityID}
	var order []string

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		next, err := s.adjacent(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = level
			frontier = append(frontier, id)
			order = append(order, id)
		}
	}

	if len(order) == 0 {
		return []Neighbor{}, nil
	}

	query, args, err := sqlx.In("SELECT id, name, entity_type, created_at FROM entities WHERE id IN (?)", order)
	if err != nil {
		return nil, fmt.Errorf("build neighbor query: %w", err)
	}
	var entities []Entity
	if err := s.db.SelectContext(ctx, &entities, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load neighbors: %w", err)
	}
	byID := make(map[string]Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	out := make([]Neighbor, 0, len(order))
	for _, id := range order {
		if e, ok := byID[id]; ok {
			out = append(out, Neighbor{Entity: e, Depth: seen[id]})
		}
	}
	return out, nil
}

// adjacent returns the sorted, de-duplicated ids linked to any id in ids.
func (s *SQLiteStore) adjacent(ctx context.Context, ids []string) ([]string, error) {
	query, args, err := sqlx.In(`
		SELECT source_id, target_id FROM relations
		WHERE source_id IN (?) OR target_id IN (?)
	`, ids, ids)
	if err != nil {
		return nil, fmt.Errorf("build adjacency query: %w", err)
	}
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("load adjacency: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan adjacency row: %w", err)
		}
		set[from] = struct{}{}
		set[to] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjacency rows: %w", err)
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func decodeEvidence(r *Relation) {
	if r.EvidenceJSON == "" {
		return
	}
	_ = json.Unmarshal([]byte(r.EvidenceJSON), &r.Evidence)
}
