package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Card is the spaced-repetition state of one learning item for one user.
type Card struct {
	UserID         string    `db:"user_id" json:"user_id"`
	ItemID         string    `db:"item_id" json:"item_id"`
	Repetitions    int       `db:"repetitions" json:"repetitions"`
	EaseFactor     float64   `db:"ease_factor" json:"ease_factor"`
	IntervalDays   int       `db:"interval_days" json:"interval_days"`
	LastQuality    int       `db:"last_quality" json:"last_quality"`
	DueAt          time.Time `db:"due_at" json:"due_at"`
	LastReviewedAt time.Time `db:"last_reviewed_at" json:"last_reviewed_at"`
}

const cardColumns = `user_id, item_id, repetitions, ease_factor, interval_days, last_quality, due_at, last_reviewed_at`

func (s *SQLiteStore) GetCard(ctx context.Context, userID, itemID string) (*Card, error) {
	var c Card
	err := s.db.GetContext(ctx, &c, "SELECT "+cardColumns+" FROM review_cards WHERE user_id = ? AND item_id = ?", userID, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get card %s/%s: %w", userID, itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get card %s/%s: %w", userID, itemID, err)
	}
	return &c, nil
}

func (s *SQLiteStore) SaveCard(ctx context.Context, c *Card) error {
	row := *c
	row.DueAt = row.DueAt.UTC()
	row.LastReviewedAt = row.LastReviewedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO review_cards (`+cardColumns+`)
		VALUES (:user_id, :item_id, :repetitions, :ease_factor, :interval_days, :last_quality, :due_at, :last_reviewed_at)
		ON CONFLICT(user_id, item_id) DO UPDATE SET
			repetitions = excluded.repetitions,
			ease_factor = excluded.ease_factor,
			interval_days = excluded.interval_days,
			last_quality = excluded.last_quality,
			due_at = excluded.due_at,
			last_reviewed_at = excluded.last_reviewed_at
	`, &row)
	if err != nil {
		return fmt.Errorf("save card %s/%s: %w", c.UserID, c.ItemID, err)
	}
	return nil
}

// ListDueCards returns a user's cards due at or before asOf, most overdue first.
func (s *SQLiteStore) ListDueCards(ctx context.Context, userID string, asOf time.Time, limit int) ([]Card, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Card
	err := s.db.SelectContext(ctx, &out,
		"SELECT "+cardColumns+" FROM review_cards WHERE user_id = ? AND due_at <= ? ORDER BY due_at ASC, item_id ASC LIMIT ?",
		userID, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due cards %s: %w", userID, err)
	}
	return out, nil
}
