package srs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/aipulse/internal/logging"
	"github.com/elonfeng/aipulse/internal/metrics"
	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/event"
)

// CardStore is the persistence the Reviewer needs.
type CardStore interface {
	GetCard(ctx context.Context, userID, itemID string) (*store.Card, error)
	SaveCard(ctx context.Context, c *store.Card) error
	ListDueCards(ctx context.Context, userID string, asOf time.Time, limit int) ([]store.Card, error)
}

// Reviewer records graded reviews and persists the resulting schedule.
type Reviewer struct {
	store CardStore
	bus   *event.Bus
	now   func() time.Time
}

// NewReviewer creates a reviewer. bus may be nil.
func NewReviewer(s CardStore, bus *event.Bus) *Reviewer {
	return &Reviewer{store: s, bus: bus, now: time.Now}
}

// Review grades itemID for userID and returns the updated card.
func (r *Reviewer) Review(ctx context.Context, userID, itemID string, quality int) (*store.Card, error) {
	if userID == "" || itemID == "" {
		return nil, errors.New("user id and item id are required")
	}

	card, err := r.store.GetCard(ctx, userID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		card = &store.Card{UserID: userID, ItemID: itemID}
	} else if err != nil {
		return nil, err
	}

	next, err := Next(State{
		Repetitions: card.Repetitions,
		EaseFactor:  card.EaseFactor,
		Interval:    card.IntervalDays,
	}, quality)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	card.Repetitions = next.Repetitions
	card.EaseFactor = next.EaseFactor
	card.IntervalDays = next.Interval
	card.LastQuality = quality
	card.LastReviewedAt = now
	card.DueAt = DueAt(now, next.Interval)

	if err := r.store.SaveCard(ctx, card); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	outcome := "pass"
	if quality < PassingQuality {
		outcome = "lapse"
	}
	metrics.ReviewsRecorded.WithLabelValues(outcome).Inc()

	logging.Debug().Str("user", userID).Str("item", itemID).Int("quality", quality).
		Int("interval", card.IntervalDays).Float64("ease", card.EaseFactor).Msg("review recorded")

	if r.bus != nil {
		if err := r.bus.Publish(ctx, event.Event{
			Type:    event.ReviewRecorded,
			Time:    now,
			Payload: card,
		}); err != nil {
			logging.Warn().Err(err).Msg("publish review event")
		}
	}

	return card, nil
}

// Due lists cards due for userID now.
func (r *Reviewer) Due(ctx context.Context, userID string, limit int) ([]store.Card, error) {
	return r.store.ListDueCards(ctx, userID, r.now().UTC(), limit)
}
