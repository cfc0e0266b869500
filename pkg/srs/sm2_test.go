package srs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPerfectFirstReview(t *testing.T) {
	got, err := Next(State{Repetitions: 0, EaseFactor: 2.5, Interval: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, State{Repetitions: 1, EaseFactor: 2.5, Interval: 1}, got)
}

func TestNextIntervalsForFirstTwoRepetitions(t *testing.T) {
	for q := PassingQuality; q <= 5; q++ {
		s1, err := Next(State{EaseFactor: 2.5}, q)
		require.NoError(t, err)
		assert.Equal(t, 1, s1.Repetitions)
		assert.Equal(t, 1, s1.Interval)

		s2, err := Next(s1, q)
		require.NoError(t, err)
		assert.Equal(t, 2, s2.Repetitions)
		assert.Equal(t, 6, s2.Interval)
	}
}

func TestNextThirdReviewUsesEaseFactor(t *testing.T) {
	got, err := Next(State{Repetitions: 2, EaseFactor: 2.0, Interval: 6}, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Repetitions)
	assert.Equal(t, 12, got.Interval)
	assert.InDelta(t, 2.0, got.EaseFactor, 1e-9, "quality 4 leaves ease unchanged")
}

func TestNextLapseResets(t *testing.T) {
	priors := []State{
		{Repetitions: 0, EaseFactor: 2.5, Interval: 0},
		{Repetitions: 7, EaseFactor: 1.9, Interval: 120},
		{Repetitions: 2, EaseFactor: 1.3, Interval: 6},
	}
	for _, prior := range priors {
		for q := 0; q < PassingQuality; q++ {
			got, err := Next(prior, q)
			require.NoError(t, err)
			assert.Equal(t, 0, got.Repetitions)
			assert.Equal(t, 1, got.Interval)
		}
	}
}

func TestNextEaseFactorAlwaysClamped(t *testing.T) {
	for _, ef := range []float64{0, 1.0, 1.3, 1.7, 2.5, 3.2} {
		for reps := 0; reps < 5; reps++ {
			for q := 0; q <= 5; q++ {
				got, err := Next(State{Repetitions: reps, EaseFactor: ef, Interval: 10}, q)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got.EaseFactor, MinEaseFactor)
				assert.LessOrEqual(t, got.EaseFactor, MaxEaseFactor)
				if q >= PassingQuality {
					assert.Equal(t, reps+1, got.Repetitions)
				}
			}
		}
	}
}

func TestNextEaseFactorAdjustment(t *testing.T) {
	cases := []struct {
		quality int
		want    float64
	}{
		{5, 2.1},
		{4, 2.0},
		{3, 1.86},
		{2, 1.68},
		{1, 1.46},
		{0, 1.3},
	}
	for _, c := range cases {
		got, err := Next(State{Repetitions: 3, EaseFactor: 2.0, Interval: 10}, c.quality)
		require.NoError(t, err)
		assert.InDelta(t, c.want, got.EaseFactor, 1e-9, "quality %d", c.quality)
	}
}

func TestNextRejectsInvalidQuality(t *testing.T) {
	for _, q := range []int{-1, 6} {
		_, err := Next(State{}, q)
		assert.ErrorIs(t, err, ErrInvalidQuality)
	}
}

func TestDueAt(t *testing.T) {
	reviewed := time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC), DueAt(reviewed, 6))
}

func newReviewer(t *testing.T, now time.Time) (*Reviewer, *store.SQLiteStore, *[]event.Event) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "srs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var events []event.Event
	bus := event.NewBus(event.ObserverFunc(func(_ context.Context, e event.Event) error {
		events = append(events, e)
		return nil
	}))
	r := NewReviewer(s, bus)
	r.now = func() time.Time { return now }
	return r, s, &events
}

func TestReviewerPersistsSchedule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	r, s, events := newReviewer(t, now)

	card, err := r.Review(ctx, "u1", "concept:transformers", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, card.Repetitions)
	assert.Equal(t, 1, card.IntervalDays)
	assert.Equal(t, 2.5, card.EaseFactor)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), card.DueAt)

	card, err = r.Review(ctx, "u1", "concept:transformers", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, card.Repetitions)
	assert.Equal(t, 6, card.IntervalDays)

	stored, err := s.GetCard(ctx, "u1", "concept:transformers")
	require.NoError(t, err)
	assert.Equal(t, 6, stored.IntervalDays)
	assert.Equal(t, 4, stored.LastQuality)

	require.Len(t, *events, 2)
	assert.Equal(t, event.ReviewRecorded, (*events)[0].Type)
}

func TestReviewerValidation(t *testing.T) {
	r, _, events := newReviewer(t, time.Now())

	_, err := r.Review(context.Background(), "u1", "item", 9)
	assert.ErrorIs(t, err, ErrInvalidQuality)

	_, err = r.Review(context.Background(), "", "item", 3)
	assert.Error(t, err)
	assert.Empty(t, *events)
}

func TestReviewerDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	r, _, _ := newReviewer(t, now)

	_, err := r.Review(ctx, "u1", "lapsed", 1)
	require.NoError(t, err)

	due, err := r.Due(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, due, "a lapse is due tomorrow")

	r.now = func() time.Time { return now.Add(24 * time.Hour) }
	due, err = r.Due(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "lapsed", due[0].ItemID)
}
