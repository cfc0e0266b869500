// Package srs implements SuperMemo-2 review scheduling.
package srs

import (
	"errors"
	"math"
	"time"
)

const (
	MinEaseFactor     = 1.3
	MaxEaseFactor     = 2.5
	DefaultEaseFactor = 2.5

	// PassingQuality is the lowest grade that counts as a successful recall.
	PassingQuality = 3
)

// ErrInvalidQuality is returned for grades outside [0,5].
var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// State is the per-item scheduling state. Interval is in days.
type State struct {
	Repetitions int     `json:"repetitions"`
	EaseFactor  float64 `json:"ease_factor"`
	Interval    int     `json:"interval"`
}

// Next applies one graded review to s.
//
// An EaseFactor of 0 marks a new item and is read as DefaultEaseFactor. The
// interval for a third or later successful review uses the ease factor before
// this review's adjustment.
func Next(s State, quality int) (State, error) {
	if quality < 0 || quality > 5 {
		return s, ErrInvalidQuality
	}

	ef := s.EaseFactor
	if ef == 0 {
		ef = DefaultEaseFactor
	}
	ef = clampEase(ef)

	next := State{}
	if quality < PassingQuality {
		next.Repetitions = 0
		next.Interval = 1
	} else {
		next.Repetitions = s.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.Interval = 1
		case 2:
			next.Interval = 6
		default:
			next.Interval = max(1, int(math.Round(float64(s.Interval)*ef)))
		}
	}

	q := float64(5 - quality)
	next.EaseFactor = clampEase(ef + 0.1 - q*(0.08+q*0.02))
	return next, nil
}

// DueAt returns the start of reviewedAt's UTC day plus interval days.
func DueAt(reviewedAt time.Time, interval int) time.Time {
	y, m, d := reviewedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, interval)
}

func clampEase(ef float64) float64 {
	// Round away float noise from repeated 0.1 steps before clamping.
	ef = math.Round(ef*1e6) / 1e6
	return math.Min(MaxEaseFactor, math.Max(MinEaseFactor, ef))
}
