// Package event delivers domain events to registered observers.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Type names an event.
type Type string

const (
	TrendingComputed Type = "trending.computed"
	GraphIngested    Type = "graph.ingested"
	ReviewRecorded   Type = "review.recorded"
)

// Event is the data sent to observers.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Observer receives published events.
type Observer interface {
	Name() string
	Notify(ctx context.Context, e Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event) error

func (f ObserverFunc) Name() string { return "func" }

func (f ObserverFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Bus fans events out to all registered observers.
type Bus struct {
	observers []Observer
}

// NewBus creates a bus with the given observers.
func NewBus(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

// Subscribe adds an observer. Not safe for use concurrently with Publish.
func (b *Bus) Subscribe(o Observer) {
	b.observers = append(b.observers, o)
}

// HasObservers returns true if at least one observer is registered.
func (b *Bus) HasObservers() bool {
	return len(b.observers) > 0
}

// Publish delivers e to every observer, in registration order. Every observer is
// tried; their errors are joined.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	var errs []error
	for _, o := range b.observers {
		if err := o.Notify(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name(), err))
		}
	}
	return errors.Join(errs...)
}
