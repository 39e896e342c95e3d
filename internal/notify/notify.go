// Package notify delivers committed domain events to subscribers.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

// Publisher receives journal entries after their transaction commits.
type Publisher interface {
	Publish(ctx context.Context, entry model.JournalEntry) error
}

// Multi fans an entry out to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, entry model.JournalEntry) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes each entry to a zerolog logger.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher returns a publisher logging at info level.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "events").Logger()}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, entry model.JournalEntry) error {
	p.log.Info().
		Int64("seq", entry.Seq).
		Str("type", entry.Type).
		Interface("payload", entry.Event).
		Msg("domain event")
	return nil
}

// Recorder keeps every published entry in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []model.JournalEntry
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, entry model.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []model.JournalEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.JournalEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Events returns the recorded domain events in publish order.
func (r *Recorder) Events() []model.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DomainEvent, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Event)
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
