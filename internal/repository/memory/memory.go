// Package memory provides an in-memory transactional store.
//
// Update clones the state, runs the callback against the clone and swaps it
// in only on success, all under one mutex. Writers are therefore fully
// serialised and a failed callback leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

type markKey struct {
	identity model.Identity
	eventID  string
}

type state struct {
	admins   map[model.Identity]model.AdminRecord
	fees     map[model.Tier]model.Amount
	members  map[model.Identity]model.MemberRecord
	events   map[string]model.Event
	marks    map[markKey]model.RegistrationMark
	journal  []model.JournalEntry
	held     model.Amount
	balances map[model.Identity]model.Amount
}

func newState() state {
	return state{
		admins:   map[model.Identity]model.AdminRecord{},
		fees:     map[model.Tier]model.Amount{},
		members:  map[model.Identity]model.MemberRecord{},
		events:   map[string]model.Event{},
		marks:    map[markKey]model.RegistrationMark{},
		balances: map[model.Identity]model.Amount{},
	}
}

func (s state) clone() state {
	c := state{
		admins:  make(map[model.Identity]model.AdminRecord, len(s.admins)),
		fees:    make(map[model.Tier]model.Amount, len(s.fees)),
		members: make(map[model.Identity]model.MemberRecord, len(s.members)),
		events:  make(map[string]model.Event, len(s.events)),
		marks:   make(map[markKey]model.RegistrationMark, len(s.marks)),
		// Entries are never modified once appended, so sharing the
		// backing array is safe as long as the clone appends past it.
		journal:  s.journal[:len(s.journal):len(s.journal)],
		held:     s.held,
		balances: make(map[model.Identity]model.Amount, len(s.balances)),
	}
	for k, v := range s.admins {
		c.admins[k] = v
	}
	for k, v := range s.fees {
		c.fees[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.marks {
		c.marks[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// Store is the in-memory repository.Store.
type Store struct {
	mu    sync.RWMutex
	state state
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &tx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View implements repository.Store. The callback sees a consistent snapshot;
// writes made through the view are discarded.
func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(&tx{state: snapshot})
}

// Close implements repository.Store.
func (s *Store) Close() error { return nil }

type tx struct {
	state state
}

func (t *tx) Admin(_ context.Context, identity model.Identity) (model.AdminRecord, error) {
	rec, ok := t.state.admins[identity]
	if !ok {
		return model.AdminRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (t *tx) InsertAdmin(_ context.Context, rec model.AdminRecord) error {
	if _, ok := t.state.admins[rec.Identity]; ok {
		return repository.ErrDuplicate
	}
	t.state.admins[rec.Identity] = rec
	return nil
}

func (t *tx) Fee(_ context.Context, tier model.Tier) (model.Amount, error) {
	amount, ok := t.state.fees[tier]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return amount, nil
}

func (t *tx) Fees(_ context.Context) (map[model.Tier]model.Amount, error) {
	out := make(map[model.Tier]model.Amount, len(t.state.fees))
	for k, v := range t.state.fees {
		out[k] = v
	}
	return out, nil
}

func (t *tx) PutFee(_ context.Context, tier model.Tier, amount model.Amount) error {
	t.state.fees[tier] = amount
	return nil
}

func (t *tx) Member(_ context.Context, identity model.Identity) (model.MemberRecord, error) {
	rec, ok := t.state.members[identity]
	if !ok {
		return model.MemberRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (t *tx) InsertMember(_ context.Context, rec model.MemberRecord) error {
	if _, ok := t.state.members[rec.Identity]; ok {
		return repository.ErrDuplicate
	}
	t.state.members[rec.Identity] = rec
	return nil
}

func (t *tx) UpdateMember(_ context.Context, rec model.MemberRecord) error {
	if _, ok := t.state.members[rec.Identity]; !ok {
		return repository.ErrNotFound
	}
	t.state.members[rec.Identity] = rec
	return nil
}

func (t *tx) Event(_ context.Context, id string) (model.Event, error) {
	ev, ok := t.state.events[id]
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}
	return ev, nil
}

func (t *tx) Events(_ context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(t.state.events))
	for _, ev := range t.state.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) InsertEvent(_ context.Context, ev model.Event) error {
	if _, ok := t.state.events[ev.ID]; ok {
		return repository.ErrDuplicate
	}
	t.state.events[ev.ID] = ev
	return nil
}

func (t *tx) UpdateEvent(_ context.Context, ev model.Event) error {
	if _, ok := t.state.events[ev.ID]; !ok {
		return repository.ErrNotFound
	}
	t.state.events[ev.ID] = ev
	return nil
}

func (t *tx) Registered(_ context.Context, identity model.Identity, eventID string) (bool, error) {
	_, ok := t.state.marks[markKey{identity: identity, eventID: eventID}]
	return ok, nil
}

func (t *tx) InsertRegistration(_ context.Context, mark model.RegistrationMark) error {
	key := markKey{identity: mark.Identity, eventID: mark.EventID}
	if _, ok := t.state.marks[key]; ok {
		return repository.ErrDuplicate
	}
	t.state.marks[key] = mark
	return nil
}

func (t *tx) Held(_ context.Context) (model.Amount, error) {
	return t.state.held, nil
}

func (t *tx) AddHeld(_ context.Context, delta model.Amount) error {
	if t.state.held+delta < 0 {
		return repository.ErrNegativeBalance
	}
	t.state.held += delta
	return nil
}

func (t *tx) Balance(_ context.Context, identity model.Identity) (model.Amount, error) {
	return t.state.balances[identity], nil
}

func (t *tx) AddBalance(_ context.Context, identity model.Identity, delta model.Amount) error {
	next := t.state.balances[identity] + delta
	if next < 0 {
		return repository.ErrNegativeBalance
	}
	t.state.balances[identity] = next
	return nil
}

func (t *tx) AppendJournal(_ context.Context, entry model.JournalEntry) (int64, error) {
	entry.Seq = int64(len(t.state.journal)) + 1
	t.state.journal = append(t.state.journal, entry)
	return entry.Seq, nil
}

func (t *tx) Journal(_ context.Context, after int64, limit int) ([]model.JournalEntry, error) {
	if after < 0 {
		after = 0
	}
	if after >= int64(len(t.state.journal)) {
		return nil, nil
	}
	if limit <= 0 {
		limit = repository.DefaultJournalLimit
	}
	entries := t.state.journal[after:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]model.JournalEntry(nil), entries...), nil
}
