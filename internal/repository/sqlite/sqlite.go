// Package sqlite implements repository.Store on an embedded SQLite file
// through database/sql and the pure-Go modernc.org/sqlite driver.
//
// Writers are serialised by opening write transactions with BEGIN IMMEDIATE
// (the _txlock DSN parameter set by database.OpenSQLite) over a single
// connection. Timestamps are stored as Unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// Migrations holds the schema applied by database.MigrateSQLite.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Store is the SQLite repository.Store.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store over an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{}, fn)
}

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx repository.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type tx struct {
	tx *sql.Tx
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repository.ErrDuplicate
	}
	return err
}

func negative(err error) error {
	if err != nil && strings.Contains(err.Error(), "CHECK constraint failed") {
		return repository.ErrNegativeBalance
	}
	return err
}

func (t *tx) Admin(ctx context.Context, identity model.Identity) (model.AdminRecord, error) {
	var (
		rec     model.AdminRecord
		role    string
		created int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT identity, role, created_at FROM admins WHERE identity = ?`,
		string(identity),
	).Scan((*string)(&rec.Identity), &role, &created)
	if err != nil {
		return model.AdminRecord{}, notFound(err)
	}
	rec.Role = model.AdminRole(role)
	rec.CreatedAt = fromNanos(created)
	return rec, nil
}

func (t *tx) InsertAdmin(ctx context.Context, rec model.AdminRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO admins (identity, role, created_at) VALUES (?, ?, ?)`,
		string(rec.Identity), string(rec.Role), toNanos(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert admin: %w", duplicate(err))
	}
	return nil
}

func (t *tx) Fee(ctx context.Context, tier model.Tier) (model.Amount, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM fees WHERE tier = ?`, string(tier)).Scan(&amount)
	if err != nil {
		return 0, notFound(err)
	}
	return model.Amount(amount), nil
}

func (t *tx) Fees(ctx context.Context) (map[model.Tier]model.Amount, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT tier, amount FROM fees`)
	if err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	defer rows.Close()

	out := map[model.Tier]model.Amount{}
	for rows.Next() {
		var (
			tier   string
			amount int64
		)
		if err := rows.Scan(&tier, &amount); err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		out[model.Tier(tier)] = model.Amount(amount)
	}
	return out, rows.Err()
}

func (t *tx) PutFee(ctx context.Context, tier model.Tier, amount model.Amount) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO fees (tier, amount) VALUES (?, ?)
		 ON CONFLICT (tier) DO UPDATE SET amount = excluded.amount`,
		string(tier), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("put fee: %w", err)
	}
	return nil
}

const memberColumns = `identity, tier, status, assigned_role, registered_at, expires_at, paid_amount`

func (t *tx) Member(ctx context.Context, identity model.Identity) (model.MemberRecord, error) {
	var (
		m                         model.MemberRecord
		id, tier, status, role    string
		registered, expires, paid int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE identity = ?`,
		string(identity),
	).Scan(&id, &tier, &status, &role, &registered, &expires, &paid)
	if err != nil {
		return model.MemberRecord{}, notFound(err)
	}
	m.Identity = model.Identity(id)
	m.Tier = model.Tier(tier)
	m.Status = model.MemberStatus(status)
	m.AssignedRole = model.MemberRole(role)
	m.RegisteredAt = fromNanos(registered)
	m.ExpiresAt = fromNanos(expires)
	m.PaidAmount = model.Amount(paid)
	return m, nil
}

func (t *tx) InsertMember(ctx context.Context, m model.MemberRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(m.Identity), string(m.Tier), string(m.Status), string(m.AssignedRole),
		toNanos(m.RegisteredAt), toNanos(m.ExpiresAt), int64(m.PaidAmount),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", duplicate(err))
	}
	return nil
}

func (t *tx) UpdateMember(ctx context.Context, m model.MemberRecord) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE members SET tier = ?, status = ?, assigned_role = ? WHERE identity = ?`,
		string(m.Tier), string(m.Status), string(m.AssignedRole), string(m.Identity),
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const eventColumns = `id, name, quota, participant_count, vip_participant_count,
	early_access_window_days, early_access_start, status, created_by, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (model.Event, error) {
	var (
		e                   model.Event
		status, createdBy   string
		earlyStart, created int64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Quota, &e.ParticipantCount, &e.VIPParticipantCount,
		&e.EarlyAccessWindowDays, &earlyStart, &status, &createdBy, &created)
	if err != nil {
		return model.Event{}, err
	}
	e.EarlyAccessStart = fromNanos(earlyStart)
	e.Status = model.EventStatus(status)
	e.CreatedBy = model.Identity(createdBy)
	e.CreatedAt = fromNanos(created)
	return e, nil
}

func (t *tx) Event(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(t.tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id,
	))
	if err != nil {
		return model.Event{}, notFound(err)
	}
	return e, nil
}

func (t *tx) Events(ctx context.Context) ([]model.Event, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (t *tx) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Quota, e.ParticipantCount, e.VIPParticipantCount,
		e.EarlyAccessWindowDays, toNanos(e.EarlyAccessStart), string(e.Status),
		string(e.CreatedBy), toNanos(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", duplicate(err))
	}
	return nil
}

func (t *tx) UpdateEvent(ctx context.Context, e model.Event) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE events SET participant_count = ?, vip_participant_count = ?, status = ? WHERE id = ?`,
		e.ParticipantCount, e.VIPParticipantCount, string(e.Status), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return affected(res)
}

func (t *tx) Registered(ctx context.Context, identity model.Identity, eventID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE identity = ? AND event_id = ?`,
		string(identity), eventID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return n > 0, nil
}

func (t *tx) InsertRegistration(ctx context.Context, mark model.RegistrationMark) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO event_registrations (identity, event_id, registered_at) VALUES (?, ?, ?)`,
		string(mark.Identity), mark.EventID, toNanos(mark.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", duplicate(err))
	}
	return nil
}

func (t *tx) Held(ctx context.Context) (model.Amount, error) {
	var held int64
	if err := t.tx.QueryRowContext(ctx, `SELECT held FROM treasury WHERE id = 1`).Scan(&held); err != nil {
		return 0, fmt.Errorf("read treasury: %w", err)
	}
	return model.Amount(held), nil
}

func (t *tx) AddHeld(ctx context.Context, delta model.Amount) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE treasury SET held = held + ? WHERE id = 1`, int64(delta))
	if err != nil {
		return fmt.Errorf("update treasury: %w", negative(err))
	}
	return affected(res)
}

func (t *tx) Balance(ctx context.Context, identity model.Identity) (model.Amount, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx, `SELECT amount FROM balances WHERE identity = ?`, string(identity)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return model.Amount(amount), nil
}

func (t *tx) AddBalance(ctx context.Context, identity model.Identity, delta model.Amount) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount + ? WHERE identity = ?`,
		int64(delta), string(identity),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", negative(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (identity, amount) VALUES (?, ?)`,
		string(identity), int64(delta),
	); err != nil {
		return fmt.Errorf("insert balance: %w", negative(err))
	}
	return nil
}

func (t *tx) AppendJournal(ctx context.Context, entry model.JournalEntry) (int64, error) {
	payload, err := json.Marshal(entry.Event)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", entry.Type, err)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO journal (type, payload, occurred_at) VALUES (?, ?, ?)`,
		entry.Type, string(payload), toNanos(entry.OccurredAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal sequence: %w", err)
	}
	return seq, nil
}

func (t *tx) Journal(ctx context.Context, after int64, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = repository.DefaultJournalLimit
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seq, type, payload, occurred_at FROM journal WHERE seq > ? ORDER BY seq LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var (
			entry    model.JournalEntry
			payload  string
			occurred int64
		)
		if err := rows.Scan(&entry.Seq, &entry.Type, &payload, &occurred); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entry.OccurredAt = fromNanos(occurred)
		if entry.Event, err = model.DecodeEvent(entry.Type, []byte(payload)); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
