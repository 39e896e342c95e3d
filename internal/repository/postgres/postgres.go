// Package postgres implements repository.Store on PostgreSQL using pgx
// directly (no ORM).
//
// Inside Update every entity read takes a row lock (SELECT … FOR UPDATE, or
// FOR SHARE for the role directory and fee schedule), so concurrent
// operations on the same member or event are serialised from the
// authorization check through the final write, while operations on
// different entities proceed in parallel.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
)

// Migrations holds the schema applied by database.MigratePostgres.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// Store is the PostgreSQL repository.Store.
type Store struct {
	db *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store over an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Update implements repository.Store.
func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

// View implements repository.Store.
func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn func(tx repository.Tx) error) (err error) {
	pgTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = pgTx.Rollback(ctx)
		}
	}()

	if err = fn(&tx{tx: pgTx, lock: lock}); err != nil {
		return err
	}
	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

type tx struct {
	tx   pgx.Tx
	lock bool
}

func (t *tx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (t *tx) forShare() string {
	if t.lock {
		return " FOR SHARE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

func negative(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
		return repository.ErrNegativeBalance
	}
	return err
}

func (t *tx) Admin(ctx context.Context, identity model.Identity) (model.AdminRecord, error) {
	var rec model.AdminRecord
	err := t.tx.QueryRow(ctx,
		`SELECT identity, role, created_at FROM admins WHERE identity = $1`+t.forShare(),
		identity,
	).Scan(&rec.Identity, &rec.Role, &rec.CreatedAt)
	if err != nil {
		return model.AdminRecord{}, notFound(err)
	}
	return rec, nil
}

func (t *tx) InsertAdmin(ctx context.Context, rec model.AdminRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO admins (identity, role, created_at) VALUES ($1, $2, $3)`,
		rec.Identity, rec.Role, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert admin: %w", duplicate(err))
	}
	return nil
}

func (t *tx) Fee(ctx context.Context, tier model.Tier) (model.Amount, error) {
	var amount int64
	err := t.tx.QueryRow(ctx,
		`SELECT amount FROM fees WHERE tier = $1`+t.forShare(),
		tier,
	).Scan(&amount)
	if err != nil {
		return 0, notFound(err)
	}
	return model.Amount(amount), nil
}

func (t *tx) Fees(ctx context.Context) (map[model.Tier]model.Amount, error) {
	rows, err := t.tx.Query(ctx, `SELECT tier, amount FROM fees`)
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
	_, err := t.tx.Exec(ctx,
		`INSERT INTO fees (tier, amount) VALUES ($1, $2)
		 ON CONFLICT (tier) DO UPDATE SET amount = EXCLUDED.amount`,
		tier, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("put fee: %w", err)
	}
	return nil
}

const memberColumns = `identity, tier, status, assigned_role, registered_at, expires_at, paid_amount`

func scanMember(row pgx.Row) (model.MemberRecord, error) {
	var (
		m    model.MemberRecord
		paid int64
	)
	err := row.Scan(&m.Identity, &m.Tier, &m.Status, &m.AssignedRole, &m.RegisteredAt, &m.ExpiresAt, &paid)
	m.PaidAmount = model.Amount(paid)
	return m, err
}

func (t *tx) Member(ctx context.Context, identity model.Identity) (model.MemberRecord, error) {
	m, err := scanMember(t.tx.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE identity = $1`+t.forUpdate(),
		identity,
	))
	if err != nil {
		return model.MemberRecord{}, notFound(err)
	}
	return m, nil
}

func (t *tx) InsertMember(ctx context.Context, m model.MemberRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.Identity, m.Tier, m.Status, m.AssignedRole, m.RegisteredAt, m.ExpiresAt, int64(m.PaidAmount),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", duplicate(err))
	}
	return nil
}

func (t *tx) UpdateMember(ctx context.Context, m model.MemberRecord) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE members SET tier = $2, status = $3, assigned_role = $4 WHERE identity = $1`,
		m.Identity, m.Tier, m.Status, m.AssignedRole,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const eventColumns = `id, name, quota, participant_count, vip_participant_count,
	early_access_window_days, early_access_start, status, created_by, created_at`

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Quota, &e.ParticipantCount, &e.VIPParticipantCount,
		&e.EarlyAccessWindowDays, &e.EarlyAccessStart, &e.Status, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func (t *tx) Event(ctx context.Context, id string) (model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`+t.forUpdate(),
		id,
	))
	if err != nil {
		return model.Event{}, notFound(err)
	}
	return e, nil
}

func (t *tx) Events(ctx context.Context) ([]model.Event, error) {
	rows, err := t.tx.Query(ctx,
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
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Name, e.Quota, e.ParticipantCount, e.VIPParticipantCount,
		e.EarlyAccessWindowDays, e.EarlyAccessStart, e.Status, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", duplicate(err))
	}
	return nil
}

func (t *tx) UpdateEvent(ctx context.Context, e model.Event) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET participant_count = $2, vip_participant_count = $3, status = $4
		 WHERE id = $1`,
		e.ID, e.ParticipantCount, e.VIPParticipantCount, e.Status,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *tx) Registered(ctx context.Context, identity model.Identity, eventID string) (bool, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE identity = $1 AND event_id = $2`,
		identity, eventID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return n > 0, nil
}

func (t *tx) InsertRegistration(ctx context.Context, mark model.RegistrationMark) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO event_registrations (identity, event_id, registered_at) VALUES ($1, $2, $3)`,
		mark.Identity, mark.EventID, mark.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", duplicate(err))
	}
	return nil
}

func (t *tx) Held(ctx context.Context) (model.Amount, error) {
	var held int64
	err := t.tx.QueryRow(ctx, `SELECT held FROM treasury WHERE id = 1`+t.forUpdate()).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("read treasury: %w", err)
	}
	return model.Amount(held), nil
}

func (t *tx) AddHeld(ctx context.Context, delta model.Amount) error {
	tag, err := t.tx.Exec(ctx, `UPDATE treasury SET held = held + $1 WHERE id = 1`, int64(delta))
	if err != nil {
		return fmt.Errorf("update treasury: %w", negative(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update treasury: %w", repository.ErrNotFound)
	}
	return nil
}

func (t *tx) Balance(ctx context.Context, identity model.Identity) (model.Amount, error) {
	var amount int64
	err := t.tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE identity = $1`+t.forUpdate(),
		identity,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return model.Amount(amount), nil
}

func (t *tx) AddBalance(ctx context.Context, identity model.Identity, delta model.Amount) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE balances SET amount = amount + $2 WHERE identity = $1`,
		identity, int64(delta),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", negative(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO balances (identity, amount) VALUES ($1, $2)`,
		identity, int64(delta),
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
	var seq int64
	err = t.tx.QueryRow(ctx,
		`INSERT INTO journal (type, payload, occurred_at) VALUES ($1, $2, $3) RETURNING seq`,
		entry.Type, payload, entry.OccurredAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	return seq, nil
}

func (t *tx) Journal(ctx context.Context, after int64, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = repository.DefaultJournalLimit
	}
	rows, err := t.tx.Query(ctx,
		`SELECT seq, type, payload, occurred_at FROM journal WHERE seq > $1 ORDER BY seq LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var (
			entry   model.JournalEntry
			payload []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.Type, &payload, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if entry.Event, err = model.DecodeEvent(entry.Type, payload); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
