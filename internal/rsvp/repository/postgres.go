package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rsvp-bot/internal/db"
	"rsvp-bot/internal/rsvp/domain"
)

// capacityLockKey is the advisory lock guarding the confirmed count and the waitlist ordering.
const capacityLockKey int64 = 0x5253_5650 // "RSVP"

const recordColumns = `registration_id, status, confirmation_deadline, confirmed_at, waitlist_position,
	reminder_count, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository implements Repository on the registrations_rsvp table.
type PostgresRepository struct {
	pgStore
	db *sql.DB
}

// NewPostgresRepository returns an RSVP repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{pgStore: pgStore{q: conn, now: utcNow}, db: conn}
}

// Atomic runs fn in a SERIALIZABLE transaction holding the capacity advisory lock, retrying on
// serialization failure.
func (r *PostgresRepository) Atomic(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return db.RunSerializable(ctx, r.db, capacityLockKey, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgStore{q: tx, now: r.now, forUpdate: true})
	})
}

func utcNow() time.Time { return time.Now().UTC() }

type pgStore struct {
	q         querier
	now       func() time.Time
	forUpdate bool // lock rows read by Update; only meaningful inside a transaction
}

func (s *pgStore) Ensure(ctx context.Context, registrationID string) (*domain.Record, error) {
	now := s.now()
	_, err := s.q.ExecContext(ctx, `INSERT INTO registrations_rsvp (registration_id, status, reminder_count, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3) ON CONFLICT (registration_id) DO NOTHING`,
		registrationID, string(domain.StatusRegistered), now)
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Get returns the record of registrationID, or nil if none exists.
func (s *pgStore) Get(ctx context.Context, registrationID string) (*domain.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM registrations_rsvp WHERE registration_id = $1`, registrationID)
	return scanOne(row)
}

func (s *pgStore) Update(ctx context.Context, registrationID string, p domain.Patch) (*domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM registrations_rsvp WHERE registration_id = $1`
	if s.forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanOne(s.q.QueryRowContext(ctx, query, registrationID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	rec.Apply(p, s.now())
	_, err = s.q.ExecContext(ctx, `UPDATE registrations_rsvp SET
		status = $2, confirmation_deadline = $3, confirmed_at = $4, waitlist_position = $5,
		reminder_count = $6, updated_at = $7
		WHERE registration_id = $1`,
		rec.RegistrationID, string(rec.Status), timeToNull(rec.ConfirmationDeadline), timeToNull(rec.ConfirmedAt),
		intToNull(rec.WaitlistPosition), rec.ReminderCount, rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.WaitlistPosition != nil {
		_, err = s.q.ExecContext(ctx, `INSERT INTO rsvp_waitlist_mark (id, last_position) VALUES (TRUE, $1)
			ON CONFLICT (id) DO UPDATE SET last_position = GREATEST(rsvp_waitlist_mark.last_position, EXCLUDED.last_position)`,
			*rec.WaitlistPosition)
		if err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (s *pgStore) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations_rsvp WHERE status = $1`,
		string(domain.StatusConfirmed)).Scan(&n)
	return n, err
}

func (s *pgStore) MaxWaitlistPosition(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT GREATEST(
		COALESCE((SELECT last_position FROM rsvp_waitlist_mark WHERE id), 0),
		COALESCE((SELECT MAX(waitlist_position) FROM registrations_rsvp), 0))`).Scan(&n)
	return n, err
}

func (s *pgStore) NextWaitlistCandidate(ctx context.Context) (*domain.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM registrations_rsvp
		WHERE status = $1 ORDER BY waitlist_position ASC LIMIT 1`, string(domain.StatusWaitlisted))
	return scanOne(row)
}

func (s *pgStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM registrations_rsvp GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

func (s *pgStore) List(ctx context.Context) ([]*domain.Record, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+recordColumns+` FROM registrations_rsvp ORDER BY created_at, registration_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*domain.Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func scanRecord(s scanner) (*domain.Record, error) {
	var (
		rec       domain.Record
		status    string
		deadline  sql.NullTime
		confirmed sql.NullTime
		position  sql.NullInt64
	)
	if err := s.Scan(&rec.RegistrationID, &status, &deadline, &confirmed, &position,
		&rec.ReminderCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)
	if deadline.Valid {
		t := deadline.Time
		rec.ConfirmationDeadline = &t
	}
	if confirmed.Valid {
		t := confirmed.Time
		rec.ConfirmedAt = &t
	}
	if position.Valid {
		p := int(position.Int64)
		rec.WaitlistPosition = &p
	}
	return &rec, nil
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func intToNull(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
