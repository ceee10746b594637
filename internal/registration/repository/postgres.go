package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rsvp-bot/internal/registration/domain"
)

const registrationColumns = `id, chat_id, full_name, affiliation, passport_series, passport_number,
	institution, study_group, university, workplace, created_at, updated_at`

// PostgresRepository implements Repository and ConsentRepository on the registrations and
// user_consents tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a registration repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts r.
func (r *PostgresRepository) Create(ctx context.Context, reg *domain.Registration) error {
	p := proofColumns(reg.Fields())
	_, err := r.db.ExecContext(ctx, `INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		reg.ID, reg.ChatID, reg.FullName, string(reg.Affiliation),
		p.passportSeries, p.passportNumber, p.institution, p.studyGroup,
		strToNull(reg.University), strToNull(reg.Workplace),
		reg.CreatedAt, reg.UpdatedAt,
	)
	return err
}

// Update overwrites the user-supplied columns of registration id.
func (r *PostgresRepository) Update(ctx context.Context, id string, f domain.Fields, at time.Time) error {
	p := proofColumns(f)
	res, err := r.db.ExecContext(ctx, `UPDATE registrations SET
		full_name = $2, affiliation = $3, passport_series = $4, passport_number = $5,
		institution = $6, study_group = $7, university = $8, workplace = $9, updated_at = $10
		WHERE id = $1`,
		id, f.FullName, string(f.Affiliation),
		p.passportSeries, p.passportNumber, p.institution, p.studyGroup,
		strToNull(f.University), strToNull(f.Workplace), at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns the registration for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	return scanOne(row)
}

// LastByChat returns the newest registration of chatID, or nil if the chat never registered.
func (r *PostgresRepository) LastByChat(ctx context.Context, chatID int64) (*domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE chat_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	return scanOne(row)
}

// List returns every registration, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+registrationColumns+` FROM registrations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Count returns the number of registrations.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, err
}

// HasConsent reports whether chatID accepted the data-collection terms.
func (r *PostgresRepository) HasConsent(ctx context.Context, chatID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM user_consents WHERE chat_id = $1)`, chatID).Scan(&exists)
	return exists, err
}

// RecordConsent stores consent for chatID. The first acceptance time is kept.
func (r *PostgresRepository) RecordConsent(ctx context.Context, chatID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_consents (chat_id, accepted_at) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO NOTHING`, chatID, at)
	return err
}

type proofRow struct {
	passportSeries sql.NullString
	passportNumber sql.NullString
	institution    sql.NullString
	studyGroup     sql.NullString
}

func proofColumns(f domain.Fields) proofRow {
	var p proofRow
	if f.Passport != nil {
		p.passportSeries = sql.NullString{String: f.Passport.Series, Valid: true}
		p.passportNumber = sql.NullString{String: f.Passport.Number, Valid: true}
	}
	if f.Study != nil {
		p.institution = sql.NullString{String: f.Study.Institution, Valid: true}
		p.studyGroup = sql.NullString{String: f.Study.Group, Valid: true}
	}
	return p
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*domain.Registration, error) {
	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reg, nil
}

func scanRegistration(s scanner) (*domain.Registration, error) {
	var (
		reg                   domain.Registration
		affiliation           string
		p                     proofRow
		university, workplace sql.NullString
	)
	if err := s.Scan(
		&reg.ID, &reg.ChatID, &reg.FullName, &affiliation,
		&p.passportSeries, &p.passportNumber, &p.institution, &p.studyGroup,
		&university, &workplace, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	reg.Affiliation = domain.Affiliation(affiliation)
	if p.passportSeries.Valid {
		reg.Passport = &domain.Passport{Series: p.passportSeries.String, Number: p.passportNumber.String}
	}
	if p.studyGroup.Valid {
		reg.Study = &domain.StudyProof{Institution: p.institution.String, Group: p.studyGroup.String}
	}
	reg.University = nullToStrPtr(university)
	reg.Workplace = nullToStrPtr(workplace)
	return &reg, nil
}

func strToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullToStrPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
