package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
// The connection manager in internal/db implements it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL (sessiond.sessions).
type PostgresStore struct {
	db    DB
	table string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore creates a Postgres-backed session store in schema
// (default "sessiond" when empty).
func NewPostgresStore(db DB, schema string) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: nil db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "sessiond"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{db: db, table: pgx.Identifier{schema, "sessions"}.Sanitize()}, nil
}

const sessionColumns = `id, user_id,
	current_token_hash, current_token_identifier,
	COALESCE(previous_token_hash, ''), COALESCE(previous_token_identifier, ''),
	created_at, rotated_at, expires_at,
	COALESCE(user_agent, ''), COALESCE(host(ip), '')`

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, user_id,
			current_token_hash, current_token_identifier,
			previous_token_hash, previous_token_identifier,
			created_at, rotated_at, expires_at,
			user_agent, ip
		) VALUES (
			$1, $2,
			$3, $4,
			NULL, NULL,
			$5, NULL, $6,
			NULLIF($7::text, ''), NULLIF($8::text, '')::inet
		)
	`, rec.ID, rec.UserID, rec.CurrentHash, rec.CurrentIdentifier,
		rec.CreatedAt, rec.ExpiresAt, rec.UserAgent, validIPOrEmpty(rec.IP))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindByIdentifier loads the row whose current or previous identifier matches.
func (s *PostgresStore) FindByIdentifier(ctx context.Context, identifier string) (Record, error) {
	var rec Record
	err := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM `+s.table+`
		WHERE current_token_identifier = $1 OR previous_token_identifier = $1
		LIMIT 1
	`, identifier).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.CurrentHash,
		&rec.CurrentIdentifier,
		&rec.PreviousHash,
		&rec.PreviousIdentifier,
		&rec.CreatedAt,
		&rec.RotatedAt,
		&rec.ExpiresAt,
		&rec.UserAgent,
		&rec.IP,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Rotate moves current to previous and installs the new pair, guarded by the
// observed current identifier.
func (s *PostgresStore) Rotate(ctx context.Context, r Rotation) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE `+s.table+`
		SET
			previous_token_hash = current_token_hash,
			previous_token_identifier = current_token_identifier,
			current_token_hash = $3,
			current_token_identifier = $4,
			rotated_at = $5,
			expires_at = $6
		WHERE id = $1 AND current_token_identifier = $2
	`, r.ID, r.Observed, r.NewHash, r.NewIdentifier, r.Now, r.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicate
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a session row (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, id)
	return err
}

// DeleteByUser removes every session of a user.
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes every session with expires_at <= now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
