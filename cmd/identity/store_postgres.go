package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"sessiond/cmd/security/password"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
// The connection manager in internal/db implements it as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore implements Store over PostgreSQL.
//
// The connection is owned by the caller; this store never closes it.
// Schema identifiers are quoted via pgx.Identifier to keep them injection-safe.
type PostgresStore struct {
	db     DB
	schema string
	pw     password.Config
	dummy  *password.DummyVerifier
	log    *slog.Logger
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "sessiond").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithPasswordConfig overrides the Argon2id parameters and password policy.
func WithPasswordConfig(cfg password.Config) PostgresOption {
	return func(s *PostgresStore) error {
		s.pw = cfg
		return nil
	}
}

// WithLogger sets the logger for best-effort background writes.
func WithLogger(log *slog.Logger) PostgresOption {
	return func(s *PostgresStore) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db DB, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		db:     db,
		schema: "sessiond",
		pw:     password.DefaultConfig(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	st.dummy = password.NewDummyVerifier(st.pw)
	return st, nil
}

const userColumns = `u.id, u.email, u.email_norm, u.full_name, u.business_name, u.address, u.phone,
	u.profile_image_url, u.created_at, u.updated_at`

// CreateUser creates a user and its credentials in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	rec, err := prepareCreate(op, in, s.pw)
	if err != nil {
		return User{}, err
	}
	u := rec.user

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, email, email_norm, full_name, profile_image_url, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.Email, u.EmailNorm, u.FullName, u.ProfileImageURL, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		u.ID, rec.hash, u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByID loads a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` u WHERE u.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// GetUserByEmail loads a user by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+pgIdent(s.schema, "users")+` u WHERE u.email_norm = $1`, norm))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

// VerifyPassword loads the credential row for email and checks password.
func (s *PostgresStore) VerifyPassword(ctx context.Context, email, pw string) (User, bool, error) {
	const op = "identity.VerifyPassword"

	norm := NormalizeEmail(email)
	if norm == "" {
		s.dummy.Verify(pw)
		return User{}, false, NotFoundError{Op: op, Resource: "user"}
	}

	var (
		u    User
		hash string
	)
	err := s.db.QueryRow(ctx,
		`SELECT `+userColumns+`, c.password_hash
		   FROM `+pgIdent(s.schema, "users")+` u
		   JOIN `+pgIdent(s.schema, "user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`, norm,
	).Scan(
		&u.ID, &u.Email, &u.EmailNorm, &u.FullName, &u.BusinessName, &u.Address, &u.Phone,
		&u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt, &hash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		s.dummy.Verify(pw)
		return User{}, false, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, false, err
	}

	ok, err := s.pw.Verify(hash, pw)
	if err != nil {
		return User{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "stored hash unreadable"}
	}
	if ok && s.pw.NeedsRehash(hash) {
		s.rehash(ctx, u.ID, hash, pw)
	}
	return u, ok, nil
}

// rehash is best effort: a failure leaves the older, still valid hash in place.
func (s *PostgresStore) rehash(ctx context.Context, userID, old, pw string) {
	h, err := s.pw.Hash(pw)
	if err != nil {
		s.log.Warn("identity.rehash.fail", "user_id", userID, "stage", "hash", "err", err)
		return
	}
	_, err = s.db.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "user_credentials")+`
		    SET password_hash = $3, updated_at = now()
		  WHERE user_id = $1 AND password_hash = $2`,
		userID, old, h,
	)
	if err != nil {
		s.log.Warn("identity.rehash.fail", "user_id", userID, "stage", "update", "err", err)
	}
}

// UpdateProfile locks the user row, applies in, and writes the result back.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	cur, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` u WHERE u.id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}

	next, err := applyProfile(op, cur, in)
	if err != nil {
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+users+`
		    SET full_name = $2, business_name = $3, address = $4, phone = $5,
		        profile_image_url = $6, updated_at = $7
		  WHERE id = $1`,
		id, next.FullName, next.BusinessName, next.Address, next.Phone, next.ProfileImageURL, next.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return next, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.EmailNorm, &u.FullName, &u.BusinessName, &u.Address, &u.Phone,
		&u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
