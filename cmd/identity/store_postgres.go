package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the users table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSchema sets the schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) {
		if v := strings.TrimSpace(schema); v != "" {
			s.schema = v
		}
	}
}

// NewPostgresStore constructs a PostgresStore over pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	s := &PostgresStore{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

const userColumns = `id, username, username_norm, password_hash, password_salt, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.UsernameNorm, &u.PasswordHash, &u.PasswordSalt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, error) {
	const op = "identity.FindByUsername"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table()+` WHERE username_norm = $1`,
		NormalizeUsername(username),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return u, err
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.table()+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return u, err
}

func (s *PostgresStore) Insert(ctx context.Context, u User) error {
	const op = "identity.Insert"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.UsernameNorm, u.PasswordHash, u.PasswordSalt, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

func (s *PostgresStore) UpdateUsername(ctx context.Context, id, username string, now time.Time) error {
	const op = "identity.UpdateUsername"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET username = $2, username_norm = $3, updated_at = $4
		  WHERE id = $1`,
		id, username, NormalizeUsername(username), now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id, hash, salt string, now time.Time) error {
	const op = "identity.UpdatePassword"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET password_hash = $2, password_salt = $3, updated_at = $4
		  WHERE id = $1`,
		id, hash, salt, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

// pgClassifyUniqueViolation maps a 23505 to the logical field it guards.
func pgClassifyUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "uq_users_username_norm":
		return "username", true
	case "users_pkey":
		return "id", true
	default:
		return "", true
	}
}
