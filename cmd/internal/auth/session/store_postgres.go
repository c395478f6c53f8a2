package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dwbrown115/GameServer/cmd/security/token"
)

// PostgresStore implements Store on the refresh_credentials table.
//
// Upserts and rotations run in one transaction each. A transaction-scoped
// advisory lock on the (user, device) pair serialises writers for the pair,
// and the partial unique index keeps at most one live row per pair.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	wrap   token.KeyWrapper
	log    *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSchema sets the schema holding refresh_credentials (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) {
		if v := strings.TrimSpace(schema); v != "" {
			s.schema = v
		}
	}
}

// WithKeyWrapper seals record keys under a KEK before they are written.
func WithKeyWrapper(w token.KeyWrapper) PostgresOption {
	return func(s *PostgresStore) { s.wrap = w }
}

// WithStoreLogger sets the logger used for rows the store has to skip.
func WithStoreLogger(l *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewPostgresStore constructs a PostgresStore over pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	s := &PostgresStore{pool: pool, schema: "public", log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

var errUnwrap = errors.New("unwrap key")

const recordColumns = `id, user_id, device_id, ciphertext, key_material, expires_at, revoked, created_at, revoked_at`

func (s *PostgresStore) FindNonRevokedByDevice(ctx context.Context, deviceID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+`
		   FROM `+s.table()+`
		  WHERE device_id = $1 AND NOT revoked
		  ORDER BY created_at, id`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.collect(rows)
}

// recordRows is the part of pgx.Rows the device scan reads.
type recordRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collect scans candidate rows. A row whose key cannot be unwrapped (written
// before key wrapping was enabled, or under another KEK) is not a match and
// is skipped.
func (s *PostgresStore) collect(rows recordRows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		r, err := s.scan(rows)
		if errors.Is(err, errUnwrap) {
			s.log.Warn("session.store.unwrap.fail", "record_id", r.ID, "device_id", r.DeviceID)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindNonRevoked(ctx context.Context, userID, deviceID string) (Record, error) {
	r, err := s.scan(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+s.table()+`
		  WHERE user_id = $1 AND device_id = $2 AND NOT revoked`,
		userID, deviceID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return r, err
}

func (s *PostgresStore) UpsertRefreshRecord(ctx context.Context, rec Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, rec.UserID, rec.DeviceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE `+s.table()+`
			    SET revoked = true, revoked_at = $3
			  WHERE user_id = $1 AND device_id = $2 AND NOT revoked`,
			rec.UserID, rec.DeviceID, rec.CreatedAt,
		); err != nil {
			return err
		}
		return s.insertTx(ctx, tx, rec)
	})
}

func (s *PostgresStore) RotateRefreshRecord(ctx context.Context, revokeID string, next Record) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, next.UserID, next.DeviceID); err != nil {
			return err
		}

		var id string
		err := tx.QueryRow(ctx,
			`SELECT id FROM `+s.table()+`
			  WHERE id = $1 AND NOT revoked
			  FOR UPDATE`,
			revokeID,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE `+s.table()+` SET revoked = true, revoked_at = $2 WHERE id = $1`,
			revokeID, next.CreatedAt,
		); err != nil {
			return err
		}
		return s.insertTx(ctx, tx, next)
	})
}

func (s *PostgresStore) RevokeRefreshRecord(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked = true, revoked_at = $2
		  WHERE id = $1 AND NOT revoked`,
		id, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID, exceptDeviceID string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET revoked = true, revoked_at = $3
		  WHERE user_id = $1 AND NOT revoked AND ($2 = '' OR device_id <> $2)`,
		userID, exceptDeviceID, now,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) insertTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	stored, err := s.wrap.Wrap(rec.Key)
	if err != nil {
		return fmt.Errorf("wrap key: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, NULL)`,
		rec.ID, rec.UserID, rec.DeviceID, rec.Ciphertext, stored, rec.ExpiresAt, rec.CreatedAt,
	)
	return err
}

func (s *PostgresStore) scan(row pgx.Row) (Record, error) {
	var (
		r      Record
		stored []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.DeviceID, &r.Ciphertext, &stored, &r.ExpiresAt, &r.Revoked, &r.CreatedAt, &r.RevokedAt); err != nil {
		return Record{}, err
	}
	key, err := s.wrap.Unwrap(stored)
	if err != nil {
		return Record{ID: r.ID, UserID: r.UserID, DeviceID: r.DeviceID}, fmt.Errorf("%w for %s: %w", errUnwrap, r.ID, err)
	}
	r.Key = key
	return r, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "refresh_credentials"}.Sanitize()
}

// lockPair takes a transaction-scoped advisory lock keyed by the pair.
func lockPair(ctx context.Context, tx pgx.Tx, userID, deviceID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID+"\x00"+deviceID)
	return err
}
