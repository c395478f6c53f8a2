package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionLogStore implements SessionLogStore on player_session_logs.
type PostgresSessionLogStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ SessionLogStore = (*PostgresSessionLogStore)(nil)

// NewPostgresSessionLogStore constructs the store. An empty schema means "public".
func NewPostgresSessionLogStore(pool *pgxpool.Pool, schema string) (*PostgresSessionLogStore, error) {
	if pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	return &PostgresSessionLogStore{pool: pool, schema: schema}, nil
}

const sessionLogColumns = `session_id, player_id, device_id, session_start, session_end, deletion_date,
	client_obj_count, server_obj_count, object_sync_hash, hash_mismatch, sync_status, desync_resolution,
	radius_enforced, object_lifecycle_log, score_server, attempted_client_score, fake_object_detected,
	pickup_events_verified, spawn_requests, validated_spawns, blocked_spawns, spawn_rate_flagged,
	session_metadata, region, game_version, platform, flagged_for_review, admin_notes`

func (s *PostgresSessionLogStore) Insert(ctx context.Context, l SessionLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+sessionLogColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb,
		         $15, $16, $17, $18, $19, $20, $21, $22, $23::jsonb, $24, $25, $26, $27, $28)`,
		l.SessionID, l.PlayerID, l.DeviceID, l.SessionStart, l.SessionEnd, l.DeletionDate,
		l.ClientObjCount, l.ServerObjCount, l.ObjectSyncHash, l.HashMismatch, l.SyncStatus, l.DesyncResolution,
		l.RadiusEnforced, l.ObjectLifecycleLog, l.ScoreServer, l.AttemptedClientScore, l.FakeObjectDetected,
		l.PickupEventsVerified, l.SpawnRequests, l.ValidatedSpawns, l.BlockedSpawns, l.SpawnRateFlagged,
		l.SessionMetadata, l.Region, l.GameVersion, l.Platform, l.FlaggedForReview, l.AdminNotes,
	)
	return err
}

func (s *PostgresSessionLogStore) FindOpen(ctx context.Context, sessionID string) (SessionLog, error) {
	var (
		l         SessionLog
		lifecycle string
		metadata  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, player_id, device_id, session_start, session_end, deletion_date,
		        client_obj_count, server_obj_count, COALESCE(object_sync_hash, ''), hash_mismatch,
		        sync_status, desync_resolution, radius_enforced, object_lifecycle_log::text,
		        COALESCE(score_server, 0), COALESCE(attempted_client_score, 0), fake_object_detected,
		        pickup_events_verified, spawn_requests, validated_spawns, blocked_spawns, spawn_rate_flagged,
		        session_metadata::text, region, game_version, platform, flagged_for_review, COALESCE(admin_notes, '')
		   FROM `+s.table()+`
		  WHERE session_id = $1 AND session_end IS NULL`,
		sessionID,
	).Scan(
		&l.SessionID, &l.PlayerID, &l.DeviceID, &l.SessionStart, &l.SessionEnd, &l.DeletionDate,
		&l.ClientObjCount, &l.ServerObjCount, &l.ObjectSyncHash, &l.HashMismatch,
		&l.SyncStatus, &l.DesyncResolution, &l.RadiusEnforced, &lifecycle,
		&l.ScoreServer, &l.AttemptedClientScore, &l.FakeObjectDetected,
		&l.PickupEventsVerified, &l.SpawnRequests, &l.ValidatedSpawns, &l.BlockedSpawns, &l.SpawnRateFlagged,
		&metadata, &l.Region, &l.GameVersion, &l.Platform, &l.FlaggedForReview, &l.AdminNotes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionLog{}, ErrSessionLogNotFound
	}
	if err != nil {
		return SessionLog{}, err
	}
	l.ObjectLifecycleLog = lifecycle
	l.SessionMetadata = metadata
	return l, nil
}

func (s *PostgresSessionLogStore) EndSession(ctx context.Context, sessionID string, end time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET session_end = $2 WHERE session_id = $1 AND session_end IS NULL`,
		sessionID, end,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionLogNotFound
	}
	return nil
}

func (s *PostgresSessionLogStore) table() string {
	return pgx.Identifier{s.schema, "player_session_logs"}.Sanitize()
}
