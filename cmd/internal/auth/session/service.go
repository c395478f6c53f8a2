package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwbrown115/GameServer/cmd/identity/ids"
	"github.com/dwbrown115/GameServer/cmd/security/token"
)

// Outcome labels a session operation result for observers.
type Outcome string

const (
	OutcomeIssued      Outcome = "issued"
	OutcomeIssueFailed Outcome = "issue_failed"
	OutcomeFresh       Outcome = "fresh"
	OutcomeRotated     Outcome = "rotated"
	OutcomeRejected    Outcome = "rejected"
	OutcomeRevoked     Outcome = "revoked"
)

// Observer receives one call per completed operation.
type Observer interface {
	ObserveSession(Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveSession(Outcome) {}

// Service issues, validates, rotates and revokes device credentials.
type Service struct {
	cfg   Config
	store Store
	codec AccessCodec
	log   *slog.Logger
	obs   Observer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver registers an outcome observer (metrics).
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// NewService constructs a Service. The access-token codec is chosen from cfg.
func NewService(cfg Config, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := NewAccessCodec(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, store: store, codec: codec, log: slog.Default(), obs: nopObserver{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Issued is a freshly minted credential pair. RefreshToken is the only copy
// of the plaintext refresh value.
type Issued struct {
	UserID           string
	DeviceID         string
	RecordID         string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Result is the outcome of ValidateOrRefresh. When Rotated is false the
// tokens are the ones presented.
type Result struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Rotated      bool
}

// IssueOrRotate mints a new pair for (userID, deviceID), revoking any live
// record the pair already had.
func (s *Service) IssueOrRotate(ctx context.Context, now time.Time, userID, deviceID string) (Issued, error) {
	userID, deviceID = strings.TrimSpace(userID), strings.TrimSpace(deviceID)
	if userID == "" || deviceID == "" {
		s.obs.ObserveSession(OutcomeIssueFailed)
		return Issued{}, IssuanceError{Step: "input", Err: errors.New("empty user or device id")}
	}

	rec, out, err := s.mint(now, userID, deviceID)
	if err != nil {
		s.obs.ObserveSession(OutcomeIssueFailed)
		return Issued{}, err
	}

	if err := s.store.UpsertRefreshRecord(ctx, rec); err != nil {
		s.obs.ObserveSession(OutcomeIssueFailed)
		s.log.Error("session.issue.store.fail", "user_id", userID, "device_id", deviceID, "err", err)
		return Issued{}, IssuanceError{Step: "store", Err: err}
	}

	s.obs.ObserveSession(OutcomeIssued)
	s.log.Info("session.issue", "user_id", userID, "device_id", deviceID, "record_id", rec.ID)
	return out, nil
}

// ValidateOrRefresh checks a presented pair. A fresh access token is returned
// unchanged; an invalid or near-expiry one causes rotation. Any pair that
// cannot be matched to a live, unexpired record yields ErrInvalidSession.
func (s *Service) ValidateOrRefresh(ctx context.Context, now time.Time, userID, deviceID, accessToken, refreshToken string) (Result, error) {
	rec, err := s.match(ctx, now, userID, deviceID, refreshToken)
	if err != nil {
		s.obs.ObserveSession(OutcomeRejected)
		return Result{}, err
	}

	claims, verr := s.codec.Verify(rec.Key, accessToken, now)
	bound := verr == nil && claims.UserID == rec.UserID && claims.DeviceID == rec.DeviceID
	if bound && claims.ExpiresAt.Sub(now) >= s.cfg.RefreshWindow {
		s.obs.ObserveSession(OutcomeFresh)
		return Result{
			UserID:       rec.UserID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    claims.ExpiresAt,
		}, nil
	}

	reason := "near_expiry"
	switch {
	case verr != nil:
		reason = "invalid_access"
	case !bound:
		reason = "subject_mismatch"
	}

	next, out, err := s.mint(now, rec.UserID, rec.DeviceID)
	if err != nil {
		s.obs.ObserveSession(OutcomeIssueFailed)
		return Result{}, err
	}
	if err := s.store.RotateRefreshRecord(ctx, rec.ID, next); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			s.obs.ObserveSession(OutcomeRejected)
			s.log.Info("session.rotate.lost", "user_id", rec.UserID, "device_id", rec.DeviceID, "record_id", rec.ID)
			return Result{}, ErrInvalidSession
		}
		s.obs.ObserveSession(OutcomeIssueFailed)
		s.log.Error("session.rotate.store.fail", "user_id", rec.UserID, "record_id", rec.ID, "err", err)
		return Result{}, IssuanceError{Step: "rotate", Err: err}
	}

	s.obs.ObserveSession(OutcomeRotated)
	s.log.Info("session.rotate",
		"user_id", rec.UserID,
		"device_id", rec.DeviceID,
		"from", rec.ID,
		"to", next.ID,
		"reason", reason,
	)
	return Result{
		UserID:       out.UserID,
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    out.AccessExpiresAt,
		Rotated:      true,
	}, nil
}

// Authorize matches (userID, deviceID, refreshToken) to a live, unexpired
// record without touching the access token or rotating.
func (s *Service) Authorize(ctx context.Context, now time.Time, userID, deviceID, refreshToken string) (Record, error) {
	return s.match(ctx, now, userID, deviceID, refreshToken)
}

// Logout revokes the live record on deviceID whose refresh value matches.
// It returns ErrRecordNotFound when nothing matches.
func (s *Service) Logout(ctx context.Context, now time.Time, deviceID, refreshToken string) error {
	rec, err := s.findByRefresh(ctx, deviceID, refreshToken)
	if err != nil {
		return err
	}
	if err := s.store.RevokeRefreshRecord(ctx, rec.ID, now); err != nil {
		return err
	}
	s.obs.ObserveSession(OutcomeRevoked)
	s.log.Info("session.logout", "user_id", rec.UserID, "device_id", rec.DeviceID, "record_id", rec.ID)
	return nil
}

// RevokeOtherDevices revokes every live record of userID except keepDeviceID's.
func (s *Service) RevokeOtherDevices(ctx context.Context, now time.Time, userID, keepDeviceID string) (int, error) {
	n, err := s.store.RevokeAllForUser(ctx, userID, keepDeviceID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("session.revoke_others", "user_id", userID, "kept_device_id", keepDeviceID, "count", n)
	}
	return n, nil
}

func (s *Service) match(ctx context.Context, now time.Time, userID, deviceID, refreshToken string) (Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Record{}, ErrInvalidSession
	}

	rec, err := s.findByRefresh(ctx, deviceID, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, ErrInvalidSession
		}
		return Record{}, err
	}

	// The scan is device-scoped; the record must also belong to the caller.
	if rec.UserID != userID {
		s.log.Warn("session.validate.device_user_mismatch", "device_id", rec.DeviceID, "record_id", rec.ID)
		return Record{}, ErrInvalidSession
	}
	if !rec.ExpiresAt.After(now) {
		s.log.Info("session.validate.expired", "user_id", rec.UserID, "record_id", rec.ID)
		return Record{}, ErrInvalidSession
	}
	return rec, nil
}

// findByRefresh returns the first live record on deviceID whose ciphertext
// opens to refreshToken.
func (s *Service) findByRefresh(ctx context.Context, deviceID, refreshToken string) (Record, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || refreshToken == "" || len(refreshToken) > 512 {
		return Record{}, ErrRecordNotFound
	}

	candidates, err := s.store.FindNonRevokedByDevice(ctx, deviceID)
	if err != nil {
		return Record{}, fmt.Errorf("session: find records: %w", err)
	}
	for _, c := range candidates {
		if token.Matches(c.Key, c.Ciphertext, refreshToken) {
			return c, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

// mint builds a new record and the matching token pair. Nothing is stored.
func (s *Service) mint(now time.Time, userID, deviceID string) (Record, Issued, error) {
	key, err := token.NewKey()
	if err != nil {
		return Record{}, Issued{}, IssuanceError{Step: "key", Err: err}
	}
	refresh, err := token.NewRefreshValue(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Record{}, Issued{}, IssuanceError{Step: "refresh_value", Err: err}
	}
	sealed, err := token.Seal(key, refresh)
	if err != nil {
		return Record{}, Issued{}, IssuanceError{Step: "seal", Err: err}
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Record{}, Issued{}, IssuanceError{Step: "id", Err: err}
	}

	refreshExp := now.Add(s.cfg.RefreshTTL)
	accessExp := now.Add(s.cfg.AccessTokenTTL)
	if accessExp.After(refreshExp) {
		accessExp = refreshExp
	}

	access, err := s.codec.Issue(key, userID, deviceID, now, accessExp)
	if err != nil {
		return Record{}, Issued{}, IssuanceError{Step: "access_token", Err: err}
	}

	rec := Record{
		ID:         id,
		UserID:     userID,
		DeviceID:   deviceID,
		Ciphertext: sealed,
		Key:        key,
		ExpiresAt:  refreshExp,
		CreatedAt:  now,
	}
	return rec, Issued{
		UserID:           userID,
		DeviceID:         deviceID,
		RecordID:         id,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
