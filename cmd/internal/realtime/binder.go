package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dwbrown115/GameServer/cmd/internal/auth/session"
	v1 "github.com/dwbrown115/GameServer/shared/contracts/realtime/v1"
)

// Rejection reasons returned to clients.
const (
	ReasonInvalidSession = "Invalid token or session. Please log in again."
	ReasonInternal       = "An internal error occurred while creating the session."
)

// Validator is the subset of session.Service the binder needs.
type Validator interface {
	ValidateOrRefresh(ctx context.Context, now time.Time, userID, deviceID, accessToken, refreshToken string) (session.Result, error)
}

// Binder turns a validated credential pair into a realtime session id and
// its session-log row.
type Binder struct {
	validator Validator
	logs      SessionLogStore
	log       *slog.Logger
	now       func() time.Time
}

// NewBinder constructs a Binder. A nil logger falls back to slog.Default.
func NewBinder(validator Validator, logs SessionLogStore, log *slog.Logger) *Binder {
	if log == nil {
		log = slog.Default()
	}
	return &Binder{
		validator: validator,
		logs:      logs,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates req and, on success, writes an open session log.
// Rejected requests write nothing.
func (b *Binder) Authenticate(ctx context.Context, req v1.AuthRequest) v1.AuthResponse {
	now := b.now()

	res, err := b.validator.ValidateOrRefresh(ctx, now,
		strings.TrimSpace(req.UserID),
		strings.TrimSpace(req.DeviceID),
		req.AccessToken,
		req.RefreshToken,
	)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidSession) {
			b.log.Error("realtime.auth.validate.fail", "user_id", req.UserID, "err", err)
		}
		return v1.AuthResponse{Authenticated: false, Reason: ReasonInvalidSession}
	}

	sessionID, err := NewSessionID(now)
	if err != nil {
		b.log.Error("realtime.session_id.fail", "err", err)
		return v1.AuthResponse{Authenticated: false, Reason: ReasonInternal}
	}

	row := NewSessionLog(sessionID, res.UserID, strings.TrimSpace(req.DeviceID), now)
	if err := b.logs.Insert(ctx, row); err != nil {
		b.log.Error("realtime.session_log.insert.fail", "session_id", sessionID, "user_id", res.UserID, "err", err)
		return v1.AuthResponse{Authenticated: false, Reason: ReasonInternal}
	}

	b.log.Info("realtime.session.bound", "session_id", sessionID, "user_id", res.UserID, "rotated", res.Rotated)

	out := v1.AuthResponse{Authenticated: true, SessionID: sessionID}
	if res.Rotated {
		out.AccessToken = res.AccessToken
		out.RefreshToken = res.RefreshToken
	}
	return out
}
