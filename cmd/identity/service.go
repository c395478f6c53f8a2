package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dwbrown115/GameServer/cmd/identity/ids"
	"github.com/dwbrown115/GameServer/cmd/security/password"
)

// Service implements the account flows on top of a Store.
type Service struct {
	store  Store
	hasher password.Config
	log    *slog.Logger

	// dummy is verified against when the username is unknown so both
	// failure paths cost one hash.
	dummy password.Hashed
}

// NewService builds a Service. A nil logger falls back to slog.Default.
func NewService(store Store, hasher password.Config, log *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if log == nil {
		log = slog.Default()
	}
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	return &Service{store: store, hasher: hasher, log: log, dummy: dummy}, nil
}

// Register creates a new account. Username conflicts return an error
// matching ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, pw string, now time.Time) (User, error) {
	const op = "identity.Register"

	name, ok := CleanUsername(username)
	if !ok {
		return User{}, invalid(op, "username must be 3-32 letters, digits or _-.")
	}
	h, err := s.hasher.Hash(pw)
	if err != nil {
		if isPolicyErr(err) {
			return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password", Err: err}
		}
		return User{}, err
	}

	id, err := ids.NewUserID()
	if err != nil {
		return User{}, err
	}
	now = now.UTC()
	u := User{
		ID:           id,
		Username:     name,
		UsernameNorm: NormalizeUsername(name),
		PasswordHash: h.Hash,
		PasswordSalt: h.Salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return User{}, err
	}

	s.log.Info("identity.register.ok", "user_id", u.ID)
	return u, nil
}

// Authenticate checks username and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials. Hashes under outdated
// parameters (including legacy PBKDF2) are upgraded on success.
func (s *Service) Authenticate(ctx context.Context, username, pw string, now time.Time) (User, error) {
	const op = "identity.Authenticate"

	u, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if IsNotFound(err) {
			_, _ = s.hasher.Verify(s.dummy, pw)
			return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return User{}, err
	}

	stored := password.Hashed{Hash: u.PasswordHash, Salt: u.PasswordSalt}
	ok, err := s.hasher.Verify(stored, pw)
	if err != nil {
		s.log.Warn("identity.authenticate.bad_hash", "user_id", u.ID, "err", err)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if s.hasher.NeedsRehash(stored) {
		s.rehash(ctx, &u, pw, now)
	}
	return u, nil
}

func (s *Service) rehash(ctx context.Context, u *User, pw string, now time.Time) {
	h, err := s.hasher.Hash(pw)
	if err != nil {
		// Legacy passwords may fall outside the current policy; keep the old hash.
		s.log.Info("identity.rehash.skip", "user_id", u.ID, "err", err)
		return
	}
	if err := s.store.UpdatePassword(ctx, u.ID, h.Hash, h.Salt, now.UTC()); err != nil {
		s.log.Warn("identity.rehash.fail", "user_id", u.ID, "err", err)
		return
	}
	u.PasswordHash, u.PasswordSalt = h.Hash, h.Salt
	s.log.Info("identity.rehash.ok", "user_id", u.ID)
}

// ChangeUsername renames the account.
func (s *Service) ChangeUsername(ctx context.Context, userID, username string, now time.Time) (User, error) {
	const op = "identity.ChangeUsername"

	name, ok := CleanUsername(username)
	if !ok {
		return User{}, invalid(op, "username must be 3-32 letters, digits or _-.")
	}
	if err := s.store.UpdateUsername(ctx, userID, name, now.UTC()); err != nil {
		return User{}, err
	}
	return s.store.FindByID(ctx, userID)
}

// ChangePassword verifies oldPW and stores a fresh hash of newPW.
// A wrong old password returns ErrInvalidCredentials.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPW, newPW string, now time.Time) error {
	const op = "identity.ChangePassword"

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(password.Hashed{Hash: u.PasswordHash, Salt: u.PasswordSalt}, oldPW)
	if err != nil || !ok {
		return OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	h, err := s.hasher.Hash(newPW)
	if err != nil {
		if isPolicyErr(err) {
			return OpError{Op: op, Kind: ErrInvalidInput, Msg: "new_password", Err: err}
		}
		return err
	}
	return s.store.UpdatePassword(ctx, userID, h.Hash, h.Salt, now.UTC())
}

func isPolicyErr(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrPasswordInvalid)
}
