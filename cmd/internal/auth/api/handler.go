package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dwbrown115/GameServer/cmd/identity"
	"github.com/dwbrown115/GameServer/cmd/internal/auth/session"
	"github.com/dwbrown115/GameServer/cmd/internal/realtime"
	v1 "github.com/dwbrown115/GameServer/shared/contracts/realtime/v1"
)

// Binder binds a validated credential pair to a realtime session.
type Binder interface {
	Authenticate(ctx context.Context, req v1.AuthRequest) v1.AuthResponse
}

// Handler wires HTTP auth endpoints to the identity and session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    *identity.Service
	sessions *session.Service
	binder   Binder

	throttle *loginThrottle
	now      func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithBinder enables POST /ws/auth.
func WithBinder(b Binder) HandlerOption {
	return func(h *Handler) {
		if h == nil || b == nil {
			return
		}
		h.binder = b
	}
}

// NewHandler constructs a Handler. A nil logger falls back to slog.Default.
func NewHandler(log *slog.Logger, cfg Config, users *identity.Service, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if users == nil {
		return nil, errors.New("auth: nil identity service")
	}
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		throttle: newLoginThrottle(cfg),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/authentication/register", h.handleRegister)
	mux.HandleFunc("/authentication/login", h.handleLogin)
	mux.HandleFunc("/authentication/logout", h.handleLogout)
	mux.HandleFunc("/authentication/validate", h.handleValidate)
	mux.HandleFunc("/player/change", h.handlePlayerChange)
	if h.binder != nil {
		mux.HandleFunc("/ws/auth", h.handleWSAuth)
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || deviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username, password and device_id are required")
		return
	}

	ctx := r.Context()
	now := h.now()

	u, err := h.users.Register(ctx, req.Username, req.Password, now)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameTaken):
			writeError(w, http.StatusBadRequest, "username_taken", "username is already taken")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.issue(ctx, w, now, u.ID, deviceID)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || deviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username, password and device_id are required")
		return
	}

	ctx := r.Context()
	now := h.now()
	ipKey := ""
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		ipKey = "ip:" + ip.String()
	}
	userKey := "user:" + identity.NormalizeUsername(req.Username)

	if ipKey != "" {
		if blocked, retry := h.throttle.check(ipKey, false, now); blocked {
			h.log.Info("auth.login.throttled", "scope", "ip", "retry_after", retry)
			writeRateLimited(w, retry)
			return
		}
	}
	if blocked, retry := h.throttle.check(userKey, true, now); blocked {
		h.log.Info("auth.login.throttled", "scope", "user", "retry_after", retry)
		writeRateLimited(w, retry)
		return
	}

	u, err := h.users.Authenticate(ctx, req.Username, req.Password, now)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			if ipKey != "" {
				h.throttle.fail(ipKey, now)
			}
			h.throttle.fail(userKey, now)
			h.log.Info("auth.login.failed", "device_id", deviceID)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	h.throttle.reset(userKey)

	h.issue(ctx, w, now, u.ID, deviceID)
}

// issue mints the pair for (userID, deviceID) and writes the login output.
func (h *Handler) issue(ctx context.Context, w http.ResponseWriter, now time.Time, userID, deviceID string) {
	issued, err := h.sessions.IssueOrRotate(ctx, now, userID, deviceID)
	if err != nil {
		h.log.Error("auth.issue_session.fail", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       issued.UserID,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresAt:    issued.AccessExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device_id and refresh_token are required")
		return
	}

	if err := h.sessions.Logout(r.Context(), h.now(), deviceID, req.RefreshToken); err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no active session for this device")
			return
		}
		h.log.Error("auth.logout.fail", "device_id", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req validateRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	res, err := h.sessions.ValidateOrRefresh(r.Context(), h.now(),
		strings.TrimSpace(req.UserID),
		strings.TrimSpace(req.DeviceID),
		req.AccessToken,
		req.RefreshToken,
	)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			writeError(w, http.StatusUnauthorized, "invalid_session", "invalid token or session")
			return
		}
		h.log.Error("auth.validate.fail", "user_id", req.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:       res.UserID,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
	})
}

func (h *Handler) handleWSAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req v1.AuthRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, v1.AuthResponse{Reason: "invalid request body"})
		return
	}

	res := h.binder.Authenticate(r.Context(), req)
	if !res.Authenticated {
		status := http.StatusUnauthorized
		if res.Reason == realtime.ReasonInternal {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePlayerChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req playerChangeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Changes.Username == nil && req.Changes.Password == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "no changes requested")
		return
	}

	ctx := r.Context()
	now := h.now()
	userID := strings.TrimSpace(req.UserID)
	deviceID := strings.TrimSpace(req.DeviceID)

	rec, err := h.sessions.Authorize(ctx, now, userID, deviceID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSession) {
			writeError(w, http.StatusUnauthorized, "invalid_session", "invalid token or session")
			return
		}
		h.log.Error("auth.player_change.authorize.fail", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := playerChangeResponse{UserID: rec.UserID}

	// The password goes first: it is the change that can fail on the old value.
	if pw := req.Changes.Password; pw != nil {
		if err := h.users.ChangePassword(ctx, rec.UserID, pw.OldPassword, pw.NewPassword, now); err != nil {
			h.writeChangeError(w, "password", err)
			return
		}
		n, err := h.sessions.RevokeOtherDevices(ctx, now, rec.UserID, rec.DeviceID)
		if err != nil {
			h.log.Error("auth.player_change.revoke_others.fail", "user_id", rec.UserID, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		out.PasswordChange = true
		out.RevokedDevices = n
		h.log.Info("auth.player_change.password", "user_id", rec.UserID, "revoked_devices", n)
	}

	if name := req.Changes.Username; name != nil {
		u, err := h.users.ChangeUsername(ctx, rec.UserID, *name, now)
		if err != nil {
			h.writeChangeError(w, "username", err)
			return
		}
		out.Username = u.Username
		h.log.Info("auth.player_change.username", "user_id", rec.UserID)
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeChangeError(w http.ResponseWriter, field string, err error) {
	switch {
	case errors.Is(err, identity.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "username_taken", "username is already taken")
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", invalidInputMessage(err))
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	default:
		h.log.Error("auth.player_change.fail", "field", field, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func invalidInputMessage(err error) string {
	var op identity.OpError
	if errors.As(err, &op) && op.Msg != "" {
		if op.Err != nil {
			return op.Msg + ": " + op.Err.Error()
		}
		return op.Msg
	}
	return "invalid input"
}

// ---- helpers ----

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
