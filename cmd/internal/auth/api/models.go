package authapi

import "time"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type logoutRequest struct {
	DeviceID     string `json:"device_id"`
	RefreshToken string `json:"refresh_token"`
}

type validateRequest struct {
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type passwordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type playerChanges struct {
	Username *string        `json:"username,omitempty"`
	Password *passwordChange `json:"password,omitempty"`
}

type playerChangeRequest struct {
	UserID       string        `json:"user_id"`
	DeviceID     string        `json:"device_id"`
	RefreshToken string        `json:"refresh_token"`
	Changes      playerChanges `json:"changes"`
}

// sessionResponse is returned by register, login and validate.
type sessionResponse struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type playerChangeResponse struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	PasswordChange bool   `json:"password_changed"`
	RevokedDevices int    `json:"revoked_devices"`
}
