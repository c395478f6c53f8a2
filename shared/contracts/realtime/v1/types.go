// Package v1 holds the JSON shapes exchanged with game clients over the
// realtime handshake and the WebSocket.
package v1

import (
	"errors"
	"math"
)

// StatusPrefix starts the status text of every position echo.
const StatusPrefix = "Received by server at "

// AuthRequest is the body of POST /ws/auth.
type AuthRequest struct {
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse answers POST /ws/auth. Tokens are present only after rotation.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	SessionID     string `json:"session_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
}

// Position is a client-reported player position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate rejects NaN and infinite coordinates.
func (p Position) Validate() error {
	for _, v := range []float64{p.X, p.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("coordinates must be finite")
		}
	}
	return nil
}

// PositionEcho is the server's acknowledgement of a Position.
type PositionEcho struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Status string  `json:"status"`
}

// Error is sent for frames the server could not process.
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
