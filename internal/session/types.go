package session

import "time"

// LoginRequest is the UI bridge payload for opening a session.
type LoginRequest struct {
	Username string `json:"username"`
}

// LoginResponse returns the created session metadata.
type LoginResponse struct {
	SessionID       string    `json:"session_id"`
	Username        string    `json:"username"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
