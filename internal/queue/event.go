// Package queue defines message payloads exchanged over the message broker.
package queue

// UserRegisteredEvent is published after a successful signup. It
// carries enough information for downstream consumers to log or
// notify without querying the primary database. The password hash is
// deliberately absent.
type UserRegisteredEvent struct {
	UserID       uint64 `json:"user_id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	RegisteredAt string `json:"registered_at"`
}
