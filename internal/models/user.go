package models

import "time"

// User mirrors the users table. The identifier is supplied by the
// caller; rows are created implicitly on first message. Preferences is
// a free-form blob the service writes but never reads.
type User struct {
	ID          string    `json:"user_id"`
	LastAccess  time.Time `json:"last_access"`
	Preferences string    `json:"preferences,omitempty"`
}
