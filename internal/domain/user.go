// Package domain contains core domain types for the goal coach.
package domain

import (
	"time"
)

// User represents an identified caller. Identity is anonymous and
// device-scoped; there are no credentials here.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
