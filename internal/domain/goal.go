package domain

import (
	"time"
)

// Goal statuses. A goal is saved as a draft and promoted by the user.
const (
	GoalStatusDraft    = "draft"
	GoalStatusActive   = "active"
	GoalStatusArchived = "archived"
)

// Goal is a persisted, accepted refinement. Persistence happens above the
// refinement core: only results the gate accepted reach this type.
type Goal struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	OriginalInput   string    `json:"original_input"`
	RefinedGoal     string    `json:"refined_goal"`
	KeyResults      []string  `json:"key_results"`
	ConfidenceScore float64   `json:"confidence_score"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// ValidStatus reports whether s is a known goal status.
func ValidStatus(s string) bool {
	switch s {
	case GoalStatusDraft, GoalStatusActive, GoalStatusArchived:
		return true
	}
	return false
}
