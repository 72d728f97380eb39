package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/goal-coach/internal/coach"
	"github.com/ashureev/goal-coach/internal/domain"
	"github.com/ashureev/goal-coach/internal/identity"
	"github.com/google/uuid"
)

type goalCreateRequest struct {
	OriginalInput   string   `json:"original_input"`
	RefinedGoal     string   `json:"refined_goal"`
	KeyResults      []string `json:"key_results"`
	ConfidenceScore float64  `json:"confidence_score"`
	Status          string   `json:"status,omitempty"`
}

// validate re-checks the GoalResult bounds on the way into storage. The
// payload comes from the client, not straight from the core, so the server
// cannot assume it was gated.
func (req *goalCreateRequest) validate() string {
	if strings.TrimSpace(req.RefinedGoal) == "" {
		return "refined_goal cannot be empty"
	}
	if len(req.KeyResults) < coach.MinKeyResults || len(req.KeyResults) > coach.MaxKeyResults {
		return "key_results must contain 3 to 5 entries"
	}
	for _, kr := range req.KeyResults {
		if strings.TrimSpace(kr) == "" {
			return "key_results entries cannot be empty"
		}
	}
	if req.ConfidenceScore < 0.0 || req.ConfidenceScore > 1.0 {
		return "confidence_score must be between 0 and 1"
	}
	if req.Status != "" && !domain.ValidStatus(req.Status) {
		return "unknown goal status"
	}
	return ""
}

func goalJSON(goal *domain.Goal) map[string]interface{} {
	return map[string]interface{}{
		"id":               goal.ID,
		"original_input":   goal.OriginalInput,
		"refined_goal":     goal.RefinedGoal,
		"key_results":      goal.KeyResults,
		"confidence_score": goal.ConfidenceScore,
		"status":           goal.Status,
		"created_at":       goal.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SaveGoal persists an approved goal, scoped to the caller.
func (h *CoachHandler) SaveGoal(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req goalCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		JSON(w, http.StatusBadRequest, map[string]string{"message": msg})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.GoalStatusDraft
	}

	goal := &domain.Goal{
		ID:              uuid.NewString(),
		UserID:          userID,
		OriginalInput:   req.OriginalInput,
		RefinedGoal:     req.RefinedGoal,
		KeyResults:      req.KeyResults,
		ConfidenceScore: req.ConfidenceScore,
		Status:          status,
		CreatedAt:       time.Now(),
	}

	if err := h.repo.InsertGoal(r.Context(), goal); err != nil {
		slog.Error("failed to save goal", "user_id", userID, "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Could not save goal.",
		})
		return
	}

	JSON(w, http.StatusCreated, goalJSON(goal))
}

// ListGoals returns the caller's saved goals, newest first.
func (h *CoachHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", DefaultGoalsPageSize, 0, MaxGoalsPageSize)
	offset := queryInt(r, "offset", 0, 0, 1<<31-1)

	total, err := h.repo.CountGoals(r.Context(), userID)
	if err != nil {
		slog.Error("failed to count goals", "user_id", userID, "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Could not load goals.",
		})
		return
	}

	goals, err := h.repo.ListGoals(r.Context(), userID, limit, offset)
	if err != nil {
		slog.Error("failed to list goals", "user_id", userID, "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Could not load goals.",
		})
		return
	}

	items := make([]map[string]interface{}, 0, len(goals))
	for _, goal := range goals {
		items = append(items, goalJSON(goal))
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"goals": items,
		"total": total,
	})
}

// queryInt parses a bounded integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
