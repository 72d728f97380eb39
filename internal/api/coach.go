package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/goal-coach/internal/coach"
	"github.com/ashureev/goal-coach/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Refiner is the single entry point of the refinement core, satisfied by
// *coach.Service. Handlers depend on it so tests can substitute a fake.
type Refiner interface {
	Refine(ctx context.Context, userID, message, threadID string) coach.Outcome
}

// CoachHandler handles refinement and goal endpoints.
type CoachHandler struct {
	*Handler
	refiner Refiner
	enabled bool
}

// NewCoachHandler creates the coach handler. A nil refiner (no model key
// configured) keeps the routes registered but answers 503.
func NewCoachHandler(base *Handler, refiner Refiner) *CoachHandler {
	return &CoachHandler{
		Handler: base,
		refiner: refiner,
		enabled: refiner != nil,
	}
}

// RegisterRoutes registers the API routes (requires identity middleware).
func (h *CoachHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Post("/generate", h.Generate)
		r.Post("/goals", h.SaveGoal)
		r.Get("/goals", h.ListGoals)
	})
}

type generateRequest struct {
	UserInput string `json:"user_input"`
	ThreadID  string `json:"thread_id,omitempty"`
}

type goalResultResponse struct {
	RefinedGoal     string   `json:"refined_goal"`
	KeyResults      []string `json:"key_results"`
	ConfidenceScore float64  `json:"confidence_score"`
	ThreadID        string   `json:"thread_id"`
}

func resultResponse(result *coach.GoalResult, threadID string) goalResultResponse {
	return goalResultResponse{
		RefinedGoal:     result.RefinedGoal,
		KeyResults:      result.KeyResults,
		ConfidenceScore: result.ConfidenceScore,
		ThreadID:        threadID,
	}
}

// Generate runs one refinement for the caller. Passing thread_id continues
// that thread so the message is applied as feedback to the previous result.
func (h *CoachHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.enabled {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"message": "AI features are not configured on this server.",
		})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome := h.refiner.Refine(r.Context(), userID, req.UserInput, req.ThreadID)
	switch outcome.Status {
	case coach.OutcomeAccepted:
		JSON(w, http.StatusOK, resultResponse(outcome.Result, outcome.ThreadID))

	case coach.OutcomeRejected:
		// The draft is returned so the user can see why it was declined
		// and retry in the same thread.
		JSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":   "Input too vague or invalid to generate a goal.",
			"draft":     resultResponse(outcome.Result, outcome.ThreadID),
			"thread_id": outcome.ThreadID,
		})

	case coach.OutcomeFailed:
		if outcome.Failure == coach.FailureInvalidInput {
			JSON(w, http.StatusBadRequest, map[string]string{
				"message": "user_input cannot be empty.",
			})
			return
		}
		slog.Error("refinement failed", "user_id", userID, "failure", outcome.Failure, "error", outcome.Err)
		JSON(w, http.StatusBadGateway, map[string]string{
			"message": "AI model failed to generate a valid response.",
		})

	default:
		slog.Error("unknown refinement outcome", "user_id", userID, "status", outcome.Status)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// GetMe returns the current user's information.
func (h *CoachHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *CoachHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.enabled,
	})
}
