package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/goal-coach/internal/coach"
	"github.com/ashureev/goal-coach/internal/identity"
	"github.com/coder/websocket"
)

const wsRefineTimeout = 2 * time.Minute

// RefineSocket handles WebSocket-based interactive refinement. Each text
// frame is one refine call; the connection is sticky to the thread the
// first exchange created, so follow-up frames are applied as feedback.
type RefineSocket struct {
	refiner       Refiner
	allowedOrigin string
	isDev         bool
}

// NewRefineSocket creates a new WebSocket refinement handler.
func NewRefineSocket(refiner Refiner, allowedOrigin string, isDev bool) *RefineSocket {
	return &RefineSocket{
		refiner:       refiner,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsRefineRequest is one inbound frame. An explicit thread_id overrides the
// connection's sticky thread.
type wsRefineRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// wsRefineReply is one outbound frame.
type wsRefineReply struct {
	Status   string              `json:"status"`
	Result   *goalResultResponse `json:"result,omitempty"`
	ThreadID string              `json:"thread_id,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *RefineSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.refiner == nil {
		http.Error(w, "AI features are not configured on this server", http.StatusServiceUnavailable)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("WebSocket close error", "error", closeErr)
		}
	}()

	slog.Info("Refinement WebSocket connected", "user_id", userID, "ip", r.RemoteAddr)

	ctx := r.Context()
	threadID := ""

	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			slog.Debug("WebSocket read ended", "user_id", userID, "error", err)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var req wsRefineRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.write(ctx, ws, wsRefineReply{Status: "failed", Message: "invalid frame"})
			continue
		}
		if req.ThreadID != "" {
			threadID = req.ThreadID
		}

		refineCtx, cancel := context.WithTimeout(ctx, wsRefineTimeout)
		outcome := h.refiner.Refine(refineCtx, userID, req.Message, threadID)
		cancel()

		if outcome.ThreadID != "" {
			threadID = outcome.ThreadID
		}
		h.write(ctx, ws, replyFromOutcome(outcome))
	}
}

func replyFromOutcome(outcome coach.Outcome) wsRefineReply {
	switch outcome.Status {
	case coach.OutcomeAccepted:
		result := resultResponse(outcome.Result, outcome.ThreadID)
		return wsRefineReply{Status: "accepted", Result: &result, ThreadID: outcome.ThreadID}
	case coach.OutcomeRejected:
		result := resultResponse(outcome.Result, outcome.ThreadID)
		return wsRefineReply{
			Status:   "rejected",
			Result:   &result,
			ThreadID: outcome.ThreadID,
			Message:  "Input too vague or invalid to generate a goal.",
		}
	default:
		if outcome.Failure == coach.FailureInvalidInput {
			return wsRefineReply{Status: "failed", Message: "message cannot be empty"}
		}
		return wsRefineReply{Status: "failed", Message: "AI model failed to generate a valid response."}
	}
}

func (h *RefineSocket) write(ctx context.Context, ws *websocket.Conn, reply wsRefineReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("Failed to encode WebSocket reply", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}

func (h *RefineSocket) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.allowedOrigin
}
