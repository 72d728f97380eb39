package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/goal-coach/internal/session"
	"github.com/ashureev/goal-coach/internal/telemetry"
)

// ErrEmptyMessage marks a message that was empty after trimming.
var ErrEmptyMessage = errors.New("message is empty")

// Service orchestrates one refinement per call: resolve the thread, invoke
// the model exactly once, validate, gate, and append on acceptance. All
// collaborators are injected; the service holds no global state.
type Service struct {
	sessions session.Store
	invoker  ModelInvoker
	gate     Gate
	logger   *slog.Logger
}

// NewService creates a refinement service.
func NewService(sessions session.Store, invoker ModelInvoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		invoker:  invoker,
		gate:     NewGate(),
		logger:   logger,
	}
}

// Refine turns one user message into an Outcome.
//
// The call is all-or-nothing with respect to the thread: the turn pair is
// appended only on acceptance. Rejected drafts and failures of any kind
// leave the history exactly as it was, so a caller can re-submit into the
// same thread. There is no internal retry; a retry is a fresh Refine call.
func (s *Service) Refine(ctx context.Context, userID, message, threadID string) Outcome {
	if strings.TrimSpace(message) == "" {
		return failed(FailureInvalidInput, ErrEmptyMessage)
	}

	sess, isNew, err := s.sessions.Resolve(ctx, userID, threadID)
	if err != nil {
		return failed(FailureUpstream, fmt.Errorf("resolve thread: %w", err))
	}

	state := ThreadContinuing
	if isNew {
		state = ThreadFresh
	}
	wrapped := wrapMessage(sanitizeInput(message), state)

	start := time.Now()
	reply, err := s.invoker.Invoke(ctx, Invocation{
		History: sess.Turns,
		Message: wrapped,
		State:   state,
	})
	latency := time.Since(start)

	if err != nil {
		telemetry.LogRun(s.logger, telemetry.Run{Latency: latency, Success: false})
		s.logger.Warn("model invocation failed", "user_id", userID, "thread_id", sess.ThreadID, "error", err)
		return failed(FailureUpstream, fmt.Errorf("invoke model: %w", err))
	}

	result, err := ValidateReply([]byte(reply.Text))
	if err != nil {
		telemetry.LogRun(s.logger, telemetry.Run{
			Latency:          latency,
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
			Success:          false,
		})
		s.logger.Warn("model reply failed validation", "user_id", userID, "thread_id", sess.ThreadID, "error", err)
		return failed(FailureSchemaViolation, err)
	}

	telemetry.LogRun(s.logger, telemetry.Run{
		Latency:          latency,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		ConfidenceScore:  &result.ConfidenceScore,
		Success:          true,
	})

	if !s.gate.Accept(result) {
		s.logger.Info("refinement below confidence threshold",
			"user_id", userID, "thread_id", sess.ThreadID, "confidence", result.ConfidenceScore)
		return rejectedLowConfidence(result, sess.ThreadID)
	}

	modelContent, err := json.Marshal(result)
	if err != nil {
		// A validated result always marshals; treat anything else as a
		// contract failure rather than persisting a broken turn.
		return failed(FailureSchemaViolation, fmt.Errorf("encode result turn: %w", err))
	}

	now := time.Now()
	userTurn := session.Turn{Role: session.RoleUser, Content: wrapped, CreatedAt: now}
	modelTurn := session.Turn{Role: session.RoleModel, Content: string(modelContent), CreatedAt: now}
	if err := s.sessions.Append(ctx, userID, sess.ThreadID, userTurn, modelTurn); err != nil {
		return failed(FailureUpstream, fmt.Errorf("append thread: %w", err))
	}

	return accepted(result, sess.ThreadID)
}
