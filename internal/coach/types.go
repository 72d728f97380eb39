// Package coach implements the goal refinement core: the model invocation
// boundary, structured-output validation, the confidence gate, and the
// per-thread refinement orchestrator.
package coach

import (
	"context"

	"github.com/ashureev/goal-coach/internal/session"
)

// GoalResult is the structured output contract for one refinement. A value
// of this type that came through ValidateReply always satisfies: 3 to 5
// non-empty key results and a confidence score in [0, 1].
type GoalResult struct {
	RefinedGoal     string   `json:"refined_goal"`
	KeyResults      []string `json:"key_results"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// OutcomeStatus tags the variant of an Outcome.
type OutcomeStatus string

const (
	// OutcomeAccepted means the result passed validation and the gate;
	// the turn pair was appended to the thread.
	OutcomeAccepted OutcomeStatus = "accepted"
	// OutcomeRejected means the result is well formed but below the
	// confidence threshold; the thread was left untouched.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeFailed means no usable result was produced.
	OutcomeFailed OutcomeStatus = "failed"
)

// FailureKind classifies a failed refinement.
type FailureKind string

const (
	// FailureInvalidInput: the message was empty after trimming. Detected
	// locally; no model call is made and no thread is created.
	FailureInvalidInput FailureKind = "invalid_input"
	// FailureSchemaViolation: the model reply did not satisfy the output
	// contract.
	FailureSchemaViolation FailureKind = "schema_violation"
	// FailureUpstream: the model invocation itself failed.
	FailureUpstream FailureKind = "upstream_error"
)

// RejectionReason explains a rejected outcome. Low confidence is the only
// reason the gate produces.
type RejectionReason string

// ReasonLowConfidence marks a draft the gate declined to persist.
const ReasonLowConfidence RejectionReason = "low_confidence"

// Outcome is the tagged result of one Refine call.
//
// Accepted and Rejected carry the result and the thread ID (rejected
// outcomes still return the thread ID so the caller can retry in the same
// thread). Failed carries the failure kind and the underlying error.
type Outcome struct {
	Status   OutcomeStatus
	Result   *GoalResult
	ThreadID string
	Reason   RejectionReason
	Failure  FailureKind
	Err      error
}

func accepted(result *GoalResult, threadID string) Outcome {
	return Outcome{Status: OutcomeAccepted, Result: result, ThreadID: threadID}
}

func rejectedLowConfidence(result *GoalResult, threadID string) Outcome {
	return Outcome{
		Status:   OutcomeRejected,
		Result:   result,
		ThreadID: threadID,
		Reason:   ReasonLowConfidence,
	}
}

func failed(kind FailureKind, err error) Outcome {
	return Outcome{Status: OutcomeFailed, Failure: kind, Err: err}
}

// ThreadState distinguishes a first refinement from a follow-up. It is
// decided solely by whether the session store created the thread, never by
// inspecting message content.
type ThreadState string

const (
	// ThreadFresh: first message of a thread; the model produces an
	// initial SMART goal.
	ThreadFresh ThreadState = "fresh"
	// ThreadContinuing: the message is feedback on the previous
	// refinement in the thread.
	ThreadContinuing ThreadState = "continuing"
)

// Invocation is the context for one model call: the prior turn history,
// the new tag-wrapped message, and the thread state.
type Invocation struct {
	History []session.Turn
	Message string
	State   ThreadState
}

// ModelReply is the untrusted raw output of one model call plus token
// usage for telemetry. The text must pass ValidateReply before it is
// treated as a GoalResult, regardless of any schema enforcement upstream.
type ModelReply struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// ModelInvoker is the single-method model invocation boundary. Production
// uses GeminiInvoker; tests substitute a deterministic fake.
type ModelInvoker interface {
	Invoke(ctx context.Context, inv Invocation) (*ModelReply, error)
}
