package coach

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key result cardinality bounds for a valid GoalResult.
const (
	MinKeyResults = 3
	MaxKeyResults = 5
)

// SchemaViolationError describes why a model reply failed the output
// contract. It names the offending field and the rule broken, never the
// reply itself, so it is safe to log and store.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return "schema violation: " + e.Reason
	}
	return fmt.Sprintf("schema violation: %s: %s", e.Field, e.Reason)
}

func violation(field, reason string) error {
	return &SchemaViolationError{Field: field, Reason: reason}
}

// ValidateReply checks a raw model reply against the GoalResult contract:
// all fields present, 3 to 5 non-empty key results, confidence score in
// [0, 1]. Out-of-range values are violations, never clamped or otherwise
// repaired; a reply either is a GoalResult or it is not. Pure function.
func ValidateReply(raw []byte) (*GoalResult, error) {
	var payload struct {
		RefinedGoal     *string   `json:"refined_goal"`
		KeyResults      *[]string `json:"key_results"`
		ConfidenceScore *float64  `json:"confidence_score"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, violation("", "reply is not a valid JSON object")
	}

	if payload.RefinedGoal == nil {
		return nil, violation("refined_goal", "missing")
	}
	if strings.TrimSpace(*payload.RefinedGoal) == "" {
		return nil, violation("refined_goal", "empty")
	}

	if payload.KeyResults == nil {
		return nil, violation("key_results", "missing")
	}
	results := *payload.KeyResults
	if len(results) < MinKeyResults || len(results) > MaxKeyResults {
		return nil, violation("key_results", fmt.Sprintf("expected %d to %d entries, got %d", MinKeyResults, MaxKeyResults, len(results)))
	}
	for i, kr := range results {
		if strings.TrimSpace(kr) == "" {
			return nil, violation(fmt.Sprintf("key_results[%d]", i), "empty")
		}
	}

	if payload.ConfidenceScore == nil {
		return nil, violation("confidence_score", "missing")
	}
	score := *payload.ConfidenceScore
	if score < 0.0 || score > 1.0 {
		return nil, violation("confidence_score", fmt.Sprintf("%g is outside [0, 1]", score))
	}

	return &GoalResult{
		RefinedGoal:     *payload.RefinedGoal,
		KeyResults:      results,
		ConfidenceScore: score,
	}, nil
}
