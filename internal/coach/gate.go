package coach

// ConfidenceThreshold is the fixed persistence gate. Scores at or above it
// are accepted; strictly below are rejected.
const ConfidenceThreshold = 0.5

// Gate decides whether a validated result is confident enough to persist.
// Pure and deterministic: the same result always yields the same decision.
type Gate struct {
	threshold float64
}

// NewGate returns a gate at the fixed threshold.
func NewGate() Gate {
	return Gate{threshold: ConfidenceThreshold}
}

// Accept reports whether the result clears the threshold. The boundary is
// inclusive: exactly 0.5 is accepted.
func (g Gate) Accept(result *GoalResult) bool {
	return result.ConfidenceScore >= g.threshold
}
