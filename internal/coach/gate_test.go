package coach

import "testing"

func TestGateThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score float64
		want  bool
	}{
		{"zero", 0.0, false},
		{"just below threshold", 0.49, false},
		{"exactly threshold", 0.5, true},
		{"just above threshold", 0.51, true},
		{"one", 1.0, true},
	}

	gate := NewGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := &GoalResult{
				RefinedGoal:     "g",
				KeyResults:      []string{"a", "b", "c"},
				ConfidenceScore: tt.score,
			}
			if got := gate.Accept(result); got != tt.want {
				t.Fatalf("Accept(score=%g) = %v, want %v", tt.score, got, tt.want)
			}
		})
	}
}

func TestGateIsDeterministic(t *testing.T) {
	t.Parallel()

	gate := NewGate()
	result := &GoalResult{RefinedGoal: "g", KeyResults: []string{"a", "b", "c"}, ConfidenceScore: 0.5}
	first := gate.Accept(result)
	for i := 0; i < 100; i++ {
		if gate.Accept(result) != first {
			t.Fatal("gate decision changed between identical calls")
		}
	}
}
