package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"testing"
	"time"
)

func TestEstimateCostUSD(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		promptTokens     int64
		completionTokens int64
		want             float64
	}{
		{"zero", 0, 0, 0},
		{"one million prompt", 1_000_000, 0, 0.075},
		{"one million completion", 0, 1_000_000, 0.30},
		{"mixed", 500_000, 200_000, 0.0975},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := EstimateCostUSD(tt.promptTokens, tt.completionTokens)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EstimateCostUSD(%d, %d) = %f, want %f",
					tt.promptTokens, tt.completionTokens, got, tt.want)
			}
		})
	}
}

func TestLogRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	score := 0.9
	LogRun(logger, Run{
		Latency:          1500 * time.Millisecond,
		PromptTokens:     100,
		CompletionTokens: 50,
		ConfidenceScore:  &score,
		Success:          true,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "model run" {
		t.Errorf("unexpected message: %v", entry["msg"])
	}
	if entry["latency_ms"] != float64(1500) {
		t.Errorf("unexpected latency_ms: %v", entry["latency_ms"])
	}
	if entry["prompt_tokens"] != float64(100) {
		t.Errorf("unexpected prompt_tokens: %v", entry["prompt_tokens"])
	}
	if entry["confidence_score"] != 0.9 {
		t.Errorf("unexpected confidence_score: %v", entry["confidence_score"])
	}
	if entry["success"] != true {
		t.Errorf("unexpected success: %v", entry["success"])
	}
}

func TestLogRunWithoutScore(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogRun(logger, Run{Latency: time.Second, Success: false})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if _, ok := entry["confidence_score"]; ok {
		t.Error("confidence_score should be omitted when the reply never validated")
	}
	if entry["success"] != false {
		t.Errorf("unexpected success: %v", entry["success"])
	}
}
