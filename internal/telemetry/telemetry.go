// Package telemetry records per-invocation model run metrics.
package telemetry

import (
	"log/slog"
	"time"
)

// Gemini 2.5 Flash pricing per 1M tokens (USD).
const (
	inputCostPer1M  = 0.075
	outputCostPer1M = 0.30
)

// EstimateCostUSD estimates the cost of one run at Gemini 2.5 Flash
// pricing.
func EstimateCostUSD(promptTokens, completionTokens int64) float64 {
	return float64(promptTokens)/1_000_000*inputCostPer1M +
		float64(completionTokens)/1_000_000*outputCostPer1M
}

// Run captures the metrics of a single model invocation. ConfidenceScore
// is nil when the reply never validated.
type Run struct {
	Latency          time.Duration
	PromptTokens     int64
	CompletionTokens int64
	ConfidenceScore  *float64
	Success          bool
}

// LogRun emits one structured log line for a model run.
func LogRun(logger *slog.Logger, run Run) {
	attrs := []any{
		"latency_ms", float64(run.Latency.Microseconds()) / 1000,
		"prompt_tokens", run.PromptTokens,
		"completion_tokens", run.CompletionTokens,
		"estimated_cost_usd", EstimateCostUSD(run.PromptTokens, run.CompletionTokens),
		"success", run.Success,
	}
	if run.ConfidenceScore != nil {
		attrs = append(attrs, "confidence_score", *run.ConfidenceScore)
	}
	logger.Info("model run", attrs...)
}
