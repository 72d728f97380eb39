package coach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/goal-coach/internal/session"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for refinement.
const DefaultModel = "gemini-2.5-flash"

// GeminiConfig holds configuration for the Gemini invoker.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiInvoker implements ModelInvoker against the Gemini API. The request
// carries a JSON response schema matching GoalResult; replies are still
// treated as untrusted and go through ValidateReply like any other.
type GeminiInvoker struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiInvoker creates a Gemini-backed model invoker.
func NewGeminiInvoker(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiInvoker{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

// goalResultSchema mirrors the GoalResult contract on the request so the
// model is steered toward conforming output. Enforcement still happens in
// ValidateReply.
func goalResultSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"refined_goal": {
				Type:        genai.TypeString,
				Description: "The SMART version of the user's goal.",
			},
			"key_results": {
				Type:        genai.TypeArray,
				Description: "3 to 5 measurable key results.",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    genai.Ptr[int64](MinKeyResults),
				MaxItems:    genai.Ptr[int64](MaxKeyResults),
			},
			"confidence_score": {
				Type:        genai.TypeNumber,
				Description: "Confidence that input is a valid goal.",
				Minimum:     genai.Ptr(0.0),
				Maximum:     genai.Ptr(1.0),
			},
		},
		Required: []string{"refined_goal", "key_results", "confidence_score"},
	}
}

// Invoke implements ModelInvoker. The thread history is replayed as
// alternating user/model contents followed by the new message.
func (g *GeminiInvoker) Invoke(ctx context.Context, inv Invocation) (*ModelReply, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, 0, len(inv.History)+1)
	for _, turn := range inv.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == session.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(inv.Message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction(time.Now()), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    goalResultSchema(),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("model returned no text candidate")
	}

	reply := &ModelReply{Text: text}
	if resp.UsageMetadata != nil {
		reply.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		reply.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return reply, nil
}
