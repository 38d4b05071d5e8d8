package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/FabG/proxy-uc-genie/internal/config"
	"github.com/FabG/proxy-uc-genie/internal/models"
)

// Request describes one generation call: the bounded context window plus the
// new user message, already assembled by the caller.
type Request struct {
	Model       string
	Messages    []models.ChatMessage
	Temperature float32
	MaxTokens   int
}

// Result is a successful generation.
type Result struct {
	Text           string
	ProcessingTime time.Duration
	TokenCount     int
}

// Adapter is the inference backend seen by the chat service. Implementations
// must be safe for concurrent use.
type Adapter interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	ListModels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// Client talks to an OpenAI-compatible completion endpoint (Ollama's /v1
// surface by default).
type Client struct {
	api    *openai.Client
	logger *zap.SugaredLogger
}

// NewClient builds a Client from the inference config.
func NewClient(cfg config.InferenceConfig, logger *zap.SugaredLogger) *Client {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		// Ollama ignores the key but the SDK requires a non-empty one.
		apiKey = "unused"
	}

	apiCfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		apiCfg.BaseURL = base
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		logger: logger,
	}
}

// Generate runs one chat completion and reports elapsed time plus the
// backend's token usage.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toAPIMessages(req.Messages),
	}
	if req.Temperature > 0 {
		apiReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices for model %s", req.Model)
	}

	text := resp.Choices[0].Message.Content
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = estimateTokens(text)
	}

	c.logger.Debugw("generation complete",
		"model", req.Model,
		"elapsed", elapsed,
		"tokens", tokens,
	)

	return &Result{
		Text:           text,
		ProcessingTime: elapsed,
		TokenCount:     tokens,
	}, nil
}

// ListModels returns the model ids advertised by the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Ping probes the backend's introspection surface.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

func toAPIMessages(msgs []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

// estimateTokens is a rough fallback for backends that omit usage counts.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return words + words/3
}
