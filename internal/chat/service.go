package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FabG/proxy-uc-genie/internal/inference"
	"github.com/FabG/proxy-uc-genie/internal/models"
)

// contextWindowSize bounds how much stored history is replayed to the
// inference backend on each continuation. Stored history is never truncated.
const contextWindowSize = 10

// degradedReply is stored as the assistant turn when the inference backend
// fails; the conversation itself still succeeds.
const degradedReply = "I'm sorry, I couldn't reach the language model just now. Please try your message again in a moment."

const unknownUseCase = "unknown"

var ErrEmptyMessage = errors.New("message cannot be empty")

// TurnRequest carries one user turn, for both starting and continuing a
// conversation.
type TurnRequest struct {
	Message     string
	Model       string
	Temperature float32
	MaxTokens   int
	UseCaseID   string
}

// TurnResult is what a start or continue call hands back to the HTTP layer.
// Success is false when the assistant reply is the degraded fallback.
type TurnResult struct {
	Conversation   *models.Conversation
	Response       string
	ModelUsed      string
	Timestamp      float64
	ProcessingTime float64
	TokenCount     int
	Success        bool
}

// Health is the chat service's health report. The service degrades rather
// than fails when the inference backend is unreachable.
type Health struct {
	Status              string `json:"status"`
	ActiveConversations int    `json:"active_conversations"`
	Inference           string `json:"inference"`
}

// Service owns conversation lifecycle: creation, continuation, lookup, and
// deletion, plus passthrough introspection of the inference backend.
type Service struct {
	store        *Store
	adapter      inference.Adapter
	defaultModel string
	logger       *zap.SugaredLogger
	now          func() time.Time
}

func NewService(store *Store, adapter inference.Adapter, defaultModel string, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:        store,
		adapter:      adapter,
		defaultModel: defaultModel,
		logger:       logger,
		now:          time.Now,
	}
}

// StartConversation creates a fresh conversation from one user message. The
// backend is called with only that message; the resulting user+assistant pair
// becomes the stored history. Backend failure degrades the turn instead of
// failing the call.
func (s *Service) StartConversation(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	useCase := req.UseCaseID
	if useCase == "" {
		useCase = unknownUseCase
	}

	userMsg := models.ChatMessage{Role: models.RoleUser, Content: req.Message, Timestamp: s.clock()}
	out := s.complete(ctx, model, nil, userMsg, req)
	assistantMsg := models.ChatMessage{Role: models.RoleAssistant, Content: out.text, Timestamp: s.clock()}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Messages:  []models.ChatMessage{userMsg, assistantMsg},
		ModelUsed: model,
		CreatedAt: userMsg.Timestamp,
		UseCaseID: useCase,
	}
	s.store.Create(conv)

	s.logger.Infow("conversation started",
		"conversation_id", conv.ID,
		"use_case_id", useCase,
		"model", model,
		"success", out.success,
	)

	return s.turnResult(conv, out), nil
}

// ContinueConversation appends one user turn to an existing conversation. The
// backend sees at most the last contextWindowSize stored messages plus the
// new user message. The whole turn runs under the conversation's lock.
func (s *Service) ContinueConversation(ctx context.Context, id string, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	var result *TurnResult
	err := s.store.WithConversation(id, func(conv *models.Conversation) error {
		model := req.Model
		if model == "" {
			model = conv.ModelUsed
		}
		if model == "" {
			model = s.defaultModel
		}

		window := conv.Messages
		if len(window) > contextWindowSize {
			window = window[len(window)-contextWindowSize:]
		}

		userMsg := models.ChatMessage{Role: models.RoleUser, Content: req.Message, Timestamp: s.clock()}
		out := s.complete(ctx, model, window, userMsg, req)
		assistantMsg := models.ChatMessage{Role: models.RoleAssistant, Content: out.text, Timestamp: s.clock()}

		conv.Messages = append(conv.Messages, userMsg, assistantMsg)
		conv.ModelUsed = model

		result = s.turnResult(conv, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("conversation continued",
		"conversation_id", id,
		"model", result.ModelUsed,
		"messages", len(result.Conversation.Messages),
		"success", result.Success,
	)

	return result, nil
}

// GetConversation returns a copy of the stored conversation.
func (s *Service) GetConversation(id string) (*models.Conversation, error) {
	return s.store.Get(id)
}

// DeleteConversation removes the conversation immediately and irreversibly.
func (s *Service) DeleteConversation(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.logger.Infow("conversation deleted", "conversation_id", id)
	return nil
}

// ListModels passes through to the inference backend.
func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	return s.adapter.ListModels(ctx)
}

// HealthCheck reports service health; inference unreachability degrades the
// status without failing the check.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:              "healthy",
		ActiveConversations: s.store.Len(),
		Inference:           "ok",
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.adapter.Ping(pingCtx); err != nil {
		s.logger.Warnw("inference backend unreachable", "error", err)
		h.Status = "degraded"
		h.Inference = "unreachable"
	}

	return h
}

type outcome struct {
	text       string
	processing float64
	tokens     int
	success    bool
}

// complete runs one generation and folds backend failure into a degraded
// outcome, so start and continue handle both cases identically.
func (s *Service) complete(ctx context.Context, model string, window []models.ChatMessage, userMsg models.ChatMessage, req TurnRequest) outcome {
	messages := make([]models.ChatMessage, 0, len(window)+1)
	messages = append(messages, window...)
	messages = append(messages, userMsg)

	res, err := s.adapter.Generate(ctx, inference.Request{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.logger.Warnw("inference failed, degrading turn", "model", model, "error", err)
		return outcome{text: degradedReply}
	}

	return outcome{
		text:       res.Text,
		processing: res.ProcessingTime.Seconds(),
		tokens:     res.TokenCount,
		success:    true,
	}
}

func (s *Service) turnResult(conv *models.Conversation, out outcome) *TurnResult {
	return &TurnResult{
		Conversation:   conv.Clone(),
		Response:       out.text,
		ModelUsed:      conv.ModelUsed,
		Timestamp:      s.clock(),
		ProcessingTime: out.processing,
		TokenCount:     out.tokens,
		Success:        out.success,
	}
}

func (s *Service) clock() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}
