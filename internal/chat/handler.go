package chat

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// UseCaseHeader carries the tenant identifier, forwarded by the proxy.
const UseCaseHeader = "X-Use-Case-ID"

// Handler exposes the conversation service over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.handleRoot)
	router.GET("/health", h.handleHealth)
	router.GET("/models", h.handleListModels)

	api := router.Group("/api/2.0/genie")
	api.POST("/spaces/start-conversation", h.handleStartConversation)
	api.POST("/conversations/:id/continue", h.handleContinueConversation)
	api.GET("/conversations/:id", h.handleGetConversation)
	api.DELETE("/conversations/:id", h.handleDeleteConversation)
	api.GET("/health", h.handleHealth)
}

type turnRequest struct {
	Message     string  `json:"message"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type turnResponse struct {
	ConversationID string  `json:"conversation_id"`
	Response       string  `json:"response"`
	ModelUsed      string  `json:"model_used"`
	Timestamp      float64 `json:"timestamp"`
	UseCaseID      string  `json:"use_case_id"`
	ProcessingTime float64 `json:"processing_time"`
	TokenCount     int     `json:"token_count"`
	Success        bool    `json:"success"`
}

func (h *Handler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Genie Chat Server",
		"status":  "running",
		"version": "2.0",
	})
}

func (h *Handler) handleHealth(c *gin.Context) {
	health := h.service.HealthCheck(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":               health.Status,
		"active_conversations": health.ActiveConversations,
		"inference":            health.Inference,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleListModels(c *gin.Context) {
	models, err := h.service.ListModels(c.Request.Context())
	if err != nil {
		writeDetail(c, http.StatusBadGateway, "Inference backend unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *Handler) handleStartConversation(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDetail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.service.StartConversation(c.Request.Context(), TurnRequest{
		Message:     req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		UseCaseID:   c.GetHeader(UseCaseHeader),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage):
			writeDetail(c, http.StatusBadRequest, err.Error())
		default:
			writeDetail(c, http.StatusInternalServerError, "Error starting conversation")
		}
		return
	}

	c.JSON(http.StatusOK, newTurnResponse(result))
}

func (h *Handler) handleContinueConversation(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeDetail(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.service.ContinueConversation(c.Request.Context(), c.Param("id"), TurnRequest{
		Message:     req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyMessage):
			writeDetail(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrConversationNotFound):
			writeDetail(c, http.StatusNotFound, "Conversation not found")
		default:
			writeDetail(c, http.StatusInternalServerError, "Error continuing conversation")
		}
		return
	}

	c.JSON(http.StatusOK, newTurnResponse(result))
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	conv, err := h.service.GetConversation(c.Param("id"))
	if err != nil {
		writeDetail(c, http.StatusNotFound, "Conversation not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.ID,
		"model_used":      conv.ModelUsed,
		"created_at":      conv.CreatedAt,
		"use_case_id":     conv.UseCaseID,
		"messages":        conv.Messages,
	})
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteConversation(id); err != nil {
		writeDetail(c, http.StatusNotFound, "Conversation not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "conversation_id": id})
}

func newTurnResponse(result *TurnResult) turnResponse {
	return turnResponse{
		ConversationID: result.Conversation.ID,
		Response:       result.Response,
		ModelUsed:      result.ModelUsed,
		Timestamp:      result.Timestamp,
		UseCaseID:      result.Conversation.UseCaseID,
		ProcessingTime: result.ProcessingTime,
		TokenCount:     result.TokenCount,
		Success:        result.Success,
	}
}

func writeDetail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}
