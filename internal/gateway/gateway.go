package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FabG/proxy-uc-genie/internal/policy"
)

// Handler is the request gateway: it authorizes every inbound request
// against the active policy snapshot and relays authorized traffic to the
// single configured backend. It knows nothing about what the backend serves.
type Handler struct {
	policies    *policy.Store
	backend     *url.URL
	client      *http.Client
	logger      *zap.SugaredLogger
	logRejected bool
}

// Options configures the gateway handler.
type Options struct {
	BackendURL     string
	ForwardTimeout time.Duration
	LogRejected    bool
}

func NewHandler(policies *policy.Store, opts Options, logger *zap.SugaredLogger) (*Handler, error) {
	backend, err := url.Parse(opts.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse backend url %q: %w", opts.BackendURL, err)
	}
	if backend.Scheme == "" || backend.Host == "" {
		return nil, fmt.Errorf("gateway: backend url %q must be absolute", opts.BackendURL)
	}

	timeout := opts.ForwardTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Handler{
		policies:    policies,
		backend:     backend,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		logRejected: opts.LogRejected,
	}, nil
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.handleRoot)
	router.GET("/health", h.handleHealth)
	router.GET("/config", h.handleConfig)
	router.POST("/config/reload", h.handleReload)

	// Everything else is authorized then relayed, regardless of method.
	router.NoRoute(h.handleProxy)
}

func (h *Handler) handleProxy(c *gin.Context) {
	if !Bypassed(c.Request.URL.Path) && !h.authorize(c) {
		return
	}
	h.Forward(c)
}

// authorize applies the current policy snapshot to the request. It writes
// the rejection response itself and reports whether the request may proceed.
func (h *Handler) authorize(c *gin.Context) bool {
	snap := h.policies.Current()
	useCaseID := c.GetHeader(UseCaseHeader)
	decision := Authorize(snap, useCaseID)

	switch decision.Kind {
	case RejectMissingHeader:
		if h.logRejected {
			h.logger.Warnw("rejected request: missing use case header",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"client", c.ClientIP(),
			)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": fmt.Sprintf("Missing required header: %s", UseCaseHeader),
		})
		return false

	case RejectUnauthorized:
		allowed := snap.AllowedIDs()
		if h.logRejected {
			h.logger.Warnw("rejected request: unauthorized use case",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"use_case_id", useCaseID,
				"client", c.ClientIP(),
			)
		}
		c.JSON(http.StatusForbidden, gin.H{
			"detail":            fmt.Sprintf("Unauthorized use case: %s. Allowed values: %v", useCaseID, allowed),
			"use_case_id":       useCaseID,
			"allowed_use_cases": allowed,
		})
		return false
	}

	if useCaseID != "" {
		h.logger.Infow("approved request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"use_case_id", decision.UseCase.ID,
			"description", decision.UseCase.Description,
		)
	} else {
		h.logger.Infow("approved request without use case header",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
	return true
}

func (h *Handler) handleRoot(c *gin.Context) {
	snap := h.policies.Current()
	c.JSON(http.StatusOK, gin.H{
		"service":           "Use-Case-ID Proxy",
		"status":            "running",
		"allowed_use_cases": snap.AllowedIDs(),
		"backend_url":       h.backend.String(),
	})
}

func (h *Handler) handleHealth(c *gin.Context) {
	snap := h.policies.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"allowed_use_cases": snap.AllowedIDs(),
	})
}

func (h *Handler) handleConfig(c *gin.Context) {
	snap := h.policies.Current()
	c.JSON(http.StatusOK, gin.H{
		"allowed_use_cases":     snap.AllowedIDs(),
		"use_case_descriptions": snap.Descriptions(),
		"security_config": gin.H{
			"require_use_case_header": snap.RequireHeader,
			"case_sensitive_matching": snap.CaseSensitive,
			"log_rejected_requests":   h.logRejected,
		},
		"backend_url": h.backend.String(),
	})
}

func (h *Handler) handleReload(c *gin.Context) {
	snap, err := h.policies.Reload()
	if err != nil {
		h.logger.Errorw("policy reload failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": fmt.Sprintf("Error reloading config: %v", err),
		})
		return
	}

	h.logger.Infow("policy reloaded", "allowed_use_cases", snap.AllowedIDs())
	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"message":           "Configuration reloaded",
		"allowed_use_cases": snap.AllowedIDs(),
	})
}
