package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/FabG/proxy-uc-genie/internal/chat"
	"github.com/FabG/proxy-uc-genie/internal/config"
	"github.com/FabG/proxy-uc-genie/internal/inference"
	"github.com/FabG/proxy-uc-genie/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := logging.MustNew(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	adapter := inference.NewClient(cfg.Inference, sugar)
	service := chat.NewService(chat.NewStore(), adapter, cfg.Inference.DefaultModel, sugar)

	router := gin.New()
	router.Use(gin.Recovery())
	chat.NewHandler(service).RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.ChatServer.Host, cfg.ChatServer.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Generation can take most of the inference timeout.
		WriteTimeout: cfg.Inference.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("chat server listening",
			"addr", server.Addr,
			"inference_base_url", cfg.Inference.BaseURL,
			"default_model", cfg.Inference.DefaultModel,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}

	sugar.Info("chat server stopped cleanly")
}
