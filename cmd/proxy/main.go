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

	"github.com/FabG/proxy-uc-genie/internal/config"
	"github.com/FabG/proxy-uc-genie/internal/gateway"
	"github.com/FabG/proxy-uc-genie/internal/logging"
	"github.com/FabG/proxy-uc-genie/internal/policy"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := logging.MustNew(cfg.Logging)
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	policies, err := policy.NewStore(config.PolicySource(configPath))
	if err != nil {
		sugar.Fatalw("policy store init failed", "error", err)
	}

	handler, err := gateway.NewHandler(policies, gateway.Options{
		BackendURL:     cfg.Proxy.BackendURL,
		ForwardTimeout: cfg.Proxy.ForwardTimeout,
		LogRejected:    cfg.Security.LogRejectedRequests,
	}, sugar)
	if err != nil {
		sugar.Fatalw("gateway init failed", "error", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Writes stay open while a forward waits on the backend.
		WriteTimeout: cfg.Proxy.ForwardTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("proxy listening",
			"addr", server.Addr,
			"backend_url", cfg.Proxy.BackendURL,
			"allowed_use_cases", policies.Current().AllowedIDs(),
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

	sugar.Info("proxy stopped cleanly")
}
