package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradewind/config"
	"tradewind/internal/auth"
	"tradewind/internal/models"
	"tradewind/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store := server.NewStore()
	hub := server.NewHub()
	seed(store)
	h := server.NewHandler(store, hub)

	for _, uid := range []string{"alice", "bob"} {
		token, err := auth.GenerateIdentityToken(&cfg.JWT, uid)
		if err != nil {
			logger.Fatal("mint token", zap.Error(err))
		}
		logger.Info("identity token", zap.String("user", uid), zap.String("token", token))
	}

	engine := server.Setup(cfg, h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("devserver listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown", zap.Error(err))
	}
}

// seed loads demo state, including a duplicate conversation record for the
// same participant pair so the client-side dedup is visible end to end.
func seed(store *server.Store) {
	now := time.Now()
	store.SeedConversation(models.Conversation{
		ID:             "conv-1",
		ParticipantIDs: []string{"alice", "bob"},
		UpdatedAt:      now,
	})
	store.SeedConversation(models.Conversation{
		ID:             "conv-1-dup",
		ParticipantIDs: []string{"bob", "alice"},
		UpdatedAt:      now.Add(-time.Minute),
	})
}
