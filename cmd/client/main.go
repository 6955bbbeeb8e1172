package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tradewind/config"
	"tradewind/internal/api"
	"tradewind/internal/auth"
	"tradewind/internal/models"
	"tradewind/internal/push"
	"tradewind/internal/sync"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	userID := os.Getenv("USER_ID")
	if userID == "" {
		userID = "alice"
	}
	token, err := auth.GenerateIdentityToken(&cfg.JWT, userID)
	if err != nil {
		logger.Fatal("mint token", zap.Error(err))
	}

	apiClient := api.NewClient(&cfg.API, token, logger)
	manager := push.NewManager(&cfg.Push, logger)
	core := sync.New(cfg.Sync, apiClient, manager, logger)

	unsubCounters := core.SubscribeToCounters(func(c models.UnreadCounters) {
		logger.Info("counters",
			zap.Int("messages", c.MessageCount),
			zap.Int("trade_offers", c.TradeOfferCount),
			zap.Uint64("sequence", c.Sequence))
	})
	defer unsubCounters()
	unsubConvs := core.SubscribeToConversationList(func(list []models.Conversation) {
		logger.Info("conversations", zap.Int("count", len(list)))
	})
	defer unsubConvs()

	ctx := context.Background()
	if err := core.Start(ctx, token); err != nil {
		logger.Fatal("start", zap.Error(err))
	}
	defer core.Close()
	core.RefreshCounts()
	if _, err := core.RefreshConversations(ctx); err != nil {
		logger.Warn("initial conversation fetch failed", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("session ending")
}
