package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"bracket-terminal/config"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	broadcaster := NewLogBroadcaster()
	logger := NewBroadcastLogger(broadcaster)
	defer logger.Sync()

	notifier := NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)

	exchange := NewBinanceExchange(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.UseTestnet, logger)
	exchange.LoadFilters(context.Background())

	settings := NewTradeSettings(cfg)
	submitter := NewBracketSubmitter(exchange, settings, cfg.Symbol, logger, notifier)
	submitter.SetFillPolicy(cfg.WaitForFill, cfg.FillPollInterval, cfg.EntryWaitTimeout)

	hub := NewHub(broadcaster, logger)
	server := NewServer(submitter, settings, broadcaster, hub, logger, cfg.Symbol, cfg.UseTestnet)

	logger.Info(fmt.Sprintf("bracket terminal ready, %s %dx, margin $%s",
		cfg.Symbol, cfg.Leverage, settings.Snapshot().Margin))
	logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Bool("testnet", cfg.UseTestnet))
	notifier.Notify(fmt.Sprintf("🚀 *TERMINAL STARTED*\n%s %dx%s",
		cfg.Symbol, cfg.Leverage, map[bool]string{true: " (testnet)", false: ""}[cfg.UseTestnet]))

	if err := server.Start(cfg.ListenAddr); err != nil {
		logger.Fatal("http server exited", zap.Error(err))
	}
}
