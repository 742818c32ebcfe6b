package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spendcast/internal/logger"
	"github.com/rewired-gh/spendcast/internal/monitor"
	"github.com/rewired-gh/spendcast/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Periodically forecast active budgets and notify on predicted overruns",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	mon := monitor.New(store, engine, monitor.Config{
		TopK:           cfg.Monitor.TopK,
		Cooldown:       cfg.Monitor.Cooldown,
		MinConfidence:  cfg.Monitor.MinConfidence,
		EscalationStep: cfg.Monitor.EscalationStep,
	})
	quotes := newQuoteService(cfg)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		telegramClient.WithQuotes(quotes.Quote)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting budget monitor (interval: %v, window_days: %d, top_k: %d, cooldown: %v)",
		cfg.Monitor.Interval,
		cfg.Forecast.WindowDays,
		cfg.Monitor.TopK,
		cfg.Monitor.Cooldown,
	)

	ticker := time.NewTicker(cfg.Monitor.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(runMonitoringCycle(mon, telegramClient))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(runMonitoringCycle(mon, telegramClient))
		}
	}
}

func runMonitoringCycle(mon *monitor.Monitor, telegramClient *telegram.Client) error {
	startTime := time.Now()
	logger.Info("Starting monitoring cycle")

	alerts, err := mon.RunCycle()
	if err != nil {
		return err
	}
	logger.Info("Detected %d budgets forecast to exceed", len(alerts))

	alerts = mon.PostProcessAlerts(alerts)

	if len(alerts) > 0 {
		logger.Info("Post-processed alerts: %d budgets to notify", len(alerts))

		if telegramClient != nil {
			if err := telegramClient.Send(alerts); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				logger.Info("Sent Telegram notification for %d budgets", len(alerts))
				mon.RecordNotified(alerts)
			}
		} else {
			for _, a := range alerts {
				logger.Info("Budget %q forecast %.2f of %.2f %s (confidence %.2f)",
					a.BudgetName, a.Prediction.PredictedTotal, a.BudgetAmount, a.Currency, a.Prediction.Confidence)
			}
			mon.RecordNotified(alerts)
		}
	} else {
		logger.Info("No budgets forecast to exceed this cycle")
	}

	logger.Info("Monitoring cycle completed in %v", time.Since(startTime))
	return nil
}
