package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/spendcast/internal/config"
	"github.com/rewired-gh/spendcast/internal/forecast"
	"github.com/rewired-gh/spendcast/internal/fusion"
	"github.com/rewired-gh/spendcast/internal/logger"
	"github.com/rewired-gh/spendcast/internal/models"
	"github.com/rewired-gh/spendcast/internal/quote"
	"github.com/rewired-gh/spendcast/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "spendcast",
	Short:         "Budget overrun forecasting and exchange-rate fusion",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file (empty for defaults)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and initialises logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %q", configPath)
	return cfg, nil
}

func openStorage(cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.New(cfg.Monitor.MaxPredictions, cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func newEngine(cfg *config.Config) (*forecast.Engine, error) {
	w := cfg.Forecast.Weights
	season := forecast.Seasonality{
		Weights: models.DayTypeWeights{
			Workday:   w.Workday,
			Weekend:   w.Weekend,
			Holiday:   w.Holiday,
			Promotion: w.Promotion,
		},
	}
	if len(cfg.Forecast.Holidays) > 0 || len(cfg.Forecast.Promotions) > 0 {
		cal, err := forecast.NewDateCalendar(cfg.Forecast.Holidays, cfg.Forecast.Promotions)
		if err != nil {
			return nil, fmt.Errorf("invalid forecast calendar: %w", err)
		}
		season.Calendar = cal
	}
	return forecast.New(forecast.Config{
		WindowDays:  cfg.Forecast.WindowDays,
		Seasonality: season,
	}), nil
}

func newQuoteService(cfg *config.Config) *quote.Service {
	src := quote.StaticSource{}
	for _, s := range cfg.Fusion.Sources {
		pair, err := quote.NormalizePair(s.Pair)
		if err != nil {
			logger.Warn("Ignoring rate source %q: %v", s.Name, err)
			continue
		}
		src[pair] = append(src[pair], models.RateObservation{
			Source:        s.Name,
			Rate:          s.Rate,
			Weight:        s.Weight,
			NoiseVariance: s.NoiseVariance,
		})
	}
	coordinator := fusion.NewCoordinator(fusion.Config{
		ProcessNoise:    cfg.Fusion.ProcessNoise,
		InitialVariance: cfg.Fusion.InitialVariance,
	})
	return quote.NewService(src, coordinator)
}
