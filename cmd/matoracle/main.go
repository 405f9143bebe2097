package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/matoracle/internal/advisor"
	"github.com/rewired-gh/matoracle/internal/config"
	"github.com/rewired-gh/matoracle/internal/generator"
	"github.com/rewired-gh/matoracle/internal/logger"
	"github.com/rewired-gh/matoracle/internal/models"
	"github.com/rewired-gh/matoracle/internal/monitor"
	"github.com/rewired-gh/matoracle/internal/storage"
	"github.com/rewired-gh/matoracle/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Alerting.MaxLogEntries, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	genConfig := generator.DefaultConfig()
	genConfig.HistoryDays = cfg.Generator.HistoryDays
	genConfig.RetainPrior = cfg.Generator.RetainPrior
	genConfig.RetainNew = cfg.Generator.RetainNew
	gen := generator.New(genConfig, cfg.Generator.Seed)

	mon := monitor.New(store, monitor.Config{
		SuppressionWindow: cfg.Alerting.SuppressionWindow,
	})

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var advisorClient *advisor.Client
	if cfg.Advisor.Enabled {
		advisorClient = advisor.NewClient(advisor.Config{
			BaseURL: cfg.Advisor.BaseURL,
			APIKey:  cfg.Advisor.APIKey,
			Model:   cfg.Advisor.Model,
			Timeout: cfg.Advisor.Timeout,
		})
		logger.Info("Advisor commentary enabled (model: %s)", cfg.Advisor.Model)
	} else {
		logger.Debug("Advisor commentary disabled")
	}

	settings, err := bootstrapSettings(store, cfg)
	if err != nil {
		logger.Fatal("Failed to bootstrap settings: %v", err)
	}
	if err := bootstrapSnapshots(store, gen, settings); err != nil {
		logger.Fatal("Failed to bootstrap market snapshots: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting refresh loop (interval: %v, thresholds: %.2f/%.2f, markets: %d)",
		settings.RefreshInterval,
		settings.WarnThreshold,
		settings.CriticalThreshold,
		len(settings.Markets),
	)

	ticker := time.NewTicker(settings.RefreshInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Refresh cycle failed: %v", err)
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

	logger.Debug("Running initial refresh cycle")
	handleCycleResult(runRefreshCycle(ctx, store, gen, mon, telegramClient, advisorClient))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled refresh cycle")
			handleCycleResult(runRefreshCycle(ctx, store, gen, mon, telegramClient, advisorClient))
		}
	}
}

// bootstrapSettings loads persisted settings, falling back to the
// configuration defaults on first run.
func bootstrapSettings(store *storage.Storage, cfg *config.Config) (models.Settings, error) {
	persisted, err := store.LoadSettings()
	if err != nil {
		return models.Settings{}, err
	}
	if persisted != nil {
		logger.Info("Loaded persisted settings (thresholds: %.2f/%.2f)",
			persisted.WarnThreshold, persisted.CriticalThreshold)
		return *persisted, nil
	}

	settings := cfg.InitialSettings()
	if err := store.SaveSettings(&settings); err != nil {
		return models.Settings{}, err
	}
	logger.Info("No persisted settings found, initialized defaults")
	return settings, nil
}

// bootstrapSnapshots generates from-scratch histories for tracked markets
// that have no persisted snapshot yet.
func bootstrapSnapshots(store *storage.Storage, gen *generator.Generator, settings models.Settings) error {
	generated := 0
	for _, name := range settings.Markets {
		snap, err := store.GetSnapshot(name)
		if err != nil {
			return err
		}
		if snap != nil {
			continue
		}
		fresh := gen.Generate(name, settings)
		if err := store.SaveSnapshot(&fresh); err != nil {
			return fmt.Errorf("failed to save initial snapshot for %s: %w", name, err)
		}
		generated++
	}
	if generated > 0 {
		logger.Info("Generated initial histories for %d markets", generated)
	}
	return nil
}

// runRefreshCycle refreshes every tracked market, re-evaluates the alert
// policy, and delivers newly raised alerts.
func runRefreshCycle(
	ctx context.Context,
	store *storage.Storage,
	gen *generator.Generator,
	mon *monitor.Monitor,
	telegramClient *telegram.Client,
	advisorClient *advisor.Client,
) error {
	startTime := time.Now()
	logger.Info("Starting refresh cycle")

	settings, err := store.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if settings == nil {
		return fmt.Errorf("settings missing from store")
	}

	var raised []models.Alert
	for _, name := range settings.Markets {
		prev, err := store.GetSnapshot(name)
		if err != nil {
			return fmt.Errorf("failed to load snapshot for %s: %w", name, err)
		}

		var snap models.MarketSnapshot
		if prev == nil {
			snap = gen.Generate(name, *settings)
		} else {
			snap = gen.Refresh(*prev, *settings)
		}

		if err := store.SaveSnapshot(&snap); err != nil {
			return fmt.Errorf("failed to save snapshot for %s: %w", name, err)
		}

		alert, err := mon.Evaluate(snap, *settings, time.Now())
		if err != nil {
			return fmt.Errorf("failed to evaluate alerts for %s: %w", name, err)
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	logger.Info("Refreshed %d markets, raised %d alerts", len(settings.Markets), len(raised))

	if len(raised) > 0 && telegramClient != nil {
		commentary := collectCommentary(ctx, store, advisorClient, raised)
		if err := telegramClient.SendAlerts(raised, commentary); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		} else {
			logger.Info("Sent Telegram notification with %d alerts", len(raised))
		}
	}

	logger.Info("Refresh cycle completed in %v", time.Since(startTime))
	return nil
}

// collectCommentary fetches advisor commentary for critical alerts. The
// advisor boundary is best-effort: failures degrade to fixed fallback text
// inside the client and never affect snapshot or alert state.
func collectCommentary(
	ctx context.Context,
	store *storage.Storage,
	advisorClient *advisor.Client,
	alerts []models.Alert,
) map[string]string {
	if advisorClient == nil {
		return nil
	}
	commentary := make(map[string]string)
	for _, alert := range alerts {
		if alert.Level != models.LevelCritical {
			continue
		}
		snap, err := store.GetSnapshot(alert.Market)
		if err != nil || snap == nil {
			continue
		}
		analysis := advisorClient.Analyze(ctx, *snap)
		signal := advisorClient.Signal(ctx, *snap)
		commentary[alert.Market] = fmt.Sprintf("%s Signal: %s", analysis, signal)
	}
	return commentary
}
