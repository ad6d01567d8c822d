package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/MatchPredictor/internal/analyze"
	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/notify"
	platformhttp "github.com/Alias1177/MatchPredictor/internal/platform/http"
	"github.com/Alias1177/MatchPredictor/internal/signals"
	"github.com/Alias1177/MatchPredictor/internal/storage"
	"github.com/Alias1177/MatchPredictor/models"
)

// app bundles everything a command needs
type app struct {
	cfg     *config.Config
	repo    storage.Repository
	service *analyze.Service
}

func (a *app) Close() {
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			log.Error().Err(err).Msg("Closing repository failed")
		}
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.LogLevel)

	repo, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		repo.Close()
		return nil, err
	}

	notifier, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram notifier unavailable, continuing without it")
		notifier = nil
	}

	opts := analyze.Options{
		Tuning:      cfg.Tuning,
		Repo:        repo,
		Registry:    registry,
		Lock:        storage.NewWriterLock(storage.LockPath(cfg), cfg.LockTTL),
		LearnWindow: time.Duration(cfg.LearnWindow) * 24 * time.Hour,
	}
	if notifier != nil {
		opts.Notifier = notifier
	}

	return &app{cfg: cfg, repo: repo, service: analyze.NewService(ctx, opts)}, nil
}

// buildRegistry registers the local providers and, when a signal service is
// configured, remote providers that take over the named capabilities
func buildRegistry(cfg *config.Config) (*signals.Registry, error) {
	stats, err := signals.LoadMemoryStats(cfg.StatsFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", cfg.StatsFile).Msg("Stats file not found, team signals will use synthetic defaults")
		stats = signals.NewMemoryStats()
	case err != nil:
		return nil, err
	}

	registry := signals.NewRegistry(signals.DefaultProviders(stats)...)
	if cfg.SignalsURL == "" {
		return registry, nil
	}

	client := platformhttp.NewClient(platformhttp.ClientOptions{
		Timeout:        time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: cfg.RequestsPerSec,
		APIKey:         cfg.SignalsAPIKey,
	})
	for _, name := range strings.Split(cfg.RemoteSignals, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		registry.Register(signals.NewRemoteProvider(models.SignalName(name), cfg.SignalsURL, client))
	}
	return registry, nil
}

func main() {
	setupLogger("info")

	root := &cobra.Command{
		Use:           "predictor",
		Short:         "Football match outcome predictor with self-correcting coefficients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		predictCmd(),
		outcomeCmd(),
		learnCmd(),
		evolveCmd(),
		versionCmd(),
		scheduleCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
