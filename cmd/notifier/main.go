package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"feed_notifier/internal/config"
	"feed_notifier/internal/fetcher"
	"feed_notifier/internal/metrics"
	"feed_notifier/internal/pipeline"
	"feed_notifier/internal/slack"
	"feed_notifier/internal/storage"
	"feed_notifier/internal/telegram"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		slog.Error("load options", "error", err)
		return 1
	}

	log := newLogger(opts.LogLevel).With("run_id", uuid.NewString())

	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		log.Error("load settings", "path", opts.SettingsPath, "error", err)
		return 1
	}

	if dir := filepath.Dir(opts.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return 1
		}
	}

	store, err := storage.NewSQLite(opts.DatabasePath)
	if err != nil {
		log.Error("open database", "path", opts.DatabasePath, "error", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	m := metrics.New()

	f := fetcher.New(http.DefaultClient, settings.TagFeedURL)
	f.SetTimeout(opts.HTTPTimeout)

	notifier := slack.New(http.DefaultClient, slack.Options{
		WebhookURL: settings.SlackURL,
		Username:   settings.Username,
		Intro:      settings.Intro,
		Channel:    settings.TagChannel,
		Timeout:    opts.HTTPTimeout,
	}, log)

	pipeOpts := []pipeline.Option{
		pipeline.WithNotifier("slack", notifier),
		pipeline.WithTagIsolation(opts.IsolateTags),
		pipeline.WithMetrics(m),
	}
	if tg := settings.Telegram; tg != nil {
		mirror, err := telegram.New(tg.Token, tg.ChatID, log)
		if err != nil {
			log.Warn("telegram mirror disabled", "error", err)
		} else {
			pipeOpts = append(pipeOpts, pipeline.WithNotifier("telegram", mirror))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	outcome, runErr := pipeline.New(f, store, settings.Tags, log, pipeOpts...).Run(ctx)
	m.ObserveRun(started, runErr == nil)

	if opts.PushgatewayURL != "" {
		if err := m.Push(context.Background(), opts.PushgatewayURL); err != nil {
			log.Warn("push metrics", "url", opts.PushgatewayURL, "error", err)
		}
	}

	if runErr != nil {
		log.Error("run failed", "outcome", outcome.String(), "error", runErr)
		return 1
	}
	log.Info("run complete", "outcome", outcome.String(), "elapsed", time.Since(started))
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
