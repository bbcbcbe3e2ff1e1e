// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of config, clients, tools and router for commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/triage-router/internal/cloud"
	"github.com/jeranaias/triage-router/internal/config"
	"github.com/jeranaias/triage-router/internal/intent"
	"github.com/jeranaias/triage-router/internal/logging"
	"github.com/jeranaias/triage-router/internal/ollama"
	"github.com/jeranaias/triage-router/internal/router"
	"github.com/jeranaias/triage-router/internal/storage"
	"github.com/jeranaias/triage-router/internal/telemetry"
	"github.com/jeranaias/triage-router/internal/tools"
)

// App holds everything a command needs to answer queries.
type App struct {
	Config *config.Config
	Logger *log.Logger

	Store    storage.Store
	Executor *tools.Executor
	Local    *ollama.Client
	Cloud    *cloud.Client // nil when no API key is configured
	Router   *router.Router
	Stats    *telemetry.Stats
}

// loadConfig reads the config named by the global flags and builds the
// logger.
func loadConfig(opts *GlobalOptions) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// NewApp builds the full pipeline from cfg. Close must be called when done.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var err error
	a.Executor, a.Store, err = newExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Local = newLocalClient(cfg, logger)

	a.Cloud, err = cloud.NewClient(cloud.Config{
		APIKey:            cfg.Cloud.APIKey,
		BaseURL:           cfg.Cloud.BaseURL,
		Model:             cfg.Cloud.Model,
		Timeout:           time.Duration(cfg.Cloud.TimeoutSecs) * time.Second,
		MaxRetries:        cfg.Cloud.MaxRetries,
		RequestsPerMinute: cfg.Cloud.RequestsPerMinute,
		MaxTokens:         cfg.Cloud.MaxTokens,
		Temperature:       float32(cfg.Cloud.Temperature),
		Logger:            logger.WithPrefix("cloud"),
	})
	switch {
	case errors.Is(err, cloud.ErrNotConfigured):
		logger.Warn("no cloud API key; advanced queries will fail", "hint", "set GROQ_API_KEY")
		a.Cloud = nil
	case err != nil:
		return nil, closeOnError(a.Store, fmt.Errorf("cloud client: %w", err))
	}

	if cfg.Telemetry.Enabled {
		path, err := cfg.TelemetryPath()
		if err == nil {
			a.Stats, err = telemetry.Open(path)
		}
		if err != nil {
			logger.Warn("stats unavailable, keeping them in memory", "err", err)
			a.Stats = telemetry.NewStats()
		}
	} else {
		a.Stats = telemetry.NewStats()
	}

	a.Router, err = buildRouter(cfg, logger, a.Local, a.advancedModel(), a.Executor, a.Stats)
	if err != nil {
		return nil, closeOnError(a.Store, err)
	}
	return a, nil
}

// closeOnError releases c after a failed setup step, keeping both errors.
func closeOnError(c io.Closer, err error) error {
	if cerr := c.Close(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close store: %w", cerr))
	}
	return err
}

// newExecutor opens the record store and registers the triage tools on it.
// The caller closes the store.
func newExecutor(ctx context.Context, cfg *config.Config) (*tools.Executor, storage.Store, error) {
	storePath, err := cfg.StoragePath()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   storePath,
		Slots:  storage.DefaultSlots(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open record store: %w", err)
	}

	reg := tools.NewRegistry()
	tools.RegisterTriage(reg, tools.TriageOptions{
		Store:        store,
		WaitTimes:    cfg.Triage.WaitTimes,
		IntakePrompt: cfg.Triage.IntakePrompt,
	})
	exec := tools.NewExecutor(reg)
	exec.SetTimeout(time.Duration(cfg.Triage.ToolTimeoutSecs) * time.Second)
	return exec, store, nil
}

// advancedModel keeps a nil *cloud.Client from becoming a non-nil
// interface.
func (a *App) advancedModel() router.ChatModel {
	if a.Cloud == nil {
		return nil
	}
	return a.Cloud
}

// buildClassifier creates the tier classifier. A nil fallback leaves
// unmatched queries on the advanced tier.
func buildClassifier(cfg *config.Config, logger *log.Logger, fallback router.Completer) (*router.Classifier, error) {
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	opts := []router.ClassifierOption{
		router.WithPrompt(cfg.Routing.ClassifierPrompt),
		router.WithHistoryWindow(cfg.Routing.HistoryWindow),
		router.WithMarkers(cfg.Routing.BasicMarkers, nil),
		router.WithClassifierLogger(logger.WithPrefix("classifier")),
	}
	if cfg.Routing.Fallback && fallback != nil {
		opts = append(opts, router.WithFallback(fallback))
	}
	return router.NewClassifier(rules, opts...), nil
}

// buildRouter assembles classifier, dispatcher and router.
func buildRouter(cfg *config.Config, logger *log.Logger, local *ollama.Client, advanced router.ChatModel, runner router.ToolRunner, obs router.Observer) (*router.Router, error) {
	var (
		fallback router.Completer
		basic    router.ChatModel
	)
	if local != nil {
		fallback, basic = local, local
	}

	classifier, err := buildClassifier(cfg, logger, fallback)
	if err != nil {
		return nil, err
	}

	dispatcher := router.NewDispatcher(
		router.Responder{Model: basic, Name: cfg.Local.OllamaModel},
		router.Responder{Model: advanced, Name: cfg.Cloud.Model},
		router.WithTools(runner),
		router.WithSystemPrompt(cfg.Triage.SystemPrompt),
		router.WithMaxNested(cfg.Routing.MaxNested),
		router.WithDispatchClock(time.Now, cfg.Location()),
		router.WithDispatcherLogger(logger.WithPrefix("dispatch")),
	)

	ropts := []router.Option{
		router.WithObserver(obs),
		router.WithLogger(logger.WithPrefix("router")),
	}
	if cfg.Triage.Intents {
		ropts = append(ropts, router.WithIntents(newIntentMatcher(cfg), runner))
	}
	return router.New(classifier, dispatcher, ropts...), nil
}

func newIntentMatcher(cfg *config.Config) *intent.Matcher {
	return intent.NewMatcher(intent.DefaultPatterns(), intent.WithLocation(cfg.Location()))
}

// newLocalClient creates the Ollama client for the basic tier and the
// fallback classifier.
func newLocalClient(cfg *config.Config, logger *log.Logger) *ollama.Client {
	return ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Local.OllamaURL,
		Timeout:      time.Duration(cfg.Local.TimeoutSecs) * time.Second,
		DefaultModel: cfg.Local.OllamaModel,
		MaxRetries:   cfg.Local.MaxRetries,
		Logger:       logger.WithPrefix("ollama"),
	})
}

// RulesFromConfig builds keyword rules from the routing section.
func RulesFromConfig(cfg *config.Config) (router.Rules, error) {
	p, err := router.ParsePriority(cfg.Routing.Priority)
	if err != nil {
		return router.Rules{}, err
	}
	return router.Rules{
		Basic:    cfg.Routing.BasicKeywords,
		Advanced: cfg.Routing.AdvancedKeywords,
		Priority: p,
	}, nil
}

// Close saves statistics and closes the record store.
func (a *App) Close() error {
	var errs []error
	if a.Stats != nil {
		if err := a.Stats.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save stats: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
