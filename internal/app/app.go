// Package app wires the pipeline together and owns the process entrypoint.
package app

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	goslack "github.com/slack-go/slack"

	"insightbot/internal/config"
	"insightbot/internal/gamecontext"
	"insightbot/internal/httpx"
	"insightbot/internal/integrations/freshdesk"
	"insightbot/internal/integrations/llm"
	slacknotify "insightbot/internal/integrations/slack"
	"insightbot/internal/storage/cache"
	"insightbot/internal/storage/sqlite"
)

func Main() {
	var opts Options
	var scheduled bool
	flag.StringVar(&opts.Product, "product", "", "game name to analyze (skips the prompt)")
	flag.StringVar(&opts.Platform, "platform", "", "platform: Android, iOS, or Both (skips the prompt)")
	flag.IntVar(&opts.Days, "days", 0, "days back to analyze (skips the prompt)")
	flag.BoolVar(&opts.Yes, "yes", false, "answer yes to all confirmations")
	flag.BoolVar(&opts.RefreshCache, "refresh", false, "ignore cached data and refetch")
	flag.BoolVar(&scheduled, "schedule", false, "run on the configured cron schedule instead of once")
	flag.Parse()

	cfg := config.LoadConfig()
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. Domain=%s Provider=%s CacheDir=%s Timezone=%s ExternalHTTPTimeout=%s",
		cfg.FreshdeskDomain, cfg.LLMProvider, cfg.CacheDir, cfg.Timezone, appliedHTTPTimeout)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)
	defer db.Close()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	gameCtx, err := gamecontext.Load(cfg.GameContextPath)
	if err != nil {
		if errors.Is(err, gamecontext.ErrNotFound) {
			log.Printf("No game context at %s, classification runs without it", cfg.GameContextPath)
		} else {
			log.Fatalf("Failed to load game context: %v", err)
		}
	} else {
		log.Printf("Game context loaded: %s (%d features, %d recent changes)",
			gameCtx.GameName, len(gameCtx.CurrentFeatures), len(gameCtx.RecentChanges))
	}

	source := freshdesk.NewClient(freshdesk.Config{
		Domain:     cfg.FreshdeskDomain,
		APIKey:     cfg.FreshdeskAPIKey,
		MaxPages:   cfg.FetchMaxPages,
		PageDelay:  cfg.PageDelay(),
		MaxRetries: cfg.FetchMaxRetries,
	}, log.Default())
	if err := source.TestConnection(context.Background()); err != nil {
		log.Fatalf("Freshdesk connection test failed: %v", err)
	}
	log.Printf("Freshdesk connection OK (%s)", cfg.FreshdeskDomain)

	runner := &Runner{
		Cfg:    cfg,
		Cache:  cache.NewStore(cfg.CacheDir, cache.Events{}, log.Default()),
		Source: source,
		Classifier: llm.NewClassifier(llm.Config{
			Provider:        cfg.LLMProvider,
			Model:           cfg.LLMModel,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
			OpenAIAPIKey:    cfg.OpenAIAPIKey,
			MaxRetries:      cfg.LLMMaxRetries,
		}, log.Default()),
		DB:      db,
		GameCtx: gameCtx,
		Logger:  log.Default(),
		In:      os.Stdin,
		Out:     os.Stdout,
	}
	if cfg.SlackConfigured() {
		runner.Notifier = slacknotify.NewNotifier(goslack.New(cfg.SlackBotToken), cfg.ReportChannelID, log.Default())
	}

	if scheduled {
		StartAnalysisScheduler(runner, cfg.Location)
		select {}
	}

	q, err := CollectQuery(opts, os.Stdin, os.Stdout, time.Now(), cfg.DefaultDateRangeDays)
	if err != nil {
		log.Fatalf("%v", err)
	}
	result, err := runner.Run(context.Background(), q, opts)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	log.Printf("Analysis complete. Report: %s", result.ReportPath)
}
