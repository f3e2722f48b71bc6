package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/marketpulse/internal/config"
	"github.com/rewired-gh/marketpulse/internal/logger"
	"github.com/rewired-gh/marketpulse/internal/marketdata"
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/rewired-gh/marketpulse/internal/monitor"
	"github.com/rewired-gh/marketpulse/internal/narrative"
	"github.com/rewired-gh/marketpulse/internal/pipeline"
	"github.com/rewired-gh/marketpulse/internal/report"
	"github.com/rewired-gh/marketpulse/internal/storage"
	"github.com/rewired-gh/marketpulse/internal/telegram"
	"github.com/tidwall/pretty"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	envPath    = flag.String("env", ".env", "Path to optional .env file")
	dateFlag   = flag.String("date", "", "Snapshot day as YYYY-MM-DD; past days use the closes on or before that day (default: today, UTC)")
	dryRun     = flag.Bool("dry-run", false, "Print the report to stdout instead of sending it")
	printJSON  = flag.Bool("print-json", false, "Print the run result as JSON")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger.With("run_id", runID)
	logger.Info("Configuration loaded from %s", *configPath)

	day := time.Now().UTC()
	if *dateFlag != "" {
		day, err = models.ParseDay(*dateFlag)
		if err != nil {
			logger.Fatal("Invalid -date: %v", err)
		}
	}

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Dir, cfg.Storage.DBPath, cfg.Storage.Overwrite)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	fetcher := &marketdata.MinInterval{
		F: marketdata.NewYahooClient(
			marketdata.WithBaseURL(cfg.Market.BaseURL),
			marketdata.WithTimeout(cfg.Market.Timeout),
			marketdata.WithRange(cfg.Market.Range),
		),
		Interval: cfg.Market.MinInterval,
	}

	narrator := narrative.New(narrative.Config{
		APIKey:    cfg.Narrative.APIKey,
		BaseURL:   cfg.Narrative.BaseURL,
		Model:     cfg.Narrative.Model,
		MaxTokens: cfg.Narrative.MaxTokens,
		Timeout:   cfg.Narrative.Timeout,
	})
	if !narrator.Enabled() {
		logger.Info("Narrative API key not configured, using placeholder commentary")
	}

	markdown := cfg.MarkdownV2() && !*dryRun
	var notifier pipeline.Notifier
	var telegramClient *telegram.Client
	if cfg.TelegramReady() {
		parseMode := ""
		if cfg.MarkdownV2() {
			parseMode = telegram.ParseModeMarkdownV2
		}
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			telegram.WithTimeout(cfg.Telegram.Timeout),
			telegram.WithParseMode(parseMode),
		)
		if err != nil {
			logger.Error("Failed to initialize Telegram client, delivery disabled: %v", err)
			telegramClient = nil
		} else {
			logger.Info("Telegram client initialized (parse mode %q)", telegramClient.ParseMode())
		}
	} else {
		logger.Info("Telegram not configured, delivery will be skipped")
	}
	switch {
	case *dryRun:
		notifier = pipeline.WriterNotifier{W: os.Stdout}
	case telegramClient != nil:
		notifier = telegramClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling run")
		cancel()
	}()

	p := pipeline.New(
		pipeline.Config{
			RunID:       runID,
			Assets:      cfg.Assets,
			CallTimeout: max(cfg.Market.Timeout, cfg.Narrative.Timeout, cfg.Telegram.Timeout),
			Report: report.Options{
				Title:          cfg.Report.Title,
				MaxLength:      cfg.Report.MaxLength,
				NarrativeLimit: cfg.Report.NarrativeLimit,
				MarkdownV2:     markdown,
			},
		},
		fetcher,
		store,
		monitor.New(monitor.Config{VIXCalm: cfg.Monitor.VIXCalm, VIXStress: cfg.Monitor.VIXStress}),
		narrator,
		notifier,
	)

	res, err := p.Run(ctx, day)
	if err != nil {
		logger.Error("Run failed: %v", err)
		if telegramClient != nil && !*dryRun && !errors.Is(err, context.Canceled) {
			if sendErr := telegramClient.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return 1
	}

	if csvStore, ok := store.(*storage.CSVStore); ok && res.Persisted {
		logger.Info("Saved: %s", csvStore.Path(res.Date))
	}
	if dates, err := store.Dates(); err != nil {
		logger.Warn("Failed to list stored snapshots: %v", err)
	} else if n := len(dates); n > 0 {
		logger.Info("Store holds %d snapshots (%s to %s)", n,
			dates[0].Format(models.DateLayout), dates[n-1].Format(models.DateLayout))
		if dates[n-1].After(res.Date) {
			logger.Warn("Later snapshots exist after %s; their changes were computed without this day",
				res.Date.Format(models.DateLayout))
		}
	}
	logger.Info("Run finished: %s (%+d), persisted=%t delivered=%t",
		res.Evaluation.Label, res.Evaluation.Score, res.Persisted, res.Delivered)

	if *printJSON {
		b, err := json.Marshal(res)
		if err != nil {
			logger.Error("Failed to encode result: %v", err)
			return 1
		}
		if _, err := os.Stdout.Write(pretty.Pretty(b)); err != nil {
			logger.Error("Failed to print result: %v", err)
		}
	}
	return 0
}
