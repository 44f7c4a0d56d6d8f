package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"callwatch/internal/coingecko"
	"callwatch/internal/config"
	"callwatch/internal/detector"
	"callwatch/internal/llm"
	"callwatch/internal/relay"
	"callwatch/internal/scheduler"
	"callwatch/internal/service"
	"callwatch/internal/storage"
	"callwatch/internal/token"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarketData() *coingecko.Client {
	cfg := a.Config.CoinGecko
	return coingecko.NewClient(coingecko.Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		APIKeyHeader: cfg.APIKeyHeader,
		Timeout:      cfg.RequestTimeout,
		UserAgent:    cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newCompleter() (*llm.OpenAI, error) {
	if err := a.Config.ValidateOpenAI(); err != nil {
		return nil, err
	}
	cfg := a.Config.OpenAI
	return llm.NewOpenAI(llm.Options{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.RequestTimeout,
	}, a.Logger)
}

func (a *App) slugTable() (detector.SlugTable, error) {
	return detector.DefaultSlugs().WithOverrides(a.Config.Chains.Slugs)
}

func (a *App) newTelegram() (*relay.Telegram, error) {
	cfg := a.Config.Telegram
	return relay.NewTelegram(relay.Options{
		Token:        cfg.BotToken,
		SourceChatID: cfg.SourceChatID,
		DestChatID:   cfg.DestChatID,
		ServerURL:    cfg.APIBase,
	}, a.Logger)
}

// newService wires the pipeline. rel and history may be nil.
func (a *App) newService(rel service.Relay, history service.HistoryWriter) (*service.Service, error) {
	completer, err := a.newCompleter()
	if err != nil {
		return nil, err
	}
	slugs, err := a.slugTable()
	if err != nil {
		return nil, err
	}

	resolver := token.NewResolver(a.newMarketData(), completer, slugs, a.Logger)
	return service.New(service.Options{
		MessageDeadline: a.Config.Pipeline.MessageDeadline,
		DebugDumpPath:   a.Config.Pipeline.DebugDumpPath,
	}, resolver, completer, rel, history, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running relay service.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.ValidateRelay(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history and single-instance lock disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if store != nil {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return errors.New("another callwatch instance is already polling telegram")
		}
		defer unlock()

		if a.Config.Retention.Enabled {
			if err := a.startRetention(ctx, store); err != nil {
				return err
			}
		}
	}

	tg, err := a.newTelegram()
	if err != nil {
		return err
	}

	var history service.HistoryWriter
	if store != nil && a.Config.Pipeline.Persist {
		history = store
	}

	svc, err := a.newService(tg, history)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting relay service")
	err = tg.Listen(ctx, svc.Dispatch)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("relay service terminated with error")
		return err
	}

	a.Logger.Info().Msg("relay service stopped")
	return nil
}

func (a *App) startRetention(ctx context.Context, store storage.AnalysisStore) error {
	cfg := a.Config.Retention
	sched, err := scheduler.New(a.retentionSchedule(), a.Logger)
	if err != nil {
		return fmt.Errorf("retention scheduler: %w", err)
	}

	go func() {
		_ = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
			return a.prune(ctx, store, at.Add(-cfg.MaxAge))
		})
	}()
	return nil
}

func (a *App) retentionSchedule() scheduler.Options {
	cfg := a.Config.Retention
	return scheduler.Options{
		Name:           "retention",
		Interval:       cfg.Interval,
		StartupDelay:   cfg.StartupDelay,
		RunImmediately: cfg.RunImmediately,
	}
}

func (a *App) prune(ctx context.Context, store storage.AnalysisStore, before time.Time) error {
	deleted, err := store.DeleteAnalysesBefore(ctx, before)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("deleted", deleted).Time("before", before).Msg("pruned analysis history")
	return nil
}

// ChatID answers every incoming message with its chat id until interrupted.
func (a *App) ChatID(ctx context.Context) error {
	if a.Config.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required (or CALL_BOT_ID)")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tg, err := a.newTelegram()
	if err != nil {
		return err
	}
	a.Logger.Info().Msg("echoing chat ids; send the bot a message from the chat in question")
	return tg.RunChatIDEcho(ctx)
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	Text   string
	DryRun bool
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	Target    string
	Days      []int
	OutputDir string
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	OlderThan time.Duration
}
