package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"NewsDigest/internal/config"
	"NewsDigest/internal/infrastructure/extractor"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/parser"
	"NewsDigest/internal/infrastructure/publisher"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
	"NewsDigest/internal/usecase"
	"NewsDigest/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	db          *sql.DB
	store       *storage.SQLRepository
	maintenance *usecase.Maintenance

	machine *usecase.StateMachine
	closers []io.Closer
}

// New opens and migrates the database. Model and source adapters are built on first use
// so read-only commands work without provider credentials.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db, cfg.Database.Driver, logger.New(baseLogger, "migrations")); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := storage.NewSQLRepository(db, cfg.Database.Driver)
	loc := cfg.Scheduler.Location()
	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		db:          db,
		store:       store,
		maintenance: usecase.NewMaintenance(store, loc, baseLogger.With("component", "maintenance")),
	}, nil
}

// Run performs one step for date, or for today's work-date when date is empty.
func (a *Application) Run(ctx context.Context, date string) (usecase.StepResult, error) {
	machine, err := a.stateMachine(ctx)
	if err != nil {
		return usecase.StepResult{}, err
	}
	if date == "" {
		return machine.RunOnce(ctx, time.Now())
	}
	return machine.Run(ctx, date)
}

// Serve runs steps on the configured cron expression until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	machine, err := a.stateMachine(ctx)
	if err != nil {
		return err
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), true, a.logger)
	sched := usecase.NewScheduler(driver, machine, a.maintenance,
		a.cfg.Maintenance.CronExpression, a.cfg.Maintenance.ArchiveAfter,
		a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if next, err := driver.Next(time.Now()); err == nil {
		a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "next", next)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Status lists the task of date, or the latest tasks when date is empty.
func (a *Application) Status(ctx context.Context, date string, limit int) ([]usecase.TaskStatus, error) {
	return a.maintenance.Status(ctx, date, limit)
}

// Archive moves published tasks older than olderThan to ARCHIVED.
func (a *Application) Archive(ctx context.Context, olderThan time.Duration) (int, error) {
	return a.maintenance.Archive(ctx, time.Now(), olderThan)
}

// Close releases adapters and the database.
func (a *Application) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	return multierr.Append(err, a.db.Close())
}

func (a *Application) stateMachine(ctx context.Context) (*usecase.StateMachine, error) {
	if a.machine != nil {
		return a.machine, nil
	}
	cfg := a.cfg

	registry, err := a.buildRegistry()
	if err != nil {
		return nil, err
	}
	source := parser.NewStrategySource(registry, cfg.Sites, cfg.Digest.StoryLimit, a.logger.With("component", "source"))

	ext := extractor.New(cfg.Extractor, a.logger.With("component", "extractor"))
	a.closers = append(a.closers, ext)

	provider, ok := cfg.LLM.Active()
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", cfg.LLM.Provider)
	}
	chat, err := llm.New(ctx, cfg.LLM.Provider, provider, a.logger.With("component", "llm", "provider", cfg.LLM.Provider))
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	prompts, err := usecase.NewPrompts(cfg.Digest.Language)
	if err != nil {
		return nil, err
	}

	loc := cfg.Scheduler.Location()
	executor := usecase.NewExecutor(usecase.ExecutorDeps{
		Store:      a.store,
		Source:     source,
		Extractor:  ext,
		Chat:       chat,
		Publishers: buildPublishers(cfg.Publish),
		Prompts:    prompts,
		Settings: usecase.Settings{
			Concurrency:    cfg.Digest.Concurrency,
			AlignBatchSize: cfg.Digest.AlignBatchSize,
			Temperature:    cfg.Digest.Temperature,
			ClaimLease:     cfg.Digest.ClaimLease,
			PublishTimeout: cfg.Publish.Timeout,
			Location:       loc,
		},
		Logger: a.logger.With("component", "executor"),
	})

	a.machine = usecase.NewStateMachine(a.store, executor, loc,
		cfg.Digest.BatchSize, cfg.Digest.PublishLease, a.logger.With("component", "state_machine"))
	return a.machine, nil
}

func (a *Application) buildRegistry() (*scanner.Registry, error) {
	registry := scanner.NewRegistry()
	for _, site := range a.cfg.Sites {
		if _, err := registry.Resolve(site.Scanner); err == nil {
			continue
		}

		log := a.logger.With("component", "scanner."+site.Scanner)
		switch site.Scanner {
		case "hackernews":
			hn := parser.NewHackerNewsScanner(parser.HackerNewsOptions{
				BaseURL:  site.BaseURL,
				Timeout:  site.Timeout,
				Comments: a.cfg.Digest.CommentsPerStory,
			}, log)
			registry.Register(hn)
			a.closers = append(a.closers, hn)
		case "arxiv":
			ax := parser.NewArxivScanner(site.BaseURL, site.Timeout, log)
			registry.Register(ax)
			a.closers = append(a.closers, ax)
		default:
			return nil, fmt.Errorf("site %s: unknown scanner %q", site.Name, site.Scanner)
		}
	}
	return registry, nil
}

func buildPublishers(cfg config.PublishConfig) []ports.Publisher {
	var out []ports.Publisher
	for _, target := range cfg.Targets {
		switch target {
		case "terminal":
			out = append(out, publisher.NewTerminal(nil))
		case "telegram":
			out = append(out, telegram.NewNotifier(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Timeout))
		case "github":
			out = append(out, publisher.NewGitHub(cfg.GitHub, cfg.Timeout))
		case "file":
			out = append(out, publisher.NewFile(cfg.File.Dir))
		}
	}
	return out
}
