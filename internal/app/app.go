// Package app wires the configured components into a running generator.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/timmy/examforge/internal/api/handler"
	"github.com/timmy/examforge/internal/cache"
	"github.com/timmy/examforge/internal/config"
	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/notify"
	"github.com/timmy/examforge/internal/render"
	"github.com/timmy/examforge/internal/repository"
	"github.com/timmy/examforge/internal/service"
	"github.com/timmy/examforge/internal/storage"
)

// App holds the long-lived components shared by the binaries.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	QuestionSets *repository.QuestionSetRepository
	Templates    *repository.TemplateRepository
	Archive      *repository.BatchRecordRepository
	Cache        *cache.ContentCache
	Batches      *service.BatchService
	Storage      storage.ObjectStorage

	log *logger.Logger
}

// New builds every component described by cfg.
// Parameters:
//   - ctx: used for start-up calls such as bucket creation.
//   - cfg: loaded application configuration.
//   - log: base logger.
//
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil if a required component cannot start.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	a := &App{Config: cfg, log: log}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.DB = db
	a.QuestionSets = repository.NewQuestionSetRepository(db)
	a.Templates = repository.NewTemplateRepository(db)
	a.Archive = repository.NewBatchRecordRepository(db)

	a.Cache, err = cache.New(&cache.Config{
		Dir:              cfg.Cache.Dir,
		MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
		MaxDiskBytes:     cfg.Cache.MaxDiskBytes(),
		TTL:              cfg.Cache.TTL,
	}, log)
	if err != nil {
		_ = repository.Close(db)
		return nil, fmt.Errorf("initialize cache: %w", err)
	}

	deps := service.BatchDependencies{
		Renderer:     a.renderer(),
		Cache:        a.Cache,
		QuestionSets: a.QuestionSets,
		Archive:      a.Archive,
		Notifier:     a.dispatcher(),
		Logger:       log,
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(storage.FromConfig(&cfg.Storage))
		if err != nil {
			_ = repository.Close(db)
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			_ = repository.Close(db)
			return nil, fmt.Errorf("ensure storage bucket: %w", err)
		}
		a.Storage = store
		deps.Publisher = storage.NewPublisher(store, cfg.Storage.Prefix, log)
	}

	a.Batches, err = service.NewBatchService(deps, &service.BatchConfig{
		DefaultParallelism: cfg.Batch.DefaultParallelism,
		MaxParallelism:     cfg.Batch.MaxParallelism,
		MaxCount:           cfg.Batch.MaxCount,
		DefaultPageSize:    cfg.Batch.DefaultPageSize,
		MaxPageSize:        cfg.Batch.MaxPageSize,
		FilePrefix:         cfg.Batch.FilePrefix,
		DefaultFormat:      domain.OutputFormat(cfg.Render.DefaultFormat),
		DefaultTemplate:    cfg.Render.DefaultTemplate,
	})
	if err != nil {
		_ = repository.Close(db)
		return nil, err
	}
	return a, nil
}

// renderer routes text formats to the template renderer and, when enabled,
// PDF to the remote compile service.
func (a *App) renderer() render.Renderer {
	templates := render.NewTemplateRenderer(a.Templates, a.QuestionSets, a.log)
	router := render.NewFormatRouter(templates)

	remote := a.Config.Render.Remote
	if remote.Enabled && remote.Endpoint != "" {
		router.Handle(domain.FormatPDF, render.NewRemoteRenderer(&render.RemoteConfig{
			Endpoint: remote.Endpoint,
			APIKey:   remote.APIKey,
			Engine:   remote.Engine,
			Timeout:  remote.Timeout,
		}, templates, a.log))
		a.log.WithField("endpoint", remote.Endpoint).Info("PDF rendering enabled")
	}
	return router
}

func (a *App) dispatcher() *notify.Dispatcher {
	n := a.Config.Notify
	var notifiers []notify.Notifier
	if n.SMTP.Enabled {
		notifiers = append(notifiers, notify.NewEmailNotifier(&notify.SMTPConfig{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
		}))
	}
	if n.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhookNotifier(&notify.WebhookConfig{
			Secret:  n.Webhook.Secret,
			Timeout: n.Webhook.Timeout,
			Retries: n.Webhook.Retries,
		}))
	}
	if n.AMQP.Enabled && n.AMQP.URL != "" {
		notifiers = append(notifiers, notify.NewAMQPNotifier(n.AMQP.URL, n.AMQP.Queue))
	}
	return notify.NewDispatcher(a.log, notifiers...)
}

// HealthChecks returns the checks served on /health.
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return repository.Ping(ctx, a.DB) },
	}
	if a.Storage != nil {
		checks["storage"] = func(ctx context.Context) error {
			_, err := a.Storage.Exists(ctx, ".health")
			return err
		}
	}
	return checks
}

// RunMaintenance expires cache entries and forgets old batches on the
// configured intervals until ctx is done.
func (a *App) RunMaintenance(ctx context.Context) {
	cacheEvery := a.Config.Cache.CleanupInterval
	if cacheEvery <= 0 {
		cacheEvery = time.Hour
	}
	batchEvery := a.Config.Batch.CleanupInterval
	if batchEvery <= 0 {
		batchEvery = 6 * time.Hour
	}

	cacheTicker := time.NewTicker(cacheEvery)
	defer cacheTicker.Stop()
	batchTicker := time.NewTicker(batchEvery)
	defer batchTicker.Stop()

	log := a.log.WithField(logger.FieldComponent, "maintenance")
	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTicker.C:
			if n := a.Cache.CleanupExpired(); n > 0 {
				log.WithField(logger.FieldCount, n).Info("Expired cache entries removed")
			}
		case <-batchTicker.C:
			a.Batches.Cleanup(ctx, a.Config.Batch.RetentionDays)
		}
	}
}

// Close stops running batches and releases the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Batches != nil {
		if err := a.Batches.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := repository.Close(a.DB); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
