package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/alerting"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/config"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/history"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/pipeline"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/queue"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/safety"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/service"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/storage"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/syncer"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/tide"
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

func (a *App) newTideSource() tide.Source {
	if a.Config.Tide.BaseURL == "" {
		return nil
	}
	return tide.NewClient(tide.ClientOptions{
		BaseURL:   a.Config.Tide.BaseURL,
		Timeout:   a.Config.Tide.RequestTimeout,
		UserAgent: a.Config.Tide.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newPipeline(neighbors pipeline.NeighborhoodSource) *pipeline.Pipeline {
	p := a.Config.Pipeline
	return pipeline.New(pipeline.Options{
		Rules: pipeline.Rules{
			MaxDepthMeters:      p.MaxDepthMeters,
			MinDepthMeters:      p.MinDepthMeters,
			MaxGPSAccuracy:      p.MaxGPSAccuracy,
			MaxSpeedForAccuracy: p.MaxSpeedForAccuracy,
			DuplicateWindow:     p.DuplicateWindow,
			StaleWindow:         p.StaleWindow,
		},
		Profile: safety.VesselProfile{
			DraftMeters:          a.Config.Vessel.DraftMeters,
			SafetyMarginMeters:   a.Config.Vessel.SafetyMarginMeters,
			DataQualityThreshold: a.Config.Vessel.DataQualityThreshold,
		},
		MaxStationDistance: a.Config.Tide.MaxStationDistance,
		NeighborhoodSince:  p.NeighborhoodSince,
	}, neighbors, a.newTideSource(), a.Logger)
}

func (a *App) newAlertManager() *safety.Manager {
	cfg := a.Config.Alerting
	return safety.NewManager(safety.ManagerOptions{
		AutoAcknowledge:        cfg.AutoAcknowledge,
		AutoAcknowledgeTimeout: cfg.AutoAcknowledgeTimeout,
		SweepInterval:          cfg.SweepInterval,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openQueue() (*queue.Queue, error) {
	return queue.Open(a.Config.Queue.Path, a.Logger)
}

func (a *App) submitterID() string {
	if a.Config.App.SubmitterID != "" {
		return a.Config.App.SubmitterID
	}
	return "local"
}

// session carries the wired submission stack for one process lifetime.
type session struct {
	svc    *service.Service
	syncer *syncer.Syncer
	alerts *safety.Manager
	close  func()
}

func (a *App) newSession(ctx context.Context) (*session, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; running offline only")
	}

	q, err := a.openQueue()
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	var readingStore storage.ReadingStore
	var auditStore storage.AlertAuditStore
	var neighbors pipeline.NeighborhoodSource
	if store != nil {
		readingStore = store
		auditStore = store
		neighbors = store
	}

	alerts := a.newAlertManager()
	pipe := a.newPipeline(neighbors)

	sy := syncer.New(q, readingStore, syncer.Options{
		BackoffBase: a.Config.Sync.BackoffBase,
		BackoffMax:  a.Config.Sync.BackoffMax,
		BatchLimit:  a.Config.Sync.BatchLimit,
	}, a.Logger)

	svc := service.New(service.Options{
		Pipeline: pipe,
		Index:    history.NewIndex(a.submitterID(), history.Options{}),
		Queue:    q,
		Syncer:   sy,
		Store:    readingStore,
		Audit:    auditStore,
		Alerts:   alerts,
		Notifier: a.newNotifier(),
	}, a.Logger)
	sy.SetAcked(svc.CacheAcked)
	sy.SetOnline(store != nil)

	closer := func() {
		if err := q.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("failed to close queue")
		}
		if closeStore != nil {
			closeStore()
		}
	}
	return &session{svc: svc, syncer: sy, alerts: alerts, close: closer}, nil
}

// Run executes the long-running submission service: the sync engine, the
// alert sweeper, and the alert event drain, until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := a.newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	a.Logger.Info().Msg("starting depth reading service")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sess.syncer.Run(ctx, a.Config.Sync.RetryInterval)
	}()
	go func() {
		defer wg.Done()
		sess.alerts.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.drainAlertEvents(ctx, sess.alerts)
	}()

	<-ctx.Done()
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("depth reading service stopped")
	return nil
}

func (a *App) drainAlertEvents(ctx context.Context, alerts *safety.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-alerts.Sink():
			a.Logger.Info().
				Str("kind", string(ev.Kind)).
				Str("type", string(ev.Alert.Type)).
				Str("severity", string(ev.Alert.Severity)).
				Str("message", ev.Alert.Message).
				Msg("alert event")
		}
	}
}

// SubmitOptions configure a one-shot submission.
type SubmitOptions struct {
	Lat         float64
	Lon         float64
	DepthMeters float64
	GPSAccuracy float64
	SpeedMPS    *float64
	Method      string
	Timestamp   *time.Time
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ExportOptions hold parameters for exporting historical readings.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SyncOptions configure a one-shot queue drain.
type SyncOptions struct {
	Wait time.Duration
}

// SimulateOptions drive synthetic readings through the pipeline.
type SimulateOptions struct {
	Count       int
	Lat         float64
	Lon         float64
	DepthMeters float64
	Spread      float64
}
