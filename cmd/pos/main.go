package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamezone/internal/api"
	"gamezone/internal/backend"
	"gamezone/internal/catalog"
	"gamezone/internal/config"
	"gamezone/internal/events"
	"gamezone/internal/google"
	"gamezone/internal/ledger"
	"gamezone/internal/metrics"
	"gamezone/internal/models"
	"gamezone/internal/notify"
	"gamezone/internal/orders"
	"gamezone/internal/session"
	"gamezone/internal/store"
	"gamezone/internal/timer"
	"gamezone/shared/audit"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("POS_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(lvl)
	}

	database, err := store.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal().Err(err).Msg("create scheduler error")
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("scheduler shutdown error")
		}
	}()

	sess := session.New(database, sched, &logger)
	if err = sess.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("session restore failed")
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), sess, &logger)
	client.UseRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst)
	client.OnUnauthorized(func() {
		sess.Logout(context.Background(), session.ReasonUnauthorized)
	})
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	notifier := newNotifier(cfg, &logger)
	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Msg("event handler failed")
	})

	catalogs := catalog.NewResolver(client, sess)

	var ordersSvc *orders.Service
	board := timer.NewBoard(database.Timers(), timerHooks(bus, notifier, func(id string) (models.Booking, bool) {
		return ordersSvc.Lookup(id)
	}, &logger), &logger)
	ordersSvc = orders.NewService(client, catalogs, sess, board, cfg.PricingPolicy(), &logger, orders.WithEventBus(bus))
	board.Start(ctx)
	defer board.Close()
	ledgers := ledger.NewService(client, &logger)

	sess.OnLogout(func(reason string) {
		catalogs.Invalidate()
		board.Close()
		ordersSvc.Reset()
		if reason == session.ReasonExpired {
			go func() {
				if err := notifier.Notify(context.Background(), "🔒 Session expired, staff must log in again"); err != nil {
					logger.Error().Err(err).Msg("session expiry alert failed")
				}
			}()
		}
		if err := bus.PublishJSON(events.SessionEnded, map[string]string{"reason": reason}); err != nil {
			logger.Error().Err(err).Msg("publish session end failed")
		}
	})

	subscribeStops(ctx, cfg, bus, database, notifier, &logger)

	if err = scheduleJobs(ctx, cfg, sched, database, ordersSvc, sess, &logger); err != nil {
		logger.Fatal().Err(err).Msg("schedule jobs error")
	}

	if cfg.Audit.Enabled {
		auditSvc := audit.NewService(&audit.Config{
			DataRetentionDays: cfg.Audit.RetentionDays,
			StoreName:         cfg.Audit.StoreName,
		}, database, audit.NewExcelizeWriter, notifier, database, &logger)
		auditSvc.Start()
		defer auditSvc.Stop()
	}

	checks := map[string]api.ReadyCheck{
		"database": func(ctx context.Context) error { return database.PingContext(ctx) },
		"backend":  client.HealthCheck,
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	srv := api.NewHTTPServer(cfg.Server.Address, cfg.Server.APIKey, api.Deps{
		Orders:   ordersSvc,
		Ledgers:  ledgers,
		Auth:     client,
		Session:  sess,
		Catalogs: catalogs,
		Timers:   board,
		Checks:   checks,
	}, &logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
			stop()
		}
	}()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, checks, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if sess.Authenticated() {
		if _, err := ordersSvc.ListActive(ctx); err != nil {
			logger.Warn().Err(err).Msg("initial booking refresh failed")
		}
	}

	logger.Info().Str("policy", cfg.PricingPolicy().String()).Msg("gamezone terminal started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown error")
	}
	logger.Info().Msg("gamezone terminal stopped")
}

func newNotifier(cfg *config.Config, logger *zerolog.Logger) notify.Notifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.ChatIDs) == 0 {
		logger.Info().Msg("telegram not configured, alerts go to the log")
		return notify.NewLogNotifier(logger)
	}
	ncfg := notify.DefaultConfig()
	ncfg.ChatIDs = cfg.Telegram.ChatIDs
	if cfg.Telegram.Rate > 0 {
		ncfg.Rate = cfg.Telegram.Rate
	}
	n, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, ncfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram unavailable, alerts go to the log")
		return notify.NewLogNotifier(logger)
	}
	return n
}

type timerAlert struct {
	BookingID string `json:"bookingId"`
	Screen    string `json:"screen,omitempty"`
}

// timerHooks turn countdown notifications into alerts. Delivery runs off the
// countdown goroutine.
func timerHooks(bus *events.EventBus, notifier notify.Notifier, lookup func(string) (models.Booking, bool), logger *zerolog.Logger) timer.Hooks {
	alert := func(eventType, id string, message func(models.Booking) string) {
		b, ok := lookup(id)
		if err := bus.PublishJSON(eventType, timerAlert{BookingID: id, Screen: b.Screen}); err != nil {
			logger.Error().Err(err).Str("event", eventType).Msg("publish timer alert failed")
		}
		if !ok {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := notifier.Notify(ctx, message(b)); err != nil {
				logger.Error().Err(err).Str("booking_id", id).Msg("timer alert failed")
			}
		}()
	}
	return timer.Hooks{
		OnLowTime: func(id string) {
			metrics.IncLowTime()
			alert(events.TimerLowTime, id, notify.LowTimeMessage)
		},
		OnExpired: func(id string) {
			alert(events.TimerExpired, id, notify.ExpiredMessage)
		},
	}
}

// subscribeStops persists every stop locally, then mirrors it to the
// spreadsheet and the staff chat.
func subscribeStops(ctx context.Context, cfg *config.Config, bus *events.EventBus, database *store.DB, notifier notify.Notifier, logger *zerolog.Logger) {
	bus.Subscribe(events.BookingStopped, func(e events.Event) error {
		var rec models.StopRecord
		if err := e.Decode(&rec); err != nil {
			return err
		}
		if _, err := database.RecordStop(ctx, rec); err != nil {
			return fmt.Errorf("record stop: %w", err)
		}
		go func() {
			if err := notifier.Notify(ctx, notify.StopMessage(rec)); err != nil {
				logger.Error().Err(err).Str("booking_id", rec.BookingID).Msg("stop notification failed")
			}
		}()
		return nil
	})

	if !cfg.Google.Enabled {
		return
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.Sheet, logger)
	if err != nil {
		logger.Error().Err(err).Msg("google sheets disabled")
		return
	}
	if err = sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheet header check failed")
	}
	bus.Subscribe(events.BookingStopped, func(e events.Event) error {
		var rec models.StopRecord
		if err := e.Decode(&rec); err != nil {
			return err
		}
		go func() {
			if err := sheets.AppendStop(ctx, rec); err != nil {
				logger.Error().Err(err).Str("booking_id", rec.BookingID).Msg("sheet append failed")
			}
		}()
		return nil
	})
}

func scheduleJobs(ctx context.Context, cfg *config.Config, sched gocron.Scheduler, database *store.DB, ordersSvc *orders.Service, sess *session.Session, logger *zerolog.Logger) error {
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.RefreshInterval()),
		gocron.NewTask(func() {
			if !sess.Authenticated() {
				return
			}
			if _, err := ordersSvc.ListActive(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("booking refresh failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("refresh job: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			n, err := database.DeleteStaleTimers(ctx, cfg.StaleTimerAge())
			if err != nil {
				logger.Error().Err(err).Msg("stale timer cleanup failed")
				return
			}
			if n > 0 {
				logger.Info().Int64("deleted", n).Msg("removed stale timers")
			}
		}),
	); err != nil {
		return fmt.Errorf("timer cleanup job: %w", err)
	}

	if cfg.Backup.Enabled {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.BackupInterval()),
			gocron.NewTask(func() {
				database.RunBackup(ctx, cfg.Backup.Path, cfg.BackupRetention(), logger)
			}),
		); err != nil {
			return fmt.Errorf("backup job: %w", err)
		}
	}
	return nil
}

func startHealthServer(ctx context.Context, port int, checks map[string]api.ReadyCheck, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctxPing); err != nil {
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
