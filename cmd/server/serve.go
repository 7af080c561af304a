package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"oktel-workforce/internal/broadcast"
	"oktel-workforce/internal/config"
	"oktel-workforce/internal/geofence"
	"oktel-workforce/internal/handler"
	"oktel-workforce/internal/i18n"
	"oktel-workforce/internal/lock"
	"oktel-workforce/internal/mattermost"
	"oktel-workforce/internal/metrics"
	"oktel-workforce/internal/service"
	"oktel-workforce/internal/store"
)

func serveCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and real-time feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

type repositories struct {
	sessions service.SessionRepository
	sites    service.SiteRepository
	schedule service.ScheduleRepository
	ready    func(ctx context.Context) error
	close    func()
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Warn("using in-memory storage, data is lost on restart")
		return &repositories{
			sessions: store.NewMemorySessionStore(),
			sites:    store.NewMemorySiteStore(),
			schedule: store.NewMemoryScheduleStore(),
			close:    func() {},
		}, nil
	}

	db, err := store.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, err
	}
	closeDB := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(ctx); err != nil {
			slog.Warn("disconnect mongodb", "error", err)
		}
	}
	sessions, err := store.NewSessionStore(ctx, db)
	if err != nil {
		closeDB()
		return nil, err
	}
	sites, err := store.NewSiteStore(ctx, db)
	if err != nil {
		closeDB()
		return nil, err
	}
	schedule, err := store.NewScheduleStore(ctx, db)
	if err != nil {
		closeDB()
		return nil, err
	}
	return &repositories{
		sessions: sessions,
		sites:    sites,
		schedule: schedule,
		ready:    db.Ping,
		close:    closeDB,
	}, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(newLogger(cfg))
	if err := i18n.Init(cfg.Locale); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var background sync.WaitGroup
	defer background.Wait()
	defer cancel()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	m := metrics.New()
	hub := broadcast.NewHub(cfg.SubscriberBuffer, m)
	var events broadcast.Publisher = hub
	var locker lock.Locker = lock.NewKeyed()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		relay := broadcast.NewRedisRelay(rdb, hub)
		events = relay
		locker = lock.Chain{lock.NewKeyed(), lock.NewRedis(rdb, cfg.LockTTL)}
		background.Add(1)
		go func() {
			defer background.Done()
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("broadcast relay stopped", "error", err)
			}
		}()
		slog.Info("redis coordination enabled", "addr", cfg.RedisAddr)
	}

	registry := geofence.NewRegistry(nil)
	attendance := service.NewAttendanceService(repos.sessions, registry, locker, events, m, cfg.Location)
	schedule := service.NewScheduleService(repos.schedule, registry, events, m, cfg.Location)
	sites := service.NewSiteService(repos.sites, repos.schedule, registry, events)

	if err := sites.Load(ctx); err != nil {
		return err
	}
	slog.Info("site registry loaded", "sites", len(sites.List()))

	// Other instances change sites through the shared store; their events arrive via the relay.
	if rdb != nil && cfg.Storage == config.StorageMongo {
		background.Add(1)
		go func() {
			defer background.Done()
			sites.Follow(ctx, hub)
		}()
	}

	if cfg.NotifierEnabled() {
		client := mattermost.NewClient(cfg.MattermostURL, cfg.MattermostToken)
		if ch, err := client.GetChannel(ctx, cfg.MattermostChannelID); err != nil {
			slog.Warn("mattermost channel lookup failed, notifications may not post", "channel_id", cfg.MattermostChannelID, "error", err)
		} else {
			slog.Info("mattermost notifications enabled", "channel", ch.Name)
		}
		notifier := mattermost.NewNotifier(client, cfg.MattermostChannelID, cfg.Locale)
		background.Add(1)
		go func() {
			defer background.Done()
			notifier.Run(ctx, hub)
		}()
	}

	h := handler.New(handler.Deps{
		Attendance: attendance,
		Schedule:   schedule,
		Sites:      sites,
		Hub:        hub,
		Metrics:    m,
		JWTSecret:  cfg.JWTSecret,
		JWTIssuer:  cfg.JWTIssuer,
		Ready:      repos.ready,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "port", cfg.Port, "env", cfg.Env, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	h.Close()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
