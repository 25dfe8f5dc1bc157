package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"echoclicker/internal/agent"
	"echoclicker/internal/api/handlers"
	"echoclicker/internal/api/routes"
	"echoclicker/internal/broadcast"
	"echoclicker/internal/config"
	"echoclicker/internal/coordinator"
	"echoclicker/internal/models"
	"echoclicker/internal/observability"
	"echoclicker/internal/services"
	"echoclicker/pkg/auth"
	"echoclicker/pkg/chrome"
	"echoclicker/pkg/database"
	"echoclicker/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Launch Chrome and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := observability.NewLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()
			restore := observability.Install(logger)
			defer restore()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "mysql":
		db, err := database.Open(cfg, logger.Named("database"))
		if err != nil {
			return nil, err
		}
		return store.NewMySQLStore(db), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return store.NewRedisStore(client), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	gin.SetMode(cfg.Server.Mode)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("Script store ready", zap.String("backend", cfg.Store.Backend))

	browser, err := chrome.Launch(ctx, chrome.Options{
		ExecPath:     cfg.Chrome.ExecPath,
		Headless:     cfg.Chrome.HeadlessMode,
		RemoteURL:    cfg.Chrome.RemoteURL,
		UserDataDir:  cfg.Chrome.UserDataDir,
		WindowWidth:  cfg.Chrome.WindowWidth,
		WindowHeight: cfg.Chrome.WindowHeight,
	}, logger)
	if err != nil {
		return err
	}
	defer browser.Close()

	hub := broadcast.NewHub(logger)
	sinks := broadcast.Multi{hub}
	if cfg.NATS.URL != "" {
		pub, err := broadcast.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	injector := agent.NewInjector(agent.BrowserTabs{Browser: browser}, agent.Config{
		ElementTimeout: cfg.Automation.ElementTimeout,
	}, logger)
	coord := coordinator.New(injector, sinks, logger)
	scheduler := services.NewSchedulerService(coord, st, logger)

	browser.SetEvents(chrome.Events{
		Closed: func(id string) {
			coord.PageClosed(ctx, models.PageID(id))
			scheduler.RemovePage(models.PageID(id))
		},
		Navigated: func(id string) {
			coord.PageNavigating(ctx, models.PageID(id))
		},
	})

	if cfg.Chrome.StartURL != "" {
		if _, err := browser.NewPage(ctx, cfg.Chrome.StartURL); err != nil {
			logger.Warn("Failed to open start page", zap.String("url", cfg.Chrome.StartURL), zap.Error(err))
		}
	}

	var issuer *auth.Issuer
	if cfg.JWT.Enabled {
		issuer = auth.NewIssuer(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireTime)*time.Second)
	}
	h := handlers.New(coord, browser, st, scheduler, hub, logger)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      routes.SetupRoutes(h, issuer, logger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	syncer := services.NewStatusSyncService(services.BrowserPages{Browser: browser}, coord, cfg.Automation.SyncInterval, logger)
	scheduler.Start()
	syncer.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("addr", srv.Addr), zap.Bool("auth", issuer != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)

		syncer.Stop()
		scheduler.Stop(sctx)
		hub.Close()
		coord.Shutdown(sctx)
		return err
	})

	err = g.Wait()
	logger.Info("Server shutdown complete")
	return err
}
