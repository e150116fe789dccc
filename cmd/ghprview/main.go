package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	authadapter "github.com/xiaocang/ghpr-view/internal/adapter/driven/auth"
	"github.com/xiaocang/ghpr-view/internal/adapter/driven/avatarcache"
	"github.com/xiaocang/ghpr-view/internal/adapter/driven/diskcache"
	githubadapter "github.com/xiaocang/ghpr-view/internal/adapter/driven/github"
	"github.com/xiaocang/ghpr-view/internal/adapter/driven/notify"
	sqliteadapter "github.com/xiaocang/ghpr-view/internal/adapter/driven/sqlite"
	"github.com/xiaocang/ghpr-view/internal/adapter/driven/sysmon"
	httphandler "github.com/xiaocang/ghpr-view/internal/adapter/driving/http"
	"github.com/xiaocang/ghpr-view/internal/application"
	"github.com/xiaocang/ghpr-view/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load daemon configuration from the environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the settings store and watch the file for external edits.
	settings, err := config.NewStore(cfg.SettingsPath)
	if err != nil {
		return err
	}
	go func() {
		if err := settings.Watch(ctx); err != nil {
			slog.Warn("settings watcher stopped", "error", err)
		}
	}()

	// 4. Open the notification journal database and run migrations.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database opened", "path", cfg.DBPath)
	journal := sqliteadapter.NewNotificationRepo(db)

	// 5. Open the snapshot disk cache and the avatar cache.
	cache, err := diskcache.NewCache(cfg.CachePath)
	if err != nil {
		return err
	}
	avatars, err := avatarcache.NewCache(cfg.AvatarDir())
	if err != nil {
		return err
	}

	// 6. Resolve credentials. A bootstrap failure is not fatal; the user can
	// still sign in through the UI.
	auth := authadapter.NewProvider(authadapter.Options{
		TokenPath:    cfg.TokenPath,
		EnvToken:     cfg.GitHubToken,
		ClientID:     cfg.OAuthClientID,
		OAuthBaseURL: cfg.OAuthBaseURL,
		APIBaseURL:   cfg.APIBaseURL,
	})
	if err := auth.Bootstrap(ctx); err != nil {
		slog.Warn("credential bootstrap failed, starting signed out", "error", err)
	}

	// 7. Create the GitHub client. The token callback keeps it valid across
	// sign-in and sign-out without reconstruction.
	gh := githubadapter.NewClient(cfg.GraphQLURL, auth.Token)

	// 8. Start the system monitor.
	monitor := sysmon.NewMonitor(cfg.LowPowerProbe, cfg.ExpensiveNetworkProbe, cfg.SysmonInterval)
	go monitor.Run(ctx)

	// 9. Create the notifier and the refresh engine.
	notifier := notify.NewService(journal, nil)
	engine := application.NewEngine(gh, auth, settings, cache, notifier, journal, avatars, monitor)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		engine.Start(ctx)
	}()

	// 10. Create the HTTP handler and server.
	handler := httphandler.NewHandler(engine, settings, auth, journal, avatars)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("ghpr-view started", "listen_addr", cfg.ListenAddr)

	// 11. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	<-engineDone

	slog.Info("shutdown complete")
	return nil
}
