package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/astro5star/callshell/internal/answer"
	"github.com/astro5star/callshell/internal/api"
	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/bridge/pagews"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/config"
	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/keepalive"
	"github.com/astro5star/callshell/internal/metrics"
	"github.com/astro5star/callshell/internal/notify"
	"github.com/astro5star/callshell/internal/permission"
	"github.com/astro5star/callshell/internal/prompt"
	"github.com/astro5star/callshell/internal/push"
	"github.com/astro5star/callshell/internal/ringer"
	"github.com/astro5star/callshell/internal/session"
)

func main() {
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(cfg.LogWriter()))
	slog.SetDefault(logger)

	slog.Info("starting callshell",
		"http_port", cfg.HTTPPort,
		"base_url", cfg.BaseURL,
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Session store, with the token sealed at rest when a key is set.
	sessionKey, err := cfg.SessionKeyBytes()
	if err != nil {
		slog.Error("failed to decode session key", "error", err)
		os.Exit(1)
	}
	sessions, err := session.NewStore(database.NewSessionKVRepository(db), sessionKey)
	if err != nil {
		slog.Error("failed to create session store", "error", err)
		os.Exit(1)
	}

	// Platform surfaces.
	sink := notify.NewExecSink(cfg.NotifyCmd)
	ring := ringer.New(ringer.NewExecPlayer(cfg.PlayerCmd), ringer.NewExecVibrator(cfg.VibratorCmd), cfg.RingtoneAsset)
	gate := permission.NewGate(permission.NewExecPrompter(cfg.PermissionCmd))
	gate.EnsureStartup(appCtx)

	// Page bridge and answer dispatcher.
	launcher := bridge.NewExecLauncher(cfg.LauncherCmd)
	pageBridge := bridge.New(sessions, launcher, cfg.BaseURL)
	dispatcher := answer.NewDispatcher(cfg.BaseURL, sessions, pageBridge)

	// Call manager with its decision loop.
	callLog := database.NewCallLogRepository(db)
	manager := call.NewManager(ring, sink, dispatcher, callLog, gate)
	manager.SetPromptOpener(prompt.NewExecOpener(cfg.PromptCmd))
	go manager.Run(appCtx)

	// Push ingress.
	ingress := push.NewIngress(manager, sink)

	// Keep-alive anchor: persistent notification plus bounded wake lock.
	anchor := keepalive.NewAnchor(sink, keepalive.NewExecWakeLock(cfg.WakeLockCmd))
	if err := anchor.Start(appCtx); err != nil {
		slog.Error("failed to start keep-alive anchor", "error", err)
	}
	defer anchor.Stop(context.Background())

	// Page bridge authentication.
	secret, err := cfg.BridgeSecretBytes()
	if err != nil {
		slog.Error("failed to decode bridge secret", "error", err)
		os.Exit(1)
	}
	auth := pagews.NewAuthenticator(secret, 24*time.Hour)
	pageWS := pagews.NewHandler(auth, pageBridge, sessions, gate)

	// Metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(manager, ingress, pageBridge, ring, start))

	// Local HTTP surface. Loopback only: the agent serves the device, not
	// the network.
	handler := api.NewServer(ingress, manager, callLog, pageWS, auth, registry)
	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	ring.Stop(ctx)
	slog.Info("callshell stopped")
}
