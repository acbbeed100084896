package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/numera-app/numera/internal/backend"
	"github.com/numera-app/numera/internal/config"
	"github.com/numera-app/numera/internal/engine"
	"github.com/numera-app/numera/internal/history"
	"github.com/numera-app/numera/internal/httpapi"
	"github.com/numera-app/numera/internal/notify"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/session"
	"github.com/numera-app/numera/internal/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	journal := history.NewJournal(historyStore)
	defer journal.Close()
	if historyStore != nil {
		log.Printf("task history: postgres")
	} else {
		log.Printf("task history: in-memory only")
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	registry := task.NewRegistry()
	store := notify.NewStore(metrics)
	eng := engine.New(client, registry, journal, metrics)
	consumer := notify.NewConsumer(client, store)
	monitor := engine.NewMonitor(engine.MonitorConfig{
		TaskInterval:    cfg.TaskPollInterval,
		MessageInterval: cfg.MessagePollInterval,
		BackoffMax:      cfg.PollBackoffMax,
	}, eng, consumer, store, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout, metrics)
	sessions.SetHooks(
		func(s *session.Session) {
			log.Printf("session %s opened for %s, monitoring started", s.ID, s.Username)
			monitor.Start()
		},
		func(s *session.Session) {
			log.Printf("session %s ended, monitoring stopped", s.ID)
			monitor.Stop()
			registry.Reset()
			eng.Reset()
			store.Reset()
		},
	)

	api := httpapi.New(cfg, sessions, eng, store, journal, client, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 15*time.Second)

	go func() {
		log.Printf("server listening on %s, backend %s", cfg.BindAddr, cfg.BackendURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	monitor.Stop()
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
