// Command ateamd serves the A-Team orchestration kernel: the board
// engine, claim manager, mission lifecycle, event broker, hook ingestor,
// and activity log behind an HTTP/JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ateam/orchestrator/internal/activity"
	"github.com/ateam/orchestrator/internal/boardapi"
	"github.com/ateam/orchestrator/internal/broker"
	"github.com/ateam/orchestrator/internal/claims"
	"github.com/ateam/orchestrator/internal/hooks"
	"github.com/ateam/orchestrator/internal/missions"
	"github.com/ateam/orchestrator/internal/store"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var (
		dbPath      = flag.String("db", "ateam.db", "SQLite database path")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		markDir     = flag.String("mark-dir", ".", "Directory for the mission-active marker file")
		hookRetain  = flag.Duration("hook-retention", 0, "Prune hook events older than this on startup; 0 disables")
		showVersion = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("ateamd %s (commit: %s)\n", version, gitCommit)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := store.Open(*dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.NewStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evBroker := broker.New(ctx)
	claimMgr := claims.New(st)
	missionEngine := missions.New(st, *markDir)
	activityLog := activity.New(st)
	hookIngestor := hooks.New(st)

	if *hookRetain > 0 {
		if projects, err := st.ListProjects(); err != nil {
			logger.Warn("failed to list projects for hook retention sweep", "error", err)
		} else {
			cutoff := time.Now().Add(-*hookRetain)
			var g errgroup.Group
			for _, p := range projects {
				projectID := p.ID
				g.Go(func() error {
					_, err := hookIngestor.Prune(projectID, cutoff)
					return err
				})
			}
			if err := g.Wait(); err != nil {
				logger.Warn("hook retention sweep failed", "error", err)
			}
		}
	}

	server := boardapi.NewServer(boardapi.Config{
		Store:    st,
		Claims:   claimMgr,
		Missions: missionEngine,
		Activity: activityLog,
		Hooks:    hookIngestor,
		Broker:   evBroker,
		Logger:   logger,
	})

	httpServer := boardapi.NewHTTPServer(*addr, server)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("ateamd listening", "addr", *addr, "db", *dbPath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
