package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/crewbase/crewsync/internal/advisor"
	"github.com/crewbase/crewsync/internal/audit"
	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/config"
	"github.com/crewbase/crewsync/internal/coordinator"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
	"github.com/crewbase/crewsync/internal/journal"
	"github.com/crewbase/crewsync/internal/notify"
	"github.com/crewbase/crewsync/internal/syncer"
	"github.com/crewbase/crewsync/internal/watcher"
	"github.com/crewbase/crewsync/internal/workspace"
	"github.com/crewbase/crewsync/pkg/clog"
	"github.com/crewbase/crewsync/pkg/sentinel"
	"github.com/crewbase/crewsync/pkg/storage"

	server "github.com/crewbase/crewsync/internal"
)

func main() {
	mode := "run"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	switch mode {
	case "run":
		runServer()
	case "sentinel":
		// Supervised mode: the sentinel re-execs this binary with "run" and
		// restarts it on crash or binary replacement.
		sentinel.Run()
	default:
		fmt.Fprintf(os.Stderr, "usage: crewsync-server [run|sentinel]\n")
		os.Exit(1)
	}
}

func runServer() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Store
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3(context.Background(), env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocal(env.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Buses: change events and health reports.
	changeBus := eventbus.New[*event.Change]()
	reportBus := eventbus.New[*audit.Report]()

	boardStore := board.NewStore(env.BoardPath)
	coord := coordinator.New(boardStore, changeBus)

	boardWatcher, err := watcher.New(env.BoardPath, env.Debounce, coord.Reload)
	if err != nil {
		slog.Error("failed to set up board watcher", "error", err)
		os.Exit(1)
	}

	// Workspace sync and provisioning
	gateway := workspace.NewGitGateway(env.GitTimeout)
	provisioner, err := workspace.NewProvisioner(gateway, env.RepoPath, env.WorkspacesDir)
	if err != nil {
		slog.Error("failed to set up workspace provisioner", "error", err)
		os.Exit(1)
	}
	synchronizer := syncer.New(gateway, env.CommitMessage)
	syncRunner := syncer.NewRunner(synchronizer, env.Interval,
		canonicalSource(env.CanonicalDir, boardStore),
		logSyncResults,
	)

	// Notifications
	subscriptionRepo := notify.NewSubscriptionRepository(store)
	sinks := []notify.Notifier{notify.SlogNotifier{}}
	if env.VAPIDEnv.PublicKey != "" && env.VAPIDEnv.PrivateKey != "" {
		sinks = append(sinks, notify.NewWebPushNotifier(notify.VAPIDConfig{
			PublicKey:  env.VAPIDEnv.PublicKey,
			PrivateKey: env.VAPIDEnv.PrivateKey,
			Contact:    env.VAPIDEnv.Contact,
		}, subscriptionRepo))
	}
	notifier := notify.NewMulti(sinks...)

	// Advisor
	adv := advisor.New(notifier, store, advisor.DefaultLogCapacity)
	if err := adv.Restore(context.Background()); err != nil {
		slog.Warn("could not restore suggestion log", "error", err)
	}

	// Auditor
	jrnl := journal.NewAppender(env.JournalPath)
	auditor := audit.NewAuditor(buildChecks(env, boardStore, gateway), env.CheckInterval, env.SummaryInterval, reportBus, jrnl)

	srv := server.NewServer(env, coord, auditor, adv, changeBus, subscriptionRepo, provisioner)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := writePIDFile(env.ServerPIDFile); err != nil {
		slog.Warn("could not write PID file", "path", env.ServerPIDFile, "error", err)
	} else {
		defer os.Remove(env.ServerPIDFile)
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := boardWatcher.Run(ctx); err != nil {
			slog.Error("board watcher error", "error", err)
			cancel()
		}
	})
	wg.Go(func() { syncRunner.Run(ctx) })
	wg.Go(func() { auditor.Run(ctx) })
	wg.Go(func() { adv.Run(ctx, changeBus, reportBus) })
	wg.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
}

// canonicalSource gathers the canonical coordination documents and the
// registered agents for each sync pass.
func canonicalSource(canonicalDir string, boardStore *board.Store) func(ctx context.Context) ([]syncer.Document, []*board.Agent, error) {
	return func(ctx context.Context) ([]syncer.Document, []*board.Agent, error) {
		snap := boardStore.LastGood()
		if snap == nil {
			return nil, nil, fmt.Errorf("no board snapshot available yet")
		}

		var docs []syncer.Document
		err := filepath.WalkDir(canonicalDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(canonicalDir, path)
			if err != nil {
				return err
			}
			docs = append(docs, syncer.Document{RelPath: filepath.ToSlash(rel), Data: data})
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read canonical documents: %w", err)
		}

		return docs, snap.AgentList(), nil
	}
}

func logSyncResults(results []syncer.Result) {
	for _, result := range results {
		for _, outcome := range result.Outcomes {
			switch outcome.Status {
			case syncer.Conflict:
				slog.Warn("sync conflict", "agent_id", result.AgentID, "path", outcome.Path, "diff", outcome.Diff)
			case syncer.Errored:
				slog.Error("sync error", "agent_id", result.AgentID, "path", outcome.Path, "reason", outcome.Reason)
			}
		}
	}
}

func buildChecks(env *config.Env, boardStore *board.Store, gateway workspace.Gateway) []audit.Check {
	return []audit.Check{
		&audit.ProcessCheck{
			Component:    "server",
			PIDFile:      env.ServerPIDFile,
			ProbeCommand: env.ProbeCommand,
		},
		&audit.BoardCheck{
			Store:     boardStore,
			Freshness: env.BoardFreshness,
		},
		&audit.StaleTaskCheck{
			Store:     boardStore,
			Threshold: env.StaleThreshold,
		},
		&audit.WorkspaceCheck{
			Gateway: gateway,
			Agents: func() []*board.Agent {
				snap := boardStore.LastGood()
				if snap == nil {
					return nil
				}
				return snap.AgentList()
			},
			MaxUncommitted: env.MaxUncommitted,
			MaxCommitAge:   env.MaxCommitAge,
		},
		&audit.ConfigCheck{
			Component: "config",
			Validate:  env.Validate,
		},
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}
