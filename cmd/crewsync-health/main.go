package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/crewbase/crewsync/internal/audit"
	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/config"
	"github.com/crewbase/crewsync/internal/workspace"
)

var (
	app = kingpin.New("crewsync-health", "Health auditor for multi-agent coordination")

	checkCmd     = app.Command("check", "Run health checks once and print the report")
	checkGroups  = checkCmd.Flag("checks", "Check groups to run (processes, logs, network, config, all)").Default("all").Enums("processes", "logs", "network", "config", "all")
	checkVerbose = checkCmd.Flag("verbose", "Also print healthy results").Short('v').Bool()

	watchCmd    = app.Command("watch", "Run health checks on a fixed period")
	watchPeriod = watchCmd.Flag("period", "Time between check runs").Default("5m").Duration()
	watchGroups = watchCmd.Flag("checks", "Check groups to run (processes, logs, network, config, all)").Default("all").Enums("processes", "logs", "network", "config", "all")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	boardStore := board.NewStore(env.BoardPath)
	if _, err := boardStore.Load(); err != nil {
		// The board check reports this as Critical; no reason to bail here.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	gateway := workspace.NewGitGateway(env.GitTimeout)
	auditor := audit.NewAuditor(buildChecks(env, boardStore, gateway), env.CheckInterval, 0, nil, nil)

	switch command {
	case checkCmd.FullCommand():
		report := auditor.RunChecks(context.Background(), selectKinds(*checkGroups))
		printReport(report, *checkVerbose)
		if report.Overall == audit.Critical {
			os.Exit(1)
		}

	case watchCmd.FullCommand():
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		runWatch(ctx, auditor, selectKinds(*watchGroups), *watchPeriod)
	}
}

func runWatch(ctx context.Context, auditor *audit.Auditor, kinds map[audit.Kind]struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	report := auditor.RunChecks(ctx, kinds)
	printReport(report, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := auditor.RunChecks(ctx, kinds)
			fmt.Println()
			printReport(report, true)
		}
	}
}

// selectKinds maps the CLI group names to check kinds. "all" (or no
// selection) returns nil, which runs everything.
func selectKinds(groups []string) map[audit.Kind]struct{} {
	kinds := make(map[audit.Kind]struct{})
	for _, group := range groups {
		switch group {
		case "all":
			return nil
		case "processes":
			kinds[audit.KindProcesses] = struct{}{}
		case "logs":
			kinds[audit.KindLogs] = struct{}{}
		case "network":
			kinds[audit.KindNetwork] = struct{}{}
		case "config":
			kinds[audit.KindConfig] = struct{}{}
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	return kinds
}

var statusColors = map[audit.HealthStatus]*color.Color{
	audit.Healthy:  color.New(color.FgGreen),
	audit.Unknown:  color.New(color.FgHiBlack),
	audit.Warning:  color.New(color.FgYellow),
	audit.Critical: color.New(color.FgRed, color.Bold),
}

func printReport(report *audit.Report, verbose bool) {
	fmt.Printf("Health report (%s)\n", report.GeneratedAt.Format(time.RFC3339))

	results := make([]audit.CheckResult, len(report.Results))
	copy(results, report.Results)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Component < results[j].Component })

	shown := 0
	for _, r := range results {
		if !verbose && r.Status == audit.Healthy {
			continue
		}
		shown++
		c, ok := statusColors[r.Status]
		if !ok {
			c = color.New()
		}
		fmt.Printf("  %-10s %-24s %s\n", c.Sprint(r.Status.String()), r.Component, r.Message)
	}
	if shown == 0 {
		fmt.Println("  all components healthy")
	}

	overall := statusColors[report.Overall]
	fmt.Printf("Overall: %s\n", overall.Sprint(report.Overall.String()))
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
		&audit.FileCheck{
			Component: "journal",
			Path:      env.JournalPath,
			Freshness: 0,
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
		&audit.NetworkCheck{
			Component: "server-endpoint",
			Addr:      fmt.Sprintf("%s:%s", hostOrLocal(env.HTTPHost), env.HTTPPort),
		},
		&audit.ConfigCheck{
			Component: "config",
			Validate:  env.Validate,
		},
	}
}

func hostOrLocal(host string) string {
	if host == "" {
		return "127.0.0.1"
	}
	return host
}
