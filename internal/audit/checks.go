package audit

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/shell"

	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/workspace"
	"github.com/crewbase/crewsync/pkg/shellformat"
)

// Kind groups checks for CLI selection.
type Kind string

const (
	KindProcesses Kind = "processes"
	KindLogs      Kind = "logs"
	KindNetwork   Kind = "network"
	KindConfig    Kind = "config"
)

// Check inspects one monitored aspect of the system. Run returns one result
// per inspected item so reports enumerate everything that was checked.
type Check interface {
	Name() string
	Kind() Kind
	Run(ctx context.Context) []CheckResult
}

// ProcessCheck verifies that a supervised process is alive via its PID
// record, optionally running a probe command as a secondary signal.
type ProcessCheck struct {
	Component string
	PIDFile   string
	// ProbeCommand is an optional shell one-liner (e.g. "pgrep -f serverd")
	// whose zero exit confirms liveness. Parsed with shell word-splitting
	// rules, not handed to a shell.
	ProbeCommand string
	ProbeTimeout time.Duration
}

func (c *ProcessCheck) Name() string { return c.Component }
func (c *ProcessCheck) Kind() Kind   { return KindProcesses }

func (c *ProcessCheck) Run(ctx context.Context) []CheckResult {
	data, err := os.ReadFile(c.PIDFile)
	if err != nil {
		return []CheckResult{{
			Component: c.Component,
			Status:    Critical,
			Message:   fmt.Sprintf("PID record %s missing: %v", c.PIDFile, err),
		}}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return []CheckResult{{
			Component: c.Component,
			Status:    Critical,
			Message:   fmt.Sprintf("PID record %s does not parse: %v", c.PIDFile, err),
		}}
	}

	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(syscall.Signal(0))
	}
	if err != nil {
		return []CheckResult{{
			Component: c.Component,
			Status:    Critical,
			Message:   fmt.Sprintf("process %d is not running", pid),
			Details:   map[string]string{"pid": strconv.Itoa(pid)},
		}}
	}

	if c.ProbeCommand != "" {
		if result := c.probe(ctx, pid); result != nil {
			return []CheckResult{*result}
		}
	}

	return []CheckResult{{
		Component: c.Component,
		Status:    Healthy,
		Message:   fmt.Sprintf("process %d is running", pid),
		Details:   map[string]string{"pid": strconv.Itoa(pid)},
	}}
}

func (c *ProcessCheck) probe(ctx context.Context, pid int) *CheckResult {
	fields, err := shell.Fields(c.ProbeCommand, nil)
	if err != nil || len(fields) == 0 {
		return &CheckResult{
			Component: c.Component,
			Status:    Unknown,
			Message:   fmt.Sprintf("probe command does not parse: %v", err),
		}
	}
	timeout := c.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	if err := cmd.Run(); err != nil {
		return &CheckResult{
			Component: c.Component,
			Status:    Warning,
			Message:   fmt.Sprintf("process %d is running but probe failed: %v", pid, err),
			Details:   map[string]string{"probe": shellformat.Format(c.ProbeCommand)},
		}
	}
	return nil
}

// BoardCheck verifies the canonical board document: parse validity
// (Critical on failure, reusing the store's last load state), recency, and
// the soft board invariants.
type BoardCheck struct {
	Store     *board.Store
	Freshness time.Duration
}

func (c *BoardCheck) Name() string { return "board" }
func (c *BoardCheck) Kind() Kind   { return KindLogs }

func (c *BoardCheck) Run(context.Context) []CheckResult {
	if err := c.Store.LoadError(); err != nil {
		return []CheckResult{{
			Component: c.Name(),
			Status:    Critical,
			Message:   err.Error(),
			Details:   map[string]string{"path": c.Store.Path()},
		}}
	}
	results := []CheckResult{fileFreshness(c.Name(), c.Store.Path(), c.Freshness)}
	if snap := c.Store.LastGood(); snap != nil {
		results = append(results, invariantResult(snap))
	}
	return results
}

func invariantResult(snap *board.Snapshot) CheckResult {
	violations := snap.Violations()
	if len(violations) == 0 {
		return CheckResult{
			Component: "board/invariants",
			Status:    Healthy,
			Message:   "board invariants hold",
		}
	}
	return CheckResult{
		Component: "board/invariants",
		Status:    Warning,
		Message:   strings.Join(violations, "; "),
	}
}

// FileCheck verifies that a canonical file exists and has been modified
// within the freshness threshold.
type FileCheck struct {
	Component string
	Path      string
	Freshness time.Duration
}

func (c *FileCheck) Name() string { return c.Component }
func (c *FileCheck) Kind() Kind   { return KindLogs }

func (c *FileCheck) Run(context.Context) []CheckResult {
	return []CheckResult{fileFreshness(c.Component, c.Path, c.Freshness)}
}

func fileFreshness(component, path string, freshness time.Duration) CheckResult {
	info, err := os.Stat(path)
	if err != nil {
		return CheckResult{
			Component: component,
			Status:    Critical,
			Message:   fmt.Sprintf("%s does not exist: %v", path, err),
		}
	}
	age := time.Since(info.ModTime())
	if freshness > 0 && age > freshness {
		return CheckResult{
			Component: component,
			Status:    Warning,
			Message:   fmt.Sprintf("%s unmodified for %s (threshold %s)", path, age.Round(time.Minute), freshness),
			Details:   map[string]string{"path": path},
		}
	}
	return CheckResult{
		Component: component,
		Status:    Healthy,
		Message:   fmt.Sprintf("%s modified %s ago", path, age.Round(time.Second)),
	}
}

// WorkspaceCheck inspects every agent workspace: existence, number of
// uncommitted files, and time since the last commit. One result per agent,
// failures isolated per agent.
type WorkspaceCheck struct {
	Gateway        workspace.Gateway
	Agents         func() []*board.Agent
	MaxUncommitted int
	MaxCommitAge   time.Duration
}

func (c *WorkspaceCheck) Name() string { return "workspaces" }
func (c *WorkspaceCheck) Kind() Kind   { return KindProcesses }

func (c *WorkspaceCheck) Run(ctx context.Context) []CheckResult {
	agents := c.Agents()
	if len(agents) == 0 {
		return []CheckResult{{
			Component: c.Name(),
			Status:    Healthy,
			Message:   "no agent workspaces registered",
		}}
	}

	results := make([]CheckResult, 0, len(agents))
	for _, agent := range agents {
		results = append(results, c.checkAgent(ctx, agent))
	}
	return results
}

func (c *WorkspaceCheck) checkAgent(ctx context.Context, agent *board.Agent) CheckResult {
	component := "workspace/" + agent.ID

	if !c.Gateway.Exists(agent.Workspace) {
		return CheckResult{
			Component: component,
			Status:    Critical,
			Message:   fmt.Sprintf("workspace %s does not exist", agent.Workspace),
		}
	}

	mods, err := c.Gateway.LocalModifications(ctx, agent.Workspace)
	if err != nil {
		return CheckResult{
			Component: component,
			Status:    Unknown,
			Message:   fmt.Sprintf("could not inspect workspace: %v", err),
		}
	}
	if c.MaxUncommitted > 0 && len(mods) > c.MaxUncommitted {
		return CheckResult{
			Component: component,
			Status:    Warning,
			Message:   fmt.Sprintf("%d uncommitted files (threshold %d)", len(mods), c.MaxUncommitted),
			Details:   map[string]string{"uncommitted": strconv.Itoa(len(mods))},
		}
	}

	history, err := c.Gateway.RecentHistory(ctx, agent.Workspace, 1)
	if err != nil {
		return CheckResult{
			Component: component,
			Status:    Unknown,
			Message:   fmt.Sprintf("could not read history: %v", err),
		}
	}
	if len(history) > 0 && c.MaxCommitAge > 0 {
		age := time.Since(history[0].When)
		if age > c.MaxCommitAge {
			return CheckResult{
				Component: component,
				Status:    Warning,
				Message:   fmt.Sprintf("no commit for %s (threshold %s)", age.Round(time.Minute), c.MaxCommitAge),
				Details:   map[string]string{"last_commit": history[0].Hash},
			}
		}
	}

	return CheckResult{
		Component: component,
		Status:    Healthy,
		Message:   fmt.Sprintf("workspace %s is healthy", agent.Workspace),
	}
}

// StaleTaskCheck flags tasks stuck in an active status past the threshold.
type StaleTaskCheck struct {
	Store     *board.Store
	Threshold time.Duration
	Now       func() time.Time
}

func (c *StaleTaskCheck) Name() string { return "stale-tasks" }
func (c *StaleTaskCheck) Kind() Kind   { return KindLogs }

func (c *StaleTaskCheck) Run(context.Context) []CheckResult {
	snap := c.Store.LastGood()
	if snap == nil {
		return []CheckResult{{
			Component: c.Name(),
			Status:    Unknown,
			Message:   "no board snapshot available yet",
		}}
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	stale := StaleTasks(now, snap, c.Threshold)
	if len(stale) == 0 {
		return []CheckResult{{
			Component: c.Name(),
			Status:    Healthy,
			Message:   "no stale tasks",
		}}
	}

	ids := make([]string, 0, len(stale))
	for _, task := range stale {
		ids = append(ids, task.ID)
	}
	return []CheckResult{{
		Component: c.Name(),
		Status:    Warning,
		Message:   fmt.Sprintf("%d task(s) inactive past %s: %s", len(stale), c.Threshold, strings.Join(ids, ", ")),
		Details:   map[string]string{"task_ids": strings.Join(ids, ",")},
	}}
}

// NetworkCheck verifies that the coordination server endpoint accepts TCP
// connections.
type NetworkCheck struct {
	Component string
	Addr      string
	Timeout   time.Duration
}

func (c *NetworkCheck) Name() string { return c.Component }
func (c *NetworkCheck) Kind() Kind   { return KindNetwork }

func (c *NetworkCheck) Run(context.Context) []CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return []CheckResult{{
			Component: c.Component,
			Status:    Critical,
			Message:   fmt.Sprintf("cannot reach %s: %v", c.Addr, err),
		}}
	}
	_ = conn.Close()
	return []CheckResult{{
		Component: c.Component,
		Status:    Healthy,
		Message:   fmt.Sprintf("%s is reachable", c.Addr),
	}}
}

// ConfigCheck validates that the required configuration is present.
type ConfigCheck struct {
	Component string
	Validate  func() error
}

func (c *ConfigCheck) Name() string { return c.Component }
func (c *ConfigCheck) Kind() Kind   { return KindConfig }

func (c *ConfigCheck) Run(context.Context) []CheckResult {
	if err := c.Validate(); err != nil {
		return []CheckResult{{
			Component: c.Component,
			Status:    Critical,
			Message:   err.Error(),
		}}
	}
	return []CheckResult{{
		Component: c.Component,
		Status:    Healthy,
		Message:   "configuration is valid",
	}}
}
