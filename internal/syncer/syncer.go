package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/workspace"
	"github.com/crewbase/crewsync/pkg/cerr"
)

// OutcomeStatus is the per-(agent, document) result of a sync pass.
type OutcomeStatus string

const (
	// Synced: the canonical bytes were written and staged for commit.
	Synced OutcomeStatus = "synced"
	// Conflict: the agent modified its local copy since the last value this
	// system wrote. Terminal, human-resolvable; the write is skipped
	// entirely and never partially applied.
	Conflict OutcomeStatus = "conflict"
	// Errored: the write (or a prerequisite) failed; Reason explains why.
	Errored OutcomeStatus = "error"
)

// Outcome reports what happened to one document in one agent workspace.
type Outcome struct {
	Path   string
	Status OutcomeStatus
	Reason string
	// Diff is a unified diff of local vs canonical content, attached to
	// conflicts so a human can resolve them without shelling into the
	// workspace.
	Diff string
}

// Result is the per-agent outcome list of a sync pass. Every document is
// enumerated with an explicit status; absence of data is never success.
type Result struct {
	AgentID   string
	Outcomes  []Outcome
	CommitRef string
}

// Document is one canonical coordination file to propagate.
type Document struct {
	RelPath string
	Data    []byte
}

// Synchronizer copies canonical coordination documents into each registered
// agent workspace, refusing to overwrite local modifications, and commits
// whatever was written.
type Synchronizer struct {
	gateway       workspace.Gateway
	commitMessage string
}

func New(gateway workspace.Gateway, commitMessage string) *Synchronizer {
	if commitMessage == "" {
		commitMessage = "chore: sync coordination documents"
	}
	return &Synchronizer{
		gateway:       gateway,
		commitMessage: commitMessage,
	}
}

// Sync propagates docs into every agent workspace. Failures are isolated:
// an error for one agent or one document never prevents processing of the
// rest. Safe to call repeatedly; identical content produces no new commits.
func (s *Synchronizer) Sync(ctx context.Context, docs []Document, agents []*board.Agent) []Result {
	results := make([]Result, 0, len(agents))
	for _, agent := range agents {
		results = append(results, s.syncAgent(ctx, docs, agent))
	}
	return results
}

func (s *Synchronizer) syncAgent(ctx context.Context, docs []Document, agent *board.Agent) Result {
	result := Result{AgentID: agent.ID}

	if !s.gateway.Exists(agent.Workspace) {
		err := cerr.NewError(cerr.WorkspaceMissing, fmt.Sprintf("workspace %s does not exist", agent.Workspace), nil)
		slog.Warn("sync: skipping agent", "agent_id", agent.ID, "error", err)
		for _, doc := range docs {
			result.Outcomes = append(result.Outcomes, Outcome{Path: doc.RelPath, Status: Errored, Reason: err.Error()})
		}
		return result
	}

	mods, err := s.gateway.LocalModifications(ctx, agent.Workspace)
	if err != nil {
		slog.Error("sync: failed to list local modifications", "agent_id", agent.ID, "error", err)
		for _, doc := range docs {
			result.Outcomes = append(result.Outcomes, Outcome{Path: doc.RelPath, Status: Errored, Reason: err.Error()})
		}
		return result
	}

	var synced []string
	for _, doc := range docs {
		outcome := s.syncDocument(ctx, agent, doc, mods)
		if outcome.Status == Synced {
			synced = append(synced, doc.RelPath)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	// Commit only when something was written. Re-running sync with no
	// canonical changes stages identical bytes, which git reports as
	// nothing to commit; that is the idempotent no-op path.
	if len(synced) > 0 {
		sort.Strings(synced)
		ref, err := s.gateway.StageAndCommit(ctx, agent.Workspace, synced, s.commitMessage)
		switch {
		case err == nil:
			result.CommitRef = ref
			slog.Info("sync: committed coordination documents", "agent_id", agent.ID, "commit", ref, "paths", synced)
		case errors.Is(err, workspace.ErrNothingToCommit):
			slog.Debug("sync: no changes to commit", "agent_id", agent.ID)
		default:
			slog.Error("sync: commit failed", "agent_id", agent.ID, "error", err)
			for i := range result.Outcomes {
				if result.Outcomes[i].Status == Synced {
					result.Outcomes[i].Status = Errored
					result.Outcomes[i].Reason = fmt.Sprintf("commit failed: %v", err)
				}
			}
		}
	}

	return result
}

func (s *Synchronizer) syncDocument(ctx context.Context, agent *board.Agent, doc Document, mods map[string]struct{}) Outcome {
	if _, modified := mods[doc.RelPath]; modified {
		outcome := Outcome{
			Path:   doc.RelPath,
			Status: Conflict,
			Reason: "local copy modified since last sync",
		}
		if local, err := s.gateway.ReadFile(ctx, agent.Workspace, doc.RelPath); err == nil {
			outcome.Diff = unifiedDiff(doc.RelPath, local, doc.Data)
		}
		slog.Warn("sync: conflict, leaving local copy untouched", "agent_id", agent.ID, "path", doc.RelPath)
		return outcome
	}

	if err := s.gateway.WriteFile(ctx, agent.Workspace, doc.RelPath, doc.Data); err != nil {
		return Outcome{Path: doc.RelPath, Status: Errored, Reason: err.Error()}
	}
	return Outcome{Path: doc.RelPath, Status: Synced}
}

func unifiedDiff(path string, local, canonical []byte) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(local)),
		B:        difflib.SplitLines(string(canonical)),
		FromFile: path + " (local)",
		ToFile:   path + " (canonical)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}

// Runner drives periodic sync passes until the context is cancelled. An
// in-flight pass always finishes before Run returns.
type Runner struct {
	synchronizer *Synchronizer
	interval     time.Duration
	source       func(ctx context.Context) ([]Document, []*board.Agent, error)
	sink         func(results []Result)
}

func NewRunner(s *Synchronizer, interval time.Duration, source func(ctx context.Context) ([]Document, []*board.Agent, error), sink func([]Result)) *Runner {
	return &Runner{
		synchronizer: s,
		interval:     interval,
		source:       source,
		sink:         sink,
	}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("synchronizer started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("synchronizer stopped")
			return
		case <-ticker.C:
			docs, agents, err := r.source(ctx)
			if err != nil {
				slog.Error("sync: failed to gather canonical documents", "error", err)
				continue
			}
			results := r.synchronizer.Sync(ctx, docs, agents)
			if r.sink != nil {
				r.sink(results)
			}
		}
	}
}
