package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/crewbase/crewsync/pkg/cerr"
)

// Provisioner creates and removes isolated agent workspaces as git worktrees
// of one shared repository. Each agent gets its own working directory and
// branch while the object store stays shared.
type Provisioner struct {
	gateway       *GitGateway
	repoPath      string
	workspacesDir string
}

func NewProvisioner(gateway *GitGateway, repoPath, workspacesDir string) (*Provisioner, error) {
	if workspacesDir == "" {
		workspacesDir = filepath.Join(repoPath, ".crewsync", "workspaces")
	}
	if err := os.MkdirAll(workspacesDir, 0o755); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to create workspaces directory", err)
	}
	return &Provisioner{
		gateway:       gateway,
		repoPath:      repoPath,
		workspacesDir: workspacesDir,
	}, nil
}

// Provision creates a worktree for the agent on its own branch and returns
// the workspace path. Provisioning an already existing workspace is a no-op
// returning the existing path.
func (p *Provisioner) Provision(ctx context.Context, agentID string) (string, error) {
	path := filepath.Join(p.workspacesDir, agentID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	branch := BranchName(agentID)
	unlock := p.gateway.lockRepo(ctx, p.repoPath)
	defer unlock()

	if _, err := p.gateway.runGit(ctx, p.repoPath, "worktree", "add", "-b", branch, path); err != nil {
		// The branch may survive an earlier removed worktree; retry on it.
		if _, retryErr := p.gateway.runGit(ctx, p.repoPath, "worktree", "add", path, branch); retryErr != nil {
			return "", err
		}
	}
	return path, nil
}

// Remove deletes the agent's worktree. The branch is kept so committed work
// stays reachable after the workspace is gone.
func (p *Provisioner) Remove(ctx context.Context, agentID string) error {
	path := filepath.Join(p.workspacesDir, agentID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("workspace for agent %s does not exist", agentID), err)
	}

	unlock := p.gateway.lockRepo(ctx, p.repoPath)
	defer unlock()

	if _, err := p.gateway.runGit(ctx, p.repoPath, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	// Drop stale administrative entries left by manually deleted worktrees.
	_, _ = p.gateway.runGit(ctx, p.repoPath, "worktree", "prune")
	return nil
}

// List returns the workspace paths currently provisioned under this
// provisioner's directory.
func (p *Provisioner) List(ctx context.Context) ([]string, error) {
	out, err := p.gateway.runGit(ctx, p.repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		path, ok := strings.CutPrefix(line, "worktree ")
		if !ok {
			continue
		}
		if strings.HasPrefix(path, p.workspacesDir+string(filepath.Separator)) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

var branchUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// BranchName derives a valid git branch name for an agent's workspace.
func BranchName(agentID string) string {
	name := branchUnsafe.ReplaceAllString(agentID, "-")
	name = strings.Trim(name, "-/.")
	if name == "" {
		name = "agent"
	}
	return "crewsync/" + name
}
