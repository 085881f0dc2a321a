package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crewbase/crewsync/pkg/cerr"
)

// DefaultCommandTimeout bounds every git invocation. A hung git process
// surfaces as a Timeout error, never as a caller-visible deadlock.
const DefaultCommandTimeout = 30 * time.Second

// Commit is one entry of a workspace's recent history.
type Commit struct {
	Hash    string
	Subject string
	When    time.Time
}

// Gateway wraps all filesystem and version-control operations on isolated
// agent workspaces. Concentrating the git plumbing here means locking,
// timeouts and error translation are implemented once and mocked once.
type Gateway interface {
	Exists(workspace string) bool
	ReadFile(ctx context.Context, workspace, relPath string) ([]byte, error)
	WriteFile(ctx context.Context, workspace, relPath string, data []byte) error
	LocalModifications(ctx context.Context, workspace string) (map[string]struct{}, error)
	RecentHistory(ctx context.Context, workspace string, limit int) ([]Commit, error)
	StageAndCommit(ctx context.Context, workspace string, relPaths []string, message string) (string, error)
}

// ErrNothingToCommit is reported (wrapped in a cerr.VersionControl error)
// when StageAndCommit finds no staged changes.
var ErrNothingToCommit = fmt.Errorf("nothing to commit")

// GitGateway implements Gateway by shelling out to git. Operations against
// workspaces that share an underlying repository (worktrees share the object
// store) are serialized on a per-repository mutex: concurrent writes against
// a shared object store are unsafe, so calls queue rather than fail.
type GitGateway struct {
	timeout time.Duration

	mu        sync.Mutex
	repoLocks map[string]*sync.Mutex
	repoKeys  map[string]string // workspace path -> resolved repo identity
}

func NewGitGateway(timeout time.Duration) *GitGateway {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &GitGateway{
		timeout:   timeout,
		repoLocks: make(map[string]*sync.Mutex),
		repoKeys:  make(map[string]string),
	}
}

func (g *GitGateway) Exists(workspace string) bool {
	info, err := os.Stat(workspace)
	return err == nil && info.IsDir()
}

func (g *GitGateway) ReadFile(_ context.Context, workspace, relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(workspace, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("%s not found in workspace", relPath), err)
		}
		return nil, cerr.NewError(cerr.Internal, fmt.Sprintf("failed to read %s", relPath), err)
	}
	return data, nil
}

func (g *GitGateway) WriteFile(_ context.Context, workspace, relPath string, data []byte) error {
	full := filepath.Join(workspace, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to create directory for %s", relPath), err)
	}
	// Temp file + rename so an interrupted sync never leaves a
	// half-written coordination document.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to write %s", relPath), err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to replace %s", relPath), err)
	}
	return nil
}

func (g *GitGateway) LocalModifications(ctx context.Context, workspace string) (map[string]struct{}, error) {
	unlock := g.lockRepo(ctx, workspace)
	defer unlock()

	out, err := g.runGit(ctx, workspace, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

func (g *GitGateway) RecentHistory(ctx context.Context, workspace string, limit int) ([]Commit, error) {
	unlock := g.lockRepo(ctx, workspace)
	defer unlock()

	out, err := g.runGit(ctx, workspace, "log", "-n", strconv.Itoa(limit), "--pretty=format:%H%x09%ct%x09%s")
	if err != nil {
		// A repository with no commits yet has no history, not an error.
		if strings.Contains(err.Error(), "does not have any commits") {
			return nil, nil
		}
		return nil, err
	}
	return parseHistory(out), nil
}

func (g *GitGateway) StageAndCommit(ctx context.Context, workspace string, relPaths []string, message string) (string, error) {
	if len(relPaths) == 0 {
		return "", cerr.NewError(cerr.VersionControl, "nothing to commit", ErrNothingToCommit)
	}

	unlock := g.lockRepo(ctx, workspace)
	defer unlock()

	args := append([]string{"add", "--"}, relPaths...)
	if _, err := g.runGit(ctx, workspace, args...); err != nil {
		return "", err
	}

	// Exit status 0 means the index matches HEAD: nothing staged.
	if _, err := g.runGit(ctx, workspace, "diff", "--cached", "--quiet", "--"); err == nil {
		return "", cerr.NewError(cerr.VersionControl, "nothing to commit", ErrNothingToCommit)
	}

	if _, err := g.runGit(ctx, workspace, "commit", "-m", message); err != nil {
		return "", err
	}

	hash, err := g.runGit(ctx, workspace, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// lockRepo acquires the mutex of the underlying repository that workspace
// belongs to and returns the release function. Worktrees of the same
// repository resolve to the same lock.
func (g *GitGateway) lockRepo(ctx context.Context, workspace string) func() {
	key := g.repoKey(ctx, workspace)

	g.mu.Lock()
	lock, ok := g.repoLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.repoLocks[key] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// repoKey resolves (and caches) the identity of the repository backing a
// workspace: the git common dir, which worktrees of one repository share.
func (g *GitGateway) repoKey(ctx context.Context, workspace string) string {
	g.mu.Lock()
	if key, ok := g.repoKeys[workspace]; ok {
		g.mu.Unlock()
		return key
	}
	g.mu.Unlock()

	key := workspace
	if out, err := g.runGit(ctx, workspace, "rev-parse", "--git-common-dir"); err == nil {
		dir := strings.TrimSpace(out)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workspace, dir)
		}
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			dir = resolved
		}
		key = dir
	}

	g.mu.Lock()
	g.repoKeys[workspace] = key
	g.mu.Unlock()
	return key
}

// runGit executes one git command in dir with a bounded wait and returns
// combined stdout. Failures are translated to coded errors.
func (g *GitGateway) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", cerr.NewError(cerr.Timeout, fmt.Sprintf("git %s timed out in %s", args[0], dir), ctx.Err())
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", cerr.NewError(cerr.VersionControl, fmt.Sprintf("git %s failed in %s: %s", args[0], dir, msg), err)
	}
	return stdout.String(), nil
}

// parsePorcelain extracts the set of modified paths from
// `git status --porcelain` output. Renames ("R  old -> new") report the new
// path, which is the one a sync write would collide with.
func parsePorcelain(out string) map[string]struct{} {
	mods := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if idx := strings.LastIndex(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)
		if path != "" {
			mods[path] = struct{}{}
		}
	}
	return mods
}

// parseHistory parses `git log --pretty=format:%H%x09%ct%x09%s` output.
func parseHistory(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		epoch, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Subject: parts[2],
			When:    time.Unix(epoch, 0),
		})
	}
	return commits
}
