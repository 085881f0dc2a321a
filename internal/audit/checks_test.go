package audit

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewsync/internal/board"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessCheck_MissingPIDFile(t *testing.T) {
	c := &ProcessCheck{Component: "server", PIDFile: filepath.Join(t.TempDir(), "absent.pid")}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Critical, results[0].Status)
}

func TestProcessCheck_GarbagePIDFile(t *testing.T) {
	c := &ProcessCheck{Component: "server", PIDFile: writeFile(t, "server.pid", "not a number")}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Critical, results[0].Status)
}

func TestProcessCheck_OwnProcessIsRunning(t *testing.T) {
	// The test process itself is the one process guaranteed to be alive.
	c := &ProcessCheck{Component: "server", PIDFile: writeFile(t, "server.pid", fmt.Sprintf("%d\n", os.Getpid()))}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Healthy, results[0].Status)
}

func TestProcessCheck_ProbeParseFailure(t *testing.T) {
	c := &ProcessCheck{
		Component:    "server",
		PIDFile:      writeFile(t, "server.pid", fmt.Sprintf("%d", os.Getpid())),
		ProbeCommand: "echo ${unclosed",
	}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Unknown, results[0].Status)
}

func TestFileCheck(t *testing.T) {
	t.Run("missing file is critical", func(t *testing.T) {
		c := &FileCheck{Component: "journal", Path: filepath.Join(t.TempDir(), "absent.md")}
		results := c.Run(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, Critical, results[0].Status)
	})

	t.Run("fresh file is healthy", func(t *testing.T) {
		c := &FileCheck{Component: "journal", Path: writeFile(t, "journal.md", "x"), Freshness: time.Hour}
		results := c.Run(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, Healthy, results[0].Status)
	})

	t.Run("old file is a warning", func(t *testing.T) {
		path := writeFile(t, "journal.md", "x")
		old := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(path, old, old))

		c := &FileCheck{Component: "journal", Path: path, Freshness: time.Hour}
		results := c.Run(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, Warning, results[0].Status)
	})

	t.Run("zero freshness disables the age rule", func(t *testing.T) {
		path := writeFile(t, "journal.md", "x")
		old := time.Now().Add(-240 * time.Hour)
		require.NoError(t, os.Chtimes(path, old, old))

		c := &FileCheck{Component: "journal", Path: path}
		results := c.Run(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, Healthy, results[0].Status)
	})
}

func TestBoardCheck_LoadErrorIsCritical(t *testing.T) {
	path := writeFile(t, "board.yaml", "tasks: [{{")
	store := board.NewStore(path)
	_, _ = store.Load()

	c := &BoardCheck{Store: store, Freshness: time.Hour}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Critical, results[0].Status)
}

func TestBoardCheck_ValidBoardIsHealthy(t *testing.T) {
	path := writeFile(t, "board.yaml", "tasks: []\n")
	store := board.NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	c := &BoardCheck{Store: store, Freshness: time.Hour}
	results := c.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, Healthy, results[0].Status)
	assert.Equal(t, "board/invariants", results[1].Component)
	assert.Equal(t, Healthy, results[1].Status)
}

func TestBoardCheck_InvariantBreachIsWarning(t *testing.T) {
	path := writeFile(t, "board.yaml", `
tasks:
  - id: T1
    status: IN_PROGRESS
  - id: T2
    status: IN_PROGRESS
    assigned_agent: builder
  - id: T3
    status: IN_PROGRESS
    assigned_agent: builder
`)
	store := board.NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	c := &BoardCheck{Store: store, Freshness: time.Hour}
	results := c.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, Warning, results[1].Status)
	assert.Contains(t, results[1].Message, "T1")
	assert.Contains(t, results[1].Message, "builder")
}

func TestStaleTaskCheck(t *testing.T) {
	now := time.Now()
	path := writeFile(t, "board.yaml", fmt.Sprintf(`
tasks:
  - id: T1
    status: IN_PROGRESS
    updated_at: %s
  - id: T2
    status: DONE
    updated_at: %s
`,
		now.Add(-48*time.Hour).Format(time.RFC3339),
		now.Add(-48*time.Hour).Format(time.RFC3339),
	))
	store := board.NewStore(path)
	_, err := store.Load()
	require.NoError(t, err)

	c := &StaleTaskCheck{Store: store, Threshold: 24 * time.Hour, Now: func() time.Time { return now }}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Warning, results[0].Status)
	assert.Contains(t, results[0].Message, "T1")
	assert.NotContains(t, results[0].Message, "T2")
}

func TestStaleTaskCheck_NoSnapshotIsUnknown(t *testing.T) {
	store := board.NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	c := &StaleTaskCheck{Store: store, Threshold: time.Hour}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Unknown, results[0].Status)
}

func TestNetworkCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := &NetworkCheck{Component: "endpoint", Addr: ln.Addr().String(), Timeout: time.Second}
	results := c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Healthy, results[0].Status)

	ln.Close()
	results = c.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Critical, results[0].Status)
}

func TestConfigCheck(t *testing.T) {
	ok := &ConfigCheck{Component: "config", Validate: func() error { return nil }}
	results := ok.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Healthy, results[0].Status)

	bad := &ConfigCheck{Component: "config", Validate: func() error { return fmt.Errorf("API key is not set") }}
	results = bad.Run(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, Critical, results[0].Status)
	assert.Equal(t, "API key is not set", results[0].Message)
}
