package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
)

func setup(t *testing.T, initial string) (*Coordinator, string, <-chan *event.Change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	bus := eventbus.New[*event.Change]()
	_, ch := bus.Subscribe(16)
	return New(board.NewStore(path), bus), path, ch
}

func drain(ch <-chan *event.Change) []*event.Change {
	var out []*event.Change
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestCoordinator_FirstLoadSeedsBaselineSilently(t *testing.T) {
	coord, _, ch := setup(t, `
tasks:
  - id: T1
    status: IN_PROGRESS
`)
	coord.Reload(context.Background())

	assert.Empty(t, drain(ch))
	require.NotNil(t, coord.Snapshot())
}

func TestCoordinator_PublishesDiffOnChange(t *testing.T) {
	coord, path, ch := setup(t, `
tasks:
  - id: T1
    status: IN_PROGRESS
    assigned_agent: agent-1
`)
	coord.Reload(context.Background())
	drain(ch)

	require.NoError(t, os.WriteFile(path, []byte(`
tasks:
  - id: T1
    status: DONE
    assigned_agent: agent-1
`), 0o644))
	coord.Reload(context.Background())

	changes := drain(ch)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskCompleted, changes[0].Type)
	assert.Equal(t, "T1", changes[0].TaskID)
}

func TestCoordinator_ParseFailureKeepsBaseline(t *testing.T) {
	coord, path, ch := setup(t, `
tasks:
  - id: T1
    status: TODO
`)
	coord.Reload(context.Background())
	drain(ch)

	// A malformed write publishes nothing and keeps the baseline.
	require.NoError(t, os.WriteFile(path, []byte("tasks: [{{"), 0o644))
	coord.Reload(context.Background())
	assert.Empty(t, drain(ch))

	// The recovery diff runs against the pre-failure baseline, so the
	// intervening change is still reported exactly once.
	require.NoError(t, os.WriteFile(path, []byte(`
tasks:
  - id: T1
    status: BLOCKED
    blockers:
      - waiting on credentials
`), 0o644))
	coord.Reload(context.Background())

	changes := drain(ch)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskBlocked, changes[0].Type)
	assert.Equal(t, event.SeverityCritical, changes[0].Severity)
}
