package coordinator

import (
	"context"
	"log/slog"

	"github.com/crewbase/crewsync/internal/board"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
)

// Coordinator is the reload pipeline: on each trigger it reloads the board,
// diffs against the previous snapshot, and publishes the resulting changes.
// A failed reload publishes nothing; the previous snapshot stays current so
// a later successful reload diffs against real state, not a gap.
type Coordinator struct {
	store *board.Store
	bus   *eventbus.Bus[*event.Change]

	prev *board.Snapshot
}

func New(store *board.Store, bus *eventbus.Bus[*event.Change]) *Coordinator {
	return &Coordinator{store: store, bus: bus}
}

// Snapshot returns the snapshot of the most recent successful reload.
func (c *Coordinator) Snapshot() *board.Snapshot {
	return c.store.LastGood()
}

// Reload runs one pipeline cycle. The very first successful load seeds the
// baseline without emitting events: startup state is not a change.
func (c *Coordinator) Reload(ctx context.Context) {
	snap, err := c.store.Load()
	if err != nil {
		slog.ErrorContext(ctx, "board reload failed, keeping previous snapshot", "error", err)
		return
	}

	if c.prev == nil {
		c.prev = snap
		slog.InfoContext(ctx, "board baseline captured", "tasks", len(snap.Tasks), "agents", len(snap.Agents))
		return
	}

	changes := board.Diff(c.prev, snap)
	c.prev = snap
	if len(changes) == 0 {
		slog.DebugContext(ctx, "board reloaded, no changes")
		return
	}

	slog.InfoContext(ctx, "board changes detected", "count", len(changes))
	for _, change := range changes {
		slog.InfoContext(ctx, "change",
			"type", string(change.Type),
			"task_id", change.TaskID,
			"agent_id", change.AgentID,
			"severity", change.Severity.String(),
		)
		c.bus.Publish(change)
	}
}
