package audit

import (
	"time"

	"github.com/crewbase/crewsync/internal/board"
)

// IsStale reports whether a task in an active status has gone without a
// board update for longer than threshold. Pure function of its inputs so
// the rule is testable independently of any clock or scheduler.
func IsStale(now time.Time, task *board.Task, threshold time.Duration) bool {
	if !task.Status.Active() {
		return false
	}
	if task.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(task.UpdatedAt) > threshold
}

// StaleTasks filters the snapshot's tasks through IsStale.
func StaleTasks(now time.Time, snap *board.Snapshot, threshold time.Duration) []*board.Task {
	var stale []*board.Task
	for _, task := range snap.Tasks {
		if IsStale(now, task, threshold) {
			stale = append(stale, task)
		}
	}
	return stale
}
