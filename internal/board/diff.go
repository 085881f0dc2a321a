package board

import (
	"github.com/crewbase/crewsync/internal/event"
)

// Effort-ratio thresholds for advisory annotations on completed tasks.
const (
	ratioOverperformed  = 2.0
	ratioUnderestimated = 0.5
)

// Diff computes the ordered list of change events between two snapshots.
// Events are emitted in the task order of next, so diffing the same pair of
// snapshots always yields an identical list. Diff(s, s) is empty.
func Diff(prev, next *Snapshot) []*event.Change {
	var changes []*event.Change

	for _, task := range next.Tasks {
		old, existed := prev.Task(task.ID)
		if !existed {
			changes = append(changes, event.New(
				event.TypeTaskAssigned,
				task.ID,
				task.AssignedAgent,
				event.SeverityInfo,
				event.Details{ToStatus: string(task.Status)},
			))
			continue
		}

		if old.Status != task.Status {
			changes = append(changes, statusChange(old, task))
			continue
		}

		// Same status but reassigned to a different agent.
		if old.AssignedAgent != task.AssignedAgent && task.AssignedAgent != "" {
			changes = append(changes, event.New(
				event.TypeTaskAssigned,
				task.ID,
				task.AssignedAgent,
				event.SeverityInfo,
				event.Details{ToStatus: string(task.Status)},
			))
		}
	}

	return changes
}

func statusChange(old, task *Task) *event.Change {
	details := event.Details{
		FromStatus: string(old.Status),
		ToStatus:   string(task.Status),
	}

	switch {
	case task.Status == StatusDone:
		if task.ActualEffort > 0 && task.EstimatedEffort > 0 {
			details.EffortRatio = task.EstimatedEffort / task.ActualEffort
			switch {
			case details.EffortRatio > ratioOverperformed:
				details.Annotation = event.AnnotationFasterThanExpected
			case details.EffortRatio < ratioUnderestimated:
				details.Annotation = event.AnnotationUnderestimated
			}
		}
		return event.New(event.TypeTaskCompleted, task.ID, task.AssignedAgent, event.SeverityInfo, details)

	case task.Status == StatusBlocked:
		details.Blockers = task.Blockers
		sev := event.SeverityWarning
		if len(task.Blockers) > 0 {
			sev = event.SeverityCritical
		}
		return event.New(event.TypeTaskBlocked, task.ID, task.AssignedAgent, sev, details)

	case old.Status == StatusBlocked:
		return event.New(event.TypeTaskUnblocked, task.ID, task.AssignedAgent, event.SeverityInfo, details)

	case KnownEdge(old.Status, task.Status):
		sev := event.SeverityInfo
		typ := event.TypeTaskStatusChanged
		if task.Status == StatusClaimed || (task.Status == StatusInProgress && old.AssignedAgent != task.AssignedAgent) {
			typ = event.TypeTaskAssigned
		}
		return event.New(typ, task.ID, task.AssignedAgent, sev, details)

	default:
		// Non-standard edge (e.g. TODO straight to DONE). Recorded
		// generically; the board is externally writable.
		return event.New(event.TypeTaskStatusChanged, task.ID, task.AssignedAgent, event.SeverityWarning, details)
	}
}
