package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbase/crewsync/internal/event"
)

func snapshotOf(t *testing.T, tasks ...*Task) *Snapshot {
	t.Helper()
	return newSnapshot(&Document{Tasks: tasks}, time.Now())
}

func TestDiff_NoChanges(t *testing.T) {
	snap := snapshotOf(t,
		&Task{ID: "T1", Status: StatusInProgress, AssignedAgent: "agent-1"},
		&Task{ID: "T2", Status: StatusTodo},
	)
	assert.Empty(t, Diff(snap, snap))
}

func TestDiff_NewTaskIsAssigned(t *testing.T) {
	prev := snapshotOf(t)
	next := snapshotOf(t, &Task{ID: "T1", Status: StatusClaimed, AssignedAgent: "agent-1"})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskAssigned, changes[0].Type)
	assert.Equal(t, "T1", changes[0].TaskID)
	assert.Equal(t, "agent-1", changes[0].AgentID)
	assert.Equal(t, event.SeverityInfo, changes[0].Severity)
}

func TestDiff_CompletionWithEffortRatio(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T1", Status: StatusReview, AssignedAgent: "agent-1", EstimatedEffort: 5, ActualEffort: 2})
	next := snapshotOf(t, &Task{ID: "T1", Status: StatusDone, AssignedAgent: "agent-1", EstimatedEffort: 5, ActualEffort: 2})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskCompleted, changes[0].Type)
	assert.InDelta(t, 2.5, changes[0].Details.EffortRatio, 1e-9)
	assert.Equal(t, event.AnnotationFasterThanExpected, changes[0].Details.Annotation)
}

func TestDiff_CompletionUnderestimated(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T1", Status: StatusInProgress, EstimatedEffort: 2, ActualEffort: 8})
	next := snapshotOf(t, &Task{ID: "T1", Status: StatusDone, EstimatedEffort: 2, ActualEffort: 8})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.InDelta(t, 0.25, changes[0].Details.EffortRatio, 1e-9)
	assert.Equal(t, event.AnnotationUnderestimated, changes[0].Details.Annotation)
}

func TestDiff_CompletionWithoutEffortHasNoAnnotation(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T1", Status: StatusReview})
	next := snapshotOf(t, &Task{ID: "T1", Status: StatusDone})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Zero(t, changes[0].Details.EffortRatio)
	assert.Empty(t, changes[0].Details.Annotation)
}

func TestDiff_BlockedWithBlockersIsCritical(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T2", Status: StatusInProgress, AssignedAgent: "agent-2"})
	next := snapshotOf(t, &Task{ID: "T2", Status: StatusBlocked, AssignedAgent: "agent-2", Blockers: []string{"waiting on API credentials"}})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskBlocked, changes[0].Type)
	assert.Equal(t, event.SeverityCritical, changes[0].Severity)
	assert.Equal(t, []string{"waiting on API credentials"}, changes[0].Details.Blockers)
}

func TestDiff_BlockedWithoutBlockersIsWarning(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T2", Status: StatusTodo})
	next := snapshotOf(t, &Task{ID: "T2", Status: StatusBlocked})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskBlocked, changes[0].Type)
	assert.Equal(t, event.SeverityWarning, changes[0].Severity)
}

func TestDiff_Unblocked(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T3", Status: StatusBlocked, AssignedAgent: "agent-1"})
	next := snapshotOf(t, &Task{ID: "T3", Status: StatusInProgress, AssignedAgent: "agent-1"})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskUnblocked, changes[0].Type)
	assert.Equal(t, string(StatusBlocked), changes[0].Details.FromStatus)
	assert.Equal(t, string(StatusInProgress), changes[0].Details.ToStatus)
}

func TestDiff_DirectCompletionStillCompleted(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T4", Status: StatusTodo})
	next := snapshotOf(t, &Task{ID: "T4", Status: StatusDone})

	// TODO straight to DONE is not a standard transition, but landing on
	// DONE always reports a completion.
	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskCompleted, changes[0].Type)
}

func TestDiff_NonStandardEdgeReportedGenerically(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T4", Status: StatusDone})
	next := snapshotOf(t, &Task{ID: "T4", Status: StatusTodo})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskStatusChanged, changes[0].Type)
	assert.Equal(t, event.SeverityWarning, changes[0].Severity)
}

func TestDiff_ReassignmentSameStatus(t *testing.T) {
	prev := snapshotOf(t, &Task{ID: "T5", Status: StatusInProgress, AssignedAgent: "agent-1"})
	next := snapshotOf(t, &Task{ID: "T5", Status: StatusInProgress, AssignedAgent: "agent-2"})

	changes := Diff(prev, next)
	require.Len(t, changes, 1)
	assert.Equal(t, event.TypeTaskAssigned, changes[0].Type)
	assert.Equal(t, "agent-2", changes[0].AgentID)
}

func TestDiff_Deterministic(t *testing.T) {
	prev := snapshotOf(t,
		&Task{ID: "T1", Status: StatusTodo},
		&Task{ID: "T2", Status: StatusTodo},
		&Task{ID: "T3", Status: StatusTodo},
	)
	next := snapshotOf(t,
		&Task{ID: "T1", Status: StatusClaimed, AssignedAgent: "a"},
		&Task{ID: "T2", Status: StatusBlocked},
		&Task{ID: "T3", Status: StatusClaimed, AssignedAgent: "b"},
	)

	first := Diff(prev, next)
	require.Len(t, first, 3)
	for i := 0; i < 5; i++ {
		again := Diff(prev, next)
		require.Len(t, again, 3)
		for j := range again {
			assert.Equal(t, first[j].Type, again[j].Type)
			assert.Equal(t, first[j].TaskID, again[j].TaskID)
			assert.Equal(t, first[j].Severity, again[j].Severity)
		}
	}
	// Ordering follows the task order of the next snapshot.
	assert.Equal(t, []string{"T1", "T2", "T3"}, []string{first[0].TaskID, first[1].TaskID, first[2].TaskID})
}

func TestKnownEdge(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusTodo, StatusClaimed, true},
		{StatusClaimed, StatusInProgress, true},
		{StatusInProgress, StatusReview, true},
		{StatusReview, StatusDone, true},
		{StatusBlocked, StatusInProgress, true},
		{StatusTodo, StatusDone, false},
		{StatusDone, StatusTodo, false},
		{StatusFailed, StatusTodo, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KnownEdge(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
