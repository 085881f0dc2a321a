package board

import "time"

// Status is a task's lifecycle state on the canonical board.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusClaimed    Status = "CLAIMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusReview     Status = "REVIEW"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
)

// Active reports whether a task in this status is nominally being worked on,
// which makes it subject to the staleness rule.
func (s Status) Active() bool {
	switch s {
	case StatusClaimed, StatusInProgress, StatusReview:
		return true
	}
	return false
}

// Terminal reports whether the status ends the task's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// allowedEdges enumerates the standard status transitions. The canonical
// board is externally writable, so a transition outside this set is still
// representable; the detector reports it generically instead of rejecting it.
var allowedEdges = map[Status][]Status{
	StatusTodo:       {StatusClaimed, StatusBlocked},
	StatusClaimed:    {StatusInProgress, StatusTodo, StatusBlocked},
	StatusInProgress: {StatusReview, StatusBlocked, StatusDone, StatusFailed},
	StatusBlocked:    {StatusTodo, StatusClaimed, StatusInProgress, StatusFailed},
	StatusReview:     {StatusInProgress, StatusDone, StatusFailed},
}

// KnownEdge reports whether from → to is a standard transition.
func KnownEdge(from, to Status) bool {
	for _, next := range allowedEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task mirrors one TaskRecord of the canonical board document. Unknown
// fields land in Extra so documents written by other tools round-trip.
type Task struct {
	ID              string         `yaml:"id"`
	Title           string         `yaml:"title"`
	Status          Status         `yaml:"status"`
	AssignedAgent   string         `yaml:"assigned_agent,omitempty"`
	Priority        int            `yaml:"priority,omitempty"`
	Blockers        []string       `yaml:"blockers,omitempty"`
	EstimatedEffort float64        `yaml:"estimated_effort,omitempty"`
	ActualEffort    float64        `yaml:"actual_effort,omitempty"`
	CreatedAt       time.Time      `yaml:"created_at,omitempty"`
	UpdatedAt       time.Time      `yaml:"updated_at,omitempty"`
	Extra           map[string]any `yaml:",inline"`
}

// Agent is one coordinated worker process with its own isolated workspace.
type Agent struct {
	ID            string         `yaml:"id,omitempty"`
	Workspace     string         `yaml:"workspace"`
	CurrentTaskID string         `yaml:"current_task_id,omitempty"`
	LastActivity  time.Time      `yaml:"last_activity,omitempty"`
	Extra         map[string]any `yaml:",inline"`
}

// Document is the canonical task-board file shape.
type Document struct {
	Tasks  []*Task           `yaml:"tasks"`
	Agents map[string]*Agent `yaml:"agents"`
}
