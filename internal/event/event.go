package event

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of board mutation a change event describes.
type Type string

const (
	TypeTaskAssigned  Type = "task.assigned"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskBlocked   Type = "task.blocked"
	TypeTaskUnblocked Type = "task.unblocked"
	// TypeTaskStatusChanged is the generic fallback for transitions that do
	// not match a known edge. The canonical board is externally writable, so
	// transitions the detector does not pre-enumerate are recorded, never
	// silently dropped.
	TypeTaskStatusChanged Type = "task.status_changed"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// MarshalJSON renders the severity as its text form so API and SSE payloads
// are self-describing.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	switch text {
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		*s = SeverityInfo
	}
	return nil
}

// Change is one meaningful difference between two board snapshots. Changes
// are the only channel through which downstream consumers learn about board
// mutations.
type Change struct {
	ID        string    `json:"id" yaml:"id"`
	Type      Type      `json:"type" yaml:"type"`
	TaskID    string    `json:"task_id" yaml:"task_id"`
	AgentID   string    `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Severity  Severity  `json:"severity" yaml:"severity"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Details   Details   `json:"details" yaml:"details"`
}

// Details carries the small typed payload attached to a change event.
type Details struct {
	FromStatus string   `json:"from_status,omitempty" yaml:"from_status,omitempty"`
	ToStatus   string   `json:"to_status,omitempty" yaml:"to_status,omitempty"`
	Blockers   []string `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	// EffortRatio is estimated/actual effort, set on task.completed when
	// both efforts are known. Advisory annotations derive from it.
	EffortRatio float64 `json:"effort_ratio,omitempty" yaml:"effort_ratio,omitempty"`
	Annotation  string  `json:"annotation,omitempty" yaml:"annotation,omitempty"`
}

// Effort-ratio annotations attached to task.completed events.
const (
	AnnotationFasterThanExpected = "faster than expected"
	AnnotationUnderestimated     = "underestimated"
)

// New builds a change event with a fresh ULID and detection timestamp.
func New(typ Type, taskID, agentID string, sev Severity, details Details) *Change {
	return &Change{
		ID:        ulid.Make().String(),
		Type:      typ,
		TaskID:    taskID,
		AgentID:   agentID,
		Severity:  sev,
		Timestamp: time.Now(),
		Details:   details,
	}
}
