package board

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crewbase/crewsync/pkg/cerr"
)

// Snapshot is an immutable parsed view of the canonical board at one point
// in time. Task order follows the document's insertion order, which keeps
// diffing deterministic.
type Snapshot struct {
	Tasks      []*Task
	Agents     map[string]*Agent
	CapturedAt time.Time

	index map[string]*Task
}

func newSnapshot(doc *Document, capturedAt time.Time) *Snapshot {
	s := &Snapshot{
		Tasks:      doc.Tasks,
		Agents:     doc.Agents,
		CapturedAt: capturedAt,
		index:      make(map[string]*Task, len(doc.Tasks)),
	}
	for _, t := range doc.Tasks {
		s.index[t.ID] = t
	}
	// The document keys agents by id; entries that omit the id field inherit
	// it from the key. Normalizing here keeps the snapshot read-only after
	// construction, which is what makes sharing it across the timing domains
	// safe without locks.
	for id, agent := range s.Agents {
		if agent.ID == "" {
			agent.ID = id
		}
	}
	return s
}

// Task looks up a task by id.
func (s *Snapshot) Task(id string) (*Task, bool) {
	t, ok := s.index[id]
	return t, ok
}

// AgentList returns the registered agents sorted by id. It never writes to
// the snapshot: the same snapshot is read concurrently by the sync ticker,
// the audit ticker and the HTTP handlers.
func (s *Snapshot) AgentList() []*Agent {
	agents := make([]*Agent, 0, len(s.Agents))
	for _, agent := range s.Agents {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Violations scans the snapshot for soft-invariant breaches: a task without
// an assigned agent must be Todo, and an agent holds at most one InProgress
// task. The canonical document is externally writable, so breaches are
// reported rather than prevented.
func (s *Snapshot) Violations() []string {
	var violations []string
	inProgress := make(map[string]int)
	for _, t := range s.Tasks {
		if t.AssignedAgent == "" && t.Status != StatusTodo {
			violations = append(violations, fmt.Sprintf("task %s has status %s but no assigned agent", t.ID, t.Status))
		}
		if t.Status == StatusInProgress && t.AssignedAgent != "" {
			inProgress[t.AssignedAgent]++
		}
	}
	agents := make([]string, 0, len(inProgress))
	for agent, n := range inProgress {
		if n > 1 {
			agents = append(agents, fmt.Sprintf("agent %s has %d tasks in progress", agent, n))
		}
	}
	sort.Strings(agents)
	return append(violations, agents...)
}

// Store loads the canonical board document and retains the last
// structurally valid snapshot. A parse failure never replaces the retained
// snapshot: stale-but-valid data is preferred over no data.
type Store struct {
	path string

	mu       sync.Mutex
	last     *Snapshot
	loadErr  error
	failedAt time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the canonical document location this store reads.
func (st *Store) Path() string {
	return st.path
}

// Load reads and parses the canonical document. On success it returns the
// fresh snapshot and retains it. On failure it returns the last good
// snapshot (possibly nil) together with a ParseFailure error; callers keep
// operating on the stale snapshot and surface the error as a Critical
// health signal.
func (st *Store) Load() (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := os.ReadFile(st.path)
	if err != nil {
		st.loadErr = cerr.NewError(cerr.ParseFailure, fmt.Sprintf("cannot read board document %s", st.path), err)
		st.failedAt = time.Now()
		return st.last, st.loadErr
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		st.loadErr = cerr.NewError(cerr.ParseFailure, fmt.Sprintf("board document %s is malformed", st.path), err)
		st.failedAt = time.Now()
		return st.last, st.loadErr
	}

	st.last = newSnapshot(&doc, time.Now())
	st.loadErr = nil
	return st.last, nil
}

// LastGood returns the retained snapshot without touching the filesystem.
func (st *Store) LastGood() *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last
}

// LoadError returns the error of the most recent failed Load, or nil when
// the last Load succeeded. The auditor turns a non-nil value into a
// Critical health result for the board document.
func (st *Store) LoadError() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.loadErr
}
