package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/crewbase/crewsync/internal/audit"
	"github.com/crewbase/crewsync/internal/event"
	"github.com/crewbase/crewsync/internal/eventbus"
	"github.com/crewbase/crewsync/internal/notify"
	"github.com/crewbase/crewsync/pkg/cerr"
	"github.com/crewbase/crewsync/pkg/storage"
)

// Category labels why a suggestion was raised.
type Category string

const (
	CategoryEstimation Category = "estimation"
	CategoryBlocked    Category = "blocked"
	CategoryHealth     Category = "health"
)

// Suggestion is one piece of advice for an agent or operator, derived from
// an observed change or health report.
type Suggestion struct {
	ID        string    `yaml:"id" json:"id"`
	AgentID   string    `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
	TaskID    string    `yaml:"task_id,omitempty" json:"task_id,omitempty"`
	Category  Category  `yaml:"category" json:"category"`
	Text      string    `yaml:"text" json:"text"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// DefaultLogCapacity bounds the retained suggestion history.
const DefaultLogCapacity = 50

const suggestionLogPath = "advisor/suggestions.yaml"

// Advisor turns change events and health reports into notifications and a
// bounded, persisted suggestion log.
type Advisor struct {
	notifier notify.Notifier
	store    storage.Store
	capacity int

	mu  sync.RWMutex
	log []*Suggestion
}

func New(notifier notify.Notifier, store storage.Store, capacity int) *Advisor {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Advisor{
		notifier: notifier,
		store:    store,
		capacity: capacity,
	}
}

// Classify derives a suggestion from a change event, or nil when the change
// carries no advisory signal. Pure: no I/O, no clock beyond CreatedAt.
func Classify(change *event.Change) *Suggestion {
	switch change.Type {
	case event.TypeTaskCompleted:
		switch change.Details.Annotation {
		case event.AnnotationFasterThanExpected:
			return &Suggestion{
				ID:       ulid.Make().String(),
				AgentID:  change.AgentID,
				TaskID:   change.TaskID,
				Category: CategoryEstimation,
				Text: fmt.Sprintf("task %s finished %s (effort ratio %.1f); consider tightening future estimates",
					change.TaskID, change.Details.Annotation, change.Details.EffortRatio),
				CreatedAt: change.Timestamp,
			}
		case event.AnnotationUnderestimated:
			return &Suggestion{
				ID:       ulid.Make().String(),
				AgentID:  change.AgentID,
				TaskID:   change.TaskID,
				Category: CategoryEstimation,
				Text: fmt.Sprintf("task %s was %s (effort ratio %.1f); similar tasks likely need larger estimates",
					change.TaskID, change.Details.Annotation, change.Details.EffortRatio),
				CreatedAt: change.Timestamp,
			}
		}
	case event.TypeTaskBlocked:
		return &Suggestion{
			ID:       ulid.Make().String(),
			AgentID:  change.AgentID,
			TaskID:   change.TaskID,
			Category: CategoryBlocked,
			Text: fmt.Sprintf("task %s is blocked (%d blocker(s)); it needs attention before work can resume",
				change.TaskID, len(change.Details.Blockers)),
			CreatedAt: change.Timestamp,
		}
	}
	return nil
}

// Suggestions returns a copy of the retained log, newest last.
func (a *Advisor) Suggestions() []*Suggestion {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Suggestion, len(a.log))
	copy(out, a.log)
	return out
}

// HandleChange processes one change event: blocked tasks trigger an
// immediate notification, advisory changes are appended to the log.
// Notification delivery failures are logged and never propagate.
func (a *Advisor) HandleChange(ctx context.Context, change *event.Change) {
	if change.Type == event.TypeTaskBlocked {
		title := fmt.Sprintf("Task %s blocked", change.TaskID)
		msg := fmt.Sprintf("agent %s reports %d blocker(s)", change.AgentID, len(change.Details.Blockers))
		if len(change.Details.Blockers) > 0 {
			msg = fmt.Sprintf("%s: %v", msg, change.Details.Blockers)
		}
		if err := a.notifier.Notify(ctx, title, msg, change.Severity); err != nil {
			slog.ErrorContext(ctx, "advisor: notification failed", "task_id", change.TaskID, "error", err)
		}
	}

	if s := Classify(change); s != nil {
		a.append(ctx, s)
	}
}

// HandleReport notifies on a Critical overall health report.
func (a *Advisor) HandleReport(ctx context.Context, report *audit.Report) {
	if report.Overall != audit.Critical {
		return
	}
	var failing []string
	for _, r := range report.Results {
		if r.Status == audit.Critical {
			failing = append(failing, r.Component)
		}
	}
	title := "System health critical"
	msg := fmt.Sprintf("critical components: %v", failing)
	if err := a.notifier.Notify(ctx, title, msg, event.SeverityCritical); err != nil {
		slog.ErrorContext(ctx, "advisor: notification failed", "error", err)
	}
	// A system that stays Critical produces the same report every cycle;
	// re-appending it would evict unrelated advice from the bounded log.
	if a.lastHealthText() == msg {
		return
	}
	a.append(ctx, &Suggestion{
		ID:        ulid.Make().String(),
		Category:  CategoryHealth,
		Text:      msg,
		CreatedAt: report.GeneratedAt,
	})
}

// lastHealthText returns the text of the newest health-category suggestion,
// or "" when the log has none.
func (a *Advisor) lastHealthText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i := len(a.log) - 1; i >= 0; i-- {
		if a.log[i].Category == CategoryHealth {
			return a.log[i].Text
		}
	}
	return ""
}

func (a *Advisor) append(ctx context.Context, s *Suggestion) {
	a.mu.Lock()
	a.log = append(a.log, s)
	if len(a.log) > a.capacity {
		a.log = a.log[len(a.log)-a.capacity:]
	}
	snapshot := make([]*Suggestion, len(a.log))
	copy(snapshot, a.log)
	a.mu.Unlock()

	if a.store == nil {
		return
	}
	if err := a.persist(ctx, snapshot); err != nil {
		slog.ErrorContext(ctx, "advisor: failed to persist suggestions", "error", err)
	}
}

func (a *Advisor) persist(ctx context.Context, log []*Suggestion) error {
	data, err := yaml.Marshal(log)
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to marshal suggestion log", err)
	}
	if err := a.store.Write(ctx, suggestionLogPath, data); err != nil {
		return cerr.WrapStorageWriteError("suggestion log", err)
	}
	return nil
}

// Restore loads the persisted suggestion log, if any. Missing state is not
// an error on first start.
func (a *Advisor) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	data, err := a.store.Read(ctx, suggestionLogPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return cerr.WrapStorageReadError("suggestion log", err)
	}
	var log []*Suggestion
	if err := yaml.Unmarshal(data, &log); err != nil {
		return cerr.NewError(cerr.ParseFailure, "failed to parse suggestion log", err)
	}
	a.mu.Lock()
	if len(log) > a.capacity {
		log = log[len(log)-a.capacity:]
	}
	a.log = log
	a.mu.Unlock()
	return nil
}

// Run consumes changes and reports until ctx is cancelled. Either channel
// may be nil when that source is not wired.
func (a *Advisor) Run(ctx context.Context, changes *eventbus.Bus[*event.Change], reports *eventbus.Bus[*audit.Report]) {
	var changeCh <-chan *event.Change
	var changeID string
	if changes != nil {
		changeID, changeCh = changes.Subscribe(16)
		defer changes.Unsubscribe(changeID)
	}
	var reportCh <-chan *audit.Report
	var reportID string
	if reports != nil {
		reportID, reportCh = reports.Subscribe(4)
		defer reports.Unsubscribe(reportID)
	}

	slog.Info("advisor started", "capacity", a.capacity)
	for {
		select {
		case <-ctx.Done():
			slog.Info("advisor stopped")
			return
		case change, ok := <-changeCh:
			if !ok {
				changeCh = nil
				continue
			}
			a.HandleChange(ctx, change)
		case report, ok := <-reportCh:
			if !ok {
				reportCh = nil
				continue
			}
			a.HandleReport(ctx, report)
		}
	}
}
