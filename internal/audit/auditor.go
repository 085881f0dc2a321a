package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crewbase/crewsync/internal/eventbus"
	"github.com/crewbase/crewsync/internal/journal"
	"github.com/crewbase/crewsync/pkg/panicerr"
)

// Auditor runs the registered checks on a fixed period, publishes the
// aggregate report, and appends a dated summary to the narrative journal on
// a separate (longer) period.
type Auditor struct {
	checks          []Check
	interval        time.Duration
	summaryInterval time.Duration
	bus             *eventbus.Bus[*Report]
	journal         *journal.Appender

	mu     sync.RWMutex
	latest *Report
}

func NewAuditor(checks []Check, interval, summaryInterval time.Duration, bus *eventbus.Bus[*Report], jrnl *journal.Appender) *Auditor {
	return &Auditor{
		checks:          checks,
		interval:        interval,
		summaryInterval: summaryInterval,
		bus:             bus,
		journal:         jrnl,
	}
}

// Latest returns the most recent report, or nil before the first cycle.
func (a *Auditor) Latest() *Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// RunChecks executes the selected checks once and aggregates the results.
// A panicking check is reported as Unknown rather than taking down the
// audit loop. Passing nil kinds runs everything.
func (a *Auditor) RunChecks(ctx context.Context, kinds map[Kind]struct{}) *Report {
	var results []CheckResult
	for _, check := range a.checks {
		if kinds != nil {
			if _, ok := kinds[check.Kind()]; !ok {
				continue
			}
		}
		results = append(results, runCheck(ctx, check)...)
	}
	report := NewReport(results)

	a.mu.Lock()
	a.latest = report
	a.mu.Unlock()
	return report
}

func runCheck(ctx context.Context, check Check) []CheckResult {
	var results []CheckResult
	err := panicerr.Safe(func() error {
		results = check.Run(ctx)
		return nil
	})()
	if err != nil {
		slog.Error("audit: check panicked", "check", check.Name(), "error", err)
		return []CheckResult{{
			Component: check.Name(),
			Status:    Unknown,
			Message:   fmt.Sprintf("check failed unexpectedly: %v", err),
		}}
	}
	return results
}

// Run executes audit cycles until ctx is cancelled. An in-flight cycle
// finishes before Run returns.
func (a *Auditor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var summaryCh <-chan time.Time
	if a.summaryInterval > 0 && a.journal != nil {
		summaryTicker := time.NewTicker(a.summaryInterval)
		defer summaryTicker.Stop()
		summaryCh = summaryTicker.C
	}

	slog.Info("auditor started", "interval", a.interval, "checks", len(a.checks))
	for {
		select {
		case <-ctx.Done():
			slog.Info("auditor stopped")
			return
		case <-ticker.C:
			report := a.RunChecks(ctx, nil)
			slog.Info("audit cycle complete", "overall", report.Overall.String(), "components", len(report.Results))
			if a.bus != nil {
				a.bus.Publish(report)
			}
		case <-summaryCh:
			a.appendSummary(ctx)
		}
	}
}

func (a *Auditor) appendSummary(ctx context.Context) {
	report := a.Latest()
	if report == nil {
		report = a.RunChecks(ctx, nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %s\n\n", report.Overall)
	for _, r := range report.Results {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.Component, r.Status, r.Message)
	}
	if err := a.journal.AppendSection("Audit summary", b.String()); err != nil {
		slog.Error("audit: failed to append journal summary", "error", err)
	}
}
