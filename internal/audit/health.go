package audit

import "time"

// HealthStatus ranks component health. Higher is worse; the aggregate
// report's overall status is the worst individual status.
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Unknown
	Warning
	Critical
)

func (s HealthStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// CheckResult is one component's health with a human-readable message and
// optional structured details.
type CheckResult struct {
	Component string            `json:"component"`
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// Report is the aggregate of one audit cycle. Each cycle produces a fresh
// report that fully replaces the previous one.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Results     []CheckResult `json:"results"`
	Overall     HealthStatus  `json:"overall"`
}

// NewReport aggregates individual results; overall = worst individual.
func NewReport(results []CheckResult) *Report {
	overall := Healthy
	for _, r := range results {
		if r.Status > overall {
			overall = r.Status
		}
	}
	return &Report{
		GeneratedAt: time.Now(),
		Results:     results,
		Overall:     overall,
	}
}
