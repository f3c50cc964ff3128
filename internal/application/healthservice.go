package application

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Component states reported by HealthService.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthCheck names a probe. Critical probes turn the service down when they
// fail; others only degrade it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    CheckFunc
}

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport is the combined view of every probe.
type HealthReport struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// HealthService runs the configured dependency probes.
type HealthService struct {
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthService creates a new HealthService with the given probes.
func NewHealthService(checks ...HealthCheck) *HealthService {
	return &HealthService{checks: checks, timeout: 2 * time.Second}
}

// Check runs every probe and combines the results.
// Priority: down > degraded > ok.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: HealthOK, Components: make([]ComponentHealth, 0, len(s.checks))}

	for _, c := range s.checks {
		probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.Check(probeCtx)
		cancel()

		comp := ComponentHealth{Name: c.Name, Status: HealthOK}
		if err != nil {
			slog.Warn("health probe failed", "component", c.Name, "error", err)
			comp.Status = HealthDown
			comp.Error = "unavailable"
			report.Status = combineHealth(report.Status, c.Critical)
		}
		report.Components = append(report.Components, comp)
	}

	sort.Slice(report.Components, func(i, j int) bool {
		return report.Components[i].Name < report.Components[j].Name
	})
	return report
}

func combineHealth(current string, critical bool) string {
	if critical || current == HealthDown {
		return HealthDown
	}
	return HealthDegraded
}
