// Package health composes per-component probes into one overall status used
// to gate the daily processing pass.
package health

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mainseq/ci-engine/internal/database"
)

// Overall statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusCritical  = "critical"
)

// Probe checks one component. Name labels the report entry.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is one health-check outcome.
type Report struct {
	Status     string            `json:"status"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components map[string]string `json:"components"` // name → "ok" or error text
}

// Blocks reports whether the status aborts the daily pass.
func (r *Report) Blocks() bool {
	return r.Status == StatusCritical || r.Status == StatusUnhealthy
}

// Checker runs the configured probes.
type Checker struct {
	probes []Probe
	log    zerolog.Logger
}

// NewChecker builds a checker with the standard probes: database
// connectivity, staging-dir writability, and any extras.
func NewChecker(db *database.DB, stagingDir string, extra []Probe, log zerolog.Logger) *Checker {
	probes := []Probe{
		{Name: "database", Check: func(ctx context.Context) error { return db.HealthCheck(ctx) }},
		{Name: "staging_dir", Check: func(ctx context.Context) error { return checkWritable(stagingDir) }},
	}
	probes = append(probes, extra...)
	return &Checker{
		probes: probes,
		log:    log.With().Str("component", "health").Logger(),
	}
}

// Check runs every probe. Status scales with the failure share: all ok →
// healthy; under half failing → degraded; half or more → unhealthy; the
// database probe failing is always critical.
func (c *Checker) Check(ctx context.Context) *Report {
	r := &Report{
		CheckedAt:  time.Now().UTC(),
		Components: make(map[string]string, len(c.probes)),
	}

	failures := 0
	dbFailed := false
	for _, p := range c.probes {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			failures++
			r.Components[p.Name] = err.Error()
			if p.Name == "database" {
				dbFailed = true
			}
			c.log.Warn().Str("probe", p.Name).Err(err).Msg("health probe failed")
		} else {
			r.Components[p.Name] = "ok"
		}
	}

	switch {
	case dbFailed:
		r.Status = StatusCritical
	case failures == 0:
		r.Status = StatusHealthy
	case failures*2 < len(c.probes):
		r.Status = StatusDegraded
	default:
		r.Status = StatusUnhealthy
	}
	return r
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
