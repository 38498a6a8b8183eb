package health

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func checkerWith(probes ...Probe) *Checker {
	return &Checker{probes: probes, log: zerolog.Nop()}
}

func okProbe(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return nil }}
}

func failProbe(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return errors.New("down") }}
}

func TestCheckAllHealthy(t *testing.T) {
	r := checkerWith(okProbe("database"), okProbe("staging_dir")).Check(context.Background())
	if r.Status != StatusHealthy {
		t.Errorf("status = %q, want healthy", r.Status)
	}
	if r.Blocks() {
		t.Error("healthy report should not block")
	}
}

func TestCheckDegraded(t *testing.T) {
	r := checkerWith(okProbe("database"), okProbe("staging_dir"), failProbe("webhook")).Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", r.Status)
	}
	if r.Blocks() {
		t.Error("degraded report should not block the daily pass")
	}
}

func TestCheckUnhealthy(t *testing.T) {
	r := checkerWith(okProbe("database"), failProbe("a"), failProbe("b")).Check(context.Background())
	if r.Status != StatusUnhealthy {
		t.Errorf("status = %q, want unhealthy", r.Status)
	}
	if !r.Blocks() {
		t.Error("unhealthy report should block the daily pass")
	}
}

func TestDatabaseFailureIsCritical(t *testing.T) {
	r := checkerWith(failProbe("database"), okProbe("a"), okProbe("b"), okProbe("c")).Check(context.Background())
	if r.Status != StatusCritical {
		t.Errorf("status = %q, want critical", r.Status)
	}
	if !r.Blocks() {
		t.Error("critical report should block the daily pass")
	}
}
