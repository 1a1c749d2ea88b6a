package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/nilcoder/taskq/internal/health"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(read, asyncWrite, syncWrite health.Pinger) (*health.Checker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	logger := slog.Default()
	return health.NewChecker(read, asyncWrite, syncWrite, logger, reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(&mockPinger{err: errors.New("db down")}, &mockPinger{}, &mockPinger{})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_AllUp(t *testing.T) {
	c, reg := newTestChecker(&mockPinger{}, &mockPinger{}, &mockPinger{})

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, dep := range []string{"sqlite_read", "sqlite_async_write", "sqlite_sync_write"} {
		check, ok := result.Checks[dep]
		if !ok {
			t.Fatalf("missing %s check", dep)
		}
		if check.Status != "up" {
			t.Fatalf("expected %s up, got %s", dep, check.Status)
		}
		if gauge := testGauge(t, reg, "taskq_health_check_up", dep); gauge != 1 {
			t.Fatalf("expected gauge 1 for %s, got %f", dep, gauge)
		}
	}
}

func TestReadiness_OnePoolDown(t *testing.T) {
	c, reg := newTestChecker(&mockPinger{}, &mockPinger{err: errors.New("connection refused")}, &mockPinger{})

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	asyncWrite := result.Checks["sqlite_async_write"]
	if asyncWrite.Status != "down" {
		t.Fatalf("expected sqlite_async_write down, got %s", asyncWrite.Status)
	}
	if asyncWrite.Error == "" {
		t.Fatal("expected error message")
	}

	if gauge := testGauge(t, reg, "taskq_health_check_up", "sqlite_async_write"); gauge != 0 {
		t.Fatalf("expected gauge 0, got %f", gauge)
	}
	if gauge := testGauge(t, reg, "taskq_health_check_up", "sqlite_read"); gauge != 1 {
		t.Fatalf("expected sqlite_read gauge 1, got %f", gauge)
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}
