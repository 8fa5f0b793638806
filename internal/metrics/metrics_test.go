package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRecorderInvalidConfiguration(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{"zero capacity", []Option{WithCapacity(0)}},
		{"negative capacity", []Option{WithCapacity(-5)}},
		{"zero ttl", []Option{WithTTL(0)}},
		{"negative ttl", []Option{WithTTL(-time.Hour)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRecorder(tc.opts...)
			var invalid *InvalidConfigurationError
			if !errors.As(err, &invalid) {
				t.Errorf("expected InvalidConfigurationError, got %v", err)
			}
		})
	}
}

func TestCapacityEvictsOldestByTimestamp(t *testing.T) {
	recorder, err := NewRecorder(WithCapacity(1000))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 1500; i++ {
		recorder.Add(Entry{
			Operation: fmt.Sprintf("op-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	export := recorder.Export()
	if len(export.Entries) != 1000 {
		t.Fatalf("expected exactly 1000 entries, got %d", len(export.Entries))
	}
	// The 500 oldest must be the evicted ones.
	if export.Entries[0].Operation != "op-500" {
		t.Errorf("expected oldest surviving entry op-500, got %s", export.Entries[0].Operation)
	}
	if export.Entries[999].Operation != "op-1499" {
		t.Errorf("expected newest entry op-1499, got %s", export.Entries[999].Operation)
	}
}

func TestCleanupExpiredRemovesByTTL(t *testing.T) {
	now := time.Now()
	recorder, err := NewRecorder(WithTTL(24*time.Hour), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	recorder.Add(Entry{Operation: "stale", Timestamp: now.Add(-25 * time.Hour)})
	recorder.Add(Entry{Operation: "fresh", Timestamp: now.Add(-1 * time.Hour)})

	removed := recorder.CleanupExpired()
	if removed < 1 {
		t.Errorf("expected at least one removed entry, got %d", removed)
	}

	export := recorder.Export()
	if len(export.Entries) != 1 || export.Entries[0].Operation != "fresh" {
		t.Errorf("expected only the fresh entry to survive, got %+v", export.Entries)
	}
}

func TestCleanupExpiredThrottles(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	recorder, err := NewRecorder(WithTTL(time.Hour), WithCleanupInterval(time.Hour), WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	recorder.Add(Entry{Operation: "stale", Timestamp: now.Add(-2 * time.Hour)})
	if removed := recorder.CleanupExpired(); removed != 1 {
		t.Fatalf("expected first cleanup to remove 1, got %d", removed)
	}

	// A second stale entry within the throttle window stays put.
	recorder.Add(Entry{Operation: "stale-2", Timestamp: now.Add(-2 * time.Hour)})
	now = now.Add(30 * time.Minute)
	if removed := recorder.CleanupExpired(); removed != 0 {
		t.Errorf("expected throttled cleanup to be a no-op, got %d", removed)
	}

	// Past the interval the pass runs again.
	now = now.Add(31 * time.Minute)
	if removed := recorder.CleanupExpired(); removed != 1 {
		t.Errorf("expected cleanup after interval to remove 1, got %d", removed)
	}
}

func TestStatisticsWarningAtHighUtilization(t *testing.T) {
	recorder, err := NewRecorder(WithCapacity(10))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	for i := 0; i < 7; i++ {
		recorder.Add(Entry{Operation: "op"})
	}
	if warning := recorder.Statistics().Warning; warning != "" {
		t.Errorf("expected no warning at 70%%, got %q", warning)
	}

	recorder.Add(Entry{Operation: "op"})
	stats := recorder.Statistics()
	if stats.Warning == "" {
		t.Error("expected warning at 80% utilization")
	}
	if stats.UtilizationPercent != 80 {
		t.Errorf("expected 80%% utilization, got %.1f", stats.UtilizationPercent)
	}
}

func TestGetSince(t *testing.T) {
	now := time.Now()
	recorder, err := NewRecorder()
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	recorder.Add(Entry{Operation: "old", Timestamp: now.Add(-2 * time.Hour)})
	recorder.Add(Entry{Operation: "recent", Timestamp: now.Add(-10 * time.Minute)})

	entries := recorder.GetSince(now.Add(-time.Hour))
	if len(entries) != 1 || entries[0].Operation != "recent" {
		t.Errorf("expected only the recent entry, got %+v", entries)
	}
}

func TestConcurrentAddKeepsInvariants(t *testing.T) {
	recorder, err := NewRecorder(WithCapacity(100))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				recorder.Add(Entry{Operation: "concurrent"})
			}
		}()
	}
	wg.Wait()

	stats := recorder.Statistics()
	if stats.Total != 100 {
		t.Errorf("expected cap invariant to hold, got %d entries", stats.Total)
	}
}

func TestResetClearsEntries(t *testing.T) {
	recorder, err := NewRecorder()
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	recorder.Add(Entry{Operation: "op"})
	recorder.Reset()
	if total := recorder.Statistics().Total; total != 0 {
		t.Errorf("expected empty recorder after reset, got %d", total)
	}
}

func TestNewInstrumentsRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	instruments := NewInstruments(registry)

	instruments.TurnsTotal.WithLabelValues("create_patient", "success").Inc()
	instruments.RoutingViolationsTotal.Inc()
	instruments.TurnDurationSeconds.Observe(0.25)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) < 3 {
		t.Errorf("expected registered metric families, got %d", len(families))
	}
}
