// Package metrics provides a capacity- and age-bounded operational event log
// plus the Prometheus instruments exported by the service.
package metrics

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the bounded event log.
const (
	DefaultCapacity        = 1000
	DefaultTTL             = 24 * time.Hour
	DefaultCleanupInterval = 60 * time.Minute

	// utilizationWarningThreshold is the percentage at which Statistics
	// starts reporting a warning.
	utilizationWarningThreshold = 80.0
)

// InvalidConfigurationError reports unusable recorder parameters. Fatal at
// startup, never raised later.
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid metrics configuration: %s", e.Reason)
}

// Entry is one immutable operational event.
type Entry struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Operation  string            `json:"operation"`
	Duration   time.Duration     `json:"duration"`
	Success    bool              `json:"success"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Statistics summarizes the recorder's contents.
type Statistics struct {
	Total              int           `json:"total"`
	Capacity           int           `json:"capacity"`
	TTL                time.Duration `json:"ttl"`
	ExpiredCount       int           `json:"expired_count"`
	OldestAge          time.Duration `json:"oldest_age"`
	UtilizationPercent float64       `json:"utilization_percent"`
	Warning            string        `json:"warning,omitempty"`
}

// ExportPayload bundles the entries with their statistics.
type ExportPayload struct {
	Entries    []Entry    `json:"entries"`
	Statistics Statistics `json:"statistics"`
}

// Recorder is the process-wide bounded event log. Concurrent Add calls are
// safe; the append-and-evict sequence runs under a single mutex.
type Recorder struct {
	mu              sync.Mutex
	entries         []Entry // kept sorted by Timestamp ascending
	capacity        int
	ttl             time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// Opts holds configuration for the recorder.
type Opts struct {
	Capacity        int
	TTL             time.Duration
	CleanupInterval time.Duration
	Clock           func() time.Time
}

// Option configures the recorder.
type Option func(*Opts)

// WithCapacity overrides the default entry cap.
func WithCapacity(capacity int) Option {
	return func(o *Opts) { o.Capacity = capacity }
}

// WithTTL overrides the default entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithCleanupInterval overrides the cleanup throttle interval.
func WithCleanupInterval(interval time.Duration) Option {
	return func(o *Opts) { o.CleanupInterval = interval }
}

// WithClock injects a time source (used by tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// NewRecorder creates a bounded recorder, validating its parameters.
func NewRecorder(opts ...Option) (*Recorder, error) {
	cfg := Opts{
		Capacity:        DefaultCapacity,
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
		Clock:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Capacity <= 0 {
		return nil, &InvalidConfigurationError{Reason: fmt.Sprintf("capacity must be positive, got %d", cfg.Capacity)}
	}
	if cfg.TTL <= 0 {
		return nil, &InvalidConfigurationError{Reason: fmt.Sprintf("ttl must be positive, got %s", cfg.TTL)}
	}
	if cfg.CleanupInterval <= 0 {
		return nil, &InvalidConfigurationError{Reason: fmt.Sprintf("cleanup interval must be positive, got %s", cfg.CleanupInterval)}
	}
	slog.Debug("metrics.NewRecorder: recorder created", "capacity", cfg.Capacity, "ttl", cfg.TTL, "cleanupInterval", cfg.CleanupInterval)
	return &Recorder{
		capacity:        cfg.Capacity,
		ttl:             cfg.TTL,
		cleanupInterval: cfg.CleanupInterval,
		now:             cfg.Clock,
	}, nil
}

// Add appends an entry, filling in a fresh ID and timestamp when absent, and
// evicts the oldest entries by timestamp once the cap is exceeded.
func (r *Recorder) Add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}

	// Insert keeping timestamp order; appends are the common case.
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Timestamp.After(entry.Timestamp)
	})
	r.entries = append(r.entries, Entry{})
	copy(r.entries[idx+1:], r.entries[idx:])
	r.entries[idx] = entry

	if over := len(r.entries) - r.capacity; over > 0 {
		evicted := make([]Entry, len(r.entries)-over)
		copy(evicted, r.entries[over:])
		r.entries = evicted
		slog.Debug("Recorder.Add: evicted oldest entries past capacity", "evicted", over, "capacity", r.capacity)
	}
}

// GetSince returns the entries with timestamps at or after the cutoff.
func (r *Recorder) GetSince(cutoff time.Time) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := sort.Search(len(r.entries), func(i int) bool {
		return !r.entries[i].Timestamp.Before(cutoff)
	})
	result := make([]Entry, len(r.entries)-idx)
	copy(result, r.entries[idx:])
	return result
}

// CleanupExpired removes entries older than the TTL and returns how many were
// removed. It throttles itself to at most one pass per cleanup interval;
// throttled calls are no-ops that do not touch the last-cleanup timestamp.
func (r *Recorder) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastCleanup.IsZero() && now.Sub(r.lastCleanup) < r.cleanupInterval {
		slog.Debug("Recorder.CleanupExpired: throttled", "sinceLast", now.Sub(r.lastCleanup), "interval", r.cleanupInterval)
		return 0
	}
	r.lastCleanup = now

	cutoff := now.Add(-r.ttl)
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Timestamp.After(cutoff)
	})
	if idx == 0 {
		return 0
	}
	kept := make([]Entry, len(r.entries)-idx)
	copy(kept, r.entries[idx:])
	r.entries = kept
	slog.Info("Recorder.CleanupExpired: removed expired entries", "removed", idx, "ttl", r.ttl)
	return idx
}

// Statistics reports the recorder's current totals, including a warning once
// utilization reaches the warning threshold.
func (r *Recorder) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statisticsLocked()
}

func (r *Recorder) statisticsLocked() Statistics {
	now := r.now()
	cutoff := now.Add(-r.ttl)

	stats := Statistics{
		Total:    len(r.entries),
		Capacity: r.capacity,
		TTL:      r.ttl,
	}
	for _, entry := range r.entries {
		if !entry.Timestamp.After(cutoff) {
			stats.ExpiredCount++
		}
	}
	if len(r.entries) > 0 {
		stats.OldestAge = now.Sub(r.entries[0].Timestamp)
	}
	stats.UtilizationPercent = float64(len(r.entries)) / float64(r.capacity) * 100
	if stats.UtilizationPercent >= utilizationWarningThreshold {
		stats.Warning = fmt.Sprintf("metrics store at %.0f%% of capacity %d", stats.UtilizationPercent, r.capacity)
	}
	return stats
}

// Export returns a copy of the entries together with the statistics.
func (r *Recorder) Export() ExportPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return ExportPayload{Entries: entries, Statistics: r.statisticsLocked()}
}

// Reset drops all entries and the cleanup throttle. Exposed for test
// harnesses only.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.lastCleanup = time.Time{}
}
