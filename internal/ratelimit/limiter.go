// Package ratelimit admits report submissions per client identifier using
// sliding hourly and daily windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the submission limits per client identifier.
type Config struct {
	// ReportsPerHour and ReportsPerDay cap admissions in the sliding
	// 1-hour and 24-hour windows.
	ReportsPerHour int
	ReportsPerDay  int
	// CleanupInterval is how often idle client records are evicted.
	CleanupInterval time.Duration
}

// DefaultConfig returns the limits the public report endpoint ships with.
func DefaultConfig() Config {
	return Config{
		ReportsPerHour:  2,
		ReportsPerDay:   5,
		CleanupInterval: 10 * time.Minute,
	}
}

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Reason is a human-readable denial reason, safe to return to the
	// caller. Empty when Allowed.
	Reason string
	// RetryAt is when the binding window frees a slot. Zero when Allowed.
	RetryAt time.Time
}

// Info is a read-only view of a client's remaining quota.
type Info struct {
	HourRemaining int       `json:"hourRemaining"`
	DayRemaining  int       `json:"dayRemaining"`
	HourResetAt   time.Time `json:"hourResetAt"`
	DayResetAt    time.Time `json:"dayResetAt"`
}

type record struct {
	hourly []time.Time
	daily  []time.Time
}

// Limiter tracks per-client admission timestamps. Check (CanAdmit) and
// commit (Record) are deliberately decoupled so a caller can probe without
// consuming quota; the map itself is mutex-guarded since HTTP handlers run
// concurrently.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	records map[string]*record

	now    func() time.Time
	stopCh chan struct{}
}

// NewLimiter creates a Limiter and starts a background eviction goroutine.
// Call Stop to release it.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Stop halts the background eviction goroutine.
func (l *Limiter) Stop() {
	close(l.stopCh)
}

// CanAdmit reports whether a submission from clientID may proceed. It does
// not consume quota; callers commit with Record only after accepting.
func (l *Limiter) CanAdmit(clientID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.prune(clientID, now)

	if len(rec.hourly) >= l.cfg.ReportsPerHour {
		retry := rec.hourly[0].Add(hourWindow)
		return Decision{
			Reason:  fmt.Sprintf("hourly report limit of %d reached, try again after %s", l.cfg.ReportsPerHour, retry.UTC().Format(time.RFC3339)),
			RetryAt: retry,
		}
	}
	if len(rec.daily) >= l.cfg.ReportsPerDay {
		retry := rec.daily[0].Add(dayWindow)
		return Decision{
			Reason:  fmt.Sprintf("daily report limit of %d reached, try again after %s", l.cfg.ReportsPerDay, retry.UTC().Format(time.RFC3339)),
			RetryAt: retry,
		}
	}
	return Decision{Allowed: true}
}

// Record commits an admission for clientID into both windows.
func (l *Limiter) Record(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.prune(clientID, now)
	rec.hourly = append(rec.hourly, now)
	rec.daily = append(rec.daily, now)
}

// Info returns the remaining quota and window reset times for clientID.
func (l *Limiter) Info(clientID string) Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec := l.prune(clientID, now)

	info := Info{
		HourRemaining: l.cfg.ReportsPerHour - len(rec.hourly),
		DayRemaining:  l.cfg.ReportsPerDay - len(rec.daily),
		HourResetAt:   now,
		DayResetAt:    now,
	}
	if len(rec.hourly) > 0 {
		info.HourResetAt = rec.hourly[0].Add(hourWindow)
	}
	if len(rec.daily) > 0 {
		info.DayResetAt = rec.daily[0].Add(dayWindow)
	}
	return info
}

// prune drops window entries older than their window relative to now. Every
// read and decision goes through here first, so stale entries never leak
// into a check. Caller holds l.mu.
func (l *Limiter) prune(clientID string, now time.Time) *record {
	rec, ok := l.records[clientID]
	if !ok {
		rec = &record{}
		l.records[clientID] = rec
	}
	rec.hourly = pruneWindow(rec.hourly, now, hourWindow)
	rec.daily = pruneWindow(rec.daily, now, dayWindow)
	return rec
}

func pruneWindow(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// janitor periodically evicts client records whose daily window has fully
// drained. Without this the map grows without bound under churning client
// identifiers.
func (l *Limiter) janitor() {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, rec := range l.records {
		rec.hourly = pruneWindow(rec.hourly, now, hourWindow)
		rec.daily = pruneWindow(rec.daily, now, dayWindow)
		if len(rec.daily) == 0 {
			delete(l.records, id)
		}
	}
}

// TrackedClients returns the number of client records currently held.
func (l *Limiter) TrackedClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
