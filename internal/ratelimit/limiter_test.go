package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func testLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CleanupInterval = time.Hour // don't interfere with test
	l := NewLimiter(cfg)
	t.Cleanup(l.Stop)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestHourlyLimit(t *testing.T) {
	l, now := testLimiter(t)
	client := "198.51.100.7"

	for i := 0; i < 2; i++ {
		d := l.CanAdmit(client)
		if !d.Allowed {
			t.Fatalf("admission %d denied: %s", i+1, d.Reason)
		}
		l.Record(client)
	}

	d := l.CanAdmit(client)
	if d.Allowed {
		t.Fatal("3rd admission within the hour should be denied")
	}
	if !strings.Contains(d.Reason, "hourly") {
		t.Errorf("denial reason %q should mention the hourly limit", d.Reason)
	}

	// Window elapses: admissions allowed again.
	*now = now.Add(61 * time.Minute)
	if d := l.CanAdmit(client); !d.Allowed {
		t.Errorf("admission after hour window elapsed denied: %s", d.Reason)
	}
}

func TestDailyLimitIndependentOfHourlyReset(t *testing.T) {
	l, now := testLimiter(t)
	client := "client-a"

	// 5 admissions spread over the day, never more than 2 per hour.
	for i := 0; i < 5; i++ {
		d := l.CanAdmit(client)
		if !d.Allowed {
			t.Fatalf("admission %d denied: %s", i+1, d.Reason)
		}
		l.Record(client)
		*now = now.Add(2 * time.Hour)
	}

	// Hourly window is clear, but the daily cap binds.
	d := l.CanAdmit(client)
	if d.Allowed {
		t.Fatal("6th admission within 24h should be denied")
	}
	if !strings.Contains(d.Reason, "daily") {
		t.Errorf("denial reason %q should mention the daily limit", d.Reason)
	}

	// Push past 24h from the first admission: one slot frees up.
	*now = now.Add(15 * time.Hour)
	if d := l.CanAdmit(client); !d.Allowed {
		t.Errorf("admission after day window elapsed denied: %s", d.Reason)
	}
}

func TestCanAdmitDoesNotConsumeQuota(t *testing.T) {
	l, _ := testLimiter(t)
	client := "client-b"

	for i := 0; i < 10; i++ {
		if d := l.CanAdmit(client); !d.Allowed {
			t.Fatalf("probe %d denied without any Record: %s", i+1, d.Reason)
		}
	}
}

func TestClientsAreIndependent(t *testing.T) {
	l, _ := testLimiter(t)

	l.Record("client-a")
	l.Record("client-a")
	if d := l.CanAdmit("client-a"); d.Allowed {
		t.Fatal("client-a should be at its hourly limit")
	}
	if d := l.CanAdmit("client-b"); !d.Allowed {
		t.Errorf("client-b should be unaffected: %s", d.Reason)
	}
}

func TestInfo(t *testing.T) {
	l, now := testLimiter(t)
	client := "client-c"

	info := l.Info(client)
	if info.HourRemaining != 2 || info.DayRemaining != 5 {
		t.Errorf("fresh client got remaining %d/%d, want 2/5", info.HourRemaining, info.DayRemaining)
	}
	if !info.HourResetAt.Equal(*now) || !info.DayResetAt.Equal(*now) {
		t.Error("empty windows should reset at now")
	}

	first := *now
	l.Record(client)
	*now = now.Add(10 * time.Minute)
	l.Record(client)

	info = l.Info(client)
	if info.HourRemaining != 0 || info.DayRemaining != 3 {
		t.Errorf("got remaining %d/%d, want 0/3", info.HourRemaining, info.DayRemaining)
	}
	if want := first.Add(time.Hour); !info.HourResetAt.Equal(want) {
		t.Errorf("HourResetAt = %v, want %v", info.HourResetAt, want)
	}
	if want := first.Add(24 * time.Hour); !info.DayResetAt.Equal(want) {
		t.Errorf("DayResetAt = %v, want %v", info.DayResetAt, want)
	}
}

func TestEvictIdle(t *testing.T) {
	l, now := testLimiter(t)

	l.Record("client-a")
	l.Record("client-b")
	if got := l.TrackedClients(); got != 2 {
		t.Fatalf("tracked %d clients, want 2", got)
	}

	*now = now.Add(25 * time.Hour)
	l.evictIdle()
	if got := l.TrackedClients(); got != 0 {
		t.Errorf("tracked %d clients after eviction, want 0", got)
	}
}

func TestPruneWindow(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ts := []time.Time{
		base.Add(-2 * time.Hour),
		base.Add(-30 * time.Minute),
		base.Add(-1 * time.Minute),
	}
	got := pruneWindow(ts, base, time.Hour)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if !got[0].Equal(base.Add(-30 * time.Minute)) {
		t.Errorf("oldest surviving entry = %v", got[0])
	}
}
