package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(threshold int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(map[string]Limit{
		CategoryAPI: {Threshold: threshold, Window: window},
	})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestThresholdBoundary(t *testing.T) {
	l, _ := newTestLimiter(100, time.Minute)

	for i := 1; i <= 100; i++ {
		if !l.Allow("client-1", CategoryAPI) {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("client-1", CategoryAPI) {
		t.Error("request 101 should be denied")
	}
}

func TestWindowRollover(t *testing.T) {
	l, now := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("k", CategoryAPI) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("k", CategoryAPI) {
		t.Error("over-threshold request should be denied")
	}

	// Advance past the window; the counter resets and the full
	// threshold is available again.
	*now = now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("k", CategoryAPI) {
			t.Fatalf("post-rollover request %d should be allowed", i+1)
		}
	}
	if l.Allow("k", CategoryAPI) {
		t.Error("over-threshold request after rollover should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("a", CategoryAPI) {
		t.Fatal("first request for key a should be allowed")
	}
	if l.Allow("a", CategoryAPI) {
		t.Error("second request for key a should be denied")
	}
	if !l.Allow("b", CategoryAPI) {
		t.Error("key b should have its own bucket")
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(map[string]Limit{
		CategoryAPI:  {Threshold: 10, Window: time.Minute},
		CategoryAuth: {Threshold: 1, Window: time.Minute},
	})
	l.now = func() time.Time { return now }

	if !l.Allow("k", CategoryAuth) {
		t.Fatal("first auth request should be allowed")
	}
	if l.Allow("k", CategoryAuth) {
		t.Error("second auth request should be denied")
	}
	if !l.Allow("k", CategoryAPI) {
		t.Error("api category should be unaffected by auth exhaustion")
	}
}

func TestUnknownCategoryFallsBackToAPI(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	if !l.Allow("k", "no-such-category") {
		t.Fatal("first request should be allowed")
	}
	if !l.Allow("k", "no-such-category") {
		t.Fatal("second request should be allowed")
	}
	if l.Allow("k", "no-such-category") {
		t.Error("third request should be denied under the api fallback limit")
	}
}

func TestRemaining(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	if got := l.Remaining("k", CategoryAPI); got != 5 {
		t.Errorf("fresh remaining = %d, want 5", got)
	}
	l.Allow("k", CategoryAPI)
	l.Allow("k", CategoryAPI)
	if got := l.Remaining("k", CategoryAPI); got != 3 {
		t.Errorf("remaining = %d, want 3", got)
	}
	for i := 0; i < 10; i++ {
		l.Allow("k", CategoryAPI)
	}
	if got := l.Remaining("k", CategoryAPI); got != 0 {
		t.Errorf("exhausted remaining = %d, want 0", got)
	}

	*now = now.Add(2 * time.Minute)
	if got := l.Remaining("k", CategoryAPI); got != 5 {
		t.Errorf("remaining after expiry = %d, want 5", got)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	l.Allow("k", CategoryAPI)
	if l.Allow("k", CategoryAPI) {
		t.Fatal("should be exhausted")
	}
	l.Reset("k", CategoryAPI)
	if !l.Allow("k", CategoryAPI) {
		t.Error("reset should restore the full window")
	}
}
