package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func newTestLimiter(t *testing.T, window time.Duration, max int) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := New(window, max)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l.now = clock.now
	return l, clock
}

func TestAllowEnforcesCeilingPerClient(t *testing.T) {
	l, clock := newTestLimiter(t, time.Minute, 3)

	for i := 0; i < 3; i++ {
		d := l.Allow("a")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 2-i, d.Remaining)
		}
	}
	d := l.Allow("a")
	if d.Allowed {
		t.Fatalf("fourth request should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 20*time.Second {
		t.Fatalf("unexpected retry-after %s", d.RetryAfter)
	}

	if !l.Allow("b").Allowed {
		t.Fatalf("other clients keep their own budget")
	}

	clock.t = clock.t.Add(20 * time.Second)
	if !l.Allow("a").Allowed {
		t.Fatalf("expected one token to refill after window/max")
	}
}

func TestSweepDropsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(t, time.Second, 1)
	l.Allow("a")
	l.Allow("b")
	if l.Clients() != 2 {
		t.Fatalf("expected 2 clients, got %d", l.Clients())
	}
	clock.t = clock.t.Add(2 * time.Second)
	l.Allow("c")
	if l.Clients() != 1 {
		t.Fatalf("expected idle clients to be swept, got %d", l.Clients())
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	if _, err := New(0, 1); err == nil {
		t.Fatalf("expected zero window to be rejected")
	}
	if _, err := New(time.Second, 0); err == nil {
		t.Fatalf("expected zero max to be rejected")
	}
}

func TestMiddlewareReturns429WithHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, time.Minute, 1)
	limited := 0

	r := gin.New()
	r.Use(l.Middleware(func() { limited++ }))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("RateLimit-Policy"); got != "1;w=60" {
		t.Fatalf("unexpected policy header %q", got)
	}
	if got := rr.Header().Get("RateLimit"); got != "limit=1, remaining=0, reset=60" {
		t.Fatalf("unexpected ratelimit header %q", got)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected retry-after %q", rr.Header().Get("Retry-After"))
	}
	if rr.Body.String() != `{"error":"Too Many Requests"}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if limited != 1 {
		t.Fatalf("expected onLimited to run once, got %d", limited)
	}
}
