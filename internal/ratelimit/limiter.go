// Package ratelimit applies a per-client request ceiling over a time window.
//
// Each client gets a token bucket holding max tokens that refills at
// max per window, so a client can burst to the ceiling and then proceeds at
// the window rate. Responses carry draft-7 RateLimit headers.
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	window  time.Duration
	max     int
	every   rate.Limit
	now     func() time.Time
	sweptAt time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Duration
	RetryAfter time.Duration
}

// New returns a limiter permitting max requests per window per client.
func New(window time.Duration, max int) (*Limiter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", window)
	}
	if max <= 0 {
		return nil, fmt.Errorf("ratelimit: max must be positive, got %d", max)
	}
	return &Limiter{
		clients: make(map[string]*client),
		window:  window,
		max:     max,
		every:   rate.Limit(float64(max) / window.Seconds()),
		now:     time.Now,
	}, nil
}

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.every, l.max)}
		l.clients[key] = c
	}
	c.lastSeen = now

	d := Decision{Limit: l.max}
	if c.limiter.AllowN(now, 1) {
		d.Allowed = true
	} else {
		d.RetryAfter = l.timeFor(1 - c.limiter.TokensAt(now))
	}
	tokens := c.limiter.TokensAt(now)
	d.Remaining = int(math.Max(0, math.Floor(tokens)))
	d.Reset = l.timeFor(float64(l.max) - tokens)
	return d
}

// Clients reports how many client buckets are tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) timeFor(tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	return time.Duration(tokens / float64(l.every) * float64(time.Second))
}

// sweep drops clients idle for a full window; their buckets would be full
// again anyway.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < l.window {
		return
	}
	l.sweptAt = now
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.window {
			delete(l.clients, key)
		}
	}
}

// Middleware enforces the limiter keyed by client IP. onLimited, when set,
// runs for each rejected request.
func (l *Limiter) Middleware(onLimited func()) gin.HandlerFunc {
	policy := fmt.Sprintf("%d;w=%d", l.max, int(math.Ceil(l.window.Seconds())))
	return func(c *gin.Context) {
		d := l.Allow(c.ClientIP())
		c.Header("RateLimit-Policy", policy)
		c.Header("RateLimit", fmt.Sprintf("limit=%d, remaining=%d, reset=%d", d.Limit, d.Remaining, ceilSeconds(d.Reset)))
		if !d.Allowed {
			if onLimited != nil {
				onLimited()
			}
			c.Header("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
