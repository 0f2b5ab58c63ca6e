package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestRateLimiterRefill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiter(3, 2, time.Second, clock.now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d", i)
	}
	assert.False(t, rl.Allow())

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, rl.Allow())

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	// Refill never exceeds the burst.
	clock.t = clock.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow())
	}
	assert.False(t, rl.Allow())
}

func TestClientRateLimiterIsolatesClients(t *testing.T) {
	crl := NewClientRateLimiter(1, 1, time.Hour)
	assert.True(t, crl.Allow("10.0.0.1"))
	assert.False(t, crl.Allow("10.0.0.1"))
	assert.True(t, crl.Allow("10.0.0.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	crl := NewClientRateLimiter(1, 1, time.Hour)
	h := crl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("192.0.2.1:1000"))
	// Same host, different port shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.1:2000"))
	assert.Equal(t, http.StatusNoContent, do("192.0.2.2:1000"))
}
