package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitExportBurst(t *testing.T) {
	rl := NewRateLimitMiddleware(false, testLogger())
	defer rl.Stop()
	handler := rl.Wrap(okHandler())

	// Export burst is 2; the third immediate request is rejected.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
		req.RemoteAddr = "10.1.2.3:4444"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitIsPerIP(t *testing.T) {
	rl := NewRateLimitMiddleware(false, testLogger())
	defer rl.Stop()
	handler := rl.Wrap(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
		req.RemoteAddr = "10.0.0.1:1111"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
	req.RemoteAddr = "10.0.0.2:2222"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, rl.LimiterCount())
}

func TestRateLimitHonorsForwardedForBehindProxy(t *testing.T) {
	rl := NewRateLimitMiddleware(true, testLogger())
	defer rl.Stop()
	handler := rl.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "203.0.113.7", rl.clientIP(req))
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	rl := NewRateLimitMiddleware(false, testLogger())
	defer rl.Stop()
	handler := rl.Wrap(okHandler())

	// A direct client rotating forged proxy headers must still exhaust its
	// own bucket: the export burst is 2, so the third request from the same
	// peer address is rejected no matter what the headers claim.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/export", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	req.Header.Set("X-Real-IP", "203.0.113.100")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, "198.51.100.4", rl.clientIP(req))
	assert.Equal(t, 1, rl.LimiterCount())
}

func TestRateLimitEvictsStaleEntries(t *testing.T) {
	rl := NewRateLimitMiddleware(false, testLogger())
	defer rl.Stop()
	handler := rl.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger", nil)
	req.RemoteAddr = "10.9.9.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 1, rl.LimiterCount())

	rl.nowFunc = func() time.Time { return time.Now().Add(staleLimiterTTL + time.Minute) }
	rl.evictStale()
	assert.Equal(t, 0, rl.LimiterCount())
}
