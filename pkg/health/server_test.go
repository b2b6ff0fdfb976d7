package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/models"
)

type fakeWorker struct {
	breaker *circuitbreaker.CircuitBreaker
	board   models.Leaderboard
}

func (f *fakeWorker) Status() map[string]interface{} {
	return map[string]interface{}{"role": "indexer", "cursor": 42}
}

func (f *fakeWorker) Breaker() *circuitbreaker.CircuitBreaker { return f.breaker }

func (f *fakeWorker) Leaderboard(n int) []models.LeaderboardEntry { return f.board.Top(n) }

func newWorker() *fakeWorker {
	return &fakeWorker{
		breaker: circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Hour, nil),
		board:   models.Leaderboard{"0xa": 3, "0xb": 1},
	}
}

func serve(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	w := newWorker()
	s := NewServer("0", w, w, "", nil)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/ready", nil).Code)

	w.breaker.RecordFailure()
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/ready", nil).Code)

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodPost, "/circuit/reset", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/ready", nil).Code)
}

func TestStatus(t *testing.T) {
	w := newWorker()
	rec := serve(t, NewServer("0", w, nil, "", nil), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "indexer", body["role"])
	assert.Equal(t, float64(42), body["cursor"])
}

func TestLeaderboard(t *testing.T) {
	w := newWorker()
	s := NewServer("0", w, w, "", nil)

	rec := serve(t, s, http.MethodGet, "/leaderboard?top=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, []models.LeaderboardEntry{{Address: "0xa", Count: 3}}, entries)

	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodGet, "/leaderboard?top=x", nil).Code)

	// relayer has no leaderboard route
	relayer := NewServer("0", w, nil, "", nil)
	assert.Equal(t, http.StatusNotFound, serve(t, relayer, http.MethodGet, "/leaderboard", nil).Code)
}

func TestMetricsAuth(t *testing.T) {
	w := newWorker()
	s := NewServer("0", w, nil, "secret", nil)

	assert.Equal(t, http.StatusUnauthorized, serve(t, s, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(t, s, http.MethodGet, "/metrics", http.Header{"Authorization": {"Bearer wrong"}}).Code)
	assert.Equal(t, http.StatusOK,
		serve(t, s, http.MethodGet, "/metrics", http.Header{"Authorization": {"Bearer secret"}}).Code)

	open := NewServer("0", w, nil, "", nil)
	assert.Equal(t, http.StatusOK, serve(t, open, http.MethodGet, "/metrics", nil).Code)
}
