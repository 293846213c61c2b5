package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	internal_http "github.com/ignatij/marketflow/internal/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	inFlight bool
	next     time.Time
}

func (f fakeStatus) InFlight() bool { return f.inFlight }

func (f fakeStatus) NextTrigger(after time.Time) time.Time { return f.next }

func TestHealthHandler(t *testing.T) {
	cst := time.FixedZone("CST", 8*3600)
	next := time.Date(2026, 10, 14, 15, 30, 0, 0, cst)
	now := func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, cst) }

	t.Run("ReportsState", func(t *testing.T) {
		srv := httptest.NewServer(internal_http.HealthHandler(fakeStatus{inFlight: true, next: next}, now))
		defer srv.Close()

		resp, err := srv.Client().Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, true, body["in_flight"])
		assert.Equal(t, "2026-10-14T15:30:00+08:00", body["next_run"])
	})

	t.Run("RejectsPost", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		internal_http.HealthHandler(fakeStatus{next: next}, now)(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
