package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"piatto/internal/database"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *prometheus.Registry) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "piatto.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	return NewStore(db.SQL, NewCollectors(reg), nil), reg
}

func TestRecordRequest(t *testing.T) {
	s, _ := newTestStore(t)

	s.RecordRequest("/preparing/generate", "POST", 200, 120*time.Millisecond)
	s.RecordRequest("/preparing/{id}/get_options", "GET", 500, 40*time.Millisecond)
	s.RecordRequest("/recipe/{recipeId}/image", "GET", 0, 10*time.Millisecond)

	usage, err := s.GetDailyUsage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), usage[0].Date)
	assert.Equal(t, 3, usage[0].Requests)
	assert.Equal(t, 2, usage[0].Errors)
	assert.InDelta(t, 56.67, usage[0].AvgLatencyMS, 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.prom.requests.WithLabelValues("/preparing/generate", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.prom.requests.WithLabelValues("/recipe/{recipeId}/image", "GET", "network_error")))
}

func TestCleanup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, RequestMetric{Endpoint: "/old", Method: "GET", Status: 200, Timestamp: time.Now().AddDate(0, 0, -40)}))
	require.NoError(t, s.Record(ctx, RequestMetric{Endpoint: "/new", Method: "GET", Status: 200}))

	removed, err := s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	usage, err := s.GetDailyUsage(ctx, 365)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].Requests)
}

func TestCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.Observe("/collection/", "GET", 200, time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "piatto_api_requests_total", "piatto_api_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetSysHealth(t *testing.T) {
	h := GetSysHealth(t.TempDir())
	assert.Greater(t, h.Goroutines, 0)
	assert.Equal(t, "0 B", h.DataDiskSize)
	assert.Equal(t, 0, h.DataFiles)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local_storage.json"), make([]byte, 2048), 0o644))
	h = GetSysHealth(dir)
	assert.Equal(t, 1, h.DataFiles)
	assert.Equal(t, "2.0 KiB", h.DataDiskSize)
}
