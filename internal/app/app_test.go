package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"piatto/internal/config"
	"piatto/internal/recipe"
	"piatto/internal/session"
	"piatto/internal/wizard"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopView struct {
	mu      sync.Mutex
	renders int
}

func (v *nopView) Confirm(context.Context, string) (bool, error) { return true, nil }

func (v *nopView) Render(wizard.State) {
	v.mu.Lock()
	v.renders++
	v.mu.Unlock()
}

func newBackend(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/preparing/generate":
			fmt.Fprint(w, `{"preparing_session_id": 12}`)
		case r.Method == http.MethodGet && r.URL.Path == "/preparing/12/get_options":
			fmt.Fprint(w, `[
				{"id": 1, "title": "Pilzrisotto", "image_url": "https://img/1.png"},
				{"id": 2, "title": "Gemüsecurry", "image_url": "https://img/2.png"}
			]`)
		case r.Method == http.MethodPost && r.URL.Path == "/recipe/1/save":
		case r.Method == http.MethodDelete && r.URL.Path == "/preparing/12/current-recipes/1":
			fmt.Fprint(w, `[2]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/preparing/12/finish":
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestApp(t *testing.T, apiURL string, opts ...Option) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		APIURL:       apiURL,
		HTTPTimeout:  5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		UndoWindow:   time.Second,
		DataDir:      dir,
		DatabasePath: filepath.Join(dir, "piatto.db"),
		StoragePath:  filepath.Join(dir, "local_storage.json"),
	}
	a, err := New(cfg, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestGenerateSaveAndFinish(t *testing.T) {
	srv, calls := newBackend(t)
	a := newTestApp(t, srv.URL)
	ctx := context.Background()

	view := &nopView{}
	w := a.Wizard(view)
	defer w.Close()

	w.SetPrompt("Etwas mit Pilzen")
	require.NoError(t, w.SubmitPrompt())
	require.NoError(t, w.Generate(ctx))

	state := w.State()
	assert.Equal(t, wizard.StepOptions, state.Step)
	assert.Equal(t, int64(12), state.SessionID)
	require.Len(t, state.Options, 2)

	id, ok := a.PreparingSessionID()
	require.True(t, ok, "Expected preparing session id to be stored")
	assert.Equal(t, int64(12), id)

	tracker := a.Tracker(state.SessionID, state.Options)
	require.NoError(t, tracker.Save(ctx, 1))
	status, _ := tracker.Status(1)
	assert.Equal(t, recipe.StatusSaved, status)

	require.NoError(t, w.Finish(ctx))
	_, ok = a.PreparingSessionID()
	assert.False(t, ok, "Expected preparing session id to be cleared")

	assert.Contains(t, *calls, "DELETE /preparing/12/finish")

	usage, err := a.Metrics().GetDailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, len(*calls), usage[0].Requests)
	assert.Equal(t, 0, usage[0].Errors)

	n, err := testutil.GatherAndCount(a.Registry(), "piatto_api_requests_total")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestFileStorage(t *testing.T) {
	srv, _ := newBackend(t)
	a := newTestApp(t, srv.URL, WithFileStorage())

	require.NoError(t, a.Storage().SetItem(session.PreparingKey, "12"))
	id, ok := a.PreparingSessionID()
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.FileExists(t, a.Config().StoragePath)
}

func TestCleanup(t *testing.T) {
	srv, _ := newBackend(t)
	a := newTestApp(t, srv.URL)
	ctx := context.Background()

	a.Metrics().RecordRequest("/preparing/generate", http.MethodPost, 200, time.Millisecond)

	metricsRemoved, itemsRemoved, err := a.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), metricsRemoved)
	assert.Equal(t, int64(0), itemsRemoved)

	usage, err := a.Metrics().GetDailyUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].Requests)
}
