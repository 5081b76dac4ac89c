package cooking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"piatto/internal/api"
	"piatto/internal/config"
	"piatto/internal/messages"
	"piatto/internal/session"
	"piatto/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-memory cooking backend.
type fakeServer struct {
	states    []int
	questions []string
	finished  bool
	missing   bool
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/cooking/7/start":
			fmt.Fprint(w, `{"cooking_session_id": 55}`)
		case r.Method == http.MethodGet && r.URL.Path == "/cooking/55/get":
			if f.missing {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, `{"id": 55, "recipe_id": 7, "recipe_title": "Pilzrisotto", "state": 0}`)
		case r.Method == http.MethodGet && r.URL.Path == "/cooking/66/get":
			fmt.Fprint(w, `{"id": 66, "recipe_id": 8, "recipe_title": "Linsensuppe", "state": 0}`)
		case r.Method == http.MethodGet && r.URL.Path == "/instruction/8":
			fmt.Fprint(w, `[{"step":1,"text":"Linsen waschen"}]`)
		case r.Method == http.MethodGet && r.URL.Path == "/instruction/7":
			fmt.Fprint(w, `[{"step":1,"text":"Zwiebeln hacken"},{"step":2,"text":"Reis anbraten","timer_seconds":120}]`)
		case r.Method == http.MethodPut && r.URL.Path == "/cooking/change_state":
			var body struct {
				State int `json:"state"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.states = append(f.states, body.State)
		case r.Method == http.MethodPost && r.URL.Path == "/cooking/ask_question":
			var body struct {
				Prompt string `json:"prompt"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.questions = append(f.questions, body.Prompt)
			fmt.Fprint(w, `{"answer": "Etwa 18 Minuten."}`)
		case r.Method == http.MethodGet && r.URL.Path == "/cooking/55/get_prompt_history":
			fmt.Fprint(w, `[{"role":"user","content":"Wie lange?"},{"role":"assistant","content":"18 Minuten."}]`)
		case r.Method == http.MethodDelete && r.URL.Path == "/cooking/55/finish":
			f.finished = true
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}
}

func newService(t *testing.T, f *fakeServer) (*Service, *session.Store) {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	client, err := api.NewClient(&config.Config{APIURL: server.URL})
	require.NoError(t, err)

	store := session.Cooking(storage.NewMemoryStore())
	return NewService(client, store, nil), store
}

func TestStartAndSteps(t *testing.T) {
	f := &fakeServer{}
	svc, store := newService(t, f)
	ctx := context.Background()

	cs, err := svc.Start(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(55), cs.ID)
	assert.Equal(t, "Pilzrisotto", cs.RecipeTitle)

	id, ok := store.SessionID()
	require.True(t, ok)
	assert.Equal(t, int64(55), id)

	steps, err := svc.Instructions(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 120, steps[1].TimerSeconds)

	require.NoError(t, svc.Next(ctx))
	assert.Equal(t, 1, svc.Current().State)

	err = svc.Next(ctx)
	assert.ErrorIs(t, err, ErrStepOutOfRange)
	assert.Equal(t, messages.StepOutOfRange, messages.For(err))
	assert.ErrorIs(t, svc.GoTo(ctx, -1), ErrStepOutOfRange)

	assert.Equal(t, []int{1}, f.states)
}

func TestAsk(t *testing.T) {
	f := &fakeServer{}
	svc, _ := newService(t, f)
	ctx := context.Background()

	_, err := svc.Ask(ctx, "Wie lange?")
	assert.ErrorIs(t, err, ErrNoSession, "asking without a session")

	_, err = svc.Start(ctx, 7)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, f.questions)

	answer, err := svc.Ask(ctx, " Wie lange kocht der Reis? ")
	require.NoError(t, err)
	assert.Equal(t, "Etwa 18 Minuten.", answer)
	assert.Equal(t, []string{"Wie lange kocht der Reis?"}, f.questions)

	local := svc.LocalHistory()
	require.Len(t, local, 2)
	assert.Equal(t, "user", local[0].Role)
	assert.Equal(t, "assistant", local[1].Role)

	history, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestResume(t *testing.T) {
	t.Run("restores the stored session", func(t *testing.T) {
		svc, store := newService(t, &fakeServer{})
		require.NoError(t, store.StoreSessionID(55))

		cs, err := svc.Resume(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), cs.RecipeID)
	})

	t.Run("forgets a session the backend lost", func(t *testing.T) {
		svc, store := newService(t, &fakeServer{missing: true})
		require.NoError(t, store.StoreSessionID(55))

		_, err := svc.Resume(context.Background())
		assert.ErrorIs(t, err, ErrNoSession)
		assert.True(t, strings.Contains(err.Error(), "55"))
		_, ok := store.SessionID()
		assert.False(t, ok)
	})

	t.Run("another recipe drops cached instructions", func(t *testing.T) {
		svc, store := newService(t, &fakeServer{})
		ctx := context.Background()
		require.NoError(t, store.StoreSessionID(55))
		_, err := svc.Resume(ctx)
		require.NoError(t, err)
		steps, err := svc.Instructions(ctx)
		require.NoError(t, err)
		require.Len(t, steps, 2)

		require.NoError(t, store.StoreSessionID(66))
		cs, err := svc.Resume(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(8), cs.RecipeID)

		steps, err = svc.Instructions(ctx)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, "Linsen waschen", steps[0].Text)
	})

	t.Run("nothing stored", func(t *testing.T) {
		svc, _ := newService(t, &fakeServer{})
		_, err := svc.Resume(context.Background())
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestFinish(t *testing.T) {
	f := &fakeServer{}
	svc, store := newService(t, f)
	ctx := context.Background()

	_, err := svc.Start(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, svc.Finish(ctx))

	assert.True(t, f.finished)
	assert.Nil(t, svc.Current())
	_, ok := store.SessionID()
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Finish(ctx), ErrNoSession)
}
