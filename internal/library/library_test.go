package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"piatto/internal/messages"
	"piatto/internal/recipe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op       string
	recipeID int64
}

type fakeBackend struct {
	calls     []call
	saveErr   error
	removeErr error
	unsaveErr error
	addErr    error
}

func (f *fakeBackend) SaveRecipe(_ context.Context, id int64) error {
	f.calls = append(f.calls, call{"save", id})
	return f.saveErr
}

func (f *fakeBackend) UnsaveRecipe(_ context.Context, id int64) error {
	f.calls = append(f.calls, call{"unsave", id})
	return f.unsaveErr
}

func (f *fakeBackend) RemoveCurrentRecipe(_ context.Context, _, id int64) ([]int64, error) {
	f.calls = append(f.calls, call{"remove", id})
	return nil, f.removeErr
}

func (f *fakeBackend) AddCurrentRecipe(_ context.Context, _, id int64) ([]int64, error) {
	f.calls = append(f.calls, call{"add", id})
	return nil, f.addErr
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTracker(b *fakeBackend, c *clock) *Tracker {
	opts := []recipe.Option{
		{ID: -1},
		{ID: 1, Title: "Pilzrisotto"},
		{ID: 2, Title: "Linsensuppe"},
	}
	return NewTracker(b, 42, opts, WithClock(c.now), WithUndoWindow(5*time.Second))
}

func TestSave(t *testing.T) {
	b := &fakeBackend{}
	tr := newTracker(b, &clock{t: time.Unix(0, 0)})

	require.NoError(t, tr.Save(context.Background(), 1))

	status, _ := tr.Status(1)
	assert.Equal(t, recipe.StatusSaved, status)
	assert.Equal(t, []call{{"save", 1}, {"remove", 1}}, b.calls)
	assert.ErrorIs(t, tr.Save(context.Background(), 1), ErrNotPending)

	pending := tr.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)
	assert.Len(t, tr.Saved(), 1)
}

func TestSaveCompensatesFailedRemoval(t *testing.T) {
	removeErr := errors.New("remove failed")
	b := &fakeBackend{removeErr: removeErr}
	tr := newTracker(b, &clock{t: time.Unix(0, 0)})

	err := tr.Save(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, removeErr)

	assert.Equal(t, []call{{"save", 1}, {"remove", 1}, {"unsave", 1}, {"add", 1}}, b.calls)
	status, _ := tr.Status(1)
	assert.Equal(t, recipe.StatusPending, status)
}

func TestSaveCompensationFailureIsJoined(t *testing.T) {
	removeErr := errors.New("remove failed")
	unsaveErr := errors.New("unsave failed")
	b := &fakeBackend{removeErr: removeErr, unsaveErr: unsaveErr}
	tr := newTracker(b, &clock{t: time.Unix(0, 0)})

	err := tr.Save(context.Background(), 1)
	assert.ErrorIs(t, err, removeErr)
	assert.ErrorIs(t, err, unsaveErr)
}

func TestDiscardAndUndo(t *testing.T) {
	b := &fakeBackend{}
	c := &clock{t: time.Unix(0, 0)}
	tr := newTracker(b, c)

	require.NoError(t, tr.Discard(context.Background(), 2))
	assert.True(t, tr.CanUndo(2))

	c.advance(3 * time.Second)
	require.NoError(t, tr.Undo(context.Background(), 2))

	status, _ := tr.Status(2)
	assert.Equal(t, recipe.StatusPending, status)
	assert.Equal(t, []call{{"remove", 2}, {"add", 2}}, b.calls)
}

func TestUndoSaved(t *testing.T) {
	b := &fakeBackend{}
	tr := newTracker(b, &clock{t: time.Unix(0, 0)})

	require.NoError(t, tr.Save(context.Background(), 1))
	require.NoError(t, tr.Undo(context.Background(), 1))

	assert.Equal(t, []call{{"save", 1}, {"remove", 1}, {"unsave", 1}, {"add", 1}}, b.calls)
}

func TestUndoExpired(t *testing.T) {
	b := &fakeBackend{}
	c := &clock{t: time.Unix(0, 0)}
	tr := newTracker(b, c)

	require.NoError(t, tr.Save(context.Background(), 1))
	c.advance(6 * time.Second)

	err := tr.Undo(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUndoExpired)
	assert.Equal(t, messages.UndoExpired, messages.For(err))
	assert.False(t, tr.CanUndo(1))

	status, _ := tr.Status(1)
	assert.Equal(t, recipe.StatusSaved, status)
}

func TestUndoErrors(t *testing.T) {
	tr := newTracker(&fakeBackend{}, &clock{t: time.Unix(0, 0)})

	assert.ErrorIs(t, tr.Undo(context.Background(), 1), ErrNothingToUndo)
	assert.ErrorIs(t, tr.Undo(context.Background(), 99), ErrUnknownRecipe)
	assert.ErrorIs(t, tr.Save(context.Background(), -1), ErrUnknownRecipe, "placeholders are not tracked")
}

func TestSaveAll(t *testing.T) {
	b := &fakeBackend{}
	tr := newTracker(b, &clock{t: time.Unix(0, 0)})
	require.NoError(t, tr.Save(context.Background(), 1))

	require.NoError(t, tr.SaveAll(context.Background(), []int64{1, 2}))
	assert.Empty(t, tr.Pending())
	assert.Len(t, tr.Entries(), 2)
}
