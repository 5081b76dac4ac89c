package session

import (
	"path/filepath"
	"testing"

	"piatto/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_storage.json")

	kv, err := storage.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, Preparing(kv).StoreSessionID(42))

	// A fresh store over the same file simulates a page reload.
	reloaded, err := storage.NewFileStore(path)
	require.NoError(t, err)
	id, ok := Preparing(reloaded).SessionID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestSessionIDValidation(t *testing.T) {
	cases := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{`"13"`, 13, true},
		{"1e3", 1000, true},
		{"12.5", 0, false},
		{"NaN", 0, false},
		{"Infinity", 0, false},
		{"null", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"0", 0, false},
		{"-5", 0, false},
		{"-1e3", 0, false},
		{"9223372036854775807", 9223372036854775807, true},
		{"9223372036854775808", 0, false},
		{"9.3e18", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			kv := storage.NewMemoryStore()
			require.NoError(t, kv.SetItem(PreparingKey, tc.raw))
			id, ok := Preparing(kv).SessionID()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestClearAndKeys(t *testing.T) {
	kv := storage.NewMemoryStore()
	prep, cook := Preparing(kv), Cooking(kv)

	require.NoError(t, prep.StoreSessionID(1))
	require.NoError(t, cook.StoreSessionID(2))

	require.NoError(t, prep.Clear())
	_, ok := prep.SessionID()
	assert.False(t, ok)

	id, ok := cook.SessionID()
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	raw, _, _ := kv.GetItem("piatto_current_cooking_session_id")
	assert.Equal(t, "2", raw)
}
