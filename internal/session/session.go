// Package session persists the preparing and cooking session ids so a
// multi-step flow survives restarts.
package session

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"piatto/internal/storage"
)

const (
	// PreparingKey holds the active preparing session id.
	PreparingKey = "piatto_preparing_session_id"
	// CookingKey holds the active cooking session id.
	CookingKey = "piatto_current_cooking_session_id"
)

// Store reads and writes one session id under a fixed key.
type Store struct {
	kv  storage.KV
	key string
}

// NewStore creates a Store for key on kv.
func NewStore(kv storage.KV, key string) *Store {
	return &Store{kv: kv, key: key}
}

// Preparing is the store of the preparing session id.
func Preparing(kv storage.KV) *Store { return NewStore(kv, PreparingKey) }

// Cooking is the store of the cooking session id.
func Cooking(kv storage.KV) *Store { return NewStore(kv, CookingKey) }

// StoreSessionID persists id.
func (s *Store) StoreSessionID(id int64) error {
	if err := s.kv.SetItem(s.key, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("failed to store session id: %w", err)
	}
	return nil
}

// SessionID returns the stored id. It reports false when nothing is stored or
// the stored value is not a positive integer.
func (s *Store) SessionID() (int64, bool) {
	raw, ok, err := s.kv.GetItem(s.key)
	if err != nil || !ok {
		return 0, false
	}
	return parseID(raw)
}

// Clear removes the stored id.
func (s *Store) Clear() error {
	if err := s.kv.RemoveItem(s.key); err != nil {
		return fmt.Errorf("failed to clear session id: %w", err)
	}
	return nil
}

func parseID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	// Values written as JSON strings arrive quoted.
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	if raw == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return validID(id)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if f >= 0x1p63 || f < -0x1p63 {
		return 0, false
	}
	return validID(int64(f))
}

// Backend ids start at 1.
func validID(id int64) (int64, bool) {
	if id <= 0 {
		return 0, false
	}
	return id, true
}
