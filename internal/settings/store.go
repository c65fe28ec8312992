package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luftuj/hru-core/internal/infrastructure/database"
)

// Well-known settings keys. Values are opaque strings; most hold JSON
// documents described by the types in types.go.
const (
	KeyHRU               = "hru"                // HRUSettings JSON
	KeyMQTT              = "mqtt"               // MQTTSettings JSON
	KeyTimelineEvents    = "timeline.events"    // timeline event list JSON
	KeyTimelineModes     = "timeline.modes"     // timeline mode list JSON
	KeyTimelineOverride  = "timeline.override"  // timeline override JSON (absent = none)
	KeyBoostDuration     = "boost.duration"     // integer minutes
	KeyDiscoveredBoosts  = "discovery.boosts"   // map modeId -> published slug JSON
	KeyLastDiscovery     = "discovery.last"     // RFC3339 timestamp
	KeyLastUnitID        = "hru.last_unit"      // unit id string
	KeyLanguage          = "language"           // UI language code
)

// Store provides persisted key/value settings backed by SQLite.
//
// Keys are opaque strings; values are stored verbatim. Typed accessors for
// the well-known keys are provided in types.go.
//
// Thread Safety: all methods are safe for concurrent use (the underlying
// *sql.DB serialises access).
type Store struct {
	db *database.DB
}

// NewStore creates a settings store over an opened database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Get returns the raw value for a key.
// Returns ErrNotFound if the key has never been set.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores the raw value for a key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the JSON value stored under key into dest.
// Returns ErrNotFound if the key has never been set.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
	}
	return nil
}

// SetJSON encodes value as JSON and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
