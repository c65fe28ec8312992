package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/luftuj/hru-core/internal/settings"
)

// Store persists timeline events, modes, and the boost override through the
// settings collaborator. The resolver consumes these read-only; the HTTP
// layer and MQTT command handlers write them.
type Store struct {
	settings *settings.Store
}

// NewStore creates a timeline store over the settings store.
func NewStore(s *settings.Store) *Store {
	return &Store{settings: s}
}

// Events returns the persisted schedule events, empty when never set.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	err := s.settings.GetJSON(ctx, settings.KeyTimelineEvents, &events)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

// SetEvents replaces the persisted schedule events.
func (s *Store) SetEvents(ctx context.Context, events []Event) error {
	return s.settings.SetJSON(ctx, settings.KeyTimelineEvents, events)
}

// Modes returns the persisted named modes, empty when never set.
func (s *Store) Modes(ctx context.Context) ([]Mode, error) {
	var modes []Mode
	err := s.settings.GetJSON(ctx, settings.KeyTimelineModes, &modes)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading modes: %w", err)
	}
	return modes, nil
}

// Mode returns one mode by id.
func (s *Store) Mode(ctx context.Context, id string) (*Mode, error) {
	modes, err := s.Modes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range modes {
		if modes[i].ID == id {
			return &modes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModeNotFound, id)
}

// SetModes replaces the persisted named modes.
func (s *Store) SetModes(ctx context.Context, modes []Mode) error {
	return s.settings.SetJSON(ctx, settings.KeyTimelineModes, modes)
}

// Override returns the persisted boost override, nil when none is active.
func (s *Store) Override(ctx context.Context) (*Override, error) {
	var override Override
	err := s.settings.GetJSON(ctx, settings.KeyTimelineOverride, &override)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading override: %w", err)
	}
	return &override, nil
}

// SetOverride persists the boost override.
func (s *Store) SetOverride(ctx context.Context, override Override) error {
	return s.settings.SetJSON(ctx, settings.KeyTimelineOverride, override)
}

// ClearOverride removes the boost override.
func (s *Store) ClearOverride(ctx context.Context) error {
	return s.settings.Delete(ctx, settings.KeyTimelineOverride)
}
