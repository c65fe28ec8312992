package settings

import (
	"context"
	"errors"
	"strconv"
)

// HRUSettings selects the active heat-recovery unit and its Modbus endpoint.
type HRUSettings struct {
	// Unit is the id of the selected unit in the catalog.
	Unit string `json:"unit"`

	// Host and Port locate the Modbus TCP endpoint.
	Host string `json:"host"`
	Port int    `json:"port"`

	// UnitID is the Modbus slave address.
	UnitID int `json:"unitId"`

	// MaxPower is the installer-set power ceiling for configurable units.
	// Nil means no ceiling applies.
	MaxPower *float64 `json:"maxPower,omitempty"`
}

// MQTTSettings holds installer-configured broker settings.
type MQTTSettings struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// GetHRU returns the persisted HRU settings, or nil when none are stored.
func (s *Store) GetHRU(ctx context.Context) (*HRUSettings, error) {
	var hru HRUSettings
	err := s.GetJSON(ctx, KeyHRU, &hru)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hru, nil
}

// SetHRU persists the HRU settings.
func (s *Store) SetHRU(ctx context.Context, hru HRUSettings) error {
	return s.SetJSON(ctx, KeyHRU, hru)
}

// GetMQTT returns the persisted MQTT settings, or nil when none are stored.
func (s *Store) GetMQTT(ctx context.Context) (*MQTTSettings, error) {
	var mqtt MQTTSettings
	err := s.GetJSON(ctx, KeyMQTT, &mqtt)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mqtt, nil
}

// SetMQTT persists the MQTT settings.
func (s *Store) SetMQTT(ctx context.Context, mqtt MQTTSettings) error {
	return s.SetJSON(ctx, KeyMQTT, mqtt)
}

// GetBoostDuration returns the configured boost duration in minutes.
// Returns the given default when unset.
func (s *Store) GetBoostDuration(ctx context.Context, def int) (int, error) {
	raw, err := s.Get(ctx, KeyBoostDuration)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	minutes, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return 0, ErrInvalidValue
	}
	return minutes, nil
}

// SetBoostDuration persists the boost duration in minutes.
func (s *Store) SetBoostDuration(ctx context.Context, minutes int) error {
	return s.Set(ctx, KeyBoostDuration, strconv.Itoa(minutes))
}

// GetDiscoveredBoosts returns the persisted modeId -> published slug map.
// Returns an empty map when unset.
func (s *Store) GetDiscoveredBoosts(ctx context.Context) (map[string]string, error) {
	boosts := make(map[string]string)
	err := s.GetJSON(ctx, KeyDiscoveredBoosts, &boosts)
	if errors.Is(err, ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return boosts, nil
}

// SetDiscoveredBoosts persists the modeId -> published slug map.
func (s *Store) SetDiscoveredBoosts(ctx context.Context, boosts map[string]string) error {
	return s.SetJSON(ctx, KeyDiscoveredBoosts, boosts)
}

// GetLastUnitID returns the last unit id discovery published for,
// or "" when unset.
func (s *Store) GetLastUnitID(ctx context.Context) (string, error) {
	raw, err := s.Get(ctx, KeyLastUnitID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return raw, err
}

// SetLastUnitID persists the last unit id discovery published for.
func (s *Store) SetLastUnitID(ctx context.Context, id string) error {
	return s.Set(ctx, KeyLastUnitID, id)
}
