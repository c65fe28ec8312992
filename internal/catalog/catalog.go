package catalog

import (
	"github.com/luftuj/hru-core/internal/command"
)

// Capability flags describing which axes a strategy can control.
const (
	CapPower       = 1 << 0
	CapTemperature = 1 << 1
	CapMode        = 1 << 2
)

// CommandPair couples the read and write scripts for one control axis.
type CommandPair struct {
	Read  command.Script `json:"read,omitempty"`
	Write command.Script `json:"write,omitempty"`
}

// ModeCommands is the mode axis: scripts plus the numeric-code-to-name
// mapping the device understands.
type ModeCommands struct {
	Read  command.Script `json:"read,omitempty"`
	Write command.Script `json:"write,omitempty"`

	// AvailableModes maps the device's numeric mode codes to display names.
	// Keys are decimal strings in the catalog files.
	AvailableModes map[string]string `json:"availableModes,omitempty"`
}

// KeepAlive is a periodically re-issued script some vendors require; the
// device reverts to local control when the master goes quiet.
type KeepAlive struct {
	// PeriodMs is the re-issue period in milliseconds.
	PeriodMs int `json:"period"`

	Commands command.Script `json:"commands"`
}

// RegulationStrategy maps abstract power/temperature/mode operations onto
// one vendor's register layout. Immutable once loaded.
type RegulationStrategy struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Capabilities int    `json:"capabilities"`

	// Optional overrides for axis granularity and display units.
	PowerStep       float64 `json:"powerStep,omitempty"`
	TemperatureStep float64 `json:"temperatureStep,omitempty"`
	TemperatureUnit string  `json:"temperatureUnit,omitempty"`

	PowerCommands       *CommandPair  `json:"powerCommands,omitempty"`
	TemperatureCommands *CommandPair  `json:"temperatureCommands,omitempty"`
	ModeCommands        *ModeCommands `json:"modeCommands,omitempty"`
	KeepAlive           *KeepAlive    `json:"keepAlive,omitempty"`
}

// HasCapability reports whether the strategy declares the given flag.
func (s *RegulationStrategy) HasCapability(flag int) bool {
	return s.Capabilities&flag != 0
}

// HeatRecoveryUnit is one installable device model. It references its
// strategy by id; resolution happens by catalog lookup, never by pointer.
type HeatRecoveryUnit struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Code             string  `json:"code"`
	RegulationTypeID string  `json:"regulationTypeId"`
	ControlUnit      string  `json:"controlUnit"` // "%", "m3/h" or "level"
	MaxValue         float64 `json:"maxValue"`
	IsConfigurable   bool    `json:"isConfigurable"`
}

// Catalog is the immutable in-memory table of strategies and units.
type Catalog struct {
	strategies map[string]*RegulationStrategy
	units      map[string]*HeatRecoveryUnit
}

// Strategy looks up a regulation strategy by id.
func (c *Catalog) Strategy(id string) (*RegulationStrategy, bool) {
	s, ok := c.strategies[id]
	return s, ok
}

// Unit looks up a heat-recovery unit by id.
func (c *Catalog) Unit(id string) (*HeatRecoveryUnit, bool) {
	u, ok := c.units[id]
	return u, ok
}

// Units returns all units, for the selection API. Order is unspecified.
func (c *Catalog) Units() []*HeatRecoveryUnit {
	units := make([]*HeatRecoveryUnit, 0, len(c.units))
	for _, u := range c.units {
		units = append(units, u)
	}
	return units
}

// Len returns the number of loaded strategies and units.
func (c *Catalog) Len() (strategies, units int) {
	return len(c.strategies), len(c.units)
}
