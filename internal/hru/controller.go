package hru

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/luftuj/hru-core/internal/catalog"
	"github.com/luftuj/hru-core/internal/command"
	"github.com/luftuj/hru-core/internal/modbus"
	"github.com/luftuj/hru-core/internal/settings"
)

// Variable names the regulation scripts exchange with the controller.
const (
	varPower       = "$power"
	varTemperature = "$temperature"
	varMode        = "$mode"
)

// ResolvedConfiguration is the active unit with its strategy and endpoint,
// resolved from persisted settings against the catalog.
type ResolvedConfiguration struct {
	Settings settings.HRUSettings
	Unit     *catalog.HeatRecoveryUnit
	Strategy *catalog.RegulationStrategy
	Key      modbus.Key
}

// AxisValues is the normalised view of one read cycle.
type AxisValues struct {
	Power       *float64 `json:"power,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Mode        string   `json:"mode,omitempty"`
}

// Values is the full result of a read cycle: the normalised axis values,
// the raw script scope, and the auxiliary variables the scripts produced
// beyond the three axes.
type Values struct {
	Value     AxisValues         `json:"value"`
	Raw       map[string]float64 `json:"raw"`
	Registers map[string]float64 `json:"registers,omitempty"`
}

// WriteRequest is a partial setpoint update: only non-nil axes are written.
// Mode accepts either the display name or the numeric code as a string.
// Variables are injected into the script scope alongside the axis values.
type WriteRequest struct {
	Power       *float64           `json:"power,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Mode        *string            `json:"mode,omitempty"`
	Variables   map[string]float64 `json:"variables,omitempty"`
}

// Controller resolves the active unit and executes its regulation scripts.
// It is the only component that talks to the wire on the timeline's behalf.
type Controller struct {
	catalog  *catalog.Catalog
	settings *settings.Store
	executor Executor
	logger   *slog.Logger
}

// NewController creates a device controller.
func NewController(cat *catalog.Catalog, store *settings.Store, executor Executor, logger *slog.Logger) *Controller {
	return &Controller{
		catalog:  cat,
		settings: store,
		executor: executor,
		logger:   logger,
	}
}

// ResolvedConfiguration resolves the persisted HRU settings against the
// catalog. Returns (nil, nil) when no unit is selected or the selected
// unit/strategy id cannot be resolved: callers treat that as "not
// configured" and skip the cycle, never as a failure.
func (c *Controller) ResolvedConfiguration(ctx context.Context) (*ResolvedConfiguration, error) {
	hru, err := c.settings.GetHRU(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	if hru == nil || hru.Unit == "" {
		return nil, nil
	}

	unit, ok := c.catalog.Unit(hru.Unit)
	if !ok {
		c.logger.Warn("selected unit not in catalog", "unit", hru.Unit)
		return nil, nil
	}
	strategy, ok := c.catalog.Strategy(unit.RegulationTypeID)
	if !ok {
		c.logger.Warn("unit strategy not in catalog",
			"unit", unit.ID,
			"strategy", unit.RegulationTypeID)
		return nil, nil
	}

	return &ResolvedConfiguration{
		Settings: *hru,
		Unit:     unit,
		Strategy: strategy,
		Key: modbus.Key{
			Host:   hru.Host,
			Port:   hru.Port,
			UnitID: byte(hru.UnitID),
		},
	}, nil
}

// Units returns every unit in the catalog, for the selection UI.
func (c *Controller) Units() []*catalog.HeatRecoveryUnit {
	return c.catalog.Units()
}

// ReadValues runs the read script of every capable axis, in power,
// temperature, mode order, sharing one variable scope, and folds the result.
// Returns ErrNotConfigured when no unit is resolvable.
func (c *Controller) ReadValues(ctx context.Context) (*Values, error) {
	cfg, err := c.ResolvedConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}

	var scripts []command.Script
	if p := cfg.Strategy.PowerCommands; p != nil && len(p.Read) > 0 {
		scripts = append(scripts, p.Read)
	}
	if tc := cfg.Strategy.TemperatureCommands; tc != nil && len(tc.Read) > 0 {
		scripts = append(scripts, tc.Read)
	}
	if m := cfg.Strategy.ModeCommands; m != nil && len(m.Read) > 0 {
		scripts = append(scripts, m.Read)
	}

	scope, err := c.executor.RunScripts(ctx, cfg.Key, scripts, nil)
	if err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}

	return c.foldValues(cfg, scope), nil
}

// foldValues converts a final script scope into the normalised Values view.
func (c *Controller) foldValues(cfg *ResolvedConfiguration, scope command.Scope) *Values {
	values := &Values{
		Raw:       map[string]float64{},
		Registers: map[string]float64{},
	}

	for name, val := range scope {
		values.Raw[name] = val
		switch name {
		case varPower:
			v := val
			values.Value.Power = &v
		case varTemperature:
			v := val
			values.Value.Temperature = &v
		case varMode:
			values.Value.Mode = c.ModeName(cfg.Strategy, val)
		default:
			values.Registers[name] = val
		}
	}
	return values
}

// WriteValues runs the write script of every axis present in the request.
// The whole batch executes as one exclusive unit on the connection.
// Returns ErrNotConfigured when no unit is resolvable.
func (c *Controller) WriteValues(ctx context.Context, req WriteRequest) error {
	cfg, err := c.ResolvedConfiguration(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotConfigured
	}

	initial := command.Scope{}
	for name, val := range req.Variables {
		key := name
		if !strings.HasPrefix(key, "$") {
			key = "$" + key
		}
		initial[key] = val
	}

	var scripts []command.Script

	if req.Power != nil {
		if cfg.Strategy.PowerCommands == nil || len(cfg.Strategy.PowerCommands.Write) == 0 {
			return fmt.Errorf("%w: power", ErrAxisUnsupported)
		}
		initial[varPower] = c.capPower(cfg, *req.Power)
		scripts = append(scripts, cfg.Strategy.PowerCommands.Write)
	}
	if req.Temperature != nil {
		if cfg.Strategy.TemperatureCommands == nil || len(cfg.Strategy.TemperatureCommands.Write) == 0 {
			return fmt.Errorf("%w: temperature", ErrAxisUnsupported)
		}
		initial[varTemperature] = *req.Temperature
		scripts = append(scripts, cfg.Strategy.TemperatureCommands.Write)
	}
	if req.Mode != nil {
		if cfg.Strategy.ModeCommands == nil || len(cfg.Strategy.ModeCommands.Write) == 0 {
			return fmt.Errorf("%w: mode", ErrAxisUnsupported)
		}
		code, err := c.ModeCode(cfg.Strategy, *req.Mode)
		if err != nil {
			return err
		}
		initial[varMode] = code
		scripts = append(scripts, cfg.Strategy.ModeCommands.Write)
	}

	if len(scripts) == 0 {
		return nil
	}

	if _, err := c.executor.RunScripts(ctx, cfg.Key, scripts, initial); err != nil {
		return fmt.Errorf("writing values: %w", err)
	}

	c.logger.Debug("setpoints written",
		"unit", cfg.Unit.ID,
		"axes", len(scripts))
	return nil
}

// capPower applies the installer-set ceiling on configurable units.
func (c *Controller) capPower(cfg *ResolvedConfiguration, power float64) float64 {
	if !cfg.Unit.IsConfigurable || cfg.Settings.MaxPower == nil {
		return power
	}
	if power > *cfg.Settings.MaxPower {
		c.logger.Debug("power capped to installer ceiling",
			"requested", power,
			"ceiling", *cfg.Settings.MaxPower)
		return *cfg.Settings.MaxPower
	}
	return power
}

// ModeName maps a device mode code to its display name, falling back to the
// numeric string when the strategy does not map it.
func (c *Controller) ModeName(strategy *catalog.RegulationStrategy, code float64) string {
	key := strconv.Itoa(int(code))
	if strategy.ModeCommands != nil {
		if name, ok := strategy.ModeCommands.AvailableModes[key]; ok {
			return name
		}
	}
	return key
}

// ModeCode maps a mode given by name (or numeric string) to the device code.
// Name lookup is the reverse of AvailableModes; a plain numeric string is
// accepted as-is.
func (c *Controller) ModeCode(strategy *catalog.RegulationStrategy, mode string) (float64, error) {
	if strategy.ModeCommands != nil {
		for code, name := range strategy.ModeCommands.AvailableModes {
			if strings.EqualFold(name, mode) {
				v, err := strconv.ParseFloat(code, 64)
				if err != nil {
					return 0, fmt.Errorf("%w: mode code %q", ErrUnknownMode, code)
				}
				return v, nil
			}
		}
	}
	if v, err := strconv.ParseFloat(mode, 64); err == nil {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// KeepAlive runs the strategy's keep-alive script, if declared, and returns
// the declared re-issue period. A zero period means the strategy has no
// keep-alive and the caller should retry at its own fixed interval.
func (c *Controller) KeepAlive(ctx context.Context) (time.Duration, error) {
	cfg, err := c.ResolvedConfiguration(ctx)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, ErrNotConfigured
	}
	ka := cfg.Strategy.KeepAlive
	if ka == nil || len(ka.Commands) == 0 {
		return 0, nil
	}

	if _, err := c.executor.RunScripts(ctx, cfg.Key,
		[]command.Script{ka.Commands}, nil); err != nil {
		return 0, fmt.Errorf("keep-alive: %w", err)
	}
	return time.Duration(ka.PeriodMs) * time.Millisecond, nil
}
