package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/luftuj/hru-core/internal/command"
)

// Load reads every strategy and unit JSON document from the two directories
// and returns the assembled catalog. A file that fails to decode or whose
// scripts fail validation is logged and skipped; only an unreadable
// directory is fatal.
func Load(strategiesDir, unitsDir string, logger *slog.Logger) (*Catalog, error) {
	cat := &Catalog{
		strategies: make(map[string]*RegulationStrategy),
		units:      make(map[string]*HeatRecoveryUnit),
	}

	if err := loadDir(strategiesDir, logger, func(path string, raw []byte) error {
		var strategy RegulationStrategy
		if err := json.Unmarshal(raw, &strategy); err != nil {
			return fmt.Errorf("decoding: %w", err)
		}
		if strategy.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidDocument)
		}
		if err := validateStrategy(&strategy); err != nil {
			return err
		}
		if _, exists := cat.strategies[strategy.ID]; exists {
			return fmt.Errorf("%w: duplicate strategy id %q", ErrInvalidDocument, strategy.ID)
		}
		cat.strategies[strategy.ID] = &strategy
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadDir(unitsDir, logger, func(path string, raw []byte) error {
		var unit HeatRecoveryUnit
		if err := json.Unmarshal(raw, &unit); err != nil {
			return fmt.Errorf("decoding: %w", err)
		}
		if unit.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidDocument)
		}
		if _, exists := cat.units[unit.ID]; exists {
			return fmt.Errorf("%w: duplicate unit id %q", ErrInvalidDocument, unit.ID)
		}
		if _, ok := cat.strategies[unit.RegulationTypeID]; !ok {
			// Not fatal: the unit stays selectable but resolves to "not
			// configured" until a matching strategy appears.
			logger.Warn("unit references unknown strategy",
				"unit", unit.ID,
				"strategy", unit.RegulationTypeID)
		}
		cat.units[unit.ID] = &unit
		return nil
	}); err != nil {
		return nil, err
	}

	strategies, units := cat.Len()
	logger.Info("catalog loaded", "strategies", strategies, "units", units)
	return cat, nil
}

// loadDir feeds every .json file in dir to decode, logging and skipping
// individual failures.
func loadDir(dir string, logger *slog.Logger, decode func(path string, raw []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading catalog directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable catalog file", "path", path, "error", err)
			continue
		}
		if err := decode(path, raw); err != nil {
			logger.Warn("skipping invalid catalog file", "path", path, "error", err)
		}
	}
	return nil
}

// validateStrategy checks every script in the strategy against the closed
// function set, so execution never meets an unknown function.
func validateStrategy(s *RegulationStrategy) error {
	scripts := map[string]command.Script{}
	if s.PowerCommands != nil {
		scripts["powerCommands.read"] = s.PowerCommands.Read
		scripts["powerCommands.write"] = s.PowerCommands.Write
	}
	if s.TemperatureCommands != nil {
		scripts["temperatureCommands.read"] = s.TemperatureCommands.Read
		scripts["temperatureCommands.write"] = s.TemperatureCommands.Write
	}
	if s.ModeCommands != nil {
		scripts["modeCommands.read"] = s.ModeCommands.Read
		scripts["modeCommands.write"] = s.ModeCommands.Write
	}
	if s.KeepAlive != nil {
		scripts["keepAlive.commands"] = s.KeepAlive.Commands
	}

	for name, script := range scripts {
		if err := command.Validate(script); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
