package timeline

import "time"

// InfiniteDurationMinutes is the sentinel marking an override that never
// expires; its EndTime is pinned far in the future and ignored.
const InfiniteDurationMinutes = 999999

// Source identifies where the active intent came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceSchedule Source = "schedule"
	SourceBoost    Source = "boost"
)

// HRUConfig is the setpoint payload an event, mode, or override carries.
type HRUConfig struct {
	Mode        *string            `json:"mode,omitempty"`
	Power       *float64           `json:"power,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Variables   map[string]float64 `json:"variables,omitempty"`
}

// Event is one weekly schedule entry.
type Event struct {
	ID string `json:"id"`

	// StartTime and EndTime are wall-clock times in "HH:MM" form.
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime,omitempty"`

	// DayOfWeek is 0-6 with Monday as 0; nil means every day.
	DayOfWeek *int `json:"dayOfWeek,omitempty"`

	// ModeID optionally defers the payload to a named mode.
	ModeID string `json:"modeId,omitempty"`

	HRUConfig *HRUConfig `json:"hruConfig,omitempty"`

	// LuftatorConfig maps valve entity ids to opening percentages.
	LuftatorConfig map[string]float64 `json:"luftatorConfig,omitempty"`

	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"` // 0-100
}

// Mode is a named setpoint bundle. Events and overrides reference modes by
// id; the mode supplies the concrete register values.
type Mode struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Power       *float64           `json:"power,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	NativeMode  *string            `json:"nativeMode,omitempty"`
	Variables   map[string]float64 `json:"variables,omitempty"`

	LuftatorConfig map[string]float64 `json:"luftatorConfig,omitempty"`

	// IsBoost marks the mode as offered for manual boost activation.
	IsBoost bool `json:"isBoost"`
}

// Override is the boost state: a mode (or inline config) that trumps the
// schedule until EndTime.
type Override struct {
	ModeID          string     `json:"modeId,omitempty"`
	CustomConfig    *HRUConfig `json:"customConfig,omitempty"`
	EndTime         time.Time  `json:"endTime"`
	DurationMinutes int        `json:"durationMinutes"`
}

// Expired reports whether the override no longer applies at now. The
// infinite sentinel never expires regardless of EndTime.
func (o *Override) Expired(now time.Time) bool {
	if o.DurationMinutes == InfiniteDurationMinutes {
		return false
	}
	return !o.EndTime.After(now)
}

// ActiveState is the derived per-tick result: which source decided the
// current setpoints. Recomputed every tick, never persisted.
type ActiveState struct {
	Source   Source `json:"source"`
	ModeName string `json:"modeName,omitempty"`
}

// Intent is the resolver's decision for one tick: the source, the merged
// setpoints to apply, and the valve openings.
type Intent struct {
	Source   Source
	ModeName string

	// Config is nil for manual intents: the device is left as-is.
	Config *HRUConfig

	Luftator map[string]float64

	// ClearOverride is set when a persisted override was found expired or
	// referencing a vanished mode; the caller removes it.
	ClearOverride bool
}

// State returns the ActiveState view of the intent.
func (i Intent) State() ActiveState {
	return ActiveState{Source: i.Source, ModeName: i.ModeName}
}
