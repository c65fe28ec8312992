package timeline

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Resolve computes the single active intent for one tick.
//
// Precedence: a live boost override wins outright; otherwise the schedule is
// searched with a 7-day lookback; with neither, the intent is manual and the
// device is left untouched.
func Resolve(now time.Time, events []Event, modes []Mode, override *Override) Intent {
	byID := make(map[string]Mode, len(modes))
	for _, m := range modes {
		byID[m.ID] = m
	}

	if override != nil {
		if intent, ok := resolveOverride(now, override, byID); ok {
			return intent
		}
		// Expired or dangling override: fall through to the schedule and
		// tell the caller to clear it.
		return withClearedOverride(resolveSchedule(now, events, byID))
	}

	return resolveSchedule(now, events, byID)
}

func withClearedOverride(intent Intent) Intent {
	intent.ClearOverride = true
	return intent
}

// resolveOverride turns a live override into a boost intent. Returns false
// when the override is expired or references a mode that no longer exists.
func resolveOverride(now time.Time, override *Override, modes map[string]Mode) (Intent, bool) {
	if override.Expired(now) {
		return Intent{}, false
	}

	if override.ModeID != "" {
		mode, ok := modes[override.ModeID]
		if !ok {
			return Intent{}, false
		}
		return Intent{
			Source:   SourceBoost,
			ModeName: mode.Name,
			Config:   mergeMode(nil, &mode),
			Luftator: mode.LuftatorConfig,
		}, true
	}

	if override.CustomConfig != nil {
		return Intent{
			Source: SourceBoost,
			Config: override.CustomConfig,
		}, true
	}

	return Intent{}, false
}

// resolveSchedule searches for the governing schedule event with the 7-day
// lookback, then merges its mode (if named) over its inline config.
func resolveSchedule(now time.Time, events []Event, modes map[string]Mode) Intent {
	event := findScheduleEvent(now, events)
	if event == nil {
		return Intent{Source: SourceManual}
	}

	intent := Intent{
		Source:   SourceSchedule,
		Config:   event.HRUConfig,
		Luftator: event.LuftatorConfig,
	}

	if event.ModeID != "" {
		if mode, ok := modes[event.ModeID]; ok {
			intent.ModeName = mode.Name
			intent.Config = mergeMode(event.HRUConfig, &mode)
			if len(mode.LuftatorConfig) > 0 {
				intent.Luftator = mode.LuftatorConfig
			}
		}
	}

	return intent
}

// findScheduleEvent walks day offsets 0 (today) to 6, returning the winning
// event of the first day with candidates. Today's candidates must have
// started; past-day events count at any time of day once their day matches.
// Within a day, the latest start time wins and priority breaks ties.
func findScheduleEvent(now time.Time, events []Event) *Event {
	today := mondayWeekday(now)
	nowMinutes := now.Hour()*60 + now.Minute()

	for d := 0; d < 7; d++ {
		targetDay := (today - d + 7) % 7

		var candidates []Event
		for _, ev := range events {
			if !ev.Enabled {
				continue
			}
			if ev.DayOfWeek != nil && *ev.DayOfWeek != targetDay {
				continue
			}
			start, ok := parseClock(ev.StartTime)
			if !ok {
				continue
			}
			if d == 0 && start > nowMinutes {
				continue
			}
			candidates = append(candidates, ev)
		}

		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			si, _ := parseClock(candidates[i].StartTime)
			sj, _ := parseClock(candidates[j].StartTime)
			if si != sj {
				return si > sj
			}
			return candidates[i].Priority > candidates[j].Priority
		})
		winner := candidates[0]
		return &winner
	}

	return nil
}

// mergeMode lays mode-level fields over event-level fields: the mode wins
// wherever it specifies a value, the event fills the gaps.
func mergeMode(base *HRUConfig, mode *Mode) *HRUConfig {
	merged := HRUConfig{}
	if base != nil {
		merged = *base
	}
	if mode.Power != nil {
		merged.Power = mode.Power
	}
	if mode.Temperature != nil {
		merged.Temperature = mode.Temperature
	}
	if mode.NativeMode != nil {
		merged.Mode = mode.NativeMode
	}
	if len(mode.Variables) > 0 {
		vars := make(map[string]float64, len(merged.Variables)+len(mode.Variables))
		for k, v := range merged.Variables {
			vars[k] = v
		}
		for k, v := range mode.Variables {
			vars[k] = v
		}
		merged.Variables = vars
	}
	return &merged
}

// mondayWeekday converts time.Weekday (Sunday=0) to the schedule's
// Monday=0 numbering.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
