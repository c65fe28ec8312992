// Package timeline decides, once per tick, which intent governs the
// heat-recovery unit: a live boost override, the weekly schedule, or manual
// control.
//
// Resolution is a pure function (Resolve) over persisted events, modes, and
// the override. A live boost always wins; the schedule search walks day
// offsets from today back one week, requiring today's events to have
// started, and breaks ties by latest start time then priority. An override
// whose duration carries the infinite sentinel never expires.
//
// The Runner wraps the resolver in a cancellable periodic loop with an
// immediate-trigger path for MQTT commands, applies valve openings and HRU
// setpoints independently (neither failure aborts the other), records the
// decided ActiveState even when applying fails, and drives the vendor
// keep-alive script at its declared period.
package timeline
