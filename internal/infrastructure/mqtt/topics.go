package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Luftuj MQTT surface.
//
// All unit topics use the scheme: luftuj/hru/{unitSlug}/{suffix}
// Discovery documents follow the Home Assistant convention:
// homeassistant/{component}/luftuj_hru_{unitId}/{entityId}/config
const (
	// TopicPrefix is the base for all Luftuj topics.
	TopicPrefix = "luftuj"

	// TopicPrefixHRU is the base for per-unit topics.
	TopicPrefixHRU = "luftuj/hru"

	// DiscoveryPrefix is the Home Assistant discovery base.
	DiscoveryPrefix = "homeassistant"
)

// Well-known payloads on the command and availability topics.
const (
	// PayloadStart triggers a boost on a boost/{modeId}/start topic.
	PayloadStart = "START"

	// PayloadCancel cancels the active boost on boost/cancel.
	PayloadCancel = "CANCEL"

	// StatusOnline is the retained availability payload while connected.
	StatusOnline = "online"

	// StatusOffline is the availability payload on disconnect (and the LWT).
	StatusOffline = "offline"
)

// Topics provides builders for Luftuj MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("atrea-duplex-380")
//	// Returns: "luftuj/hru/atrea-duplex-380/state"
type Topics struct{}

// State returns the periodic state topic for a unit.
//
// Example: luftuj/hru/atrea-duplex-380/state
func (Topics) State(unitSlug string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixHRU, unitSlug)
}

// Status returns the availability topic for a unit. It carries the retained
// online/offline payload and doubles as the Last Will topic.
//
// Example: luftuj/hru/atrea-duplex-380/status
func (Topics) Status(unitSlug string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixHRU, unitSlug)
}

// BoostDurationSet returns the command topic for changing the default boost
// duration in minutes.
//
// Example: luftuj/hru/atrea-duplex-380/boost_duration/set
func (Topics) BoostDurationSet(unitSlug string) string {
	return fmt.Sprintf("%s/%s/boost_duration/set", TopicPrefixHRU, unitSlug)
}

// BoostCancel returns the command topic that cancels the active boost.
//
// Example: luftuj/hru/atrea-duplex-380/boost/cancel
func (Topics) BoostCancel(unitSlug string) string {
	return fmt.Sprintf("%s/%s/boost/cancel", TopicPrefixHRU, unitSlug)
}

// BoostStart returns the command topic that starts a timed boost for a mode.
//
// Example: luftuj/hru/atrea-duplex-380/boost/mode-123/start
func (Topics) BoostStart(unitSlug, modeID string) string {
	return fmt.Sprintf("%s/%s/boost/%s/start", TopicPrefixHRU, unitSlug, modeID)
}

// BoostStartInfinite returns the command topic that starts a boost with the
// infinite-duration sentinel.
//
// Example: luftuj/hru/atrea-duplex-380/boost/mode-123/start_infinite
func (Topics) BoostStartInfinite(unitSlug, modeID string) string {
	return fmt.Sprintf("%s/%s/boost/%s/start_infinite", TopicPrefixHRU, unitSlug, modeID)
}

// Discovery returns the Home Assistant discovery topic for an entity.
//
// Example: homeassistant/fan/luftuj_hru_unit42/power/config
func (Topics) Discovery(component, unitID, entityID string) string {
	return fmt.Sprintf("%s/%s/luftuj_hru_%s/%s/config", DiscoveryPrefix, component, unitID, entityID)
}

// LuftatorSet returns the command topic for one valve's opening percentage.
//
// Example: luftuj/luftator/bedroom/set
func (Topics) LuftatorSet(entityID string) string {
	return fmt.Sprintf("%s/luftator/%s/set", TopicPrefix, entityID)
}

// ─── Wildcard Patterns for Subscriptions ───

// AllBoostStarts returns a pattern matching every timed boost-start command
// for a unit.
//
// Pattern: luftuj/hru/{unitSlug}/boost/+/start
func (Topics) AllBoostStarts(unitSlug string) string {
	return fmt.Sprintf("%s/%s/boost/+/start", TopicPrefixHRU, unitSlug)
}

// AllBoostStartsInfinite returns a pattern matching every infinite
// boost-start command for a unit.
//
// Pattern: luftuj/hru/{unitSlug}/boost/+/start_infinite
func (Topics) AllBoostStartsInfinite(unitSlug string) string {
	return fmt.Sprintf("%s/%s/boost/+/start_infinite", TopicPrefixHRU, unitSlug)
}

// AllUnitTopics returns a pattern matching everything under one unit.
//
// Pattern: luftuj/hru/{unitSlug}/#
func (Topics) AllUnitTopics(unitSlug string) string {
	return fmt.Sprintf("%s/%s/#", TopicPrefixHRU, unitSlug)
}

// ParseBoostStart extracts the mode id from a boost-start command topic.
// It accepts both the timed and the infinite form and reports which one
// matched. ok is false for any other topic shape.
func ParseBoostStart(topic string) (modeID string, infinite bool, ok bool) {
	parts := strings.Split(topic, "/")
	// luftuj/hru/{unitSlug}/boost/{modeId}/{start|start_infinite}
	if len(parts) != 6 || parts[0] != "luftuj" || parts[1] != "hru" || parts[3] != "boost" {
		return "", false, false
	}
	switch parts[5] {
	case "start":
		return parts[4], false, parts[4] != ""
	case "start_infinite":
		return parts[4], true, parts[4] != ""
	default:
		return "", false, false
	}
}
