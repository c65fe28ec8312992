package discovery

import (
	"github.com/luftuj/hru-core/internal/catalog"
	"github.com/luftuj/hru-core/internal/infrastructure/mqtt"
	"github.com/luftuj/hru-core/internal/timeline"
)

// Home Assistant component types used by the published entities.
const (
	componentSensor = "sensor"
	componentNumber = "number"
	componentButton = "button"
)

// Boost duration bounds advertised on the number entity (minutes).
const (
	boostDurationMin  = 5
	boostDurationMax  = 1440
	boostDurationStep = 5
)

// deviceInfo groups all entities of one unit under a single device entry in
// the automation platform.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// entityConfig is the discovery document payload. One fixed template serves
// every capability; vendor differences only change which entities exist.
type entityConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic,omitempty"`
	ValueTemplate     string     `json:"value_template,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	CommandTopic      string     `json:"command_topic,omitempty"`
	PayloadPress      string     `json:"payload_press,omitempty"`
	Min               *int       `json:"min,omitempty"`
	Max               *int       `json:"max,omitempty"`
	Step              *int       `json:"step,omitempty"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	Device            deviceInfo `json:"device"`
}

// entity pairs a discovery document with its topic coordinates.
type entity struct {
	component string
	entityID  string
	config    entityConfig
}

// buildDevice describes the unit itself; every entity references it so the
// platform groups them together.
func buildDevice(unit *catalog.HeatRecoveryUnit, strategy *catalog.RegulationStrategy) deviceInfo {
	return deviceInfo{
		Identifiers:  []string{"luftuj_hru_" + unit.ID},
		Name:         unit.Name,
		Model:        unit.Code,
		Manufacturer: strategy.Name,
	}
}

// buildAxisEntities produces the per-capability entities for a unit: one
// sensor per readable axis, the active-mode sensor, the boost-duration
// number, and the boost-cancel button.
func buildAxisEntities(unit *catalog.HeatRecoveryUnit, strategy *catalog.RegulationStrategy, unitSlug string) []entity {
	topics := mqtt.Topics{}
	device := buildDevice(unit, strategy)
	stateTopic := topics.State(unitSlug)
	statusTopic := topics.Status(unitSlug)

	var entities []entity

	if strategy.HasCapability(catalog.CapPower) {
		entities = append(entities, entity{
			component: componentSensor,
			entityID:  "power",
			config: entityConfig{
				Name:              unit.Name + " Power",
				UniqueID:          "luftuj_hru_" + unit.ID + "_power",
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.value.power }}",
				UnitOfMeasurement: "%",
				AvailabilityTopic: statusTopic,
				Device:            device,
			},
		})
	}

	if strategy.HasCapability(catalog.CapTemperature) {
		entities = append(entities, entity{
			component: componentSensor,
			entityID:  "temperature",
			config: entityConfig{
				Name:              unit.Name + " Temperature",
				UniqueID:          "luftuj_hru_" + unit.ID + "_temperature",
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.value.temperature }}",
				UnitOfMeasurement: strategy.TemperatureUnit,
				AvailabilityTopic: statusTopic,
				Device:            device,
			},
		})
	}

	if strategy.HasCapability(catalog.CapMode) {
		entities = append(entities, entity{
			component: componentSensor,
			entityID:  "mode",
			config: entityConfig{
				Name:              unit.Name + " Mode",
				UniqueID:          "luftuj_hru_" + unit.ID + "_mode",
				StateTopic:        stateTopic,
				ValueTemplate:     "{{ value_json.value.mode }}",
				AvailabilityTopic: statusTopic,
				Device:            device,
			},
		})
	}

	entities = append(entities, entity{
		component: componentSensor,
		entityID:  "active_mode",
		config: entityConfig{
			Name:              unit.Name + " Active Mode",
			UniqueID:          "luftuj_hru_" + unit.ID + "_active_mode",
			StateTopic:        stateTopic,
			ValueTemplate:     "{{ value_json.source }}",
			AvailabilityTopic: statusTopic,
			Device:            device,
		},
	})

	minDur, maxDur, stepDur := boostDurationMin, boostDurationMax, boostDurationStep
	entities = append(entities, entity{
		component: componentNumber,
		entityID:  "boost_duration",
		config: entityConfig{
			Name:              unit.Name + " Boost Duration",
			UniqueID:          "luftuj_hru_" + unit.ID + "_boost_duration",
			CommandTopic:      topics.BoostDurationSet(unitSlug),
			UnitOfMeasurement: "min",
			Min:               &minDur,
			Max:               &maxDur,
			Step:              &stepDur,
			AvailabilityTopic: statusTopic,
			Device:            device,
		},
	})

	entities = append(entities, entity{
		component: componentButton,
		entityID:  "boost_cancel",
		config: entityConfig{
			Name:              unit.Name + " Boost Cancel",
			UniqueID:          "luftuj_hru_" + unit.ID + "_boost_cancel",
			CommandTopic:      topics.BoostCancel(unitSlug),
			PayloadPress:      mqtt.PayloadCancel,
			AvailabilityTopic: statusTopic,
			Device:            device,
		},
	})

	return entities
}

// buildBoostEntity produces the button entity for one boost-flagged mode.
// The entity id embeds the mode's slug so the reconciliation diff can
// address stale buttons by their published slug alone.
func buildBoostEntity(unit *catalog.HeatRecoveryUnit, strategy *catalog.RegulationStrategy, unitSlug string, mode timeline.Mode, modeSlug string) entity {
	topics := mqtt.Topics{}
	return entity{
		component: componentButton,
		entityID:  "boost_" + modeSlug,
		config: entityConfig{
			Name:              unit.Name + " Boost " + mode.Name,
			UniqueID:          "luftuj_hru_" + unit.ID + "_boost_" + modeSlug,
			CommandTopic:      topics.BoostStart(unitSlug, mode.ID),
			PayloadPress:      mqtt.PayloadStart,
			AvailabilityTopic: topics.Status(unitSlug),
			Device:            buildDevice(unit, strategy),
		},
	}
}
