package valve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/luftuj/hru-core/internal/infrastructure/mqtt"
)

// commandQoS is the QoS for valve opening commands.
const commandQoS = 1

// Publisher is the broker surface the driver needs. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTDriver applies valve openings by publishing one opening-percentage
// command per entity. Failures on one valve do not stop the others; the
// combined error is returned so the caller can log it.
type MQTTDriver struct {
	broker Publisher
	logger *slog.Logger
}

// NewMQTTDriver creates a valve driver over the given broker connection.
func NewMQTTDriver(broker Publisher, logger *slog.Logger) *MQTTDriver {
	return &MQTTDriver{broker: broker, logger: logger}
}

// Apply publishes the opening percentage for every entity in the map.
// Openings are clamped to 0..100.
func (d *MQTTDriver) Apply(ctx context.Context, openings map[string]float64) error {
	var errs []error
	for entityID, opening := range openings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if opening < 0 {
			opening = 0
		} else if opening > 100 {
			opening = 100
		}

		topic := mqtt.Topics{}.LuftatorSet(entityID)
		payload := strconv.FormatFloat(opening, 'f', -1, 64)
		if err := d.broker.Publish(topic, []byte(payload), commandQoS, false); err != nil {
			errs = append(errs, fmt.Errorf("valve %s: %w", entityID, err))
			continue
		}
		d.logger.Debug("valve opening published", "entity", entityID, "opening", opening)
	}
	return errors.Join(errs...)
}
