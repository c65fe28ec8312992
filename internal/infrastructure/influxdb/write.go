package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReadCycle records one completed read cycle for a unit.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Nil axis values (capability not supported or not read) are omitted.
//
// Parameters:
//   - unitID: Catalog id of the heat-recovery unit
//   - power: Power setpoint in percent, or nil
//   - temperature: Temperature setpoint, or nil
//   - mode: Resolved mode name, "" when the unit has no mode axis
func (c *Client) WriteReadCycle(unitID string, power, temperature *float64, mode string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{}
	if power != nil {
		fields["power"] = *power
	}
	if temperature != nil {
		fields["temperature"] = *temperature
	}
	if mode != "" {
		fields["mode"] = mode
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"hru_values",
		map[string]string{"unit_id": unitID},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRegisters records the auxiliary script variables of a read cycle
// (raw register words, bypass flags, vendor-specific extras).
func (c *Client) WriteRegisters(unitID string, registers map[string]float64) {
	if !c.IsConnected() || len(registers) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(registers))
	for name, value := range registers {
		fields[name] = value
	}

	point := write.NewPoint(
		"hru_registers",
		map[string]string{"unit_id": unitID},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTickState records the intent decided by one timeline tick.
//
// Parameters:
//   - unitID: Catalog id of the heat-recovery unit
//   - source: Winning intent source (manual, schedule, boost)
//   - modeName: Display name of the governing mode, "" for plain manual
func (c *Client) WriteTickState(unitID, source, modeName string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{"active": 1}
	if modeName != "" {
		fields["mode_name"] = modeName
	}

	point := write.NewPoint(
		"timeline_state",
		map[string]string{
			"unit_id": unitID,
			"source":  source,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
