// Package valve pushes damper/valve opening percentages to the external
// valve units over MQTT. The timeline treats the driver as best-effort: a
// valve failure never blocks the HRU setpoint apply.
package valve
