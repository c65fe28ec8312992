// Package mqtt wraps paho.mqtt.golang with the connection and topic
// conventions used by the Luftuj core.
//
// # Key Types
//
//   - Client: managed broker connection with auto-reconnect, subscription
//     restoration, and panic-safe message handlers.
//   - Topics: builders for the luftuj/hru/{unitSlug}/... surface and the
//     Home Assistant discovery paths.
//   - MessageHandler: callback signature for received messages.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{}.Status(unitSlug))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.BoostCancel(unitSlug), 1, handleCancel)
//	client.PublishRetained(mqtt.Topics{}.State(unitSlug), payload)
//
// The availability topic passed to Connect doubles as the Last Will topic:
// the broker publishes the retained "offline" payload there if the client
// drops without a graceful Close. Subscriptions registered through Subscribe
// are tracked and restored automatically after every reconnect.
package mqtt
