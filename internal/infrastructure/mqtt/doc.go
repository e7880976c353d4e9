// Package mqtt provides MQTT client connectivity for the home orchestrator.
//
// MQTT is the bus between the orchestrator and everything around it:
//
//	capability bridges ↔ MQTT broker ↔ orchestrator ↔ MQTT broker ↔ dashboards
//
// The orchestrator publishes capability commands to bridges, consumes their
// health and state topics, writes the retained state mirror and watches the
// control topics used for remote triggers and configuration pushes.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained flags
//   - Subscriptions restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.BridgeHealth("lighting"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleHealth(payload)
//	    })
package mqtt
