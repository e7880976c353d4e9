// Package mqttbridge implements the capability adapters on top of MQTT.
//
// Every capability kind is served by an external bridge process that owns
// the device protocol (Zigbee hub, thermostat cloud API, AV hub, Z-Wave
// mesh, camera NVR, audio player, presence scanner). The orchestrator talks
// to those bridges only through the broker:
//
//	Core ──► graylogic/command/{kind}/{target}   CommandMessage (QoS 1)
//	Core ◄── graylogic/health/{kind}             HealthMessage (retained)
//	Core ◄── graylogic/state/{kind}/{id}         StateMessage
//
// Health messages become capability events: a named Event is forwarded
// as-is (so bridge-specific fatal names such as "no_hubs_found" demote the
// kind), otherwise the status is mapped to ready, error or fatal.
//
// State messages carry a Type that selects the typed change payload
// (thermostat reading, node event, node value, presence, toggle, activity).
package mqttbridge
