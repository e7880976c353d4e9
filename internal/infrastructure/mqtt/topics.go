package mqtt

import "fmt"

// DefaultPrefix is the root of every bridge and system topic.
const DefaultPrefix = "graylogic"

// Topics builds the orchestrator's MQTT topics under Prefix.
// The zero value uses DefaultPrefix.
//
// Bridge topics use the flat scheme {prefix}/{category}/{kind}/{target}:
//
//	topics := mqtt.Topics{}
//	topics.BridgeCommand("lighting", "scene")
//	// Returns: "graylogic/command/lighting/scene"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// BridgeCommand returns the topic for commands sent to a capability bridge.
//
// Example: graylogic/command/thermostat/temperature
func (t Topics) BridgeCommand(kind, target string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), kind, target)
}

// BridgeState returns the topic a bridge publishes a state change on.
//
// Example: graylogic/state/binary_mesh/node-7
func (t Topics) BridgeState(kind, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), kind, id)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/lighting
func (t Topics) BridgeHealth(kind string) string {
	return fmt.Sprintf("%s/health/%s", t.prefix(), kind)
}

// AllBridgeStates returns a pattern matching every state topic of one bridge.
//
// Pattern: graylogic/state/lighting/+
func (t Topics) AllBridgeStates(kind string) string {
	return fmt.Sprintf("%s/state/%s/+", t.prefix(), kind)
}

// SystemStatus returns the orchestrator's online/offline status topic.
//
// Example: graylogic/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// Join appends a slash-separated path to a topic root, trimming stray
// separators from both sides.
//
// Example: Join("graylogic/home", "state/doors/FRONT") = "graylogic/home/state/doors/FRONT"
func Join(root, path string) string {
	for len(root) > 0 && root[len(root)-1] == '/' {
		root = root[:len(root)-1]
	}
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if root == "" {
		return path
	}
	if path == "" {
		return root
	}
	return root + "/" + path
}
