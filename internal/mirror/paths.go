package mirror

import "strings"

// Well-known mirror paths.
const (
	PathSystemState     = "state/systemState"
	PathDoNotDisturb    = "state/doNotDisturb"
	PathLastDoorbell    = "state/lastDoorbell"
	PathPresence        = "state/presence"
	PathActivity        = "state/activity"
	PathHasNotification = "state/hasNotification"
	PathStarted         = "state/time/started"
	PathLastUpdated     = "state/time/lastUpdated"
	PathMeshNodes       = "state/mesh/nodes"
	PathVersion         = "state/version"

	LogSystemState = "logs/systemState"
	LogDoors       = "logs/doors"
	LogPresence    = "logs/presence"
	LogCommands    = "logs/commands"
)

// DoorPath returns state/doors/<name>.
func DoorPath(name string) string {
	return "state/doors/" + name
}

// ThermostatPath returns state/thermostats/<id>.
func ThermostatPath(id string) string {
	return "state/thermostats/" + id
}

// SensorPath returns state/sensor/<label>/<measurement>.
func SensorPath(label, measurement string) string {
	return "state/sensor/" + label + "/" + measurement
}

// DevicesPath returns state/devices/<kind>, where a bridge's full device
// state is mirrored. It is kept apart from state/presence and friends, which
// hold the orchestrator's own view.
func DevicesPath(kind string) string {
	return "state/devices/" + kind
}

// CapabilityPath returns state/capabilities/<kind>.
func CapabilityPath(kind string) string {
	return "state/capabilities/" + kind
}

// ValidPath reports whether p is a usable relative mirror path.
func ValidPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "+" || seg == "#" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
