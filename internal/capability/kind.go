package capability

// Kind names a device capability.
type Kind string

// Capability kinds.
const (
	Lighting    Kind = "lighting"
	Thermostat  Kind = "thermostat"
	ActivityHub Kind = "activity_hub"
	BinaryMesh  Kind = "binary_mesh"
	Camera      Kind = "camera"
	Audio       Kind = "audio"
	Presence    Kind = "presence"
)

// AllKinds lists every kind in a stable order.
func AllKinds() []Kind {
	return []Kind{Lighting, Thermostat, ActivityHub, BinaryMesh, Camera, Audio, Presence}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultFatalEvents are the event names that demote each kind. The generic
// EventFatal is fatal for every kind.
var DefaultFatalEvents = map[Kind][]string{
	Lighting:    {"no_hubs_found"},
	Thermostat:  {"auth_error"},
	ActivityHub: {"no_hubs_found", "connection_failed"},
	BinaryMesh:  {"mesh_unavailable", "invalid_network_key"},
	Camera:      {"auth_error"},
	Audio:       {"player_missing"},
	Presence:    {"adapter_error", "presence_unavailable"},
}
