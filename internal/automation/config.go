package automation

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-home/internal/capability"
)

// Configuration defaults.
const (
	DefaultArmingDelay = 90 * time.Second
	DefaultAwayRefresh = 15 * time.Minute
)

// Action types as written in configuration.
const (
	ActionSetState      = "set_state"
	ActionLight         = "light"
	ActionBridgeScene   = "bridge_scene"
	ActionBinaryOutputs = "binary_outputs"
	ActionThermostat    = "thermostat"
	ActionActivity      = "activity"
	ActionDeviceCommand = "device_command"
	ActionCamera        = "camera"
	ActionSound         = "sound"
	ActionDoNotDisturb  = "do_not_disturb"
	ActionMeshAdmin     = "mesh_admin"
)

// SceneParams is a named light scene.
type SceneParams struct {
	On         bool `yaml:"on" json:"on"`
	Brightness int  `yaml:"bri,omitempty" json:"bri,omitempty"`
	ColorTemp  int  `yaml:"ct,omitempty" json:"ct,omitempty"`
}

// LightState converts the scene to the lighting adapter's type.
func (p SceneParams) LightState() capability.LightState {
	return capability.LightState{On: p.On, Brightness: p.Brightness, ColorTemp: p.ColorTemp}
}

// Built-in scenes.
var (
	// DefaultScene is applied when a light action names an unknown scene.
	DefaultScene = SceneParams{On: true, Brightness: 254, ColorTemp: 369}

	// OffScene is used for "OFF" when lightScenes does not define it.
	OffScene = SceneParams{On: false}
)

// SensorKind classifies a mesh sensor.
type SensorKind string

// Sensor kinds.
const (
	SensorDoor   SensorKind = "DOOR"
	SensorMotion SensorKind = "MOTION"
	SensorMulti  SensorKind = "MULTI"
)

// SensorConfig describes one physical sensor, keyed by mesh node id.
type SensorConfig struct {
	Label                string     `yaml:"label" json:"label"`
	Kind                 SensorKind `yaml:"kind" json:"kind"`
	DriveStateTransition bool       `yaml:"driveStateTransition" json:"driveStateTransition"`
}

// ActionSpec is one action entry of a command template, tagged by Type.
// Only the fields relevant to Type are used.
type ActionSpec struct {
	Type string `yaml:"type" json:"type"`

	// set_state
	State string `yaml:"state,omitempty" json:"state,omitempty"`

	// light, bridge_scene
	Lights []string `yaml:"lights,omitempty" json:"lights,omitempty"`
	Group  string   `yaml:"group,omitempty" json:"group,omitempty"`
	Scene  string   `yaml:"scene,omitempty" json:"scene,omitempty"`

	// binary_outputs
	Outputs map[string]bool `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// thermostat
	ThermostatID string   `yaml:"thermostatId,omitempty" json:"thermostatId,omitempty"`
	Target       *float64 `yaml:"target,omitempty" json:"target,omitempty"`
	Mode         string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Step         float64  `yaml:"step,omitempty" json:"step,omitempty"`

	// activity, device_command
	Activity string `yaml:"activity,omitempty" json:"activity,omitempty"`
	Device   string `yaml:"device,omitempty" json:"device,omitempty"`
	Command  string `yaml:"command,omitempty" json:"command,omitempty"`

	// camera, do_not_disturb
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// sound
	Sound string `yaml:"sound,omitempty" json:"sound,omitempty"`
	Force bool   `yaml:"force,omitempty" json:"force,omitempty"`

	// mesh_admin
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
}

// CommandTemplate is a validated command definition.
type CommandTemplate struct {
	Name    string       `json:"name"`
	Actions []ActionSpec `json:"actions"`
}

// KeypadConfig maps keypad keys to command names.
type KeypadConfig struct {
	Keys map[string]string `yaml:"keys" json:"keys"`
}

// Quarantined is a configuration entry rejected at load time. The rest of
// the document is still usable.
type Quarantined struct {
	Section string `json:"section"`
	Name    string `json:"name"`
	Error   string `json:"error"`
}

// HomeConfig is one immutable snapshot of the home configuration.
// Command, scene and keypad names are stored upper-cased.
type HomeConfig struct {
	Commands         map[string]CommandTemplate `json:"commands"`
	LightScenes      map[string]SceneParams     `json:"lightScenes"`
	Sensors          map[string]SensorConfig    `json:"sensors"`
	ArmingDelay      time.Duration              `json:"armingDelay"`
	AwayRefresh      time.Duration              `json:"awayRefresh"`
	Keypad           KeypadConfig               `json:"keypad"`
	ReadySound       string                     `json:"readySound,omitempty"`
	AwayToggleSensor string                     `json:"awayToggleSensor,omitempty"`
	Quarantined      []Quarantined              `json:"quarantined,omitempty"`
}

// document is the on-disk shape. Commands stay as raw nodes so one bad
// command cannot fail the whole document.
type document struct {
	Commands           map[string]yaml.Node    `yaml:"commands"`
	LightScenes        map[string]SceneParams  `yaml:"lightScenes"`
	Sensors            map[string]SensorConfig `yaml:"sensors"`
	ArmingDelayMs      *int64                  `yaml:"armingDelayMs"`
	AwayRefreshMinutes *int                    `yaml:"awayRefreshMinutes"`
	Keypad             KeypadConfig            `yaml:"keypad"`
	ReadySound         string                  `yaml:"readySound"`
	AwayToggleSensor   string                  `yaml:"awayToggleSensor"`
}

// NewHomeConfig returns an empty configuration with defaults applied.
func NewHomeConfig() *HomeConfig {
	return &HomeConfig{
		Commands:    make(map[string]CommandTemplate),
		LightScenes: make(map[string]SceneParams),
		Sensors:     make(map[string]SensorConfig),
		ArmingDelay: DefaultArmingDelay,
		AwayRefresh: DefaultAwayRefresh,
		Keypad:      KeypadConfig{Keys: make(map[string]string)},
	}
}

// LoadConfigFile reads and parses a home configuration file.
func LoadConfigFile(path string) (*HomeConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from process config
	if err != nil {
		return nil, fmt.Errorf("reading home config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML (or JSON) home configuration.
//
// Invalid commands and sensors are quarantined: they are left out of the
// snapshot and listed in Quarantined. Only a document that cannot be
// decoded at all returns an error.
func ParseConfig(data []byte) (*HomeConfig, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := NewHomeConfig()

	if doc.ArmingDelayMs != nil {
		if *doc.ArmingDelayMs < 0 {
			return nil, fmt.Errorf("%w: armingDelayMs must not be negative", ErrInvalidConfig)
		}
		if *doc.ArmingDelayMs > 0 {
			cfg.ArmingDelay = time.Duration(*doc.ArmingDelayMs) * time.Millisecond
		}
	}
	if doc.AwayRefreshMinutes != nil {
		if *doc.AwayRefreshMinutes < 0 {
			return nil, fmt.Errorf("%w: awayRefreshMinutes must not be negative", ErrInvalidConfig)
		}
		cfg.AwayRefresh = time.Duration(*doc.AwayRefreshMinutes) * time.Minute
	}

	for name, params := range doc.LightScenes {
		cfg.LightScenes[normaliseName(name)] = params
	}

	for id, sensor := range doc.Sensors {
		sensor.Label = normaliseName(sensor.Label)
		sensor.Kind = SensorKind(normaliseName(string(sensor.Kind)))
		if err := validateSensor(sensor); err != nil {
			cfg.quarantine("sensors", id, err)
			continue
		}
		cfg.Sensors[id] = sensor
	}

	for key, command := range doc.Keypad.Keys {
		cfg.Keypad.Keys[normaliseName(key)] = normaliseName(command)
	}

	for rawName, node := range doc.Commands {
		name := normaliseName(rawName)
		var specs []ActionSpec
		if err := node.Decode(&specs); err != nil {
			cfg.quarantine("commands", name, fmt.Errorf("%w: %v", ErrInvalidAction, err))
			continue
		}
		if err := validateCommand(specs); err != nil {
			cfg.quarantine("commands", name, err)
			continue
		}
		cfg.Commands[name] = CommandTemplate{Name: name, Actions: specs}
	}

	cfg.ReadySound = doc.ReadySound
	cfg.AwayToggleSensor = doc.AwayToggleSensor

	sort.Slice(cfg.Quarantined, func(i, j int) bool {
		if cfg.Quarantined[i].Section != cfg.Quarantined[j].Section {
			return cfg.Quarantined[i].Section < cfg.Quarantined[j].Section
		}
		return cfg.Quarantined[i].Name < cfg.Quarantined[j].Name
	})
	return cfg, nil
}

// validated returns a copy of c with every command re-validated and its
// names normalised. Commands that fail are quarantined. Configurations
// built in code rather than parsed go through here before they are served.
func (c *HomeConfig) validated() *HomeConfig {
	out := *c
	out.Commands = make(map[string]CommandTemplate, len(c.Commands))
	out.Quarantined = append([]Quarantined(nil), c.Quarantined...)

	for rawName, tmpl := range c.Commands {
		name := normaliseName(rawName)
		specs := append([]ActionSpec(nil), tmpl.Actions...)
		if err := validateCommand(specs); err != nil {
			out.quarantine("commands", name, err)
			continue
		}
		out.Commands[name] = CommandTemplate{Name: name, Actions: specs}
	}
	return &out
}

func (c *HomeConfig) quarantine(section, name string, err error) {
	c.Quarantined = append(c.Quarantined, Quarantined{Section: section, Name: name, Error: err.Error()})
}

// Command returns the template for name (case-insensitive).
func (c *HomeConfig) Command(name string) (CommandTemplate, bool) {
	t, ok := c.Commands[normaliseName(name)]
	return t, ok
}

// Scene returns the light scene for name (case-insensitive).
func (c *HomeConfig) Scene(name string) (SceneParams, bool) {
	p, ok := c.LightScenes[normaliseName(name)]
	return p, ok
}

// CommandNames returns the configured command names, sorted.
func (c *HomeConfig) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeyCommand returns the command bound to a keypad key.
func (c *HomeConfig) KeyCommand(key string) (string, bool) {
	name, ok := c.Keypad.Keys[normaliseName(key)]
	return name, ok && name != ""
}

func normaliseName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
