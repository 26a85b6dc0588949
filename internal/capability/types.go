package capability

// DataType identifies a capability on the device (e.g. "HEART_RATE_BPM")
type DataType string

const (
	HeartRateBPM      DataType = "HEART_RATE_BPM"
	Location          DataType = "LOCATION"
	Steps             DataType = "STEPS"
	Calories          DataType = "CALORIES"
	Distance          DataType = "DISTANCE"
	Floors            DataType = "FLOORS"
	ElevationGain     DataType = "ELEVATION_GAIN"
	ElevationLoss     DataType = "ELEVATION_LOSS"
	AbsoluteElevation DataType = "ABSOLUTE_ELEVATION"
	Pace              DataType = "PACE"
	Speed             DataType = "SPEED"
)

// Capability describes one controllable attribute of the device
type Capability struct {
	DataType    DataType `yaml:"data_type" json:"dataType"`
	Label       string   `yaml:"label" json:"label"`
	Unit        string   `yaml:"unit" json:"unit"`
	Overridable bool     `yaml:"overridable" json:"overridable"`
	Standard    bool     `yaml:"standard" json:"standard"`
}

// State is the value of a capability as known locally or reported by the device.
// OverrideValue is only meaningful for overridable capabilities; nil means no override.
type State struct {
	Enabled       bool     `json:"enabled"`
	OverrideValue *float64 `json:"overrideValue"`
}

// DefaultState is the state a device reports for a capability it holds no custom value for
func DefaultState() State {
	return State{Enabled: true}
}

// Equal compares two states by value
func (s State) Equal(other State) bool {
	if s.Enabled != other.Enabled {
		return false
	}
	if s.OverrideValue == nil || other.OverrideValue == nil {
		return s.OverrideValue == nil && other.OverrideValue == nil
	}
	return *s.OverrideValue == *other.OverrideValue
}

// WithEnabled returns a copy of s with Enabled replaced
func (s State) WithEnabled(enabled bool) State {
	s.Enabled = enabled
	return s
}

// WithOverride returns a copy of s with its own copy of value as the override
func (s State) WithOverride(value *float64) State {
	s.OverrideValue = Float(value)
	return s
}

// Float copies a nullable float so states never share a pointer
func Float(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// EventTrigger is a fire-and-forget signal forwarded to the device
type EventTrigger struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}
