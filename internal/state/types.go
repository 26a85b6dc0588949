package state

import (
	"fmt"
	"strings"

	"whsync/internal/capability"
)

// Entry is the local view of one capability. Synced is true when the local
// state equals the value last confirmed on the device.
type Entry struct {
	State  capability.State `json:"state"`
	Synced bool             `json:"synced"`
}

// Equal compares two entries by value
func (e Entry) Equal(other Entry) bool {
	return e.Synced == other.Synced && e.State.Equal(other.State)
}

// CapabilityEntry pairs a capability with its current entry
type CapabilityEntry struct {
	Capability capability.Capability `json:"capability"`
	Entry      Entry                 `json:"entry"`
}

// Preset is a named canonical configuration of enabled capabilities
type Preset int

const (
	// PresetCustom is the starting preset and covers any user-edited configuration
	PresetCustom Preset = iota
	// PresetAll enables every capability with no overrides
	PresetAll
	// PresetStandard enables exactly the standard capabilities with no overrides
	PresetStandard
)

func (p Preset) String() string {
	switch p {
	case PresetCustom:
		return "CUSTOM"
	case PresetAll:
		return "ALL"
	case PresetStandard:
		return "STANDARD"
	default:
		return fmt.Sprintf("Preset(%d)", int(p))
	}
}

// ParsePreset parses ALL, STANDARD or CUSTOM (case-insensitive)
func ParsePreset(s string) (Preset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CUSTOM":
		return PresetCustom, nil
	case "ALL":
		return PresetAll, nil
	case "STANDARD":
		return PresetStandard, nil
	default:
		return PresetCustom, fmt.Errorf("unknown preset %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Preset) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Preset) UnmarshalText(text []byte) error {
	parsed, err := ParsePreset(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status is the engine-wide synchronization status
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusConnectionLost
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusSyncing:
		return "Syncing"
	case StatusConnectionLost:
		return "ConnectionLost"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus parses the text form produced by Status.String
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Idle":
		return StatusIdle, nil
	case "Syncing":
		return StatusSyncing, nil
	case "ConnectionLost":
		return StatusConnectionLost, nil
	default:
		return StatusIdle, fmt.Errorf("unknown status %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
