package device

import (
	"encoding/json"
	"time"

	"whsync/internal/capability"
)

// Message types exchanged with the device bridge
const (
	TypeAuthRequired = "auth_required"
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeAuthInvalid  = "auth_invalid"
	TypeResult       = "result"
	TypeEvent        = "event"

	TypeLoadCapabilities = "load_capabilities"
	TypeSetCapabilities  = "set_capabilities"
	TypeSetOverrides     = "set_overrides"
	TypeClearOverrides   = "clear_overrides"
	TypeOngoingExercise  = "ongoing_exercise"
	TypeTriggerEvent     = "trigger_event"
	TypeVersionSupported = "version_supported"

	EventCapabilitiesChanged = "capabilities_changed"
)

// Message represents a base WebSocket message to/from the device bridge
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// Error represents an error response from the device bridge
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMessage represents authentication request
type AuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
}

// Event represents an event pushed by the device bridge
type Event struct {
	EventType string    `json:"event_type"`
	TimeFired time.Time `json:"time_fired"`
}

// Request is a command sent to the device bridge. Only the fields relevant
// to Type are populated.
type Request struct {
	ID           int                              `json:"id"`
	Type         string                           `json:"type"`
	Capabilities map[capability.DataType]bool     `json:"capabilities,omitempty"`
	Overrides    map[capability.DataType]*float64 `json:"overrides,omitempty"`
	Trigger      *capability.EventTrigger         `json:"trigger,omitempty"`
}

// ChangeHandler is called when the device reports an out-of-band change
type ChangeHandler func()

// Subscription represents an active event subscription
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id     int
	client *Client
}

func (s *subscription) Unsubscribe() {
	s.client.unsubscribe(s.id)
}
