package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"whsync/internal/capability"
)

// Call records a device call for testing
type Call struct {
	Method string
	Time   time.Time
}

// Fake implements Manager in memory. Only capabilities that were explicitly
// written are reported by LoadCurrentCapabilityStates, mirroring a device
// content provider that drops rows it holds no custom value for.
type Fake struct {
	mu                        sync.RWMutex
	states                    map[capability.DataType]capability.State
	failState                 bool
	activeExercise            bool
	versionSupported          bool
	triggeredEvents           []capability.EventTrigger
	clearOverridesInvocations int
	calls                     []Call
}

// NewFake creates a fake device with an empty content provider
func NewFake() *Fake {
	return &Fake{
		states:           make(map[capability.DataType]capability.State),
		versionSupported: true,
		calls:            make([]Call, 0),
	}
}

func (f *Fake) record(method string) error {
	f.calls = append(f.calls, Call{Method: method, Time: time.Now()})
	if f.failState {
		return fmt.Errorf("%s: %w", method, ErrNotConnected)
	}
	return nil
}

// LoadCurrentCapabilityStates returns a copy of the content provider
func (f *Fake) LoadCurrentCapabilityStates(ctx context.Context) (map[capability.DataType]capability.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("load_capabilities"); err != nil {
		return nil, err
	}

	states := make(map[capability.DataType]capability.State, len(f.states))
	for k, v := range f.states {
		states[k] = v.WithOverride(v.OverrideValue)
	}
	return states, nil
}

// SetCapabilities writes enabled flags, keeping any override already stored
func (f *Fake) SetCapabilities(ctx context.Context, enabled map[capability.DataType]bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("set_capabilities"); err != nil {
		return err
	}

	for dataType, value := range enabled {
		f.states[dataType] = f.stateLocked(dataType).WithEnabled(value)
	}
	return nil
}

// SetOverrides writes override values; nil removes the override
func (f *Fake) SetOverrides(ctx context.Context, overrides map[capability.DataType]*float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("set_overrides"); err != nil {
		return err
	}

	for dataType, value := range overrides {
		f.states[dataType] = f.stateLocked(dataType).WithOverride(value)
	}
	return nil
}

// ClearOverrides wipes the content provider and counts the invocation
func (f *Fake) ClearOverrides(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("clear_overrides"); err != nil {
		return err
	}

	f.clearOverridesInvocations++
	f.states = make(map[capability.DataType]capability.State)
	return nil
}

// IsOngoingExercise reports the simulated exercise flag
func (f *Fake) IsOngoingExercise(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("ongoing_exercise"); err != nil {
		return false, err
	}
	return f.activeExercise, nil
}

// TriggerEvent records the trigger
func (f *Fake) TriggerEvent(ctx context.Context, trigger capability.EventTrigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("trigger_event"); err != nil {
		return err
	}

	f.triggeredEvents = append(f.triggeredEvents, trigger)
	return nil
}

// IsVersionSupported reports the simulated version check
func (f *Fake) IsVersionSupported(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("version_supported"); err != nil {
		return false, err
	}
	return f.versionSupported, nil
}

func (f *Fake) stateLocked(dataType capability.DataType) capability.State {
	if s, ok := f.states[dataType]; ok {
		return s
	}
	return capability.DefaultState()
}

// SetFailState makes every subsequent call fail (true) or succeed (false)
func (f *Fake) SetFailState(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failState = fail
}

// SetActiveExercise sets the simulated exercise flag
func (f *Fake) SetActiveExercise(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeExercise = active
}

// SetVersionSupported sets the simulated version check result
func (f *Fake) SetVersionSupported(supported bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionSupported = supported
}

// SetState writes a state directly, as if changed on the device itself
func (f *Fake) SetState(dataType capability.DataType, state capability.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[dataType] = state.WithOverride(state.OverrideValue)
}

// Wipe clears the content provider without counting a ClearOverrides call,
// as happens when the device is reset out of band
func (f *Fake) Wipe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = make(map[capability.DataType]capability.State)
}

// TriggeredEvents returns all forwarded event triggers
func (f *Fake) TriggeredEvents() []capability.EventTrigger {
	f.mu.RLock()
	defer f.mu.RUnlock()

	events := make([]capability.EventTrigger, len(f.triggeredEvents))
	copy(events, f.triggeredEvents)
	return events
}

// ClearOverridesInvocations returns how many times ClearOverrides was called
func (f *Fake) ClearOverridesInvocations() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clearOverridesInvocations
}

// Calls returns all recorded calls
func (f *Fake) Calls() []Call {
	f.mu.RLock()
	defer f.mu.RUnlock()

	calls := make([]Call, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// CountCalls counts recorded calls to a method
func (f *Fake) CountCalls(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := 0
	for _, c := range f.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// ClearCalls clears the call history
func (f *Fake) ClearCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make([]Call, 0)
}
