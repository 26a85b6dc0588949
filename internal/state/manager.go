package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"whsync/internal/capability"
	"whsync/internal/clock"
	"whsync/internal/device"
	"whsync/internal/telemetry"

	"go.uber.org/zap"
)

// DefaultPollInterval is used when Config.PollInterval is not set
const DefaultPollInterval = 5 * time.Second

var (
	// ErrUnknownCapability is returned for data types outside the registry
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrNotOverridable is returned when writing an override to a capability that does not accept one
	ErrNotOverridable = errors.New("capability is not overridable")
	// ErrClosed is returned by calls into a closed manager
	ErrClosed = errors.New("state manager closed")
)

// Config holds the collaborators of a Manager
type Config struct {
	Device       device.Manager
	Registry     *capability.Registry
	Events       telemetry.Logger
	Logger       *zap.Logger
	PollInterval time.Duration
	Clock        clock.Clock
}

// Manager keeps the local view of the device's capabilities consistent with
// the device. Local edits are applied optimistically and pushed on
// ApplyChanges; a background poller reconciles out-of-band device changes.
//
// Device calls are serialized through deviceSem so a poll tick never
// interleaves with a commit. Store mutations (entries, pending, confirmed)
// happen under mu, which is never held across a device call, so setters stay
// synchronous while a commit is in flight.
type Manager struct {
	device   device.Manager
	registry *capability.Registry
	events   telemetry.Logger
	logger   *zap.Logger
	clock    clock.Clock

	deviceSem chan struct{}

	mu        sync.Mutex
	entries   map[capability.DataType]*Value[Entry]
	pending   map[capability.DataType]struct{}
	confirmed map[capability.DataType]capability.State
	closed    bool

	preset   *Value[Preset]
	exercise *Value[bool]
	status   *statusMachine
	poller   *poller
}

// NewManager creates a manager and seeds it with one synchronous load from the
// device. If that load fails every capability starts as the default state,
// synced; the next poll or apply corrects it.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("capability registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = telemetry.Nop
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	m := &Manager{
		device:    cfg.Device,
		registry:  cfg.Registry,
		events:    cfg.Events,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		deviceSem: make(chan struct{}, 1),
		entries:   make(map[capability.DataType]*Value[Entry]),
		pending:   make(map[capability.DataType]struct{}),
		confirmed: make(map[capability.DataType]capability.State),
		preset:    NewValue(PresetCustom),
		exercise:  NewValue(false),
		status:    newStatusMachine(cfg.Logger),
	}

	for _, dataType := range cfg.Registry.DataTypes() {
		m.entries[dataType] = NewValueFunc(Entry{State: capability.DefaultState(), Synced: true}, Entry.Equal)
		m.confirmed[dataType] = capability.DefaultState()
	}

	m.poller = newPoller(cfg.PollInterval, cfg.Clock, m.pollTick, cfg.Logger)

	if err := m.initialLoad(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) initialLoad(ctx context.Context) error {
	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.status.BeginSync()

	snapshot, err := m.device.LoadCurrentCapabilityStates(ctx)
	if err != nil {
		m.logger.Warn("Initial capability load failed, starting from defaults", zap.Error(err))
		m.status.Succeeded()
		return nil
	}

	m.applySnapshot(snapshot)
	m.status.Succeeded()

	m.logger.Info("Capability state loaded from device",
		zap.Int("reported", len(snapshot)),
		zap.Int("total", m.registry.Len()))
	return nil
}

// acquire takes the device serialization point
func (m *Manager) acquire(ctx context.Context) (func(), error) {
	select {
	case m.deviceSem <- struct{}{}:
		return func() { <-m.deviceSem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Capabilities returns the registry in catalog order
func (m *Manager) Capabilities() []capability.Capability {
	return m.registry.List()
}

// GetState returns the observable entry of a capability
func (m *Manager) GetState(dataType capability.DataType) (Stream[Entry], error) {
	v, ok := m.entries[dataType]
	if !ok {
		return nil, fmt.Errorf("%s: %w", dataType, ErrUnknownCapability)
	}
	return v, nil
}

// Entry returns the current entry of a capability
func (m *Manager) Entry(dataType capability.DataType) (Entry, error) {
	v, ok := m.entries[dataType]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", dataType, ErrUnknownCapability)
	}
	return v.Get(), nil
}

// Snapshot returns a consistent copy of every entry in catalog order
func (m *Manager) Snapshot() []CapabilityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.registry.List()
	result := make([]CapabilityEntry, 0, len(list))
	for _, c := range list {
		result = append(result, CapabilityEntry{
			Capability: c,
			Entry:      m.entries[c.DataType].Get(),
		})
	}
	return result
}

// Preset returns the observable preset
func (m *Manager) Preset() Stream[Preset] {
	return m.preset
}

// Status returns the observable engine status
func (m *Manager) Status() Stream[Status] {
	return m.status.value
}

// OngoingExercise mirrors the device's exercise flag, refreshed by poll ticks only
func (m *Manager) OngoingExercise() Stream[bool] {
	return m.exercise
}

// PendingCount returns the number of capabilities with unapplied edits
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SetCapabilityEnabled stages an enabled flag change
func (m *Manager) SetCapabilityEnabled(dataType capability.DataType, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	v, ok := m.entries[dataType]
	if !ok {
		return fmt.Errorf("%s: %w", dataType, ErrUnknownCapability)
	}

	m.stageLocked(dataType, v.Get().State.WithEnabled(enabled))
	return nil
}

// SetOverrideValue stages an override change; nil clears the override.
// The capability must be overridable: ErrNotOverridable is returned, and the
// store left untouched, otherwise.
func (m *Manager) SetOverrideValue(dataType capability.DataType, value *float64) error {
	c, ok := m.registry.Get(dataType)
	if !ok {
		return fmt.Errorf("%s: %w", dataType, ErrUnknownCapability)
	}
	if !c.Overridable {
		return fmt.Errorf("%s: %w", dataType, ErrNotOverridable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.stageLocked(dataType, m.entries[dataType].Get().State.WithOverride(value))
	return nil
}

// SetPreset records the preset. ALL and STANDARD rewrite every capability's
// enabled flag, clear all overrides and stage every capability for the next apply.
func (m *Manager) SetPreset(preset Preset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	switch preset {
	case PresetAll, PresetStandard:
		standard := m.registry.StandardSet()
		for _, dataType := range m.registry.DataTypes() {
			_, isStandard := standard[dataType]
			m.stageLocked(dataType, capability.State{Enabled: preset == PresetAll || isStandard})
		}
	case PresetCustom:
	default:
		return fmt.Errorf("unknown preset %d", int(preset))
	}

	m.preset.Set(preset)
	m.logger.Debug("Preset selected", zap.Stringer("preset", preset))
	return nil
}

// stageLocked records a local edit. Synced reflects whether the new value
// matches the last device-confirmed one.
func (m *Manager) stageLocked(dataType capability.DataType, s capability.State) {
	m.pending[dataType] = struct{}{}
	m.entries[dataType].Set(Entry{
		State:  s,
		Synced: s.Equal(m.confirmed[dataType]),
	})
}

// applySnapshot reconciles a loaded snapshot into the store. Overrides the
// device reports for non-overridable capabilities are dropped.
func (m *Manager) applySnapshot(reported map[capability.DataType]capability.State) {
	snapshot := m.withoutForeignOverrides(reported)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[capability.DataType]Entry, len(m.entries))
	for dataType, v := range m.entries {
		current[dataType] = v.Get()
	}

	next := Reconcile(current, m.pending, snapshot)

	for dataType, entry := range next {
		if reported, ok := snapshot[dataType]; ok {
			m.confirmed[dataType] = reported.WithOverride(reported.OverrideValue)
		} else {
			m.confirmed[dataType] = capability.DefaultState()
		}

		if m.entries[dataType].Set(entry) {
			m.logger.Debug("Capability updated from device",
				zap.String("capability", string(dataType)),
				zap.Bool("enabled", entry.State.Enabled),
				zap.Bool("synced", entry.Synced))
		}
	}
}

func (m *Manager) withoutForeignOverrides(reported map[capability.DataType]capability.State) map[capability.DataType]capability.State {
	snapshot := make(map[capability.DataType]capability.State, len(reported))
	for dataType, st := range reported {
		if c, ok := m.registry.Get(dataType); ok && !c.Overridable && st.OverrideValue != nil {
			m.logger.Debug("Ignoring override reported for non-overridable capability",
				zap.String("capability", string(dataType)))
			st = st.WithOverride(nil)
		}
		snapshot[dataType] = st
	}
	return snapshot
}

// ForceUpdateState reloads capability states immediately. The exercise flag
// is only refreshed while periodic updates are running.
func (m *Manager) ForceUpdateState(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.poll(ctx, m.poller.Running())
}

func (m *Manager) pollTick(ctx context.Context) {
	if err := m.poll(ctx, true); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("Poll failed", zap.Error(err))
	}
}

// poll loads the device snapshot and, when asked, the exercise flag. Device
// failures surface through the status stream only.
func (m *Manager) poll(ctx context.Context, refreshExercise bool) error {
	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := m.device.LoadCurrentCapabilityStates(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.status.Failed("load_capabilities", err)
		return nil
	}
	m.applySnapshot(snapshot)

	if refreshExercise {
		exercise, err := m.device.IsOngoingExercise(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.status.Failed("ongoing_exercise", err)
			return nil
		}
		m.exercise.Set(exercise)
	}

	m.status.Succeeded()
	return nil
}

// TriggerEvent forwards a one-shot event to the device. A failure is
// reported through the status stream, not the return value.
func (m *Manager) TriggerEvent(ctx context.Context, trigger capability.EventTrigger) error {
	if m.isClosed() {
		return ErrClosed
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := m.device.TriggerEvent(ctx, trigger); err != nil {
		m.status.Failed("trigger_event", err)
		return ctx.Err()
	}

	m.logger.Info("Event triggered", zap.String("key", trigger.Key))
	m.status.Succeeded()
	return nil
}

// IsWhsVersionSupported asks the device whether its Health Services version
// is supported. Any failure is reported as not supported.
func (m *Manager) IsWhsVersionSupported(ctx context.Context) bool {
	if m.isClosed() {
		return false
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return false
	}
	defer release()

	supported, err := m.device.IsVersionSupported(ctx)
	if err != nil {
		m.status.Failed("version_supported", err)
		return false
	}

	m.status.Succeeded()
	return supported
}

// SetRunPeriodicUpdates starts or stops the background poller without
// touching the store
func (m *Manager) SetRunPeriodicUpdates(run bool) {
	if run {
		m.poller.Start()
		return
	}
	m.poller.Stop()
}

// RunPeriodicUpdates reports whether the poller is running
func (m *Manager) RunPeriodicUpdates() bool {
	return m.poller.Running()
}

// Close stops the poller. An apply already in flight completes; later calls
// return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.poller.Dispose()
	m.logger.Info("State manager closed")
}
