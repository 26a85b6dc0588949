package state

import (
	"context"
	"fmt"

	"whsync/internal/capability"
	"whsync/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApplyChanges pushes every pending edit to the device as one logical
// transaction. On failure the edits stay pending, untouched, so a later call
// can retry them; the failure is reported through the status stream and
// telemetry, not the return value.
func (m *Manager) ApplyChanges(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	logger := m.logger.With(zap.String("commit_id", uuid.NewString()))

	m.logEvent(telemetry.EmulatorBound)
	m.status.BeginSync()

	pushed := m.pendingStates()
	if len(pushed) == 0 {
		logger.Debug("Nothing to apply")
		m.status.Succeeded()
		m.logEvent(telemetry.ApplyChangesSuccess)
		return nil
	}

	if err := m.push(ctx, pushed); err != nil {
		logger.Warn("Apply failed, edits kept for retry",
			zap.Int("pending", len(pushed)),
			zap.Error(err))
		m.status.Failed("apply_changes", err)
		m.logEvent(telemetry.ApplyChangesFailure)
		return ctx.Err()
	}

	m.acknowledge(pushed)
	m.status.Succeeded()
	m.logEvent(telemetry.ApplyChangesSuccess)

	logger.Info("Changes applied", zap.Int("capabilities", len(pushed)))
	return nil
}

// pendingStates collects the full state of every pending capability
func (m *Manager) pendingStates() map[capability.DataType]capability.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[capability.DataType]capability.State, len(m.pending))
	for dataType := range m.pending {
		s := m.entries[dataType].Get().State
		states[dataType] = s.WithOverride(s.OverrideValue)
	}
	return states
}

// push writes enabled flags, then overrides for the overridable capabilities
func (m *Manager) push(ctx context.Context, states map[capability.DataType]capability.State) error {
	enabled := make(map[capability.DataType]bool, len(states))
	overrides := make(map[capability.DataType]*float64)

	for dataType, s := range states {
		enabled[dataType] = s.Enabled
		if c, ok := m.registry.Get(dataType); ok && c.Overridable {
			overrides[dataType] = capability.Float(s.OverrideValue)
		}
	}

	if err := m.device.SetCapabilities(ctx, enabled); err != nil {
		return fmt.Errorf("failed to set capabilities: %w", err)
	}

	if len(overrides) > 0 {
		if err := m.device.SetOverrides(ctx, overrides); err != nil {
			return fmt.Errorf("failed to set overrides: %w", err)
		}
	}

	return nil
}

// acknowledge records a successful push. Capabilities edited again while the
// push was in flight stay pending and unsynced.
func (m *Manager) acknowledge(pushed map[capability.DataType]capability.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dataType, s := range pushed {
		m.confirmed[dataType] = s

		current := m.entries[dataType].Get().State
		if !current.Equal(s) {
			m.entries[dataType].Set(Entry{State: current, Synced: false})
			continue
		}

		delete(m.pending, dataType)
		m.entries[dataType].Set(Entry{State: current, Synced: true})
	}
}

// Reset selects the ALL preset, drops every override and clears the device's
// custom values directly with ClearOverrides, without going through the
// pending-edit push. Entries reflect ALL immediately and become synced once
// the device confirms.
func (m *Manager) Reset(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}

	release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	m.logEvent(telemetry.EmulatorBound)
	m.status.BeginSync()

	m.mu.Lock()
	for _, dataType := range m.registry.DataTypes() {
		m.stageLocked(dataType, capability.DefaultState())
	}
	m.preset.Set(PresetAll)
	m.mu.Unlock()

	if err := m.device.ClearOverrides(ctx); err != nil {
		m.logger.Warn("Reset failed", zap.Error(err))
		m.status.Failed("clear_overrides", err)
		m.logEvent(telemetry.ApplyChangesFailure)
		return ctx.Err()
	}

	m.mu.Lock()
	for dataType, v := range m.entries {
		m.confirmed[dataType] = capability.DefaultState()

		current := v.Get().State
		if !current.Equal(capability.DefaultState()) {
			v.Set(Entry{State: current, Synced: false})
			continue
		}
		delete(m.pending, dataType)
		v.Set(Entry{State: current, Synced: true})
	}
	m.mu.Unlock()

	m.status.Succeeded()
	m.logEvent(telemetry.ApplyChangesSuccess)
	m.logger.Info("Device capabilities reset")
	return nil
}

func (m *Manager) logEvent(kind telemetry.EventKind) {
	m.events.Log(telemetry.Event{Kind: kind, Time: m.clock.Now()})
}
