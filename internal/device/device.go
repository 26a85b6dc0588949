// Package device defines the contract the engine uses to talk to a Wear
// Health Services device, together with a websocket implementation and an
// in-memory fake.
package device

import (
	"context"
	"errors"

	"whsync/internal/capability"
)

// ErrNotConnected is returned when the device cannot be reached
var ErrNotConnected = errors.New("device not connected")

// Manager is the asynchronous capability provider on the device side.
// Every call may fail with a connectivity error.
type Manager interface {
	LoadCurrentCapabilityStates(ctx context.Context) (map[capability.DataType]capability.State, error)
	SetCapabilities(ctx context.Context, enabled map[capability.DataType]bool) error
	SetOverrides(ctx context.Context, overrides map[capability.DataType]*float64) error
	ClearOverrides(ctx context.Context) error
	IsOngoingExercise(ctx context.Context) (bool, error)
	TriggerEvent(ctx context.Context, trigger capability.EventTrigger) error
	IsVersionSupported(ctx context.Context) (bool, error)
}
