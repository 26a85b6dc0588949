package testutil

import (
	"context"
	"fmt"
	"time"

	"whsync/internal/capability"
	"whsync/internal/device"
	"whsync/internal/state"
	"whsync/internal/telemetry"

	"go.uber.org/zap"
)

// TestEnv provides a complete test environment: a mock emulator bridge, a
// connected websocket client and a state manager loaded from the device.
type TestEnv struct {
	Server  *MockEmulatorServer
	Client  *device.Client
	Manager *state.Manager
	Events  *telemetry.Recorder
	Logger  *zap.Logger
}

// EnvConfig customizes NewTestEnv
type EnvConfig struct {
	Token        string
	Registry     *capability.Registry
	PollInterval time.Duration
	// Prepare runs against the device before the manager's initial load
	Prepare func(fake *device.Fake)
}

// NewTestEnv creates a fully configured test environment.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv(testutil.EnvConfig{Token: "test_token"})
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
func NewTestEnv(cfg EnvConfig) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	if cfg.Registry == nil {
		cfg.Registry = capability.DefaultRegistry()
	}

	server := NewMockEmulatorServer(cfg.Token)
	server.Start()

	if cfg.Prepare != nil {
		cfg.Prepare(server.Device())
	}

	client := device.NewClient(server.URL(), cfg.Token, logger)
	client.SetRequestTimeout(time.Second)
	if err := client.Connect(); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	events := telemetry.NewRecorder()
	manager, err := state.NewManager(context.Background(), state.Config{
		Device:       client,
		Registry:     cfg.Registry,
		Events:       events,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		client.Disconnect()
		server.Stop()
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	return &TestEnv{
		Server:  server,
		Client:  client,
		Manager: manager,
		Events:  events,
		Logger:  logger,
	}, nil
}

// Device returns the fake device behind the mock bridge
func (e *TestEnv) Device() *device.Fake {
	return e.Server.Device()
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	if e.Manager != nil {
		e.Manager.Close()
	}
	if e.Client != nil {
		e.Client.Disconnect()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
}

// Requests returns all requests received by the mock bridge
func (e *TestEnv) Requests() []ReceivedRequest {
	return e.Server.Requests()
}

// ClearRequests clears the recorded requests
func (e *TestEnv) ClearRequests() {
	e.Server.ClearRequests()
}
