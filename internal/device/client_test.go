package device_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whsync/internal/capability"
	"whsync/internal/device"
	"whsync/pkg/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "test_token"

func connectedClient(t *testing.T) (*device.Client, *testutil.MockEmulatorServer) {
	t.Helper()

	server := testutil.NewMockEmulatorServer(testToken)
	server.Start()
	t.Cleanup(server.Stop)

	logger, _ := zap.NewDevelopment()
	client := device.NewClient(server.URL(), testToken, logger)
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Disconnect() })

	return client, server
}

func TestClient_Connect(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	t.Run("successful connection", func(t *testing.T) {
		client, server := connectedClient(t)

		assert.True(t, client.IsConnected())
		assert.Eventually(t, func() bool { return server.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	})

	t.Run("invalid token", func(t *testing.T) {
		server := testutil.NewMockEmulatorServer(testToken)
		server.Start()
		defer server.Stop()

		client := device.NewClient(server.URL(), "wrong_token", logger)

		err := client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "authentication failed")
		assert.False(t, client.IsConnected())
	})

	t.Run("already connected", func(t *testing.T) {
		client, _ := connectedClient(t)

		err := client.Connect()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already connected")
	})

	t.Run("unreachable bridge", func(t *testing.T) {
		client := device.NewClient("ws://127.0.0.1:1/ws", testToken, logger)

		assert.Error(t, client.Connect())
		assert.False(t, client.IsConnected())
	})
}

func TestClient_NotConnected(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	client := device.NewClient("ws://127.0.0.1:1/ws", testToken, logger)

	_, err := client.LoadCurrentCapabilityStates(context.Background())
	assert.ErrorIs(t, err, device.ErrNotConnected)

	err = client.SetCapabilities(context.Background(), map[capability.DataType]bool{capability.Steps: true})
	assert.ErrorIs(t, err, device.ErrNotConnected)
}

func TestClient_CapabilityRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, server := connectedClient(t)

	states, err := client.LoadCurrentCapabilityStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	override := 3.0
	require.NoError(t, client.SetCapabilities(ctx, map[capability.DataType]bool{
		capability.HeartRateBPM: false,
		capability.Location:     true,
	}))
	require.NoError(t, client.SetOverrides(ctx, map[capability.DataType]*float64{
		capability.HeartRateBPM: &override,
		capability.Steps:        nil,
	}))

	states, err = client.LoadCurrentCapabilityStates(ctx)
	require.NoError(t, err)

	hr := states[capability.HeartRateBPM]
	assert.False(t, hr.Enabled)
	require.NotNil(t, hr.OverrideValue)
	assert.Equal(t, 3.0, *hr.OverrideValue)

	assert.Equal(t, capability.State{Enabled: true}, states[capability.Location])
	assert.Equal(t, capability.State{Enabled: true}, states[capability.Steps])

	require.NoError(t, client.ClearOverrides(ctx))
	states, err = client.LoadCurrentCapabilityStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Equal(t, 1, server.Device().ClearOverridesInvocations())

	assert.Equal(t, 3, server.CountRequests(device.TypeLoadCapabilities))
}

func TestClient_Queries(t *testing.T) {
	ctx := context.Background()
	client, server := connectedClient(t)

	active, err := client.IsOngoingExercise(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	server.Device().SetActiveExercise(true)
	active, err = client.IsOngoingExercise(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	supported, err := client.IsVersionSupported(ctx)
	require.NoError(t, err)
	assert.True(t, supported)

	require.NoError(t, client.TriggerEvent(ctx, capability.EventTrigger{Key: "whs.fall", Label: "Fall"}))
	assert.Equal(t, []capability.EventTrigger{{Key: "whs.fall", Label: "Fall"}}, server.Device().TriggeredEvents())
}

func TestClient_DeviceFailure(t *testing.T) {
	ctx := context.Background()
	client, server := connectedClient(t)
	server.Device().SetFailState(true)

	_, err := client.LoadCurrentCapabilityStates(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "device error")

	assert.Error(t, client.SetCapabilities(ctx, map[capability.DataType]bool{capability.Steps: false}))
	assert.Error(t, client.ClearOverrides(ctx))

	_, err = client.IsVersionSupported(ctx)
	assert.Error(t, err)

	// A failed request leaves the connection usable
	assert.True(t, client.IsConnected())
	server.Device().SetFailState(false)
	_, err = client.LoadCurrentCapabilityStates(ctx)
	assert.NoError(t, err)
}

func TestClient_SubscribeChanges(t *testing.T) {
	client, server := connectedClient(t)

	var calls atomic.Int32
	sub := client.SubscribeChanges(func() { calls.Add(1) })

	server.NotifyCapabilitiesChanged()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	server.NotifyCapabilitiesChanged()

	// Round trip a request so the event has been read before asserting
	_, err := client.IsOngoingExercise(context.Background())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RequestTimeout(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(device.Message{Type: device.TypeAuthRequired})
		var auth device.AuthMessage
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		conn.WriteJSON(device.Message{Type: device.TypeAuthOK})

		// Swallow requests without answering
		for {
			var req device.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client := device.NewClient("ws"+strings.TrimPrefix(server.URL, "http"), testToken, logger)
	client.SetRequestTimeout(50 * time.Millisecond)
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	err := client.ClearOverrides(context.Background())
	assert.ErrorIs(t, err, device.ErrNotConnected)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client.SetRequestTimeout(time.Second)
	_, err = client.IsOngoingExercise(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_SetRequestTimeoutWhileSending(t *testing.T) {
	client, _ := connectedClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := client.IsOngoingExercise(context.Background())
				assert.NoError(t, err)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		client.SetRequestTimeout(time.Duration(i+1) * time.Second)
	}
	wg.Wait()
}

func TestClient_Reconnect(t *testing.T) {
	client, server := connectedClient(t)

	server.DropConnections()

	assert.Eventually(t, func() bool { return !client.IsConnected() }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return client.IsConnected() && server.ConnectionCount() == 1
	}, 5*time.Second, 50*time.Millisecond)

	_, err := client.LoadCurrentCapabilityStates(context.Background())
	assert.NoError(t, err)
}
