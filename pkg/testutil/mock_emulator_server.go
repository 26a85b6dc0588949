// Package testutil provides testing utilities for the capability sync engine.
// This package contains a mock emulator WebSocket bridge and helpers for
// writing integration tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"whsync/internal/device"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) write(msg interface{}) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.WriteJSON(msg)
}

// MockEmulatorServer simulates the device bridge of a Wear OS emulator.
// Requests are served by a device.Fake, so tests can flip failure modes and
// inspect device state through Device().
type MockEmulatorServer struct {
	server      *httptest.Server
	fake        *device.Fake
	token       string
	connections []*connWrapper
	connsMu     sync.Mutex
	requests    []ReceivedRequest
	requestsMu  sync.Mutex
}

// NewMockEmulatorServer creates a mock bridge backed by a fresh device.Fake
func NewMockEmulatorServer(token string) *MockEmulatorServer {
	return &MockEmulatorServer{
		fake:        device.NewFake(),
		token:       token,
		connections: make([]*connWrapper, 0),
		requests:    make([]ReceivedRequest, 0),
	}
}

// Start starts the mock server on a random local port
func (s *MockEmulatorServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.server = httptest.NewServer(mux)
}

// Stop closes all connections and stops the server
func (s *MockEmulatorServer) Stop() {
	s.DropConnections()
	if s.server != nil {
		s.server.Close()
	}
}

// URL returns the WebSocket URL of the bridge
func (s *MockEmulatorServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

// Device returns the fake device serving requests
func (s *MockEmulatorServer) Device() *device.Fake {
	return s.fake
}

// DropConnections closes every open connection, simulating a lost link
func (s *MockEmulatorServer) DropConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
}

// ConnectionCount returns the number of authenticated connections
func (s *MockEmulatorServer) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.connections)
}

// handleWebSocket handles WebSocket connections
func (s *MockEmulatorServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()

	wrapper := &connWrapper{conn: conn}

	wrapper.write(device.Message{Type: device.TypeAuthRequired})

	var authMsg device.AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}

	if authMsg.AccessToken != s.token {
		wrapper.write(device.Message{Type: device.TypeAuthInvalid})
		return
	}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer s.removeConnection(conn)

	wrapper.write(device.Message{Type: device.TypeAuthOK})

	for {
		var req device.Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		s.requestsMu.Lock()
		s.requests = append(s.requests, ReceivedRequest{
			Timestamp:    time.Now(),
			Type:         req.Type,
			Capabilities: req.Capabilities,
			Overrides:    req.Overrides,
			Trigger:      req.Trigger,
		})
		s.requestsMu.Unlock()

		wrapper.write(s.serve(r.Context(), &req))
	}
}

func (s *MockEmulatorServer) removeConnection(conn *websocket.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for i, w := range s.connections {
		if w.conn == conn {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}
}

// serve dispatches a request to the fake device and builds the result message
func (s *MockEmulatorServer) serve(ctx context.Context, req *device.Request) device.Message {
	var (
		result interface{}
		err    error
	)

	switch req.Type {
	case device.TypeLoadCapabilities:
		result, err = s.fake.LoadCurrentCapabilityStates(ctx)
	case device.TypeSetCapabilities:
		err = s.fake.SetCapabilities(ctx, req.Capabilities)
	case device.TypeSetOverrides:
		err = s.fake.SetOverrides(ctx, req.Overrides)
	case device.TypeClearOverrides:
		err = s.fake.ClearOverrides(ctx)
	case device.TypeOngoingExercise:
		result, err = s.fake.IsOngoingExercise(ctx)
	case device.TypeVersionSupported:
		result, err = s.fake.IsVersionSupported(ctx)
	case device.TypeTriggerEvent:
		if req.Trigger == nil {
			err = errors.New("missing trigger")
			break
		}
		err = s.fake.TriggerEvent(ctx, *req.Trigger)
	default:
		err = errors.New("unknown request type " + req.Type)
	}

	success := err == nil
	msg := device.Message{
		ID:      req.ID,
		Type:    device.TypeResult,
		Success: &success,
	}
	if err != nil {
		msg.Error = &device.Error{Code: "request_failed", Message: err.Error()}
		return msg
	}
	if result != nil {
		msg.Result, _ = json.Marshal(result)
	}
	return msg
}

// NotifyCapabilitiesChanged pushes a capabilities_changed event to every connection
func (s *MockEmulatorServer) NotifyCapabilitiesChanged() {
	msg := device.Message{
		Type: device.TypeEvent,
		Event: &device.Event{
			EventType: device.EventCapabilitiesChanged,
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.write(msg)
	}
}

// Requests returns all requests received since last clear
func (s *MockEmulatorServer) Requests() []ReceivedRequest {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()

	requests := make([]ReceivedRequest, len(s.requests))
	copy(requests, s.requests)
	return requests
}

// CountRequests counts received requests of a type
func (s *MockEmulatorServer) CountRequests(requestType string) int {
	return len(FilterRequests(s.Requests(), requestType))
}

// ClearRequests resets the request log
func (s *MockEmulatorServer) ClearRequests() {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	s.requests = nil
}
