package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"whsync/internal/capability"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 10 * time.Second

// Client implements Manager over a WebSocket connection to a device bridge
type Client struct {
	url            string
	token          string
	logger         *zap.Logger
	conn           *websocket.Conn
	connected      bool
	connMu         sync.RWMutex
	msgID          int
	msgIDMu        sync.Mutex
	pending        map[int]chan Message
	pendingMu      sync.Mutex
	handlers       map[int]ChangeHandler
	handlersMu     sync.RWMutex
	nextSubID      int
	ctx            context.Context
	cancel         context.CancelFunc
	reconnect      bool
	requestTimeout time.Duration
	writeMu        sync.Mutex // Protects websocket writes
}

var _ Manager = (*Client)(nil)

// NewClient creates a new device bridge WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:            url,
		token:          token,
		logger:         logger,
		pending:        make(map[int]chan Message),
		handlers:       make(map[int]ChangeHandler),
		ctx:            ctx,
		cancel:         cancel,
		reconnect:      true,
		requestTimeout: defaultRequestTimeout,
	}
}

// SetRequestTimeout changes how long a request waits for its response
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.requestTimeout = d
}

// Connect establishes WebSocket connection and authenticates
func (c *Client) Connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to device bridge", zap.String("url", c.url))

	go c.receiveMessages(conn)
	return nil
}

// authenticate runs the auth handshake on a freshly dialed connection
func (c *Client) authenticate(conn *websocket.Conn) error {
	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != TypeAuthRequired {
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	if err := conn.WriteJSON(AuthMessage{Type: TypeAuth, AccessToken: c.token}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	switch authResponse.Type {
	case TypeAuthOK:
		return nil
	case TypeAuthInvalid:
		return fmt.Errorf("authentication failed: invalid token")
	default:
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.reconnect = false
	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from device bridge")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// send sends a request and waits for its result
func (c *Client) send(ctx context.Context, req *Request) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, fmt.Errorf("%s: %w", req.Type, ErrNotConnected)
	}
	conn := c.conn
	clientCtx := c.ctx
	timeout := c.requestTimeout
	c.connMu.RUnlock()

	req.ID = c.nextMsgID()

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.Type, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("device error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("%s failed", req.Type)
		}
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for %s response: %w", req.Type, ErrNotConnected)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-clientCtx.Done():
		return nil, fmt.Errorf("client disconnected: %w", ErrNotConnected)
	}
}

// receiveMessages handles incoming messages in the background
func (c *Client) receiveMessages(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		if msg.Type == TypeEvent {
			c.handleEvent(&msg)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
					c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// handleEvent notifies change handlers of device-side changes
func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil || msg.Event.EventType != EventCapabilitiesChanged {
		return
	}

	c.handlersMu.RLock()
	handlers := make([]ChangeHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		go h()
	}
}

// handleDisconnect handles connection loss
func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.connMu.Lock()
	if c.conn != conn {
		// Disconnect already replaced or cleared this connection
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.cancel()
	reconnect := c.reconnect
	c.connMu.Unlock()

	conn.Close()
	c.logger.Warn("Connection to device bridge lost", zap.Error(err))

	if reconnect {
		go c.attemptReconnect()
	}
}

// attemptReconnect tries to reconnect with exponential backoff
func (c *Client) attemptReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		time.Sleep(backoff)

		c.connMu.RLock()
		stop := !c.reconnect || c.connected
		c.connMu.RUnlock()
		if stop {
			return
		}

		c.logger.Info("Attempting to reconnect...")

		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

// SubscribeChanges registers a handler for capabilities_changed events
func (c *Client) SubscribeChanges(handler ChangeHandler) Subscription {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.handlers[id] = handler

	return &subscription{id: id, client: c}
}

func (c *Client) unsubscribe(id int) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers, id)
}

// LoadCurrentCapabilityStates retrieves every capability the device holds a value for
func (c *Client) LoadCurrentCapabilityStates(ctx context.Context) (map[capability.DataType]capability.State, error) {
	resp, err := c.send(ctx, &Request{Type: TypeLoadCapabilities})
	if err != nil {
		return nil, err
	}

	states := make(map[capability.DataType]capability.State)
	if len(resp.Result) == 0 {
		return states, nil
	}
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capability states: %w", err)
	}
	return states, nil
}

// SetCapabilities writes enabled flags
func (c *Client) SetCapabilities(ctx context.Context, enabled map[capability.DataType]bool) error {
	_, err := c.send(ctx, &Request{Type: TypeSetCapabilities, Capabilities: enabled})
	return err
}

// SetOverrides writes override values; nil entries clear the override
func (c *Client) SetOverrides(ctx context.Context, overrides map[capability.DataType]*float64) error {
	_, err := c.send(ctx, &Request{Type: TypeSetOverrides, Overrides: overrides})
	return err
}

// ClearOverrides resets every capability on the device to its default
func (c *Client) ClearOverrides(ctx context.Context) error {
	_, err := c.send(ctx, &Request{Type: TypeClearOverrides})
	return err
}

// IsOngoingExercise reports whether an exercise is running on the device
func (c *Client) IsOngoingExercise(ctx context.Context) (bool, error) {
	return c.queryBool(ctx, TypeOngoingExercise)
}

// TriggerEvent forwards a one-shot event
func (c *Client) TriggerEvent(ctx context.Context, trigger capability.EventTrigger) error {
	_, err := c.send(ctx, &Request{Type: TypeTriggerEvent, Trigger: &trigger})
	return err
}

// IsVersionSupported reports whether the device runs a supported Health Services version
func (c *Client) IsVersionSupported(ctx context.Context) (bool, error) {
	return c.queryBool(ctx, TypeVersionSupported)
}

func (c *Client) queryBool(ctx context.Context, msgType string) (bool, error) {
	resp, err := c.send(ctx, &Request{Type: msgType})
	if err != nil {
		return false, err
	}

	var value bool
	if err := json.Unmarshal(resp.Result, &value); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s result: %w", msgType, err)
	}
	return value, nil
}
