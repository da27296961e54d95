package ha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HAClient defines the interface for talking to Home Assistant. State
// changes and events arrive over the WebSocket API; virtual entities are
// published through the REST states endpoint.
type HAClient interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	GetState(entityID string) (*State, error)
	GetAllStates() ([]*State, error)
	CallService(domain, service string, data map[string]interface{}) error
	SetEntityState(entityID, state string, attributes map[string]interface{}) error
	SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error)
	SubscribeEvents(eventType string, handler EventHandler) (Subscription, error)
}

// stateSubscriber holds a state-change handler with its subscription token
type stateSubscriber struct {
	token   string
	handler StateChangeHandler
}

// eventSubscriber holds an event handler with its subscription token
type eventSubscriber struct {
	token   string
	handler EventHandler
}

// Client implements HAClient against a live Home Assistant instance
type Client struct {
	baseURL   string
	wsURL     string
	token     string
	logger    *zap.Logger
	http      *http.Client
	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex
	msgID     int
	msgIDMu   sync.Mutex
	pending   map[int]chan Message
	pendingMu sync.Mutex

	stateSubs   map[string][]stateSubscriber
	eventSubs   map[string][]eventSubscriber
	subbedTypes map[string]bool
	subsMu      sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	reconnect bool
	writeMu   sync.Mutex // Protects websocket writes
}

// NewClient creates a client for the Home Assistant at baseURL
// (e.g. http://homeassistant.local:8123). The WebSocket endpoint is
// derived from the base URL.
func NewClient(baseURL, token string, logger *zap.Logger) (*Client, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		wsURL:       wsURL,
		token:       token,
		logger:      logger,
		http:        &http.Client{Timeout: 10 * time.Second},
		pending:     make(map[int]chan Message),
		stateSubs:   make(map[string][]stateSubscriber),
		eventSubs:   make(map[string][]eventSubscriber),
		subbedTypes: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		reconnect:   true,
	}, nil
}

// websocketURL converts an http(s) base URL into the ws(s) API endpoint
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket URL
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// Connect establishes the WebSocket connection and authenticates
func (c *Client) Connect() error {
	c.connMu.Lock()

	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		c.connMu.Unlock()
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	c.conn = conn

	var authRequired Message
	if err := c.conn.ReadJSON(&authRequired); err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth_required: %w", err)
	}

	if authRequired.Type != "auth_required" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	authMsg := AuthMessage{
		Type:        "auth",
		AccessToken: c.token,
	}
	c.writeMu.Lock()
	err = c.conn.WriteJSON(authMsg)
	c.writeMu.Unlock()

	if err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := c.conn.ReadJSON(&authResponse); err != nil {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if authResponse.Type == "auth_invalid" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("authentication failed: invalid token")
	}

	if authResponse.Type != "auth_ok" {
		c.conn.Close()
		c.connMu.Unlock()
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant")

	go c.receiveMessages()

	// Release lock before subscribing to avoid deadlock
	c.connMu.Unlock()

	if err := c.subscribeRemote("state_changed"); err != nil {
		c.logger.Warn("Failed to subscribe to state changes", zap.Error(err))
	}

	// Re-establish event subscriptions that predate a reconnect
	c.subsMu.RLock()
	types := make([]string, 0, len(c.subbedTypes))
	for t := range c.subbedTypes {
		types = append(types, t)
	}
	c.subsMu.RUnlock()
	for _, t := range types {
		if err := c.subscribeRemote(t); err != nil {
			c.logger.Warn("Failed to re-subscribe to event type",
				zap.String("event_type", t), zap.Error(err))
		}
	}

	return nil
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

	c.subsMu.Lock()
	c.stateSubs = make(map[string][]stateSubscriber)
	c.eventSubs = make(map[string][]eventSubscriber)
	c.subsMu.Unlock()

	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// nextMsgID returns the next message ID
func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends a message and waits for its response
func (c *Client) sendMessage(msgID int, msg interface{}) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, fmt.Errorf("not connected")
	}
	c.connMu.RUnlock()

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("timeout waiting for response")
	case <-c.ctx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages handles incoming messages in the background
func (c *Client) receiveMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect()
			return
		}

		if msg.Type == "event" {
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

// handleEvent routes event messages to state-change or event subscribers
func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil {
		return
	}

	if msg.Event.EventType == "state_changed" {
		var eventData StateChangedEvent
		if err := json.Unmarshal(msg.Event.Data, &eventData); err != nil {
			c.logger.Error("Failed to unmarshal state_changed event", zap.Error(err))
			return
		}

		c.subsMu.RLock()
		entries := append([]stateSubscriber(nil), c.stateSubs[eventData.EntityID]...)
		c.subsMu.RUnlock()

		for _, entry := range entries {
			entry.handler(eventData.EntityID, eventData.OldState, eventData.NewState)
		}
		return
	}

	c.subsMu.RLock()
	entries := append([]eventSubscriber(nil), c.eventSubs[msg.Event.EventType]...)
	c.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(msg.Event.EventType, msg.Event.Data)
	}
}

// handleDisconnect handles connection loss
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")

	if !c.reconnect {
		return
	}

	go c.attemptReconnect()
}

// attemptReconnect tries to reconnect with exponential backoff
func (c *Client) attemptReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
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

// subscribeRemote subscribes to an event type on the Home Assistant side
func (c *Client) subscribeRemote(eventType string) error {
	msgID := c.nextMsgID()
	req := &SubscribeEventsRequest{
		ID:        msgID,
		Type:      "subscribe_events",
		EventType: eventType,
	}

	_, err := c.sendMessage(msgID, req)
	return err
}

// GetState retrieves the state of an entity
func (c *Client) GetState(entityID string) (*State, error) {
	states, err := c.GetAllStates()
	if err != nil {
		return nil, err
	}

	for _, state := range states {
		if state.EntityID == entityID {
			return state, nil
		}
	}

	return nil, fmt.Errorf("entity %s not found", entityID)
}

// GetAllStates retrieves all entity states
func (c *Client) GetAllStates() ([]*State, error) {
	msgID := c.nextMsgID()
	req := &GetStatesRequest{
		ID:   msgID,
		Type: "get_states",
	}

	resp, err := c.sendMessage(msgID, req)
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	return states, nil
}

// CallService calls a Home Assistant service
func (c *Client) CallService(domain, service string, data map[string]interface{}) error {
	msgID := c.nextMsgID()
	req := &CallServiceRequest{
		ID:          msgID,
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	}

	_, err := c.sendMessage(msgID, req)
	return err
}

// SetEntityState publishes a virtual entity through the REST states
// endpoint. The WebSocket API has no equivalent of setting arbitrary
// entity state, so this goes over HTTP with the same token.
func (c *Client) SetEntityState(entityID, state string, attributes map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"state":      state,
		"attributes": attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state body: %w", err)
	}

	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build state request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post state for %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d setting state for %s", resp.StatusCode, entityID)
	}

	return nil
}

// SubscribeStateChanges subscribes to state changes for a specific entity
func (c *Client) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	token := uuid.NewString()

	c.subsMu.Lock()
	c.stateSubs[entityID] = append(c.stateSubs[entityID], stateSubscriber{
		token:   token,
		handler: handler,
	})
	c.subsMu.Unlock()

	return &clientSubscription{
		key:    entityID,
		token:  token,
		cancel: c.unsubscribeState,
	}, nil
}

// SubscribeEvents subscribes to a Home Assistant event type
func (c *Client) SubscribeEvents(eventType string, handler EventHandler) (Subscription, error) {
	token := uuid.NewString()

	c.subsMu.Lock()
	first := !c.subbedTypes[eventType]
	c.subbedTypes[eventType] = true
	c.eventSubs[eventType] = append(c.eventSubs[eventType], eventSubscriber{
		token:   token,
		handler: handler,
	})
	c.subsMu.Unlock()

	if first && c.IsConnected() {
		if err := c.subscribeRemote(eventType); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s events: %w", eventType, err)
		}
	}

	return &clientSubscription{
		key:    eventType,
		token:  token,
		cancel: c.unsubscribeEvent,
	}, nil
}

// clientSubscription implements Subscription for both subscription kinds
type clientSubscription struct {
	key    string
	token  string
	cancel func(key, token string) error
}

func (s *clientSubscription) Unsubscribe() error {
	return s.cancel(s.key, s.token)
}

// unsubscribeState removes a state-change subscription by its token
func (c *Client) unsubscribeState(entityID, token string) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subscribers, ok := c.stateSubs[entityID]
	if !ok {
		return nil // Already unsubscribed
	}

	for i, entry := range subscribers {
		if entry.token == token {
			c.stateSubs[entityID] = append(subscribers[:i], subscribers[i+1:]...)
			if len(c.stateSubs[entityID]) == 0 {
				delete(c.stateSubs, entityID)
			}
			break
		}
	}

	return nil
}

// unsubscribeEvent removes an event subscription by its token
func (c *Client) unsubscribeEvent(eventType, token string) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subscribers, ok := c.eventSubs[eventType]
	if !ok {
		return nil
	}

	for i, entry := range subscribers {
		if entry.token == token {
			c.eventSubs[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			if len(c.eventSubs[eventType]) == 0 {
				delete(c.eventSubs, eventType)
			}
			break
		}
	}

	return nil
}
