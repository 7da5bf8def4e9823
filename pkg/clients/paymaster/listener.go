package paymaster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gorilla/websocket"

	"paypadm/core/pkg/api/paymaster"
	"paypadm/core/pkg/logging"
)

// Listener maintains a websocket connection to the paymaster service and
// delivers realtime events. On connection loss it reconnects with backoff,
// replays its subscriptions, and invokes OnReconnect so the caller can
// re-fetch the latest page and fill any gap the outage left.
type Listener struct {
	baseURL   string
	authToken string
	logger    logging.Logger

	// OnReconnect runs after each successful reconnect, once subscriptions
	// are replayed. Events pushed during the outage are gone; this is the
	// hook to reconcile from the HTTP API.
	OnReconnect func()

	conn          *websocket.Conn
	eventChan     chan paymaster.Event
	subscriptions []string
	userID        *string
	mutex         sync.RWMutex
	connected     bool

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	maxReconnects     int
}

// ListenerConfig configures a realtime listener.
type ListenerConfig struct {
	BaseURL           string
	AuthToken         string
	UserID            *string
	Logger            logging.Logger
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// MaxReconnects bounds consecutive failed reconnect attempts before the
	// listener gives up. Zero means the default of 10.
	MaxReconnects int
}

// NewListener creates a realtime listener.
func NewListener(config ListenerConfig) *Listener {
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = time.Second
	}
	if config.MaxReconnectDelay == 0 {
		config.MaxReconnectDelay = 30 * time.Second
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}

	return &Listener{
		baseURL:           config.BaseURL,
		authToken:         config.AuthToken,
		userID:            config.UserID,
		logger:            config.Logger,
		eventChan:         make(chan paymaster.Event, 100),
		subscriptions:     make([]string, 0),
		reconnectDelay:    config.ReconnectDelay,
		maxReconnectDelay: config.MaxReconnectDelay,
		maxReconnects:     config.MaxReconnects,
	}
}

// Connect dials the websocket endpoint and starts the read loop. The read
// loop owns reconnection: it runs until the context is cancelled or the
// reconnect budget is exhausted.
func (l *Listener) Connect(ctx context.Context) error {
	if err := l.dial(ctx); err != nil {
		return err
	}

	go l.readLoop(ctx)
	return nil
}

func (l *Listener) dial(ctx context.Context) error {
	wsURL, err := l.buildWebSocketURL()
	if err != nil {
		return err
	}

	headers := make(http.Header)
	if l.authToken != "" {
		headers.Set("Authorization", "Bearer "+l.authToken)
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to WebSocket (status: %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	l.mutex.Lock()
	l.conn = conn
	l.connected = true
	l.mutex.Unlock()

	l.logger.Info("Connected to Paymaster WebSocket")
	return nil
}

func (l *Listener) buildWebSocketURL() (string, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	wsURL := &url.URL{Scheme: scheme, Host: u.Host, Path: "/ws"}
	return wsURL.String(), nil
}

// Subscribe subscribes to conversation event streams. Subscriptions are
// remembered and replayed after every reconnect.
func (l *Listener) Subscribe(conversations []string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.connected {
		return fmt.Errorf("listener is not connected")
	}

	if err := l.writeSubscription(paymaster.ActionSubscribe, conversations); err != nil {
		return err
	}

	for _, id := range conversations {
		if !contains(l.subscriptions, id) {
			l.subscriptions = append(l.subscriptions, id)
		}
	}

	l.logger.WithFields(logging.Fields{
		"conversations": conversations,
		"user_id":       l.userID,
	}).Info("Subscribed to conversations")

	return nil
}

// Unsubscribe stops event delivery for the given conversations.
func (l *Listener) Unsubscribe(conversations []string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.connected {
		return fmt.Errorf("listener is not connected")
	}

	if err := l.writeSubscription(paymaster.ActionUnsubscribe, conversations); err != nil {
		return err
	}

	for _, id := range conversations {
		for i, existing := range l.subscriptions {
			if existing == id {
				l.subscriptions = append(l.subscriptions[:i], l.subscriptions[i+1:]...)
				break
			}
		}
	}

	return nil
}

func (l *Listener) writeSubscription(action string, conversations []string) error {
	msg := paymaster.SubscriptionMessage{
		Action:        action,
		Conversations: conversations,
		UserID:        l.userID,
	}

	l.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", action, err)
	}
	return nil
}

// Events returns the channel realtime events are delivered on. The channel
// closes when the listener stops for good.
func (l *Listener) Events() <-chan paymaster.Event {
	return l.eventChan
}

// IsConnected returns whether the listener currently has a live connection.
func (l *Listener) IsConnected() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.connected
}

// Close tears the connection down. The read loop exits on the closed
// connection and, with the context cancelled by the caller, stops for good.
func (l *Listener) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.conn != nil {
		l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.conn.Close()
	}
	l.connected = false
	return nil
}

func (l *Listener) readLoop(ctx context.Context) {
	defer close(l.eventChan)

	for {
		l.readUntilError(ctx)

		l.mutex.Lock()
		l.connected = false
		if l.conn != nil {
			l.conn.Close()
		}
		l.mutex.Unlock()

		if ctx.Err() != nil {
			return
		}

		if err := l.reconnect(ctx); err != nil {
			l.logger.WithError(err).Error("Giving up on reconnect")
			return
		}
	}
}

func (l *Listener) readUntilError(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var event paymaster.Event
		if err := l.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		select {
		case l.eventChan <- event:
		default:
			l.logger.Warn("Event channel full, dropping event")
		}
	}
}

// reconnect re-dials with exponential backoff, replays subscriptions, and
// fires OnReconnect.
func (l *Listener) reconnect(ctx context.Context) error {
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(l.reconnectDelay, l.maxReconnectDelay).
		WithMaxRetries(l.maxReconnects).
		WithJitterFactor(0.1).
		Build()

	_, err := failsafe.With(retry).WithContext(ctx).Get(func() (any, error) {
		return nil, l.dial(ctx)
	})
	if err != nil {
		return err
	}

	l.mutex.RLock()
	subscriptions := append([]string(nil), l.subscriptions...)
	l.mutex.RUnlock()

	if len(subscriptions) > 0 {
		l.mutex.Lock()
		err = l.writeSubscription(paymaster.ActionSubscribe, subscriptions)
		l.mutex.Unlock()
		if err != nil {
			return err
		}
	}

	l.logger.WithField("conversations", subscriptions).Info("Reconnected and replayed subscriptions")

	if l.OnReconnect != nil {
		l.OnReconnect()
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
