// Package push owns the lifecycle of the bidirectional push channel: connect,
// application-level authentication, fixed-delay reconnect, teardown.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradewind/config"
	"tradewind/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateOpen          State = "open"
	StateAuthenticated State = "authenticated"
)

// Envelope is the wire format for every push frame, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Handler func(data json.RawMessage)

var ErrClosed = errors.New("push: manager closed")

// Manager maintains one live push channel per authenticated session. On
// transport error exactly one reconnect attempt is armed after a fixed delay;
// repeated errors re-arm the same delay until Close.
type Manager struct {
	cfg *config.PushConfig
	log *zap.Logger

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	token          string
	closed         bool
	reconnectArmed bool
	reconnectTimer *time.Timer

	hmu      sync.RWMutex
	handlers map[string][]Handler
	onOpened []func()
	onClosed []func()
}

func NewManager(cfg *config.PushConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      logger.Named("push"),
		state:    StateDisconnected,
		handlers: make(map[string][]Handler),
	}
}

// On registers a handler for a named push event.
func (m *Manager) On(event string, h Handler) {
	m.hmu.Lock()
	m.handlers[event] = append(m.handlers[event], h)
	m.hmu.Unlock()
}

// OnOpened registers a handler run after each successful authentication,
// including reconnects.
func (m *Manager) OnOpened(h func()) {
	m.hmu.Lock()
	m.onOpened = append(m.onOpened, h)
	m.hmu.Unlock()
}

// OnClosed registers a handler run when the transport drops.
func (m *Manager) OnClosed(h func()) {
	m.hmu.Lock()
	m.onClosed = append(m.onClosed, h)
	m.hmu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the channel and runs the authenticate handshake. Calling it
// while a connection is live or in progress is a no-op.
func (m *Manager) Connect(ctx context.Context, identityToken string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.token = identityToken
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.log.Warn("dial failed", zap.Error(err))
		m.dropAndRearm(nil)
		return fmt.Errorf("push dial: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	if err := m.authenticate(conn, identityToken); err != nil {
		m.log.Warn("handshake failed", zap.Error(err))
		m.dropAndRearm(conn)
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.log.Info("channel authenticated")

	conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	go m.readLoop(conn)
	m.emitOpened()
	return nil
}

// Close tears the channel down for good; no reconnect is attempted after.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) authenticate(conn *websocket.Conn, identityToken string) error {
	data, _ := json.Marshal(map[string]string{"token": identityToken})
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
	if err := conn.WriteJSON(Envelope{Event: domain.EventAuthenticate, Data: data}); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("read authenticate ack: %w", err)
	}
	if env.Event != domain.EventAuthenticated {
		return fmt.Errorf("expected %q, got %q", domain.EventAuthenticated, env.Event)
	}
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			m.mu.Lock()
			closed := m.closed || m.conn != conn
			m.mu.Unlock()
			if closed {
				return
			}
			m.log.Warn("channel dropped", zap.Error(err))
			m.dropAndRearm(conn)
			m.emitClosed()
			return
		}
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env Envelope) {
	m.hmu.RLock()
	handlers := append([]Handler(nil), m.handlers[env.Event]...)
	m.hmu.RUnlock()
	for _, h := range handlers {
		h(env.Data)
	}
}

// dropAndRearm resets to Disconnected and arms a single reconnect attempt.
func (m *Manager) dropAndRearm(conn *websocket.Conn) {
	m.mu.Lock()
	if conn != nil && m.conn == conn {
		m.conn = nil
	}
	m.state = StateDisconnected
	if m.closed || m.reconnectArmed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.reconnectArmed = true
	delay := m.cfg.ReconnectDelay
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	m.log.Info("reconnect armed", zap.Duration("delay", delay))
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectArmed = false
	if m.closed {
		m.mu.Unlock()
		return
	}
	token := m.token
	m.mu.Unlock()
	// Connect re-arms on its own failure paths.
	if err := m.Connect(context.Background(), token); err != nil {
		m.log.Warn("reconnect attempt failed", zap.Error(err))
	}
}

func (m *Manager) emitOpened() {
	m.hmu.RLock()
	handlers := append([]func(){}, m.onOpened...)
	m.hmu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (m *Manager) emitClosed() {
	m.hmu.RLock()
	handlers := append([]func(){}, m.onClosed...)
	m.hmu.RUnlock()
	for _, h := range handlers {
		h()
	}
}
