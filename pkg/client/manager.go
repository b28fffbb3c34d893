// Package client implements the browser-equivalent core of the realtime
// system: a socket manager that owns one logical connection at a time, a
// router mapping pushed messages to cache and UI effects, and a notification
// de-duplicator.
package client

import (
	"context"
	"errors"
	"sync"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
	"github.com/lightningsats/go-realtime/pkg/retry"
)

// Status is the socket manager's connection state.
type Status string

const (
	StatusDisconnected   Status = "disconnected"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusConnected      Status = "connected"
	StatusWaiting        Status = "waiting_to_reconnect"
	StatusClosed         Status = "closed"
)

// Handler consumes every inbound message; *Router satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg realtime.Message)
}

// errAuthRejected makes the serve loop distinguish a server-side handshake
// rejection from a transport failure; both reconnect, but the rejection is
// surfaced to the handler first.
var errAuthRejected = errors.New("client: handshake rejected")

// ManagerOptions configures a Manager. URL and Tokens are required.
type ManagerOptions struct {
	// URL is the websocket endpoint, e.g. "wss://app.example.com/ws".
	URL       string
	Tokens    TokenFetcher
	Dialer    Dialer
	Handler   Handler
	Reconnect retry.Backoff
	Clock     Clock
	Logger    logger.Logger
}

// Manager owns one logical connection: it fetches a fresh token for every
// attempt, dials, performs the auth-first handshake, routes inbound
// messages, and reconnects after a fixed delay on any close that is not a
// deliberate teardown.
type Manager struct {
	url       string
	tokens    TokenFetcher
	dialer    Dialer
	handler   Handler
	reconnect retry.Backoff
	clock     Clock
	logger    logger.Logger

	mu     sync.Mutex
	status Status
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
}

type nopHandler struct{}

func (nopHandler) Handle(ctx context.Context, msg realtime.Message) {}

// NewManager builds a Manager; call Start to begin connecting.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.URL == "" {
		return nil, errors.New("client: websocket URL is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("client: token fetcher is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = NewDialer()
	}
	if opts.Handler == nil {
		opts.Handler = nopHandler{}
	}
	if opts.Reconnect == nil {
		opts.Reconnect = retry.DefaultReconnect()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}
	return &Manager{
		url:       opts.URL,
		tokens:    opts.Tokens,
		dialer:    opts.Dialer,
		handler:   opts.Handler,
		reconnect: opts.Reconnect,
		clock:     opts.Clock,
		logger:    opts.Logger,
		status:    StatusDisconnected,
	}, nil
}

// Start launches the connection loop. Calling Start twice is an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("client: manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx)
	return nil
}

// Close tears the manager down: the active socket is closed, any pending
// reconnect timer is abandoned, and no further attempts happen. Safe to
// call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	conn := m.conn
	done := m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// Status reports the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Send writes one frame if the socket is currently open; otherwise the
// frame is dropped silently. There is no outbound queue: everything sent
// here is best-effort control traffic, never a command needing guaranteed
// delivery.
func (m *Manager) Send(msg realtime.Message) {
	m.mu.Lock()
	conn := m.conn
	status := m.status
	m.mu.Unlock()

	if status != StatusConnected || conn == nil {
		m.logger.Debug("dropping outbound frame, socket not open",
			logger.F("type", string(msg.Type)))
		return
	}
	data, err := msg.Encode()
	if err != nil {
		m.logger.Warn("encode outbound frame", logger.F("error", err))
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		m.logger.Debug("outbound write failed", logger.F("error", err))
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setStatus(StatusClosed)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		attempt++

		if err := m.connectOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Debug("connection ended", logger.F("error", err))
		}
		if ctx.Err() != nil {
			return
		}

		m.setStatus(StatusWaiting)
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.reconnect.Next(attempt)):
		}
	}
}

// connectOnce runs a single connection lifetime: token fetch, dial,
// handshake, then the read loop until the socket dies.
func (m *Manager) connectOnce(ctx context.Context) error {
	m.setStatus(StatusConnecting)

	token, err := m.tokens.Fetch(ctx)
	if err != nil {
		return err
	}

	conn, err := m.dialer.DialContext(ctx, m.url)
	if err != nil {
		return err
	}
	m.setConn(conn)
	defer func() {
		m.setConn(nil)
		_ = conn.Close()
	}()

	frame, err := realtime.Auth(token).Encode()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(frame); err != nil {
		return err
	}
	m.setStatus(StatusAuthenticating)

	return m.serve(ctx, conn)
}

func (m *Manager) serve(ctx context.Context, conn Conn) error {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := realtime.Decode(raw)
		if err != nil {
			// One bad frame never costs the connection.
			m.logger.Debug("dropping malformed frame", logger.F("error", err))
			continue
		}

		switch msg.Type {
		case realtime.TypeConnected:
			m.setStatus(StatusConnected)
			m.logger.Info("socket connected")
		case realtime.TypeAuthError:
			// Surface once through the handler, then retry with a fresh
			// token after the usual delay.
			m.handler.Handle(ctx, msg)
			return errAuthRejected
		}

		m.handler.Handle(ctx, msg)
	}
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Manager) setConn(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
}
