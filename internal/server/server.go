// Package server exposes the realtime core over HTTP: a token endpoint the
// authenticated webapp calls before opening its socket, and the websocket
// endpoint that performs the auth-first handshake.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lightningsats/go-realtime/internal/auth"
	"github.com/lightningsats/go-realtime/internal/registry"
	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
)

// defaultHandshakeWait bounds how long a fresh socket may take to present
// its auth frame before the server drops it.
const defaultHandshakeWait = 10 * time.Second

// IdentityFn resolves the caller's authenticated identity from an HTTP
// request (cookie session, bearer token, whatever the host app uses). It is
// the seam to the login system this core does not own.
type IdentityFn func(r *http.Request) (userID string, ok bool)

// Options wires the server's collaborators.
type Options struct {
	Addr     string
	Registry *registry.Registry
	Issuer   *auth.Issuer
	Identity IdentityFn
	Logger   logger.Logger

	// HandshakeWait overrides how long the server waits for the auth frame.
	HandshakeWait time.Duration
}

// Server runs the HTTP surface of the realtime core.
type Server struct {
	httpServer    *http.Server
	registry      *registry.Registry
	issuer        *auth.Issuer
	identity      IdentityFn
	upgrader      websocket.Upgrader
	handshakeWait time.Duration
	logger        logger.Logger
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if opts.Issuer == nil {
		return nil, errors.New("server: token issuer is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("server: identity resolver is required")
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.HandshakeWait <= 0 {
		opts.HandshakeWait = defaultHandshakeWait
	}

	s := &Server{
		registry: opts.Registry,
		issuer:   opts.Issuer,
		identity: opts.Identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		handshakeWait: opts.HandshakeWait,
		logger:        opts.Logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/auth/session-token", s.handleSessionToken).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleSocket)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

// Handler exposes the route tree for tests and embedding hosts.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("realtime server listening", logger.F("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("realtime server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// handleSessionToken mints a fresh single-use socket token for the caller's
// existing authenticated identity.
func (s *Server) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := s.issuer.Issue(r.Context(), userID)
	if err != nil {
		s.logger.Error("token issue failed", logger.F("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"sessionToken": token.Value})
}

// handleSocket upgrades the connection and runs the auth-first handshake:
// nothing is registered, and no frame other than the handshake reply is
// sent, until the first client frame carries a valid token.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", logger.F("error", err))
		return
	}

	token, err := s.awaitAuth(r.Context(), conn)
	if err != nil {
		reply, _ := realtime.AuthError(err.Error()).Encode()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, reply)
		_ = conn.Close()
		return
	}

	sessionID := uuid.NewString()
	session := newWSSession(conn, s.logger)
	s.registry.Register(sessionID, token.UserID, session)
	defer func() {
		s.registry.Unregister(sessionID)
		_ = session.Close()
	}()

	if err := session.Send(realtime.Connected()); err != nil {
		return
	}
	s.logger.Info("socket authenticated",
		logger.F("session", sessionID), logger.F("user", token.UserID))

	s.readLoop(conn)
}

// awaitAuth reads and validates the mandatory first frame.
func (s *Server) awaitAuth(ctx context.Context, conn *websocket.Conn) (auth.Token, error) {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(s.handshakeWait)); err != nil {
		return auth.Token{}, errors.New("handshake failed")
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return auth.Token{}, errors.New("handshake frame not received")
	}

	msg, err := realtime.Decode(raw)
	if err != nil {
		return auth.Token{}, errors.New("malformed handshake frame")
	}
	if msg.Type != realtime.TypeAuth {
		return auth.Token{}, errors.New("authentication required")
	}

	token, err := s.issuer.Validate(ctx, msg.SessionToken)
	if err != nil {
		s.logger.Warn("handshake rejected", logger.F("error", err))
		return auth.Token{}, errors.New("invalid session token")
	}
	return token, nil
}

// readLoop drains inbound frames until the peer goes away. Client traffic
// on this socket is best-effort control noise; frames are decoded only to
// keep the connection's read deadline honest.
func (s *Server) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socket read ended", logger.F("error", err))
			}
			return
		}
	}
}
