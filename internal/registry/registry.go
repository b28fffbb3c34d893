// Package registry tracks live authenticated realtime sessions and fans
// pushed messages out to every session a user holds.
package registry

import (
	"sync"
	"time"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
)

// Sender is the socket seam the registry delivers through. The server wraps
// a websocket connection; tests substitute fakes.
type Sender interface {
	Send(msg realtime.Message) error
	Close() error
}

// Session is one live authenticated connection. A user may hold several at
// once (multi-device); each is tracked independently.
type Session struct {
	ID          string
	UserID      string
	Conn        Sender
	ConnectedAt time.Time
}

// Registry owns the session set. Construct one per process and pass it to
// handlers; it is never package-level state, so tests stay isolated.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   logger.Logger
}

// New builds an empty registry.
func New(lgr logger.Logger) *Registry {
	if lgr == nil {
		lgr = &logger.Nop{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   lgr,
	}
}

// Register adds a session. Idempotent per session ID: re-registering an
// existing ID keeps the original session.
func (r *Registry) Register(sessionID, userID string, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return
	}
	r.sessions[sessionID] = &Session{
		ID:          sessionID,
		UserID:      userID,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	r.logger.Info("session registered",
		logger.F("session", sessionID), logger.F("user", userID),
		logger.F("total", len(r.sessions)))
}

// Unregister removes a session; safe to call on an already-removed ID.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; !exists {
		return
	}
	delete(r.sessions, sessionID)
	r.logger.Info("session unregistered",
		logger.F("session", sessionID), logger.F("total", len(r.sessions)))
}

// SessionCount reports how many live sessions the user currently holds.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, session := range r.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count
}

// Broadcast delivers the message to every live session of userID and returns
// how many sends succeeded. A session whose send fails is closed and removed
// so it never blocks later broadcasts; there is no retry. No ordering is
// guaranteed across a user's sessions.
func (r *Registry) Broadcast(userID string, msg realtime.Message) int {
	r.mu.RLock()
	matched := make([]*Session, 0, 2)
	for _, session := range r.sessions {
		if session.UserID == userID {
			matched = append(matched, session)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, session := range matched {
		if err := session.Conn.Send(msg); err != nil {
			r.logger.Warn("send failed, pruning session",
				logger.F("session", session.ID), logger.F("user", userID),
				logger.F("error", err))
			_ = session.Conn.Close()
			r.Unregister(session.ID)
			continue
		}
		delivered++
	}

	r.logger.Debug("broadcast",
		logger.F("user", userID), logger.F("type", string(msg.Type)),
		logger.F("delivered", delivered))
	return delivered
}
