package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightningsats/go-realtime/internal/registry"
	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Buffered outbound frames per session before the session is
	// considered dead.
	sendBuffer = 32
)

var errConnClosed = errors.New("server: connection closed")

// wsSession wraps one upgraded connection behind a buffered send channel and
// a single writer goroutine, so broadcasts from any goroutine never touch
// the websocket writer concurrently.
type wsSession struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    logger.Logger
}

var _ registry.Sender = (*wsSession)(nil)

func newWSSession(conn *websocket.Conn, lgr logger.Logger) *wsSession {
	s := &wsSession{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: lgr,
	}
	go s.writePump()
	return s
}

// Send enqueues one frame. It fails when the session is closed or its buffer
// is full; either way the caller treats the session as dead.
func (s *wsSession) Send(msg realtime.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return errConnClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errors.New("server: send buffer full")
	}
}

// Close tears the session down; safe to call more than once.
func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed", logger.F("error", err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
