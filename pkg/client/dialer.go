package client

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Conn is the socket seam the manager drives. *websocket.Conn is wrapped to
// satisfy it; tests substitute scripted connections.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens one connection to the realtime endpoint.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// NewDialer returns a Dialer over gorilla's websocket client.
func NewDialer() Dialer {
	return &wsDialer{dialer: websocket.DefaultDialer}
}

type wsDialer struct {
	dialer *websocket.Dialer
}

func (d *wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
