package protocol

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport dials websocket endpoints and exchanges frames as binary
// messages.
type WebsocketTransport struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// NewWebsocketTransport returns a WebsocketTransport with a default dialer.
func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Dial implements the Transport interface. Discovered endpoints may be
// announced with an HTTP scheme; http is dialled as ws and https as wss.
func (t *WebsocketTransport) Dial(ctx context.Context, uri string) (Conn, error) {
	target, err := websocketURL(uri)
	if err != nil {
		return nil, err
	}

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, _, err := dialer.DialContext(ctx, target, t.Header)
	if err != nil {
		return nil, err
	}

	return &websocketConn{ws: ws}, nil
}

func websocketURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("cannot dial scheme %q", u.Scheme)
	}

	return u.String(), nil
}

type websocketConn struct {
	ws *websocket.Conn
}

// ReadMessage skips control and text frames; the protocol is binary only.
func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		mt, p, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return p, nil
		}
	}
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *websocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
