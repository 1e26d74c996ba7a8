package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/live-scribe/internal/server"
)

// Message is one event received from the server.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is a streaming connection to the /ws endpoint.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	events  chan Message
	readErr error
}

func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{conn: conn, events: make(chan Message, 64)}
	go c.readLoop()
	return c, nil
}

// Events is closed when the connection ends. Err is valid after that and
// reports why.
func (c *Client) Events() <-chan Message { return c.events }

func (c *Client) Err() error { return c.readErr }

func (c *Client) Begin(userID, mimeType string) error {
	return c.writeJSON(map[string]any{
		"type": server.EventStartSession,
		"data": server.StartSessionData{UserID: userID, MIMEType: mimeType},
	})
}

func (c *Client) Send(chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

func (c *Client) Stop() error {
	return c.writeJSON(map[string]any{"type": server.EventStopSession})
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, websocket.ErrCloseSent) {
				c.readErr = err
			}
			return
		}
		c.events <- msg
	}
}
