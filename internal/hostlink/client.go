package hostlink

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

// Backoff constants for reconnection
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2
)

// pingWait is how long we wait for a ping from the server before timing out
const pingWait = 90 * time.Second

// calculateBackoff returns the delay for a given attempt number using exponential backoff
func calculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= backoffFactor
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ClientConfig configures a host-side client
type ClientConfig struct {
	ServerURL string
	// OnMessage receives the outbound commands the session sends back
	OnMessage func(env protocol.EnvelopeRaw)
}

// Validate checks the config is valid
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	return nil
}

// Client streams envelopes to a reporter server the way a host runner would
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	mu     sync.Mutex

	readDone chan struct{}
}

// NewClient creates a new client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

// Connect dials the server and starts reading outbound commands
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pingWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pingWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.readDone = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pingWait))

		env, err := protocol.ParseEnvelope(message)
		if err != nil {
			log.Printf("[hostlink] Invalid message from server: %v", err)
			continue
		}
		if c.config.OnMessage != nil {
			c.config.OnMessage(env)
		}
	}
}

// Send writes one envelope
func (c *Client) Send(env protocol.EnvelopeRaw) error {
	data, err := protocol.MarshalEnvelope(env.Type, env.Payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection gracefully
func (c *Client) Close() {
	c.mu.Lock()
	conn, done := c.conn, c.readDone
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
	<-done
}

// StreamWithReconnect sends envs in order, reconnecting with exponential
// backoff when the connection drops. An envelope whose write failed is
// sent again after reconnecting.
func (c *Client) StreamWithReconnect(ctx context.Context, envs []protocol.EnvelopeRaw) error {
	attempt := 0
	next := 0

	for next < len(envs) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.Connect(ctx); err != nil {
			delay := calculateBackoff(attempt)
			log.Printf("[hostlink] Connection failed: %v, retrying in %v", err, delay)
			attempt++

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		attempt = 0

		for next < len(envs) {
			if err := c.Send(envs[next]); err != nil {
				log.Printf("[hostlink] Disconnected after %d envelopes: %v", next, err)
				c.Close()
				break
			}
			next++
		}
	}
	return nil
}
