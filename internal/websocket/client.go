// Package websocket is the socket.io message channel to the execution host.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhandras/noderunner/internal/protocol/wire"
	"github.com/bhandras/noderunner/pkg/logger"
	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

const (
	// EventMessage carries commands and notifications in both directions.
	EventMessage = "message"

	// DefaultPath is the socket.io endpoint path used when none is configured.
	DefaultPath = "/socket.io/"

	clientType = "noderunner"
)

// ErrNotConnected is returned by Send before Connect or after Close.
var ErrNotConnected = errors.New("not connected")

// Options configures a Client.
type Options struct {
	// ServerURL is the base URL of the execution host.
	ServerURL string
	// Path is the socket.io endpoint path (DefaultPath when empty).
	Path string
	// Token is sent in the handshake auth payload.
	Token string
	// ClientID identifies this controller instance to the host.
	ClientID string
}

// Client is a socket.io connection carrying "message" events.
//
// Inbound payloads are delivered to the message handler on the socket's
// event goroutine, one at a time and in arrival order.
type Client struct {
	opts Options

	mu           sync.RWMutex
	socket       *socket.Socket
	connected    bool
	onConnect    func()
	onDisconnect func(reason string)
	onMessage    func(payload any)
	closeOnce    sync.Once
}

// NewClient creates a client; call Connect to dial.
func NewClient(opts Options) *Client {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	return &Client{opts: opts}
}

// OnConnect registers the connect callback.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// OnDisconnect registers the disconnect callback.
func (c *Client) OnDisconnect(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// OnMessage registers the inbound "message" handler.
func (c *Client) OnMessage(fn func(payload any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Connect establishes the socket.io connection. Reconnection is handled by
// the socket.io manager; every reconnect fires the connect callback again.
func (c *Client) Connect() error {
	logger.Debugf("Connecting to socket.io: %s (path: %s)", c.opts.ServerURL, c.opts.Path)

	opts := socket.DefaultOptions()
	opts.SetPath(c.opts.Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]any{
		"token":      c.opts.Token,
		"clientType": clientType,
		"clientId":   c.opts.ClientID,
	})

	sock, err := socket.Connect(c.opts.ServerURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.socket = sock
	c.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		c.mu.Lock()
		c.connected = true
		fn := c.onConnect
		c.mu.Unlock()

		logger.Infof("Socket.IO connected (id %s)", sock.Id())
		if fn != nil {
			fn()
		}
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.mu.Lock()
		c.connected = false
		fn := c.onDisconnect
		c.mu.Unlock()

		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("Socket.IO disconnected: %s", reason)
		if fn != nil {
			fn(reason)
		}
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("Socket.IO connection error: %v", args[0])
		}
	})

	sock.On(types.EventName(EventMessage), func(args ...any) {
		if len(args) == 0 {
			return
		}
		c.mu.RLock()
		fn := c.onMessage
		c.mu.RUnlock()

		logger.Tracef("Received %s: %v", EventMessage, args[0])
		if fn != nil {
			fn(args[0])
		}
	})

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// Send emits one command as a "message" event.
func (c *Client) Send(cmd wire.Outbound) error {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()

	if sock == nil {
		return ErrNotConnected
	}

	payload, err := toPayload(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Name(), err)
	}

	logger.Tracef("Sending %s: %s", EventMessage, cmd.Name())
	sock.Emit(EventMessage, payload)
	return nil
}

// toPayload converts a command into the generic map the socket.io encoder
// expects.
func toPayload(cmd wire.Outbound) (map[string]any, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the socket.io connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		sock := c.socket
		c.socket = nil
		c.connected = false
		c.mu.Unlock()

		if sock != nil {
			sock.Disconnect()
		}
	})
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()

	if connected {
		return true
	}
	return sock != nil && sock.Connected()
}
