// Package client implements the chat client controller: it dials a server,
// performs the handshake, and turns incoming messages into presentation
// callbacks.
package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/session"
)

// State represents the current state of the client connection.
type State int

const (
	Disconnected  State = iota // Not connected and not attempting to connect
	Connecting                 // Dialing the server
	AwaitingJoin               // Handshake sent, waiting for the first reply
	Connected                  // Joined the chat
	Disconnecting              // Notifying the server before tearing down
)

// String returns a human-readable name for the client state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case AwaitingJoin:
		return "AwaitingJoin"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Config holds connection tuning that is not part of the handshake.
type Config struct {
	// DialTimeout is the max duration for establishing the TCP connection.
	DialTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
//
// Returns:
//   - A Config with DialTimeout 10s and WriteTimeout 10s
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// connection is one dialed session and the channel that receives the
// outcome of its handshake. serverName is the sender of the join notice;
// only messages from it can stop the connection or announce presence.
type connection struct {
	session    *session.Session
	joined     chan error
	serverName string
}

func (cn *connection) resolve(err error) {
	select {
	case cn.joined <- err:
	default:
	}
}

// Controller is a chat client. Register handlers, then call Connect. It is
// safe for concurrent use. Handlers are invoked from the read goroutine and
// must not block.
type Controller struct {
	config Config
	logger logger.Logger

	mu       sync.Mutex
	state    State
	conn     *connection
	username string

	handlersMu     sync.RWMutex
	onMessage      func(message.Message)
	onClientJoined func(username string)
	onClientLeft   func(username string)
	onFatalError   func(err error)
	onConnected    func()
	onDisconnected func(reason string)
}

// New creates a disconnected Controller.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//   - l: Logger for client events; nil discards output
//
// Returns:
//   - A new *Controller in the Disconnected state
func New(config Config, l logger.Logger) *Controller {
	return &Controller{
		config: config,
		logger: logger.OrNop(l),
		state:  Disconnected,
	}
}

// OnMessage registers the handler for every message to show, including the
// client's own chat messages once they are written.
func (c *Controller) OnMessage(handler func(message.Message)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onMessage = handler
}

// OnClientJoined registers the handler for join announcements.
func (c *Controller) OnClientJoined(handler func(username string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onClientJoined = handler
}

// OnClientLeft registers the handler for leave announcements.
func (c *Controller) OnClientLeft(handler func(username string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onClientLeft = handler
}

// OnFatalError registers the handler called when the connection fails
// unexpectedly.
func (c *Controller) OnFatalError(handler func(err error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFatalError = handler
}

// OnConnected registers the handler called once the server accepts the join.
func (c *Controller) OnConnected(handler func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onConnected = handler
}

// OnDisconnected registers the handler called whenever the client returns to
// Disconnected after a handshake was sent. The reason is a rejection reason
// from the server or one of message.ReasonServerStopped,
// message.ReasonDisconnected and message.ReasonConnectionLost.
func (c *Controller) OnDisconnected(handler func(reason string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDisconnected = handler
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the name given to the last Connect.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Connect dials address:port, sends the handshake and blocks until the
// server accepts or rejects it. Acceptance is implied by the first non-Error
// message the server sends.
//
// Parameters:
//   - ctx: Bounds the dial and the wait for the join outcome
//   - address: Server host name or IP
//   - port: Server TCP port
//   - username: Name to join under
//   - bufferSize: Per-read byte count; must match the server's
//
// Returns:
//   - nil once Connected
//   - ErrAlreadyConnected if the client is not disconnected
//   - A *ConnectError if the socket could not be opened
//   - A *JoinError if the server rejected the handshake
//   - ErrConnectionLost or ctx.Err() if no answer arrived
func (c *Controller) Connect(ctx context.Context, address string, port int, username string, bufferSize int) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = Connecting
	c.mu.Unlock()

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: c.config.DialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(Disconnected)
		c.logger.Warn("failed to connect", logger.Field{Key: "addr", Value: addr}, logger.Err(err))
		return &ConnectError{Addr: addr, Err: err}
	}

	s := session.New(netConn, bufferSize, c.config.WriteTimeout, c.logger)
	if err := s.Send(message.NewHandshake(username, bufferSize)); err != nil {
		_ = s.Close()
		c.setState(Disconnected)
		return &ConnectError{Addr: addr, Err: err}
	}

	cn := &connection{session: s, joined: make(chan error, 1)}

	c.mu.Lock()
	c.conn = cn
	c.username = username
	c.state = AwaitingJoin
	c.mu.Unlock()

	c.logger.Debug("handshake sent",
		logger.Field{Key: "addr", Value: addr},
		logger.Field{Key: "username", Value: username},
	)

	go s.Run(c.handleMessage, c.handleClosed)

	select {
	case err := <-cn.joined:
		return err
	case <-ctx.Done():
		if _, _, ok := c.detach(s); ok {
			_ = s.Close()
			c.emitDisconnected(message.ReasonDisconnected)
		}
		return ctx.Err()
	}
}

// Send writes a chat message from this client and hands it to OnMessage,
// since the server does not echo it back.
//
// Returns:
//   - ErrNotConnected outside the Connected state, or the write error
func (c *Controller) Send(content string) error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	s := c.conn.session
	username := c.username
	c.mu.Unlock()

	m := message.New(message.TypeMessage, username, content)
	if err := s.Send(m); err != nil {
		return err
	}

	c.emitMessage(m)

	return nil
}

// Disconnect tells the server the client is leaving and tears the session
// down. The notification is best effort; the client ends up Disconnected
// even if it could not be written.
//
// Returns:
//   - ErrNotConnected outside the Connected state
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.state = Disconnecting
	s := c.conn.session
	username := c.username
	c.mu.Unlock()

	if err := s.Send(message.New(message.TypeDisconnect, username, "")); err != nil {
		c.logger.Warn("failed to notify server of disconnect", logger.Err(err))
	}

	c.mu.Lock()
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	_ = s.Close()
	c.logger.Info("disconnected", logger.Field{Key: "username", Value: username})
	c.emitDisconnected(message.ReasonDisconnected)

	return nil
}

func (c *Controller) handleMessage(s *session.Session, m message.Message) {
	c.mu.Lock()
	cn := c.conn
	if cn == nil || cn.session != s {
		c.mu.Unlock()
		return
	}

	switch c.state {
	case AwaitingJoin:
		if m.Type == message.TypeError {
			c.conn = nil
			c.state = Disconnected
			c.mu.Unlock()

			_ = s.Close()
			c.logger.Info("join rejected", logger.Field{Key: "reason", Value: m.Content})
			c.emitDisconnected(m.Content)
			cn.resolve(&JoinError{Reason: m.Content})
			return
		}

		c.state = Connected
		cn.serverName = m.Sender
		c.mu.Unlock()

		c.logger.Info("joined server", logger.Field{Key: "server", Value: m.Sender})
		c.emitConnected()
		cn.resolve(nil)
	case Connected:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		return
	}

	c.dispatch(s, m, cn.serverName)
}

// dispatch raises the presentation callbacks for a message received while
// joined. Control messages from anyone but serverName are shown as plain
// messages.
func (c *Controller) dispatch(s *session.Session, m message.Message, serverName string) {
	if m.Sender != serverName {
		c.emitMessage(m)
		return
	}

	if m.Type == message.TypeServerStopped {
		c.emitMessage(m)
		if _, _, ok := c.detach(s); ok {
			_ = s.Close()
			c.logger.Info("server stopped", logger.Field{Key: "server", Value: m.Sender})
			c.emitDisconnected(message.ReasonServerStopped)
		}
		return
	}

	if username, joined, ok := message.ParsePresence(m); ok {
		if joined {
			c.emitClientJoined(username)
		} else {
			c.emitClientLeft(username)
		}
	}

	c.emitMessage(m)
}

// handleClosed runs when the read loop ends. It only acts when nothing else
// has already torn the connection down.
func (c *Controller) handleClosed(s *session.Session, err error) {
	cn, prev, ok := c.detach(s)
	if !ok {
		return
	}

	if err == nil {
		err = ErrConnectionLost
	}

	c.logger.Warn("connection lost", logger.Field{Key: "state", Value: prev.String()}, logger.Err(err))
	c.emitFatalError(err)
	c.emitDisconnected(message.ReasonConnectionLost)
	if prev == AwaitingJoin {
		cn.resolve(ErrConnectionLost)
	}
}

// detach moves a live connection on s back to Disconnected.
//
// Returns:
//   - The detached connection and the state it was in
//   - false if s is not the current session or is already being torn down
func (c *Controller) detach(s *session.Session) (*connection, State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cn := c.conn
	if cn == nil || cn.session != s {
		return nil, c.state, false
	}

	if c.state != AwaitingJoin && c.state != Connected {
		return nil, c.state, false
	}

	prev := c.state
	c.conn = nil
	c.state = Disconnected

	return cn, prev, true
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Controller) emitMessage(m message.Message) {
	c.handlersMu.RLock()
	handler := c.onMessage
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(m)
	}
}

func (c *Controller) emitClientJoined(username string) {
	c.handlersMu.RLock()
	handler := c.onClientJoined
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(username)
	}
}

func (c *Controller) emitClientLeft(username string) {
	c.handlersMu.RLock()
	handler := c.onClientLeft
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(username)
	}
}

func (c *Controller) emitFatalError(err error) {
	c.handlersMu.RLock()
	handler := c.onFatalError
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(err)
	}
}

func (c *Controller) emitConnected() {
	c.handlersMu.RLock()
	handler := c.onConnected
	c.handlersMu.RUnlock()

	if handler != nil {
		handler()
	}
}

func (c *Controller) emitDisconnected(reason string) {
	c.handlersMu.RLock()
	handler := c.onDisconnected
	c.handlersMu.RUnlock()

	if handler != nil {
		handler(reason)
	}
}
