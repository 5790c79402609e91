// Package server implements the chat server controller: it binds the
// listening socket, runs the accept loop, applies the join/leave/relay
// protocol to every session and fans messages out through the broadcast
// engine.
package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/lanchat/broadcast"
	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/registry"
	"github.com/cyberinferno/lanchat/safemap"
	"github.com/cyberinferno/lanchat/session"
)

// State is the lifecycle position of the server.
type State int32

const (
	Stopped   State = iota // Not bound to any address
	Starting               // Binding the listening socket
	Listening              // Accepting connections
	Stopping               // Notifying clients and releasing resources
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Listening:
		return "Listening"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

const (
	defaultStopTimeout = 5 * time.Second
	minAcceptDelay     = 5 * time.Millisecond
	maxAcceptDelay     = time.Second
)

// Config holds tuning that is not part of the handshake.
type Config struct {
	// WriteTimeout bounds a single write to a client; 0 means no timeout.
	// A client that stays blocked past it is evicted.
	WriteTimeout time.Duration
	// StopTimeout bounds how long Stop waits for the ServerStopped notice to
	// reach every client; non-positive means 5s.
	StopTimeout time.Duration
	// BroadcastConcurrency bounds parallel writes per broadcast.
	BroadcastConcurrency int
}

// DefaultConfig returns a Config with default values.
//
// Returns:
//   - A Config with WriteTimeout 10s, StopTimeout 5s and
//     broadcast.DefaultConcurrency parallel writes
func DefaultConfig() Config {
	return Config{
		WriteTimeout:         10 * time.Second,
		StopTimeout:          defaultStopTimeout,
		BroadcastConcurrency: broadcast.DefaultConcurrency,
	}
}

// Controller is the chat server. Register the presentation callbacks, then
// call Start. Callbacks run on session goroutines and must not block.
type Controller struct {
	config   Config
	logger   logger.Logger
	state    atomic.Int32
	registry *registry.Registry
	engine   *broadcast.Engine
	sessions *safemap.SafeMap[string, *session.Session]

	mu         sync.Mutex
	listener   net.Listener
	serverName string
	bufferSize int
	acceptDone chan struct{}
	wg         sync.WaitGroup

	handlersMu     sync.RWMutex
	onMessage      func(message.Message)
	onClientJoined func(username string)
	onClientLeft   func(username string)
	onFatalError   func(err error)
}

// New creates a stopped Controller.
//
// Parameters:
//   - config: Write and broadcast tuning (e.g. from DefaultConfig)
//   - l: Logger for server events; nil discards output
//
// Returns:
//   - A new *Controller in the Stopped state
func New(config Config, l logger.Logger) *Controller {
	l = logger.OrNop(l)
	reg := registry.New()

	c := &Controller{
		config:   config,
		logger:   l,
		registry: reg,
		engine:   broadcast.New(reg, config.BroadcastConcurrency, l),
		sessions: safemap.NewSafeMap[string, *session.Session](),
	}
	c.engine.OnEvict(c.handleEvicted)

	return c
}

// OnMessage registers the handler for every message the server shows:
// relayed chat, join/leave announcements and its own messages. Repeated
// calls replace the previous handler.
func (c *Controller) OnMessage(handler func(message.Message)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onMessage = handler
}

// OnClientJoined registers the handler called after a successful handshake.
func (c *Controller) OnClientJoined(handler func(username string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onClientJoined = handler
}

// OnClientLeft registers the handler called when a joined client leaves,
// whether by Disconnect, a dropped connection or a failed delivery.
func (c *Controller) OnClientLeft(handler func(username string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onClientLeft = handler
}

// OnFatalError registers the handler called when the accept loop dies
// unexpectedly. The server stops itself afterwards.
func (c *Controller) OnFatalError(handler func(err error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onFatalError = handler
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Addr returns the bound listening address, or nil when not listening.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listener == nil {
		return nil
	}

	return c.listener.Addr()
}

// Name returns the server name given to Start.
func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName
}

// Clients returns the joined usernames, sorted.
func (c *Controller) Clients() []string {
	return c.registry.Usernames()
}

// Start binds bindAddress:port and begins accepting connections. Every
// client must declare exactly bufferSize in its handshake to join.
//
// Parameters:
//   - bindAddress: Local address to bind; "" binds all interfaces
//   - port: TCP port; 0 picks a free port (see Addr)
//   - serverName: Sender name on server-originated messages
//   - bufferSize: Per-read byte count, which clients must match
//
// Returns:
//   - ErrAlreadyRunning if the server is not stopped
//   - A *BindError if the socket could not be opened (errors.Is(err,
//     ErrAddressInUse) when the port is taken)
func (c *Controller) Start(bindAddress string, port int, serverName string, bufferSize int) error {
	if !c.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(bindAddress, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		c.state.Store(int32(Stopped))
		bindErr := &BindError{Addr: addr, Err: err}
		c.logger.Error("server failed to start", logger.Field{Key: "addr", Value: addr}, logger.Err(err))
		return bindErr
	}

	acceptDone := make(chan struct{})

	c.mu.Lock()
	c.listener = ln
	c.serverName = serverName
	c.bufferSize = bufferSize
	c.acceptDone = acceptDone
	c.mu.Unlock()

	c.state.Store(int32(Listening))
	c.logger.Info(fmt.Sprintf("%s server started", serverName),
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "buffer_size", Value: bufferSize},
	)

	go c.acceptLoop(ln, serverName, bufferSize, acceptDone)

	return nil
}

// Stop tells every client the server is stopping, empties the registry,
// closes the listening socket and every session, and waits for all session
// goroutines to finish. Clients that do not take the ServerStopped notice
// within Config.StopTimeout are closed without it. It is safe to call while
// the accept loop is blocked, but not from inside a callback, which runs on a
// session goroutine.
//
// Returns:
//   - ErrNotRunning if the server is not listening
func (c *Controller) Stop() error {
	if !c.state.CompareAndSwap(int32(Listening), int32(Stopping)) {
		return ErrNotRunning
	}

	c.mu.Lock()
	ln := c.listener
	name := c.serverName
	acceptDone := c.acceptDone
	c.mu.Unlock()

	stopped := message.New(message.TypeServerStopped, name, message.ReasonServerStopped)
	c.emitMessage(stopped)

	notified := make(chan struct{})
	go func() {
		defer close(notified)
		c.engine.Broadcast(stopped, nil)
	}()

	timeout := c.config.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	select {
	case <-notified:
	case <-time.After(timeout):
		c.logger.Warn("stop notice still pending, closing remaining clients",
			logger.Field{Key: "timeout", Value: timeout.String()},
		)
	}

	for username := range c.registry.Clear() {
		c.emitClientLeft(username)
	}

	if err := ln.Close(); err != nil {
		c.logger.Warn("failed to close listener", logger.Err(err))
	}
	<-acceptDone

	for _, s := range c.sessions.Clear() {
		_ = s.Close()
	}
	<-notified
	c.wg.Wait()

	c.mu.Lock()
	c.listener = nil
	c.mu.Unlock()

	c.state.Store(int32(Stopped))
	c.logger.Info(fmt.Sprintf("%s server stopped", name))

	return nil
}

// Send broadcasts a chat message from the server itself to every client.
//
// Returns:
//   - ErrNotRunning if the server is not listening
func (c *Controller) Send(content string) error {
	if c.State() != Listening {
		return ErrNotRunning
	}

	m := message.New(message.TypeMessage, c.Name(), content)
	c.emitMessage(m)
	c.engine.Broadcast(m, nil)

	return nil
}

// acceptLoop accepts connections until the listener is closed. Each
// connection gets a Session whose read loop runs on its own goroutine.
func (c *Controller) acceptLoop(ln net.Listener, serverName string, bufferSize int, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if c.State() != Listening {
				return
			}

			if errors.Is(err, net.ErrClosed) {
				c.logger.Error(fmt.Sprintf("%s server listener closed unexpectedly", serverName), logger.Err(err))
				c.emitFatalError(err)
				go func() { _ = c.Stop() }()
				return
			}

			delay = nextAcceptDelay(delay)
			c.logger.Error(fmt.Sprintf("%s server accept error", serverName),
				logger.Field{Key: "retry_in", Value: delay.String()},
				logger.Err(err),
			)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s := session.New(conn, bufferSize, c.config.WriteTimeout, c.logger)
		c.sessions.Store(s.ID(), s)
		c.logger.Debug("connection accepted",
			logger.Field{Key: "session", Value: s.ID()},
			logger.Field{Key: "remote", Value: s.RemoteAddr()},
		)

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			s.Run(c.handleMessage, c.handleClosed)
		}()
	}
}

// nextAcceptDelay doubles the wait between failed accepts, from
// minAcceptDelay up to maxAcceptDelay.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}

	return min(prev*2, maxAcceptDelay)
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
