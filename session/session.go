// Package session wraps one live chat connection: it owns the stream, runs
// the read loop that turns frames into messages, and serializes writes.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyberinferno/lanchat/codec"
	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
)

// ErrClosed is returned by Send once the session has been closed.
var ErrClosed = errors.New("session closed")

// State is the lifecycle position of a Session.
type State int32

const (
	Created State = iota // Built but the read loop has not started
	Active               // Read loop running
	Closed               // Ended because the owner cleared the liveness flag
	Errored              // Ended because decoding failed or the stream broke
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Active:
		return "Active"
	case Closed:
		return "Closed"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// MessageHandler receives every message the read loop decodes, in order.
type MessageHandler func(s *Session, m message.Message)

// ClosedHandler is called once when the read loop exits. err is nil when the
// session was closed by its owner, and the cause otherwise.
type ClosedHandler func(s *Session, err error)

// Session is one connection's stream plus its read loop. Sessions are never
// reused: once the read loop exits the session stays Closed or Errored.
type Session struct {
	id           string
	conn         net.Conn
	decoder      *codec.Decoder
	writeTimeout time.Duration
	logger       logger.Logger

	writeMu  sync.Mutex
	alive    atomic.Bool
	state    atomic.Int32
	username atomic.Pointer[string]

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps conn in a Session. Reads pull at most bufferSize bytes at a time.
//
// Parameters:
//   - conn: The accepted or dialed connection; the session takes ownership
//   - bufferSize: Per-read byte count for the frame decoder
//   - writeTimeout: Limit for a single Send; 0 means no limit
//   - l: Logger for session events; nil discards output
//
// Returns:
//   - A new Session in the Created state
func New(conn net.Conn, bufferSize int, writeTimeout time.Duration, l logger.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:           id,
		conn:         conn,
		decoder:      codec.NewDecoder(conn, bufferSize),
		writeTimeout: writeTimeout,
		logger:       logger.OrNop(l).With(logger.Field{Key: "session", Value: id}),
		done:         make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Username returns the name this session joined under, if any.
func (s *Session) Username() (string, bool) {
	name := s.username.Load()
	if name == nil {
		return "", false
	}

	return *name, true
}

// SetUsername records the joined name. Only the first call has an effect.
//
// Returns:
//   - true if the name was recorded, false if the session already had one
func (s *Session) SetUsername(name string) bool {
	return s.username.CompareAndSwap(nil, &name)
}

// Done is closed when the read loop has exited, or when a session that
// never ran is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run executes the read loop on the calling goroutine. Each decoded message
// is handed to onMessage in arrival order. The loop ends when Close clears
// the liveness flag or when decoding fails; then the connection is closed
// and onClosed is invoked exactly once. Calling Run more than once, or after
// Close, returns immediately.
//
// Parameters:
//   - onMessage: Called for each received message
//   - onClosed: Called once after the loop exits; may be nil
func (s *Session) Run(onMessage MessageHandler, onClosed ClosedHandler) {
	if !s.state.CompareAndSwap(int32(Created), int32(Active)) {
		return
	}

	defer close(s.done)

	s.logger.Debug("session started", logger.Field{Key: "remote", Value: s.RemoteAddr()})

	var cause error
	for s.alive.Load() {
		m, err := s.decoder.Decode()
		if err != nil {
			if s.alive.Load() {
				cause = err
			}
			break
		}

		if !s.alive.Load() {
			break
		}

		onMessage(s, m)
	}

	if cause != nil {
		s.state.Store(int32(Errored))
		s.logger.Debug("session errored", logger.Err(cause))
	} else {
		s.state.Store(int32(Closed))
		s.logger.Debug("session closed")
	}

	s.shutdown()

	if onClosed != nil {
		onClosed(s, cause)
	}
}

// Send encodes m and writes it to the stream. Concurrent Sends on the same
// session are serialized so frames never interleave.
//
// Parameters:
//   - m: The message to write
//
// Returns:
//   - ErrClosed if the session is closed, or the encode/write error
func (s *Session) Send(m message.Message) error {
	frame, err := codec.Encode(m)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.alive.Load() {
		return ErrClosed
	}

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}

		defer func() {
			_ = s.conn.SetWriteDeadline(time.Time{})
		}()
	}

	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write %s message: %w", m.Type, err)
	}

	return nil
}

// Close clears the liveness flag and closes the stream, which unblocks a
// pending read. It is safe to call multiple times and from any goroutine.
func (s *Session) Close() error {
	s.alive.Store(false)

	if s.state.CompareAndSwap(int32(Created), int32(Closed)) {
		defer close(s.done)
	}

	return s.shutdown()
}

// shutdown closes the connection once.
func (s *Session) shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		err = s.conn.Close()
	})

	return err
}
