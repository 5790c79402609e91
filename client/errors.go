package client

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/lanchat/message"
)

var (
	// ErrAlreadyConnected is returned by Connect unless the client is disconnected.
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrNotConnected is returned by Send and Disconnect outside the Connected state.
	ErrNotConnected = errors.New("client not connected")
	// ErrConnectionLost is returned by Connect when the stream ends before the
	// server answers the handshake.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNameInUse matches a JoinError for a username that is already taken.
	ErrNameInUse = errors.New(message.ReasonNameInUse)
	// ErrBufferMismatch matches a JoinError for a buffer size the server rejected.
	ErrBufferMismatch = errors.New(message.ReasonBufferMismatch)
	// ErrInvalidName matches a JoinError for an empty username.
	ErrInvalidName = errors.New(message.ReasonInvalidName)
)

// ConnectError reports that the TCP connection could not be opened or the
// handshake could not be written.
type ConnectError struct {
	Addr string
	Err  error
}

// Error implements error.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying dial or write error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// JoinError reports that the server answered the handshake with an Error
// message. Reason is the message content.
type JoinError struct {
	Reason string
}

// Error implements error.
func (e *JoinError) Error() string {
	return "join rejected: " + e.Reason
}

// Is matches the sentinel for a known rejection reason.
func (e *JoinError) Is(target error) bool {
	switch target {
	case ErrNameInUse:
		return e.Reason == message.ReasonNameInUse
	case ErrBufferMismatch:
		return e.Reason == message.ReasonBufferMismatch
	case ErrInvalidName:
		return e.Reason == message.ReasonInvalidName
	default:
		return false
	}
}
