package server

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	// ErrAlreadyRunning is returned by Start when the server is not stopped.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop and Send when the server is not listening.
	ErrNotRunning = errors.New("server not running")
	// ErrAddressInUse matches a BindError caused by an occupied address/port.
	ErrAddressInUse = errors.New("address in use")
)

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Addr string
	Err  error
}

// Error implements error.
func (e *BindError) Error() string {
	if e.AddressInUse() {
		return fmt.Sprintf("bind %s: %s", e.Addr, ErrAddressInUse)
	}

	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying listen error.
func (e *BindError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrAddressInUse) classify the failure.
func (e *BindError) Is(target error) bool {
	return target == ErrAddressInUse && e.AddressInUse()
}

// AddressInUse reports whether the address/port was already taken.
func (e *BindError) AddressInUse() bool {
	if errors.Is(e.Err, syscall.EADDRINUSE) {
		return true
	}

	msg := strings.ToLower(e.Err.Error())
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "only one usage of each socket address")
}
