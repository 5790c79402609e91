// Package validation checks raw user input before it reaches the chat core.
// Every failure is an *InputError carrying a short title and a descriptive
// message that a front end can show as-is.
package validation

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InputError is a labeled input validation failure.
type InputError struct {
	Title   string
	Message string
}

// Error implements error.
func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

// NameKind selects the wording of name validation failures.
type NameKind int

const (
	ClientName NameKind = iota // A username joining a server
	ServerName                 // The name a server announces itself with
)

// ServerOptions is the validated input needed to start a server.
type ServerOptions struct {
	Name        string `validate:"required"`
	BindAddress string `validate:"omitempty,ip"`
	Port        int    `validate:"min=0,max=65535"`
	BufferSize  int    `validate:"gt=0"`
}

// ClientOptions is the validated input needed to join a server.
type ClientOptions struct {
	Username   string `validate:"required"`
	Address    string `validate:"required,ip|hostname_rfc1123"`
	Port       int    `validate:"min=1,max=65535"`
	BufferSize int    `validate:"gt=0"`
}

// ValidateName rejects an empty (or whitespace-only) name.
//
// Parameters:
//   - name: The entered name
//   - kind: Whether this is a username or a server name
//
// Returns:
//   - The trimmed name
//   - An *InputError if the name is empty
func ValidateName(name string, kind NameKind) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nameError(kind)
	}

	return name, nil
}

// ValidateIP parses an IP address.
//
// Returns:
//   - The parsed address
//   - An *InputError if s is empty or not an IP address
func ValidateIP(s string) (net.IP, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &InputError{
			Title:   "Provide server IP",
			Message: "Please provide a server IP in order to connect to the server.",
		}
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, invalidIPError()
	}

	return ip, nil
}

// ValidatePort parses a TCP port number.
//
// Returns:
//   - The port
//   - An *InputError if s is empty, not a number, or outside 0-65535
func ValidatePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &InputError{
			Title:   "Provide server port",
			Message: "Please provide a server port in order to connect to the server.",
		}
	}

	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InputError{
			Title:   "Invalid server port",
			Message: "The port you entered was invalid. Please make sure the port is a numeric value.",
		}
	}

	if port < 0 || port > 65535 {
		return 0, portRangeError(0)
	}

	return port, nil
}

// ValidateBufferSize parses a positive buffer size in bytes.
//
// Returns:
//   - The buffer size
//   - An *InputError if s is empty, not a number, or not positive
func ValidateBufferSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, bufferSizeError()
	}

	size, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InputError{
			Title:   "Invalid server buffer size",
			Message: "The buffer size you entered is likely not a number. Please enter a valid number.",
		}
	}

	if size <= 0 {
		return 0, bufferSizeError()
	}

	return size, nil
}

// ParseServerOptions turns raw text fields into ServerOptions.
func ParseServerOptions(name, bindAddress, port, bufferSize string) (ServerOptions, error) {
	var opts ServerOptions
	var err error

	if opts.Name, err = ValidateName(name, ServerName); err != nil {
		return ServerOptions{}, err
	}

	opts.BindAddress = strings.TrimSpace(bindAddress)
	if opts.Port, err = ValidatePort(port); err != nil {
		return ServerOptions{}, err
	}

	if opts.BufferSize, err = ValidateBufferSize(bufferSize); err != nil {
		return ServerOptions{}, err
	}

	if err := ValidateServerOptions(opts); err != nil {
		return ServerOptions{}, err
	}

	return opts, nil
}

// ParseClientOptions turns raw text fields into ClientOptions.
func ParseClientOptions(username, address, port, bufferSize string) (ClientOptions, error) {
	var opts ClientOptions
	var err error

	if opts.Username, err = ValidateName(username, ClientName); err != nil {
		return ClientOptions{}, err
	}

	opts.Address = strings.TrimSpace(address)
	if opts.Port, err = ValidatePort(port); err != nil {
		return ClientOptions{}, err
	}

	if opts.BufferSize, err = ValidateBufferSize(bufferSize); err != nil {
		return ClientOptions{}, err
	}

	if err := ValidateClientOptions(opts); err != nil {
		return ClientOptions{}, err
	}

	return opts, nil
}

// ValidateServerOptions checks already-typed server options.
//
// Returns:
//   - nil, or an *InputError for the first invalid field
func ValidateServerOptions(opts ServerOptions) error {
	return structError(validate.Struct(opts), ServerName)
}

// ValidateClientOptions checks already-typed client options.
//
// Returns:
//   - nil, or an *InputError for the first invalid field
func ValidateClientOptions(opts ClientOptions) error {
	return structError(validate.Struct(opts), ClientName)
}

// structError maps validator output onto the labeled errors above.
func structError(err error, kind NameKind) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &InputError{Title: "Invalid input", Message: err.Error()}
	}

	switch fe := fieldErrs[0]; fe.Field() {
	case "Name", "Username":
		return nameError(kind)
	case "Address", "BindAddress":
		if fe.Tag() == "required" {
			_, ipErr := ValidateIP("")
			return ipErr
		}
		return invalidIPError()
	case "Port":
		if kind == ServerName {
			return portRangeError(0)
		}
		return portRangeError(1)
	case "BufferSize":
		return bufferSizeError()
	default:
		return &InputError{Title: "Invalid input", Message: fe.Error()}
	}
}

func nameError(kind NameKind) *InputError {
	if kind == ServerName {
		return &InputError{
			Title:   "Provide server name",
			Message: "Please provide a server name in order to start the server.",
		}
	}

	return &InputError{
		Title:   "Provide username",
		Message: "Please provide a username in order to connect to the server.",
	}
}

func invalidIPError() *InputError {
	return &InputError{
		Title:   "Invalid server ip",
		Message: "The IP Address you entered was invalid.",
	}
}

// portRangeError reports a port outside lowest-65535. Servers accept 0 (any
// free port); clients need a real one.
func portRangeError(lowest int) *InputError {
	return &InputError{
		Title:   "Invalid server port",
		Message: fmt.Sprintf("The port must be between %d and 65535.", lowest),
	}
}

func bufferSizeError() *InputError {
	return &InputError{
		Title:   "Provide buffer size",
		Message: "Please provide a positive buffer size in order to connect to the server.",
	}
}
