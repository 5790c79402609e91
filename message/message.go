// Package message defines the chat wire schema shared by server and client:
// the message Type enum, the immutable Message value, and its JSON text form.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type identifies what a Message means to the protocol.
type Type int

const (
	TypeHandshake     Type = iota // Client asks to join, carrying its username and buffer size
	TypeDisconnect                // Client tells the server it is leaving
	TypeError                     // Something went wrong, e.g. the username is already taken
	TypeServerStopped             // Server tells every client it is shutting down
	TypeMessage                   // Regular chat message
	TypeInfo                      // Generic notice such as join and leave announcements
)

var typeNames = [...]string{"Handshake", "Disconnect", "Error", "ServerStopped", "Message", "Info"}

// String returns the wire name of the type.
func (t Type) String() string {
	if !t.Valid() {
		return "Unknown"
	}

	return typeNames[t]
}

// Valid reports whether t is one of the defined message types.
func (t Type) Valid() bool {
	return t >= TypeHandshake && t <= TypeInfo
}

// ParseType returns the Type whose wire name is s.
//
// Parameters:
//   - s: The type name, e.g. "Handshake"
//
// Returns:
//   - The matching Type
//   - An error if s names no known type
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if name == s {
			return Type(i), nil
		}
	}

	return 0, fmt.Errorf("unknown message type %q", s)
}

// MarshalJSON writes the type as its name.
func (t Type) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid message type %d", int(t))
	}

	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either the type name or its numeric ordinal.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseType(name)
		if err != nil {
			return err
		}

		*t = parsed
		return nil
	}

	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("message type must be a name or a number: %w", err)
	}

	parsed := Type(ordinal)
	if !parsed.Valid() {
		return fmt.Errorf("invalid message type %d", ordinal)
	}

	*t = parsed
	return nil
}

// Message is one chat protocol event. It is a value type: once built it is
// never modified, and two messages are equal when all four fields are equal.
type Message struct {
	Type    Type      `json:"type"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// New builds a Message stamped with the current UTC time.
//
// Parameters:
//   - t: The message type
//   - sender: The originating user or server name
//   - content: The message body
//
// Returns:
//   - The new Message
func New(t Type, sender, content string) Message {
	return Message{
		Type:    t,
		Sender:  sender,
		Content: content,
		Time:    time.Now().UTC(),
	}
}

// NewHandshake builds the join request a client sends right after connecting.
// The buffer size travels as decimal text in Content.
func NewHandshake(username string, bufferSize int) Message {
	return New(TypeHandshake, username, strconv.Itoa(bufferSize))
}

// HandshakeBufferSize extracts the declared buffer size from a Handshake.
//
// Returns:
//   - The buffer size declared by the client
//   - false if m is not a Handshake or its content is not a number
func (m Message) HandshakeBufferSize() (int, bool) {
	if m.Type != TypeHandshake {
		return 0, false
	}

	size, err := strconv.Atoi(strings.TrimSpace(m.Content))
	if err != nil {
		return 0, false
	}

	return size, true
}

// Equal reports whether m and other carry the same type, sender, content and
// instant in time.
func (m Message) Equal(other Message) bool {
	return m.Type == other.Type &&
		m.Sender == other.Sender &&
		m.Content == other.Content &&
		m.Time.Equal(other.Time)
}

// Marshal returns the JSON text form of the message.
func (m Message) Marshal() ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("invalid message type %d", int(m.Type))
	}

	return json.Marshal(m)
}

// Unmarshal parses the JSON text form produced by Marshal. Unknown fields are
// ignored so newer peers can add fields; a missing or unknown type is an error.
//
// Parameters:
//   - data: The JSON text of one message
//
// Returns:
//   - The decoded Message
//   - An error if data is not a JSON object describing a valid message
func Unmarshal(data []byte) (Message, error) {
	var wire struct {
		Type    *Type     `json:"type"`
		Sender  string    `json:"sender"`
		Content string    `json:"content"`
		Time    time.Time `json:"time"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, err
	}

	if wire.Type == nil {
		return Message{}, fmt.Errorf("message has no type")
	}

	return Message{
		Type:    *wire.Type,
		Sender:  wire.Sender,
		Content: wire.Content,
		Time:    wire.Time,
	}, nil
}

// String formats the message for log output.
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s: %s", m.Type, m.Sender, m.Content)
}
