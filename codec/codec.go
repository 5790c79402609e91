// Package codec frames chat messages on a byte stream. Every frame is the
// message's JSON text followed by a single '@' sentinel byte.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cyberinferno/lanchat/message"
)

// Sentinel terminates every frame on the wire.
const Sentinel byte = '@'

// escapedSentinel is the JSON string escape for '@'. A JSON decoder turns it
// back into '@', so escaping is invisible above the codec.
var escapedSentinel = []byte(`\u0040`)

var (
	// ErrFraming is returned when the stream ends before a sentinel arrives.
	ErrFraming = errors.New("stream closed before frame sentinel")
	// ErrDeserialization is returned when a frame is not a valid message.
	ErrDeserialization = errors.New("frame is not a valid message")
)

// Encode serializes m and appends the sentinel, returning bytes ready to be
// written to a stream. Any '@' produced by serialization (it can only occur
// inside JSON strings) is escaped so the frame holds exactly one sentinel.
//
// Parameters:
//   - m: The message to encode
//
// Returns:
//   - The framed bytes
//   - An error if the message cannot be serialized
func Encode(m message.Message) ([]byte, error) {
	payload, err := m.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}

	payload = bytes.ReplaceAll(payload, []byte{Sentinel}, escapedSentinel)
	return append(payload, Sentinel), nil
}

// Decoder reads framed messages from a stream. Bytes that follow a sentinel
// in the same read are kept for the next call to Decode. A Decoder is not
// safe for concurrent use; each session owns one.
type Decoder struct {
	r          io.Reader
	bufferSize int
	chunk      []byte
	pending    []byte
	scanned    int // prefix of pending known to hold no sentinel
}

// NewDecoder returns a Decoder that reads at most bufferSize bytes from r per
// read call. A non-positive bufferSize is treated as 1.
//
// Parameters:
//   - r: The stream to read frames from
//   - bufferSize: The per-read byte count
//
// Returns:
//   - A new Decoder
func NewDecoder(r io.Reader, bufferSize int) *Decoder {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	return &Decoder{
		r:          r,
		bufferSize: bufferSize,
		chunk:      make([]byte, bufferSize),
	}
}

// Decode blocks until a whole frame is available and returns its message.
//
// Returns:
//   - The next message on the stream
//   - ErrFraming (wrapping the read error) if the stream ends first
//   - ErrDeserialization if the frame text is not a valid message
func (d *Decoder) Decode() (message.Message, error) {
	for {
		if idx := bytes.IndexByte(d.pending[d.scanned:], Sentinel); idx >= 0 {
			idx += d.scanned
			frame := d.pending[:idx]
			d.pending = d.pending[idx+1:]
			d.scanned = 0

			m, err := message.Unmarshal(frame)
			if err != nil {
				return message.Message{}, fmt.Errorf("%w: %w", ErrDeserialization, err)
			}

			return m, nil
		}

		d.scanned = len(d.pending)
		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.pending = append(d.pending, d.chunk[:n]...)
			continue
		}

		if err != nil {
			return message.Message{}, fmt.Errorf("%w: %w", ErrFraming, err)
		}
	}
}

// Buffered returns the number of bytes received but not yet decoded.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}
