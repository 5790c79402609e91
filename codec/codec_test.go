package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cyberinferno/lanchat/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oneByteReader hands out a single byte per Read call.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}

	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func sample(t message.Type, content string) message.Message {
	return message.Message{
		Type:    t,
		Sender:  "alice",
		Content: content,
		Time:    time.Date(2025, 6, 1, 10, 0, 0, 42, time.UTC),
	}
}

func TestEncode(t *testing.T) {
	t.Run("ends with a single sentinel", func(t *testing.T) {
		frame, err := Encode(sample(message.TypeMessage, "hello"))
		require.NoError(t, err)
		assert.Equal(t, Sentinel, frame[len(frame)-1])
		assert.Equal(t, 1, bytes.Count(frame, []byte{Sentinel}))
	})

	t.Run("escapes sentinel in content", func(t *testing.T) {
		frame, err := Encode(sample(message.TypeMessage, "mail me @ alice@example.com"))
		require.NoError(t, err)
		assert.Equal(t, 1, bytes.Count(frame, []byte{Sentinel}))
		assert.Contains(t, string(frame), string(escapedSentinel))
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := Encode(message.Message{Type: message.Type(99)})
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	cases := []message.Message{
		sample(message.TypeHandshake, "1024"),
		sample(message.TypeDisconnect, ""),
		sample(message.TypeError, message.ReasonNameInUse),
		sample(message.TypeServerStopped, ""),
		sample(message.TypeMessage, "héllo wörld, {\"json\": [1,2]}"),
		sample(message.TypeInfo, "line one\nline two"),
		sample(message.TypeMessage, "@@@ at the start, middle @ and end @"),
	}

	for _, m := range cases {
		t.Run(m.Type.String(), func(t *testing.T) {
			frame, err := Encode(m)
			require.NoError(t, err)

			got, err := NewDecoder(bytes.NewReader(frame), 1024).Decode()
			require.NoError(t, err)
			assert.True(t, m.Equal(got), "want %v, got %v", m, got)
		})
	}
}

func TestDecoder_Decode(t *testing.T) {
	t.Run("keeps bytes after the sentinel for the next frame", func(t *testing.T) {
		first := sample(message.TypeMessage, "first")
		second := sample(message.TypeMessage, "second")
		third := sample(message.TypeInfo, "third")

		var stream []byte
		for _, m := range []message.Message{first, second, third} {
			frame, err := Encode(m)
			require.NoError(t, err)
			stream = append(stream, frame...)
		}

		d := NewDecoder(bytes.NewReader(stream), 4096)
		for _, want := range []message.Message{first, second, third} {
			got, err := d.Decode()
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		}

		assert.Equal(t, 0, d.Buffered())
		_, err := d.Decode()
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("reassembles frames split across reads", func(t *testing.T) {
		m := sample(message.TypeMessage, strings.Repeat("x", 300))
		frame, err := Encode(m)
		require.NoError(t, err)

		got, err := NewDecoder(&oneByteReader{data: frame}, 16).Decode()
		require.NoError(t, err)
		assert.True(t, m.Equal(got))
	})

	t.Run("small buffer with several frames", func(t *testing.T) {
		a := sample(message.TypeMessage, "a@b")
		b := sample(message.TypeMessage, "c")
		fa, err := Encode(a)
		require.NoError(t, err)
		fb, err := Encode(b)
		require.NoError(t, err)

		d := NewDecoder(bytes.NewReader(append(fa, fb...)), 7)
		got, err := d.Decode()
		require.NoError(t, err)
		assert.True(t, a.Equal(got))
		got, err = d.Decode()
		require.NoError(t, err)
		assert.True(t, b.Equal(got))
	})

	t.Run("large frames in small reads", func(t *testing.T) {
		big := sample(message.TypeMessage, strings.Repeat("x@", 256<<10))
		small := sample(message.TypeInfo, "after")
		fa, err := Encode(big)
		require.NoError(t, err)
		fb, err := Encode(small)
		require.NoError(t, err)

		d := NewDecoder(bytes.NewReader(append(fa, fb...)), 512)
		got, err := d.Decode()
		require.NoError(t, err)
		assert.True(t, big.Equal(got))
		got, err = d.Decode()
		require.NoError(t, err)
		assert.True(t, small.Equal(got))
	})

	t.Run("stream closes mid frame", func(t *testing.T) {
		frame, err := Encode(sample(message.TypeMessage, "cut"))
		require.NoError(t, err)

		_, err = NewDecoder(bytes.NewReader(frame[:len(frame)-1]), 64).Decode()
		assert.ErrorIs(t, err, ErrFraming)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("empty stream", func(t *testing.T) {
		_, err := NewDecoder(bytes.NewReader(nil), 64).Decode()
		assert.ErrorIs(t, err, ErrFraming)
	})

	t.Run("garbage frame", func(t *testing.T) {
		_, err := NewDecoder(strings.NewReader("not json@"), 64).Decode()
		assert.ErrorIs(t, err, ErrDeserialization)
		assert.False(t, errors.Is(err, ErrFraming))
	})

	t.Run("garbage frame does not lose the next one", func(t *testing.T) {
		good := sample(message.TypeInfo, "ok")
		frame, err := Encode(good)
		require.NoError(t, err)

		d := NewDecoder(io.MultiReader(strings.NewReader("{}@"), bytes.NewReader(frame)), 64)
		_, err = d.Decode()
		assert.ErrorIs(t, err, ErrDeserialization)

		got, err := d.Decode()
		require.NoError(t, err)
		assert.True(t, good.Equal(got))
	})

	t.Run("non positive buffer size still reads", func(t *testing.T) {
		m := sample(message.TypeInfo, "tiny")
		frame, err := Encode(m)
		require.NoError(t, err)

		got, err := NewDecoder(bytes.NewReader(frame), 0).Decode()
		require.NoError(t, err)
		assert.True(t, m.Equal(got))
	})
}
