package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewZerologLogger(t *testing.T) {
	t.Run("writes service, level and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "chat", zerolog.DebugLevel)

		l.Info("client joined", Field{Key: "username", Value: "alice"})

		entry := decodeLine(t, &buf)
		assert.Equal(t, "chat", entry["service"])
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "client joined", entry["message"])
		assert.Equal(t, "alice", entry["username"])
		assert.Contains(t, entry, "time")
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "chat", zerolog.WarnLevel)

		l.Debug("hidden")
		l.Info("hidden")
		assert.Zero(t, buf.Len())

		l.Warn("shown")
		assert.NotZero(t, buf.Len())
	})

	t.Run("error field", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "chat", zerolog.DebugLevel)

		l.Error("write failed", Err(errors.New("broken pipe")))

		entry := decodeLine(t, &buf)
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "broken pipe", entry["error"])
	})
}

func TestZerologLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologLogger(zerolog.New(&buf), "chat", zerolog.DebugLevel)
	derived := base.With(Field{Key: "session", Value: "abc"})

	derived.Debug("frame received")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "abc", entry["session"])

	buf.Reset()
	base.Debug("no session")
	entry = decodeLine(t, &buf)
	assert.NotContains(t, entry, "session")
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "lanchat", "warn")

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("listening", Field{Key: "port", Value: 9000})
	assert.Contains(t, buf.String(), "listening")
	assert.Contains(t, buf.String(), "9000")
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
		l.With(Field{Key: "k", Value: 1}).Info("x")
	})
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := NewNopLogger()
	assert.Same(t, l, OrNop(l))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}

	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}
