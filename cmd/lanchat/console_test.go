package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/lanchat/message"
)

func TestReadLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	for line := range readLines(ctx, strings.NewReader("hello\n\n  spaced  \n/quit\n")) {
		got = append(got, line)
	}

	assert.Equal(t, []string{"hello", "spaced", "/quit"}, got)
}

func TestPrintMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	stamp := at.Local().Format("15:04:05")

	var buf bytes.Buffer
	printMessage(&buf, message.Message{Type: message.TypeMessage, Sender: "alice", Content: "hi", Time: at})
	printMessage(&buf, message.Message{Type: message.TypeInfo, Sender: "S", Content: "bob just joined the server!", Time: at})

	assert.Equal(t, "["+stamp+"] alice: hi\n["+stamp+"] * bob just joined the server!\n", buf.String())
}

func TestLoadSettings(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("buffer-size", "1024", "")
		cmd.Flags().String("name", "", "")
		return cmd
	}

	t.Run("flag default", func(t *testing.T) {
		v, err := loadSettings(newCmd())
		require.NoError(t, err)
		assert.Equal(t, "1024", v.GetString("buffer-size"))
	})

	t.Run("environment overrides default", func(t *testing.T) {
		t.Setenv("LANCHAT_BUFFER_SIZE", "2048")
		v, err := loadSettings(newCmd())
		require.NoError(t, err)
		assert.Equal(t, "2048", v.GetString("buffer-size"))
	})

	t.Run("explicit flag wins", func(t *testing.T) {
		t.Setenv("LANCHAT_NAME", "from-env")
		cmd := newCmd()
		require.NoError(t, cmd.Flags().Set("name", "from-flag"))
		v, err := loadSettings(cmd)
		require.NoError(t, err)
		assert.Equal(t, "from-flag", v.GetString("name"))
	})
}
