package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cyberinferno/lanchat/message"
)

const quitCommand = "/quit"

// readLines delivers trimmed, non-empty lines from r until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	return lines
}

// printMessage writes one chat line in local time.
func printMessage(w io.Writer, m message.Message) {
	stamp := m.Time.Local().Format("15:04:05")

	switch m.Type {
	case message.TypeInfo, message.TypeServerStopped, message.TypeError:
		fmt.Fprintf(w, "[%s] * %s\n", stamp, m.Content)
	default:
		fmt.Fprintf(w, "[%s] %s: %s\n", stamp, m.Sender, m.Content)
	}
}
