package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/lanchat/client"
	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/validation"
)

// joinCmd connects to a chat room.
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a chat room",
	Long:  `Connect to a chat server and chat from the terminal. /quit leaves the room.`,
	RunE:  runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().String("username", "", "Name to chat as")
	joinCmd.Flags().String("address", "", "Server IP address or host name")
	joinCmd.Flags().String("port", "9000", "Server TCP port")
	joinCmd.Flags().String("buffer-size", "1024", "Read buffer size; must match the server")
}

func runJoin(cmd *cobra.Command, _ []string) error {
	v, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	opts, err := validation.ParseClientOptions(
		v.GetString("username"),
		v.GetString("address"),
		v.GetString("port"),
		v.GetString("buffer-size"),
	)
	if err != nil {
		return err
	}

	l := logger.NewConsoleLogger(os.Stderr, "lanchat-client", v.GetString("log-level"))
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gone := make(chan string, 1)

	c := client.New(client.DefaultConfig(), l)
	c.OnMessage(func(m message.Message) { printMessage(out, m) })
	c.OnDisconnected(func(reason string) {
		select {
		case gone <- reason:
		default:
		}
	})

	if err := c.Connect(ctx, opts.Address, opts.Port, opts.Username, opts.BufferSize); err != nil {
		return err
	}

	return joinConsole(ctx, cmd, c, gone)
}

func joinConsole(ctx context.Context, cmd *cobra.Command, c *client.Controller, gone <-chan string) error {
	lines := readLines(ctx, cmd.InOrStdin())

	for {
		select {
		case <-ctx.Done():
			_ = c.Disconnect()
			return nil
		case reason := <-gone:
			if reason == message.ReasonConnectionLost {
				return errors.New(reason)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected:", reason)
			return nil
		case line, ok := <-lines:
			if !ok || line == quitCommand {
				_ = c.Disconnect()
				return nil
			}

			if err := c.Send(line); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
