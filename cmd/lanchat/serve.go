package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/lanchat/logger"
	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/server"
	"github.com/cyberinferno/lanchat/validation"
)

// serveCmd hosts a chat room.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a chat room",
	Long: `Start a chat server. Lines typed on stdin are sent to every client
as the server. /who lists joined users and /quit stops the server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("name", "", "Server name shown as the sender of server messages")
	serveCmd.Flags().String("bind", "", "Address to bind (empty binds every interface)")
	serveCmd.Flags().String("port", "9000", "TCP port to listen on")
	serveCmd.Flags().String("buffer-size", "1024", "Read buffer size clients must match")
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	opts, err := validation.ParseServerOptions(
		v.GetString("name"),
		v.GetString("bind"),
		v.GetString("port"),
		v.GetString("buffer-size"),
	)
	if err != nil {
		return err
	}

	l := logger.NewConsoleLogger(os.Stderr, "lanchat-server", v.GetString("log-level"))
	out := cmd.OutOrStdout()

	srv := server.New(server.DefaultConfig(), l)
	srv.OnMessage(func(m message.Message) { printMessage(out, m) })
	srv.OnFatalError(func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), "server failed:", err)
	})

	if err := srv.Start(opts.BindAddress, opts.Port, opts.Name, opts.BufferSize); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s listening on %s\n", opts.Name, srv.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveConsole(ctx, cmd, srv)

	if err := srv.Stop(); err != nil && !errors.Is(err, server.ErrNotRunning) {
		return err
	}

	return nil
}

func serveConsole(ctx context.Context, cmd *cobra.Command, srv *server.Controller) {
	lines := readLines(ctx, cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || line == quitCommand {
				return
			}

			if line == "/who" {
				fmt.Fprintf(out, "online: %s\n", strings.Join(srv.Clients(), ", "))
				continue
			}

			if err := srv.Send(line); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "send failed:", err)
				return
			}
		}
	}
}
