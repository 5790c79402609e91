package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "lanchat",
	Short: "Chat with other people on the local network",
	Long: `lanchat runs a small TCP chat server or joins one.

- serve: host a chat room and relay messages between clients
- join:  connect to a room and chat from the terminal

Every flag can also be set with a LANCHAT_ environment variable
(for example LANCHAT_BUFFER_SIZE) or in a YAML file passed with --config.
Type /quit to leave.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, disabled)")
}
