package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "whsync",
	Short: "Keeps Wear Health Services capability state in sync with a device",
	Long: `whsync mirrors the capability configuration of a Wear OS emulator,
lets you stage edits locally and pushes them to the device on apply.`,
	// Running without a subcommand starts the service
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config-dir", "", "Directory containing capabilities.yaml (overrides CONFIG_DIR)")
	rootCmd.Flags().IntP("port", "p", 0, "Port for the HTTP API (overrides API_PORT)")
}
