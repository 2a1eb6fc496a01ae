package main

import (
	"os"

	"github.com/fieldsync/agent/internal/handlers"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Offline-first field capture and sync agent",
	Long: `FieldSync agent stores photos, GPS trails, field drawings and KML imports
on the device and pushes them to the remote sync target whenever the
device is online.

Without a subcommand the agent runs the local API server.`,
	Version:       handlers.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, syncCmd, statsCmd, requeueCmd)
	statsCmd.Flags().Bool("repair", false, "Recount the stats from the records before printing")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
