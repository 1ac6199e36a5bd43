package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "webxr-signal",
	Short: "Signaling coordinator for live 360° video rooms",
	Long: `webxr-signal lets one publisher and any number of subscribers meet in a
named room and exchange WebRTC offers, answers and ICE candidates over a
websocket. It never touches the media itself.

Running without a subcommand is the same as "webxr-signal serve".`,
	RunE: runServe,
}

// Execute runs the root command. It is called once from main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, roomsCmd)
}
