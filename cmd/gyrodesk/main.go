// gyrodesk turns a handheld's gyroscope into a desktop pointer and keyboard,
// and streams the desktop back to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	root := &cobra.Command{
		Use:           "gyrodesk",
		Short:         "Drive this desktop from a handheld over the local network",
		Long:          "gyrodesk accepts a control connection from a handheld app, turns its gyroscope samples into pointer motion, injects keyboard input and streams the screen back over UDP or WebSocket.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// no subcommand runs serve
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newVersionCommand())
	root.AddCommand(newAutostartCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
