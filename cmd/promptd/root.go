package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "promptd",
		Short:         "Serve a local language model over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd()
	root.AddCommand(serve, newInspectCmd())
	// Running the bare binary serves, so flags of serve are accepted at the
	// top level too.
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE
	return root
}
