// Command mortality compiles the US weekly mortality tables and serves them
// over HTTP.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mortality",
		Short:        "Compile and serve US weekly all-cause mortality series",
		SilenceUsage: true,
	}
	root.AddCommand(newCompileCmd(), newServeCmd())
	return root
}
