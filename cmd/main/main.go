package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// -----------------------------------------------------------------------------

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "market-streamer",
		Short:         "Historical candles and live quotes over the DxLink streaming protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults and environment only when empty)")

	root.AddCommand(
		newServeCommand(&configPath),
		newBarsCommand(&configPath),
		newQuotesCommand(&configPath),
		newTokenCommand(&configPath),
		newSnapshotCommand(&configPath),
		newEarningsCommand(&configPath),
		newStatusCommand(&configPath),
		newConfigCommand(),
	)
	return root
}
