package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "ticketsync",
		Short:   "Download, convert and load supermarket receipts",
		Long:    `ticketsync collects purchase tickets from the Consum customer portal, renders them to text and loads their product lines into PostgreSQL.`,
		Version: Version,
		// Errors are logged by the commands themselves.
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newRunCommand(),
		newDiscoverCommand(),
		newConvertCommand(),
		newLoadCommand(),
		newMigrateCommand(),
		newInitConfigCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
