package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaborage/retryajax/internal/commands"
)

var version = "dev" // Will be set during build

func main() {
	rootCmd := &cobra.Command{
		Use:   "ajaxctl",
		Short: "Issue HTTP requests with transparent retries",
		Long: `ajaxctl issues HTTP requests through the retryajax client. Each URL is one
logical request; network failures and timeouts are retried according to the
configured policy, everything else settles on the first attempt.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		commands.NewFetchCommand(),
		commands.NewVersionCommand(version),
	)

	// Ctrl-C aborts in-flight requests; their failure callbacks still run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
