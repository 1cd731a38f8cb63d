package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/jobctl/internal/service/sandbox"
	"github.com/oshokin/jobctl/internal/version"
)

var (
	// options collects the sandbox flags.
	options sandbox.Options

	// rootCmd represents the base command for running the sandbox scheduler.
	rootCmd = &cobra.Command{
		Use:   "jobctl-sandbox [listen-address]",
		Short: "Run an in-memory scheduler for local jobctl use.",
		Long: `Starts a scheduler that keeps jobs, tasks, quotas and pending updates in memory
and serves the scheduler gRPC API, so that jobctl can be pointed at localhost:<port>.

Tasks never run. A shard whose configuration has no command fails to start.
State is saved to --state-file after every change and restored on start.
With --public-key, privileged calls need a session signed by the matching key.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if len(args) > 0 {
				options.ListenAddress = args[0]
			}

			return sandbox.Run(ctx, &options)
		},
	}
)

// Execute runs the jobctl-sandbox CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&options.StateFile, "state-file", "s", "", "path to persist the sandbox state")
	rootCmd.Flags().StringVarP(&options.PublicKeyPath, "public-key", "k", "", "verify sessions with this public key")
	rootCmd.Flags().StringVarP(&options.MetricsAddress, "metrics-address", "m", "", "serve prometheus metrics on this address")
}
