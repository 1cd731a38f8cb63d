package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/jobctl/internal/config"
	"github.com/oshokin/jobctl/internal/service/common"
	"github.com/oshokin/jobctl/internal/service/jobs"
	"github.com/oshokin/jobctl/internal/version"
)

var (
	// globals holds the persistent flags shared by every subcommand.
	globals common.Options

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "jobctl",
		Short: "Manage jobs on a cluster scheduler.",
		Long: `Creates, updates and inspects long-running jobs on a remote cluster scheduler.

The cluster is named in the settings file or with --cluster, either as a name
from the cluster directory or as localhost:<port> for a local scheduler.
Privileged commands sign a session with the key from the settings file.
Application artifacts are copied to the cluster's shared filesystem first,
through the cluster's SSH proxy host when it has one.`,
		SilenceUsage: true,
	}
)

// Execute runs the jobctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// options returns the shared options writing to the command output.
func options(cmd *cobra.Command) jobs.Options {
	return jobs.Options{
		Options: globals,
		Out:     cmd.OutOrStdout(),
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globals.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&globals.Cluster, "cluster", "", "cluster reference, overrides the settings file")
	flags.StringVar(&globals.Principal, "principal", "", "principal to sign sessions for, defaults to the current user")
	flags.StringVar(&globals.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&globals.MetricsFile, "metrics-file", "", "write call metrics to this file in textfile format")

	rootCmd.AddCommand(
		newCreateCommand(),
		newUpdateCommand(),
		newCancelCommand(),
		newKillCommand(),
		newStatusCommand(),
		newStartCronCommand(),
		newQuotaCommand(),
		newForceStateCommand(),
		newKeygenCommand(),
	)
}
