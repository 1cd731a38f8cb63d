package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/jobctl/internal/service/jobs"
)

func newCreateCommand() *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "create <job-config>",
		Short: "Create a job from its YAML configuration.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.Create(ctx, &jobs.ConfigOptions{
				Options:       options(cmd),
				JobConfigPath: args[0],
				Artifact:      artifact,
			})
		},
	}

	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "application file to copy to the shared filesystem first")

	return cmd
}

func newUpdateCommand() *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "update <job-config>",
		Short: "Update a running job to a new configuration.",
		Long: `Starts an update of the job, rolls it out to every shard and finishes it.

Shards that are not running after the watch period are rolled back and the
update is reported as unsuccessful.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.Update(ctx, &jobs.ConfigOptions{
				Options:       options(cmd),
				JobConfigPath: args[0],
				Artifact:      artifact,
			})
		},
	}

	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "application file to copy to the shared filesystem first")

	return cmd
}

func newCancelCommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "cancel <role> <job>",
		Short: "Cancel a pending update of a job.",
		Args:  cobra.ExactArgs(2), //nolint:mnd // Role and job name.
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.Cancel(ctx, &jobs.CancelOptions{
				JobOptions: jobs.JobOptions{Options: options(cmd), Role: args[0], JobName: args[1]},
				Token:      token,
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "update token of the pending update")

	if err := cmd.MarkFlagRequired("token"); err != nil {
		panic(err)
	}

	return cmd
}

// newJobCommand builds a command taking a role and a job name.
func newJobCommand(use, short string, run func(cmd *cobra.Command, opts *jobs.JobOptions) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <role> <job>",
		Short: short,
		Args:  cobra.ExactArgs(2), //nolint:mnd // Role and job name.
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &jobs.JobOptions{Options: options(cmd), Role: args[0], JobName: args[1]})
		},
	}
}

func newKillCommand() *cobra.Command {
	return newJobCommand("kill", "Kill every task of a job.", func(_ *cobra.Command, opts *jobs.JobOptions) error {
		ctx, stop := signalContext()
		defer stop()

		return jobs.Kill(ctx, opts)
	})
}

func newStatusCommand() *cobra.Command {
	return newJobCommand("status", "Show the tasks of a job.", func(_ *cobra.Command, opts *jobs.JobOptions) error {
		ctx, stop := signalContext()
		defer stop()

		return jobs.Status(ctx, opts)
	})
}

func newStartCronCommand() *cobra.Command {
	return newJobCommand("start-cron", "Run a cron job now.", func(_ *cobra.Command, opts *jobs.JobOptions) error {
		ctx, stop := signalContext()
		defer stop()

		return jobs.StartCron(ctx, opts)
	})
}
