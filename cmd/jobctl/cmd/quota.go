package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/service/jobs"
)

func newQuotaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show or change the resource quota of a role.",
	}

	cmd.AddCommand(newQuotaGetCommand(), newQuotaSetCommand())

	return cmd
}

func newQuotaGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <role>",
		Short: "Show the quota of a role.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.GetQuota(ctx, &jobs.QuotaOptions{Options: options(cmd), Role: args[0]})
		},
	}
}

func newQuotaSetCommand() *cobra.Command {
	var quota job.Quota

	cmd := &cobra.Command{
		Use:   "set <role>",
		Short: "Replace the quota of a role.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.SetQuota(ctx, &jobs.QuotaOptions{Options: options(cmd), Role: args[0], Quota: quota})
		},
	}

	cmd.Flags().Float64Var(&quota.CPU, "cpu", 0, "number of CPUs")
	cmd.Flags().Int64Var(&quota.RAMMB, "ram-mb", 0, "RAM in megabytes")
	cmd.Flags().Int64Var(&quota.DiskMB, "disk-mb", 0, "disk in megabytes")

	return cmd
}

func newForceStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "force-state <task-id> <status>",
		Short: "Force a task into another state.",
		Long: `Moves a task to the given state without running it through the scheduler.

Known states: PENDING, STARTING, RUNNING, FINISHED, FAILED, KILLED, LOST.`,
		Args: cobra.ExactArgs(2), //nolint:mnd // Task ID and status.
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			return jobs.ForceState(ctx, &jobs.ForceStateOptions{
				Options: options(cmd),
				TaskID:  args[0],
				Status:  args[1],
			})
		},
	}
}
