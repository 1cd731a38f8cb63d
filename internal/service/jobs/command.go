package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/service/common"
)

// ErrNotOK is returned when the scheduler did not answer OK.
var ErrNotOK = errors.New("scheduler did not accept the request")

// Options configures every jobs command.
type Options struct {
	common.Options

	// Out receives the command result. Defaults to stdout.
	Out io.Writer
}

// JobOptions selects a job by role and name.
type JobOptions struct {
	Options

	Role    string
	JobName string
}

// ConfigOptions points at a job configuration and an optional artifact.
type ConfigOptions struct {
	Options

	// JobConfigPath is the YAML job configuration.
	JobConfigPath string
	// Artifact is the local application file to publish first, if any.
	Artifact string
}

// Create creates the job described by the configuration file.
func Create(ctx context.Context, opts *ConfigOptions) error {
	cfg, err := job.LoadConfig(opts.JobConfigPath)
	if err != nil {
		return err
	}

	return run(ctx, "jobctl-create", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.CreateJob(ctx, cfg, opts.Artifact)
		if err != nil {
			return err
		}

		return printResponse(opts.Out, resp)
	})
}

// Update runs a complete update cycle of the job described by the configuration file.
func Update(ctx context.Context, opts *ConfigOptions) error {
	cfg, err := job.LoadConfig(opts.JobConfigPath)
	if err != nil {
		return err
	}

	return run(ctx, "jobctl-update", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		outcome, err := env.Client.UpdateJob(ctx, cfg, opts.Artifact)
		if err != nil {
			return err
		}

		return printOutcome(opts.Out, outcome)
	})
}

// CancelOptions selects the pending update to terminate.
type CancelOptions struct {
	JobOptions

	// Token is the update token logged when the update started.
	Token string
}

// Cancel terminates a pending update.
func Cancel(ctx context.Context, opts *CancelOptions) error {
	return run(ctx, "jobctl-cancel", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		outcome, err := env.Client.CancelUpdate(ctx, opts.Role, opts.JobName, opts.Token)
		if err != nil {
			return err
		}

		return printOutcome(opts.Out, outcome)
	})
}

// Kill kills every task of a job.
func Kill(ctx context.Context, opts *JobOptions) error {
	return run(ctx, "jobctl-kill", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.KillJob(ctx, opts.Role, opts.JobName)
		if err != nil {
			return err
		}

		return printResponse(opts.Out, resp)
	})
}

// StartCron runs a cron job now.
func StartCron(ctx context.Context, opts *JobOptions) error {
	return run(ctx, "jobctl-start-cron", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.StartCronJob(ctx, opts.Role, opts.JobName)
		if err != nil {
			return err
		}

		return printResponse(opts.Out, resp)
	})
}

// Status prints the tasks of a job.
func Status(ctx context.Context, opts *JobOptions) error {
	return run(ctx, "jobctl-status", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.CheckStatus(ctx, opts.Role, opts.JobName)
		if err != nil {
			return err
		}

		if !resp.OK() {
			return printResponse(opts.Out, &resp.Response)
		}

		return printTasks(opts.Out, resp.Tasks)
	})
}

// QuotaOptions selects a role and, for updates, its new quota.
type QuotaOptions struct {
	Options

	Role  string
	Quota job.Quota
}

// GetQuota prints the quota of a role.
func GetQuota(ctx context.Context, opts *QuotaOptions) error {
	return run(ctx, "jobctl-quota", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.GetQuota(ctx, opts.Role)
		if err != nil {
			return err
		}

		if !resp.OK() {
			return printResponse(opts.Out, &resp.Response)
		}

		return printYAML(opts.Out, resp.Quota)
	})
}

// SetQuota replaces the quota of a role.
func SetQuota(ctx context.Context, opts *QuotaOptions) error {
	return run(ctx, "jobctl-quota", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.SetQuota(ctx, opts.Role, opts.Quota)
		if err != nil {
			return err
		}

		return printResponse(opts.Out, resp)
	})
}

// ForceStateOptions selects a task and its new state.
type ForceStateOptions struct {
	Options

	TaskID string
	Status string
}

// ForceState moves a task to another state.
func ForceState(ctx context.Context, opts *ForceStateOptions) error {
	status, err := job.ParseTaskStatus(opts.Status)
	if err != nil {
		return err
	}

	return run(ctx, "jobctl-force-state", &opts.Options, func(ctx context.Context, env *common.Environment) error {
		resp, err := env.Client.ForceTaskState(ctx, opts.TaskID, status)
		if err != nil {
			return err
		}

		return printResponse(opts.Out, resp)
	})
}

// run opens the client environment, runs fn and tears the environment down.
func run(
	ctx context.Context,
	name string,
	opts *Options,
	fn func(ctx context.Context, env *common.Environment) error,
) error {
	ctx = logger.WithName(ctx, name)

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	env, err := common.Open(ctx, &opts.Options)
	if err != nil {
		return err
	}

	defer env.Close(ctx)

	if err = fn(ctx, env); err != nil {
		return fmt.Errorf("%s: %w", env.Client.Cluster(), err)
	}

	return nil
}
