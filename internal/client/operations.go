package client

import (
	"context"
	"fmt"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/scheduler"
)

// CreateJob places the artifact, when given, and creates the job.
func (c *Client) CreateJob(ctx context.Context, cfg *job.Config, artifactPath string) (*job.Response, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	if artifactPath != "" {
		publisher, rootURI, pubErr := c.publisher(ctx)
		if pubErr != nil {
			return nil, pubErr
		}

		if pubErr = publisher.PublishApp(ctx, artifactPath, rootURI, cfg.FilesystemPath); pubErr != nil {
			return nil, fmt.Errorf("publish artifact: %w", pubErr)
		}
	}

	logger.InfoKV(ctx, "Creating job", "job", cfg.Key(), "cluster", c.ref.String())

	resp, err := rpc.CreateJob(ctx, &scheduler.CreateJobRequest{Job: *cfg, Session: credential})

	return c.observe("CreateJob", resp, err)
}

// UpdateJob runs a complete update cycle of the job.
func (c *Client) UpdateJob(ctx context.Context, cfg *job.Config, artifactPath string) (job.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return job.Outcome{}, err
	}

	orchestrator, err := c.orchestrator(ctx, artifactPath != "")
	if err != nil {
		return job.Outcome{}, err
	}

	logger.InfoKV(ctx, "Updating job", "job", cfg.Key(), "cluster", c.ref.String())

	return orchestrator.Update(ctx, cfg, artifactPath)
}

// CancelUpdate terminates the pending update identified by token.
func (c *Client) CancelUpdate(ctx context.Context, role, jobName, token string) (job.Outcome, error) {
	orchestrator, err := c.orchestrator(ctx, false)
	if err != nil {
		return job.Outcome{}, err
	}

	logger.InfoKV(ctx, "Cancelling update", "job", job.Key(role, jobName), "cluster", c.ref.String())

	return orchestrator.Cancel(ctx, role, jobName, token)
}

// StartCronJob runs a cron job immediately.
func (c *Client) StartCronJob(ctx context.Context, role, jobName string) (*job.Response, error) {
	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Starting cron job", "job", job.Key(role, jobName), "cluster", c.ref.String())

	resp, err := rpc.StartCronJob(ctx, &scheduler.StartCronJobRequest{
		Role:    role,
		JobName: jobName,
		Session: credential,
	})

	return c.observe("StartCronJob", resp, err)
}

// KillJob kills every task of the job.
func (c *Client) KillJob(ctx context.Context, role, jobName string) (*job.Response, error) {
	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Killing job", "job", job.Key(role, jobName), "cluster", c.ref.String())

	resp, err := rpc.KillTasks(ctx, &scheduler.KillTasksRequest{
		Query:   job.TaskQuery{Owner: job.Identity{Role: role}, JobName: jobName},
		Session: credential,
	})

	return c.observe("KillTasks", resp, err)
}

// CheckStatus lists the tasks of the job. No session is needed.
func (c *Client) CheckStatus(ctx context.Context, role, jobName string) (*scheduler.TasksStatusResponse, error) {
	rpc, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := rpc.GetTasksStatus(ctx, &scheduler.GetTasksStatusRequest{
		Query: job.TaskQuery{Owner: job.Identity{Role: role}, JobName: jobName},
	})
	if err != nil {
		c.metrics.ObserveCall("GetTasksStatus", nil)
		return nil, err
	}

	c.metrics.ObserveCall("GetTasksStatus", &resp.Response)

	return resp, nil
}

// GetQuota returns the quota of the role. No session is needed.
func (c *Client) GetQuota(ctx context.Context, role string) (*scheduler.QuotaResponse, error) {
	rpc, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := rpc.GetQuota(ctx, &scheduler.GetQuotaRequest{Role: role})
	if err != nil {
		c.metrics.ObserveCall("GetQuota", nil)
		return nil, err
	}

	c.metrics.ObserveCall("GetQuota", &resp.Response)

	return resp, nil
}

// SetQuota replaces the quota of the role.
func (c *Client) SetQuota(ctx context.Context, role string, quota job.Quota) (*job.Response, error) {
	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Setting quota", "role", role, "cpu", quota.CPU, "ram_mb", quota.RAMMB, "disk_mb", quota.DiskMB)

	resp, err := rpc.SetQuota(ctx, &scheduler.SetQuotaRequest{Role: role, Quota: quota, Session: credential})

	return c.observe("SetQuota", resp, err)
}

// ForceTaskState moves a task to the given state.
func (c *Client) ForceTaskState(ctx context.Context, taskID string, status job.TaskStatus) (*job.Response, error) {
	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Forcing task state", "task_id", taskID, "status", status)

	resp, err := rpc.ForceTaskState(ctx, &scheduler.ForceTaskStateRequest{
		TaskID:  taskID,
		Status:  status,
		Session: credential,
	})

	return c.observe("ForceTaskState", resp, err)
}

func (c *Client) observe(method string, resp *job.Response, err error) (*job.Response, error) {
	if err != nil {
		c.metrics.ObserveCall(method, nil)
		return nil, err
	}

	c.metrics.ObserveCall(method, resp)

	return resp, nil
}
