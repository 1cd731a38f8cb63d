package scheduler

import (
	"context"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/session"
)

// Scheduler is the RPC surface of the cluster scheduler.
type Scheduler interface {
	CreateJob(ctx context.Context, req *CreateJobRequest) (*job.Response, error)
	StartUpdate(ctx context.Context, req *StartUpdateRequest) (*StartUpdateResponse, error)
	FinishUpdate(ctx context.Context, req *FinishUpdateRequest) (*job.Response, error)
	StartCronJob(ctx context.Context, req *StartCronJobRequest) (*job.Response, error)
	KillTasks(ctx context.Context, req *KillTasksRequest) (*job.Response, error)
	GetTasksStatus(ctx context.Context, req *GetTasksStatusRequest) (*TasksStatusResponse, error)
	GetQuota(ctx context.Context, req *GetQuotaRequest) (*QuotaResponse, error)
	SetQuota(ctx context.Context, req *SetQuotaRequest) (*job.Response, error)
	ForceTaskState(ctx context.Context, req *ForceTaskStateRequest) (*job.Response, error)
	UpdateShards(ctx context.Context, req *ShardsRequest) (*job.Response, error)
	RollbackShards(ctx context.Context, req *ShardsRequest) (*job.Response, error)
}

// CreateJobRequest schedules a new job.
type CreateJobRequest struct {
	Job     job.Config          `json:"job"`
	Session *session.Credential `json:"session"`
}

// StartUpdateRequest opens an update cycle for an existing job.
type StartUpdateRequest struct {
	Job     job.Config          `json:"job"`
	Session *session.Credential `json:"session"`
}

// StartUpdateResponse carries the token of the opened update cycle.
type StartUpdateResponse struct {
	job.Response

	UpdateToken string `json:"updateToken"`
}

// FinishUpdateRequest closes an update cycle with the given result.
type FinishUpdateRequest struct {
	Role        string              `json:"role"`
	JobName     string              `json:"jobName"`
	Result      job.UpdateResult    `json:"updateResult"`
	UpdateToken string              `json:"updateToken,omitempty"`
	Session     *session.Credential `json:"session"`
}

// StartCronJobRequest triggers an immediate run of a cron job.
type StartCronJobRequest struct {
	Role    string              `json:"role"`
	JobName string              `json:"jobName"`
	Session *session.Credential `json:"session"`
}

// KillTasksRequest kills every task matching the query.
type KillTasksRequest struct {
	Query   job.TaskQuery       `json:"query"`
	Session *session.Credential `json:"session"`
}

// GetTasksStatusRequest lists tasks matching the query.
type GetTasksStatusRequest struct {
	Query job.TaskQuery `json:"query"`
}

// TasksStatusResponse lists the matching tasks.
type TasksStatusResponse struct {
	job.Response

	Tasks []job.Task `json:"tasks"`
}

// GetQuotaRequest asks for the quota of a role.
type GetQuotaRequest struct {
	Role string `json:"role"`
}

// QuotaResponse carries the quota of a role.
type QuotaResponse struct {
	job.Response

	Quota job.Quota `json:"quota"`
}

// SetQuotaRequest replaces the quota of a role.
type SetQuotaRequest struct {
	Role    string              `json:"role"`
	Quota   job.Quota           `json:"quota"`
	Session *session.Credential `json:"session"`
}

// ForceTaskStateRequest moves a task to the given state.
type ForceTaskStateRequest struct {
	TaskID  string              `json:"taskId"`
	Status  job.TaskStatus      `json:"status"`
	Session *session.Credential `json:"session"`
}

// ShardsRequest updates or rolls back shards within an update cycle.
type ShardsRequest struct {
	Role        string              `json:"role"`
	JobName     string              `json:"jobName"`
	ShardIDs    []int               `json:"shardIds"`
	UpdateToken string              `json:"updateToken"`
	Session     *session.Credential `json:"session"`
}
