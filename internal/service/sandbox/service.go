package sandbox

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/metrics"
	repo "github.com/oshokin/jobctl/internal/repository/state"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/session"
)

// Messages of refused requests.
const (
	msgJobExists         = "job already exists"
	msgJobNotFound       = "job not found"
	msgNotCron           = "job is not a cron job"
	msgUpdateInProgress  = "update already in progress"
	msgNoUpdate          = "no update in progress"
	msgInvalidToken      = "invalid update token"
	msgTaskNotFound      = "task not found"
	msgInsufficientQuota = "insufficient quota"
	msgUnauthenticated   = "session is missing or invalid"
	msgShardOutOfRange   = "shard out of range"
)

// Service is the sandbox scheduler.
type Service struct {
	// repo persists the state after every mutation. Optional.
	repo repo.Repository
	// publicKey verifies sessions of privileged calls. Nil disables checks.
	publicKey ed25519.PublicKey
	clock     clock.Clock
	metrics   *metrics.Metrics
	// newID generates task IDs and update tokens.
	newID func() string

	// mu protects state.
	mu    sync.Mutex
	state *repo.Snapshot
}

// Option configures a Service.
type Option func(*Service)

// WithPublicKey makes privileged calls require a session signed by the matching key.
func WithPublicKey(key ed25519.PublicKey) Option {
	return func(s *Service) {
		s.publicKey = key
	}
}

// WithClock sets the time source of state timestamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		s.clock = clk
	}
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

var _ scheduler.Scheduler = (*Service)(nil)

// NewService creates a sandbox backed by the provided repository, restoring
// the saved state when there is one.
func NewService(ctx context.Context, repository repo.Repository, opts ...Option) (*Service, error) {
	s := &Service{
		repo:  repository,
		clock: clock.New(),
		newID: uuid.NewString,
		state: repo.NewSnapshot(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if repository == nil {
		return s, nil
	}

	state, err := repository.Load(ctx)
	switch {
	case err == nil:
		if state != nil {
			s.state = state
		}
	case errors.Is(err, repo.ErrNotFound):
		// Start empty.
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	return s, nil
}

// CreateJob schedules a new job. Cron jobs get no tasks until started.
func (s *Service) CreateJob(ctx context.Context, req *scheduler.CreateJobRequest) (*job.Response, error) {
	return s.mutate(ctx, "CreateJob", req.Session, func() *job.Response {
		cfg := req.Job
		if err := cfg.Validate(); err != nil {
			return reply(job.ResponseInvalidRequest, err.Error())
		}

		if _, found := s.state.Jobs[cfg.Key()]; found {
			return reply(job.ResponseInvalidRequest, msgJobExists)
		}

		if !s.withinQuota(cfg) {
			return reply(job.ResponseInvalidRequest, msgInsufficientQuota)
		}

		record := &repo.Job{Config: cfg}
		if cfg.CronSchedule == "" {
			for _, shard := range cfg.ShardIDs() {
				record.Tasks = append(record.Tasks, s.launch(cfg, shard))
			}
		}

		s.state.Jobs[cfg.Key()] = record

		logger.InfoKV(ctx, "Job created", "job", cfg.Key(), "shards", cfg.Shards)

		return ok()
	})
}

// StartUpdate opens an update cycle and returns its token.
func (s *Service) StartUpdate(
	ctx context.Context,
	req *scheduler.StartUpdateRequest,
) (*scheduler.StartUpdateResponse, error) {
	var token string

	resp, err := s.mutate(ctx, "StartUpdate", req.Session, func() *job.Response {
		cfg := req.Job
		if err := cfg.Validate(); err != nil {
			return reply(job.ResponseInvalidRequest, err.Error())
		}

		record, found := s.state.Jobs[cfg.Key()]
		if !found {
			return reply(job.ResponseInvalidRequest, msgJobNotFound)
		}

		if _, pending := s.state.Updates[cfg.Key()]; pending {
			return reply(job.ResponseInvalidRequest, msgUpdateInProgress)
		}

		if !s.withinQuota(cfg) {
			return reply(job.ResponseInvalidRequest, msgInsufficientQuota)
		}

		token = s.newID()
		s.state.Updates[cfg.Key()] = &repo.Update{
			Token:    token,
			Previous: record.Config,
			Desired:  cfg,
		}

		logger.InfoKV(ctx, "Update started", "job", cfg.Key(), "update_token", token)

		return ok()
	})
	if err != nil {
		return nil, err
	}

	return &scheduler.StartUpdateResponse{Response: *resp, UpdateToken: token}, nil
}

// UpdateShards restarts shards with the desired configuration of the update.
func (s *Service) UpdateShards(ctx context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	return s.mutate(ctx, "UpdateShards", req.Session, func() *job.Response {
		record, update, resp := s.pending(req.Role, req.JobName, req.UpdateToken)
		if resp != nil {
			return resp
		}

		if !inRange(req.ShardIDs, update.Desired.Shards) {
			return reply(job.ResponseInvalidRequest, msgShardOutOfRange)
		}

		for _, shard := range req.ShardIDs {
			record.Tasks = replaceTask(record.Tasks, s.launch(update.Desired, shard))

			if !slices.Contains(update.Updated, shard) {
				update.Updated = append(update.Updated, shard)
			}
		}

		return ok()
	})
}

// RollbackShards restarts shards with the configuration preceding the update.
// Shards the previous configuration did not have are removed.
func (s *Service) RollbackShards(ctx context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	return s.mutate(ctx, "RollbackShards", req.Session, func() *job.Response {
		record, update, resp := s.pending(req.Role, req.JobName, req.UpdateToken)
		if resp != nil {
			return resp
		}

		for _, shard := range req.ShardIDs {
			update.Updated = slices.DeleteFunc(update.Updated, func(updated int) bool {
				return updated == shard
			})

			if shard >= update.Previous.Shards {
				record.Tasks = removeTask(record.Tasks, shard)
				continue
			}

			record.Tasks = replaceTask(record.Tasks, s.launch(update.Previous, shard))
		}

		logger.InfoKV(ctx, "Shards rolled back", "job", job.Key(req.Role, req.JobName), "shards", req.ShardIDs)

		return ok()
	})
}

// FinishUpdate closes the update cycle. SUCCESS keeps the desired
// configuration, FAILED and TERMINATE restore the previous one on every
// shard still running the desired configuration.
func (s *Service) FinishUpdate(ctx context.Context, req *scheduler.FinishUpdateRequest) (*job.Response, error) {
	return s.mutate(ctx, "FinishUpdate", req.Session, func() *job.Response {
		record, update, resp := s.pending(req.Role, req.JobName, req.UpdateToken)
		if resp != nil {
			return resp
		}

		cfg := update.Previous
		if req.Result == job.UpdateSuccess {
			cfg = update.Desired
		} else {
			for _, shard := range update.Updated {
				if shard < cfg.Shards {
					record.Tasks = replaceTask(record.Tasks, s.launch(cfg, shard))
				}
			}
		}

		record.Config = cfg
		record.Tasks = slices.DeleteFunc(record.Tasks, func(task job.Task) bool {
			return task.ShardID >= cfg.Shards
		})

		delete(s.state.Updates, cfg.Key())

		logger.InfoKV(ctx, "Update finished", "job", cfg.Key(), "result", req.Result)

		return ok()
	})
}

// StartCronJob launches every shard of a cron job.
func (s *Service) StartCronJob(ctx context.Context, req *scheduler.StartCronJobRequest) (*job.Response, error) {
	return s.mutate(ctx, "StartCronJob", req.Session, func() *job.Response {
		record, found := s.state.Jobs[job.Key(req.Role, req.JobName)]
		if !found {
			return reply(job.ResponseInvalidRequest, msgJobNotFound)
		}

		if record.Config.CronSchedule == "" {
			return reply(job.ResponseInvalidRequest, msgNotCron)
		}

		for _, shard := range record.Config.ShardIDs() {
			record.Tasks = replaceTask(record.Tasks, s.launch(record.Config, shard))
		}

		return ok()
	})
}

// KillTasks kills the selected shards, or removes the whole job when no
// shard is selected.
func (s *Service) KillTasks(ctx context.Context, req *scheduler.KillTasksRequest) (*job.Response, error) {
	return s.mutate(ctx, "KillTasks", req.Session, func() *job.Response {
		key := job.Key(req.Query.Owner.Role, req.Query.JobName)

		record, found := s.state.Jobs[key]
		if !found {
			return reply(job.ResponseInvalidRequest, msgJobNotFound)
		}

		if len(req.Query.ShardIDs) == 0 {
			delete(s.state.Jobs, key)
			delete(s.state.Updates, key)

			logger.InfoKV(ctx, "Job killed", "job", key)

			return ok()
		}

		for i := range record.Tasks {
			if slices.Contains(req.Query.ShardIDs, record.Tasks[i].ShardID) {
				record.Tasks[i].Status = job.TaskKilled
			}
		}

		return ok()
	})
}

// GetTasksStatus lists the tasks matching the query. Unknown jobs have no tasks.
func (s *Service) GetTasksStatus(
	ctx context.Context,
	req *scheduler.GetTasksStatusRequest,
) (*scheduler.TasksStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &scheduler.TasksStatusResponse{Response: *ok()}

	if record, found := s.state.Jobs[job.Key(req.Query.Owner.Role, req.Query.JobName)]; found {
		for _, task := range record.Tasks {
			if len(req.Query.ShardIDs) == 0 || slices.Contains(req.Query.ShardIDs, task.ShardID) {
				resp.Tasks = append(resp.Tasks, task)
			}
		}
	}

	s.metrics.ObserveCall("GetTasksStatus", &resp.Response)
	logger.DebugKV(ctx, "Tasks listed", "job", job.Key(req.Query.Owner.Role, req.Query.JobName), "tasks", len(resp.Tasks))

	return resp, nil
}

// GetQuota returns the quota of a role. Roles without a quota get zeroes.
func (s *Service) GetQuota(_ context.Context, req *scheduler.GetQuotaRequest) (*scheduler.QuotaResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &scheduler.QuotaResponse{Response: *ok(), Quota: s.state.Quotas[req.Role]}
	s.metrics.ObserveCall("GetQuota", &resp.Response)

	return resp, nil
}

// SetQuota replaces the quota of a role.
func (s *Service) SetQuota(ctx context.Context, req *scheduler.SetQuotaRequest) (*job.Response, error) {
	return s.mutate(ctx, "SetQuota", req.Session, func() *job.Response {
		if req.Role == "" {
			return reply(job.ResponseInvalidRequest, job.ErrRoleRequired.Error())
		}

		s.state.Quotas[req.Role] = req.Quota

		return ok()
	})
}

// ForceTaskState overrides the status of one task.
func (s *Service) ForceTaskState(ctx context.Context, req *scheduler.ForceTaskStateRequest) (*job.Response, error) {
	return s.mutate(ctx, "ForceTaskState", req.Session, func() *job.Response {
		for _, record := range s.state.Jobs {
			for i := range record.Tasks {
				if record.Tasks[i].TaskID == req.TaskID {
					record.Tasks[i].Status = req.Status

					logger.InfoKV(ctx, "Task state forced", "task_id", req.TaskID, "status", req.Status)

					return ok()
				}
			}
		}

		return reply(job.ResponseInvalidRequest, msgTaskNotFound)
	})
}

// mutate runs change under the lock after checking the session and persists
// the state when the change was accepted. A state that cannot be saved is
// discarded.
func (s *Service) mutate(
	ctx context.Context,
	method string,
	cred *session.Credential,
	change func() *job.Response,
) (*job.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publicKey != nil {
		if err := session.Verify(cred, s.publicKey); err != nil {
			logger.WarnKV(ctx, "Rejected unauthenticated call", "method", method, "error", err)

			resp := reply(job.ResponseAuthFailed, msgUnauthenticated)
			s.metrics.ObserveCall(method, resp)

			return resp, nil
		}
	}

	var previous *repo.Snapshot
	if s.repo != nil {
		previous = s.state.Clone()
	}

	resp := change()
	s.metrics.ObserveCall(method, resp)

	if !resp.OK() {
		return resp, nil
	}

	s.state.UpdatedAt = s.clock.Now().UTC()

	if s.repo != nil {
		if err := s.repo.Save(ctx, s.state); err != nil {
			logger.Errorf(ctx, "Failed to persist sandbox state: %v", err)

			s.state = previous

			return nil, fmt.Errorf("persist state: %w", err)
		}
	}

	return resp, nil
}

// pending returns the job and the update identified by token.
func (s *Service) pending(role, jobName, token string) (*repo.Job, *repo.Update, *job.Response) {
	key := job.Key(role, jobName)

	record, found := s.state.Jobs[key]
	if !found {
		return nil, nil, reply(job.ResponseInvalidRequest, msgJobNotFound)
	}

	update, found := s.state.Updates[key]
	if !found {
		return nil, nil, reply(job.ResponseInvalidRequest, msgNoUpdate)
	}

	if update.Token != token {
		return nil, nil, reply(job.ResponseInvalidRequest, msgInvalidToken)
	}

	return record, update, nil
}

// withinQuota reports whether cfg fits the quota of its role. Roles without a
// quota are unlimited.
func (s *Service) withinQuota(cfg job.Config) bool {
	quota, found := s.state.Quotas[cfg.Role]
	if !found {
		return true
	}

	shards := float64(cfg.Shards)

	return cfg.Resources.CPU*shards <= quota.CPU &&
		cfg.Resources.RAMMB*int64(cfg.Shards) <= quota.RAMMB &&
		cfg.Resources.DiskMB*int64(cfg.Shards) <= quota.DiskMB
}

// launch starts a fresh task for shard. It fails when cfg has no command.
func (s *Service) launch(cfg job.Config, shard int) job.Task {
	status := job.TaskRunning
	if cfg.Command == "" {
		status = job.TaskFailed
	}

	return job.Task{
		TaskID:  s.newID(),
		Role:    cfg.Role,
		JobName: cfg.Name,
		ShardID: shard,
		Status:  status,
	}
}

func replaceTask(tasks []job.Task, task job.Task) []job.Task {
	tasks = removeTask(tasks, task.ShardID)
	tasks = append(tasks, task)

	slices.SortFunc(tasks, func(a, b job.Task) int {
		return a.ShardID - b.ShardID
	})

	return tasks
}

func removeTask(tasks []job.Task, shard int) []job.Task {
	return slices.DeleteFunc(tasks, func(task job.Task) bool {
		return task.ShardID == shard
	})
}

func inRange(shards []int, count int) bool {
	for _, shard := range shards {
		if shard < 0 || shard >= count {
			return false
		}
	}

	return true
}

func ok() *job.Response {
	return &job.Response{Code: job.ResponseOK}
}

func reply(code job.ResponseCode, message string) *job.Response {
	return &job.Response{Code: code, Message: message}
}
