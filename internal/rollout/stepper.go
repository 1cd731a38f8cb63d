package rollout

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/session"
)

// Params is everything a stepper needs to drive one update cycle.
type Params struct {
	// Role owns the job being updated.
	Role string
	// JobName is the name of the job being updated.
	JobName string
	// RPC is the scheduler client of the cycle.
	RPC scheduler.Scheduler
	// Clock is the time source for waits.
	Clock clock.Clock
	// UpdateToken ties the shard calls to the started update.
	UpdateToken string
	// Session authenticates the shard calls.
	Session *session.Credential
}

// Stepper rolls an update out to the shards of a job.
type Stepper interface {
	// Update returns the shards that could not be updated. An error means the
	// rollout was interrupted and the failure set is unknown.
	Update(ctx context.Context, cfg *job.Config) (job.ShardSet, error)
}

// Factory builds a stepper for one update cycle.
type Factory func(params Params) Stepper

// SingleBatch updates all shards in one step.
type SingleBatch struct {
	Params

	// WatchPeriod is how long shards get to reach RUNNING before they are checked.
	WatchPeriod time.Duration
}

// NewSingleBatchFactory returns a factory of SingleBatch steppers.
func NewSingleBatchFactory(watchPeriod time.Duration) Factory {
	return func(params Params) Stepper {
		if params.Clock == nil {
			params.Clock = clock.New()
		}

		return &SingleBatch{
			Params:      params,
			WatchPeriod: watchPeriod,
		}
	}
}

// Update applies the pending update to every shard, waits for the watch
// period and rolls back the shards that are not running afterwards.
func (s *SingleBatch) Update(ctx context.Context, cfg *job.Config) (job.ShardSet, error) {
	shards := cfg.ShardIDs()

	resp, err := s.RPC.UpdateShards(ctx, s.shardsRequest(shards))
	if err != nil {
		return nil, fmt.Errorf("update shards: %w", err)
	}

	if !resp.OK() {
		logger.WarnKV(ctx, "Scheduler refused shard update", "code", resp.Code, "message", resp.Message)
		return job.NewShardSet(shards...), nil
	}

	if s.WatchPeriod > 0 {
		logger.InfoKV(ctx, "Watching updated shards", "shards", len(shards), "period", s.WatchPeriod.String())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.Clock.After(s.WatchPeriod):
		}
	}

	failed, err := s.unhealthy(ctx, shards)
	if err != nil {
		return nil, err
	}

	if failed.Empty() {
		return failed, nil
	}

	logger.WarnKV(ctx, "Rolling back shards", "shards", failed.Sorted())

	resp, err = s.RPC.RollbackShards(ctx, s.shardsRequest(failed.Sorted()))
	if err != nil {
		return nil, fmt.Errorf("rollback shards: %w", err)
	}

	if !resp.OK() {
		logger.WarnKV(ctx, "Scheduler refused shard rollback", "code", resp.Code, "message", resp.Message)
	}

	return failed, nil
}

// unhealthy returns the shards without a running task.
func (s *SingleBatch) unhealthy(ctx context.Context, shards []int) (job.ShardSet, error) {
	resp, err := s.RPC.GetTasksStatus(ctx, &scheduler.GetTasksStatusRequest{
		Query: job.TaskQuery{
			Owner:    job.Identity{Role: s.Role},
			JobName:  s.JobName,
			ShardIDs: shards,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("check shards: %w", err)
	}

	if !resp.OK() {
		return job.NewShardSet(shards...), nil
	}

	running := job.NewShardSet()

	for _, task := range resp.Tasks {
		if task.Status == job.TaskRunning {
			running.Add(task.ShardID)
		}
	}

	failed := job.NewShardSet()

	for _, shard := range shards {
		if !running.Contains(shard) {
			failed.Add(shard)
		}
	}

	return failed, nil
}

func (s *SingleBatch) shardsRequest(shards []int) *scheduler.ShardsRequest {
	return &scheduler.ShardsRequest{
		Role:        s.Role,
		JobName:     s.JobName,
		ShardIDs:    shards,
		UpdateToken: s.UpdateToken,
		Session:     s.Session,
	}
}
