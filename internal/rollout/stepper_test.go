package rollout

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/scheduler/schedulertest"
	"github.com/oshokin/jobctl/internal/session"
)

// tasksFor answers GetTasksStatus with the given status per shard.
func tasksFor(statuses map[int]job.TaskStatus) func(*scheduler.GetTasksStatusRequest) (*scheduler.TasksStatusResponse, error) {
	return func(req *scheduler.GetTasksStatusRequest) (*scheduler.TasksStatusResponse, error) {
		resp := &scheduler.TasksStatusResponse{Response: *schedulertest.OK()}
		for shard, status := range statuses {
			resp.Tasks = append(resp.Tasks, job.Task{
				Role:    req.Query.Owner.Role,
				JobName: req.Query.JobName,
				ShardID: shard,
				Status:  status,
			})
		}

		return resp, nil
	}
}

// newStepper builds a SingleBatch stepper over fake with no watch period.
func newStepper(fake *schedulertest.Fake) Stepper {
	return NewSingleBatchFactory(0)(Params{
		Role:        "www",
		JobName:     "web",
		RPC:         fake,
		UpdateToken: "token-7",
		Session:     &session.Credential{Principal: "mesos", Token: "signed"},
	})
}

// TestSingleBatch_AllHealthy reports no failures when every shard runs.
func TestSingleBatch_AllHealthy(t *testing.T) {
	t.Parallel()

	var updated *scheduler.ShardsRequest

	fake := &schedulertest.Fake{
		UpdateShardsFn: func(req *scheduler.ShardsRequest) (*job.Response, error) {
			updated = req
			return schedulertest.OK(), nil
		},
		GetTasksStatusFn: tasksFor(map[int]job.TaskStatus{0: job.TaskRunning, 1: job.TaskRunning}),
	}

	failed, err := newStepper(fake).Update(context.Background(), &job.Config{Role: "www", Name: "web", Shards: 2})
	require.NoError(t, err)
	require.True(t, failed.Empty())
	require.Equal(t, []int{0, 1}, updated.ShardIDs)
	require.Equal(t, "token-7", updated.UpdateToken)
	require.Zero(t, fake.Count("RollbackShards"))
}

// TestSingleBatch_RollsBackUnhealthy rolls back shards that are not running.
func TestSingleBatch_RollsBackUnhealthy(t *testing.T) {
	t.Parallel()

	var rolledBack []int

	fake := &schedulertest.Fake{
		GetTasksStatusFn: tasksFor(map[int]job.TaskStatus{0: job.TaskRunning, 1: job.TaskFailed, 3: job.TaskRunning}),
		RollbackShardsFn: func(req *scheduler.ShardsRequest) (*job.Response, error) {
			rolledBack = req.ShardIDs
			return schedulertest.OK(), nil
		},
	}

	failed, err := newStepper(fake).Update(context.Background(), &job.Config{Role: "www", Name: "web", Shards: 4})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, failed.Sorted())
	require.Equal(t, []int{1, 2}, rolledBack)
}

// TestSingleBatch_RefusedUpdate treats every shard as failed without rolling back.
func TestSingleBatch_RefusedUpdate(t *testing.T) {
	t.Parallel()

	fake := &schedulertest.Fake{
		UpdateShardsFn: func(*scheduler.ShardsRequest) (*job.Response, error) {
			return schedulertest.Reply(job.ResponseInvalidRequest, "no update in progress"), nil
		},
	}

	failed, err := newStepper(fake).Update(context.Background(), &job.Config{Role: "www", Name: "web", Shards: 3})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, failed.Sorted())
	require.Equal(t, []string{"UpdateShards"}, fake.Calls())
}

// TestSingleBatch_WaitsOnClock checks shards only after the watch period elapsed.
func TestSingleBatch_WaitsOnClock(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	fake := &schedulertest.Fake{
		GetTasksStatusFn: tasksFor(map[int]job.TaskStatus{0: job.TaskRunning}),
	}

	stepper := NewSingleBatchFactory(time.Minute)(Params{
		Role:    "www",
		JobName: "web",
		RPC:     fake,
		Clock:   mock,
	})

	type result struct {
		failed job.ShardSet
		err    error
	}

	done := make(chan result, 1)

	go func() {
		failed, err := stepper.Update(context.Background(), &job.Config{Role: "www", Name: "web", Shards: 1})
		done <- result{failed: failed, err: err}
	}()

	var res result

	require.Eventually(t, func() bool {
		mock.Add(time.Minute)

		select {
		case res = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, res.err)
	require.True(t, res.failed.Empty())
	require.Equal(t, []string{"UpdateShards", "GetTasksStatus"}, fake.Calls())
}

// TestSingleBatch_Cancelled stops waiting when the context ends.
func TestSingleBatch_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stepper := NewSingleBatchFactory(time.Hour)(Params{
		Role:    "www",
		JobName: "web",
		RPC:     new(schedulertest.Fake),
		Clock:   clock.NewMock(),
	})

	_, err := stepper.Update(ctx, &job.Config{Role: "www", Name: "web", Shards: 1})
	require.ErrorIs(t, err, context.Canceled)
}
