// Package schedulertest provides a scriptable in-memory scheduler for tests.
package schedulertest

import (
	"context"
	"sync"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/scheduler"
)

// DefaultToken is the update token returned by StartUpdate when not scripted.
const DefaultToken = "update-token"

// Fake implements scheduler.Scheduler. Every method records its name and
// delegates to the matching function field, answering OK when it is nil.
type Fake struct {
	mu    sync.Mutex
	calls []string

	CreateJobFn      func(*scheduler.CreateJobRequest) (*job.Response, error)
	StartUpdateFn    func(*scheduler.StartUpdateRequest) (*scheduler.StartUpdateResponse, error)
	FinishUpdateFn   func(*scheduler.FinishUpdateRequest) (*job.Response, error)
	StartCronJobFn   func(*scheduler.StartCronJobRequest) (*job.Response, error)
	KillTasksFn      func(*scheduler.KillTasksRequest) (*job.Response, error)
	GetTasksStatusFn func(*scheduler.GetTasksStatusRequest) (*scheduler.TasksStatusResponse, error)
	GetQuotaFn       func(*scheduler.GetQuotaRequest) (*scheduler.QuotaResponse, error)
	SetQuotaFn       func(*scheduler.SetQuotaRequest) (*job.Response, error)
	ForceTaskStateFn func(*scheduler.ForceTaskStateRequest) (*job.Response, error)
	UpdateShardsFn   func(*scheduler.ShardsRequest) (*job.Response, error)
	RollbackShardsFn func(*scheduler.ShardsRequest) (*job.Response, error)

	// Closed counts Close calls.
	Closed int
}

var _ scheduler.Scheduler = (*Fake)(nil)

// OK returns a fresh OK response.
func OK() *job.Response {
	return &job.Response{Code: job.ResponseOK}
}

// Reply returns a fresh response with the given code and message.
func Reply(code job.ResponseCode, message string) *job.Response {
	return &job.Response{Code: code, Message: message}
}

// Calls returns the names of the invoked methods, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// Count returns how many times method was invoked.
func (f *Fake) Count(method string) int {
	n := 0

	for _, call := range f.Calls() {
		if call == method {
			n++
		}
	}

	return n
}

// Close records the call.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed++

	return nil
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, method)
}

// CreateJob implements scheduler.Scheduler.
func (f *Fake) CreateJob(_ context.Context, req *scheduler.CreateJobRequest) (*job.Response, error) {
	f.record("CreateJob")

	if f.CreateJobFn != nil {
		return f.CreateJobFn(req)
	}

	return OK(), nil
}

// StartUpdate implements scheduler.Scheduler.
func (f *Fake) StartUpdate(
	_ context.Context,
	req *scheduler.StartUpdateRequest,
) (*scheduler.StartUpdateResponse, error) {
	f.record("StartUpdate")

	if f.StartUpdateFn != nil {
		return f.StartUpdateFn(req)
	}

	return &scheduler.StartUpdateResponse{Response: *OK(), UpdateToken: DefaultToken}, nil
}

// FinishUpdate implements scheduler.Scheduler.
func (f *Fake) FinishUpdate(_ context.Context, req *scheduler.FinishUpdateRequest) (*job.Response, error) {
	f.record("FinishUpdate")

	if f.FinishUpdateFn != nil {
		return f.FinishUpdateFn(req)
	}

	return OK(), nil
}

// StartCronJob implements scheduler.Scheduler.
func (f *Fake) StartCronJob(_ context.Context, req *scheduler.StartCronJobRequest) (*job.Response, error) {
	f.record("StartCronJob")

	if f.StartCronJobFn != nil {
		return f.StartCronJobFn(req)
	}

	return OK(), nil
}

// KillTasks implements scheduler.Scheduler.
func (f *Fake) KillTasks(_ context.Context, req *scheduler.KillTasksRequest) (*job.Response, error) {
	f.record("KillTasks")

	if f.KillTasksFn != nil {
		return f.KillTasksFn(req)
	}

	return OK(), nil
}

// GetTasksStatus implements scheduler.Scheduler.
func (f *Fake) GetTasksStatus(
	_ context.Context,
	req *scheduler.GetTasksStatusRequest,
) (*scheduler.TasksStatusResponse, error) {
	f.record("GetTasksStatus")

	if f.GetTasksStatusFn != nil {
		return f.GetTasksStatusFn(req)
	}

	return &scheduler.TasksStatusResponse{Response: *OK()}, nil
}

// GetQuota implements scheduler.Scheduler.
func (f *Fake) GetQuota(_ context.Context, req *scheduler.GetQuotaRequest) (*scheduler.QuotaResponse, error) {
	f.record("GetQuota")

	if f.GetQuotaFn != nil {
		return f.GetQuotaFn(req)
	}

	return &scheduler.QuotaResponse{Response: *OK()}, nil
}

// SetQuota implements scheduler.Scheduler.
func (f *Fake) SetQuota(_ context.Context, req *scheduler.SetQuotaRequest) (*job.Response, error) {
	f.record("SetQuota")

	if f.SetQuotaFn != nil {
		return f.SetQuotaFn(req)
	}

	return OK(), nil
}

// ForceTaskState implements scheduler.Scheduler.
func (f *Fake) ForceTaskState(_ context.Context, req *scheduler.ForceTaskStateRequest) (*job.Response, error) {
	f.record("ForceTaskState")

	if f.ForceTaskStateFn != nil {
		return f.ForceTaskStateFn(req)
	}

	return OK(), nil
}

// UpdateShards implements scheduler.Scheduler.
func (f *Fake) UpdateShards(_ context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	f.record("UpdateShards")

	if f.UpdateShardsFn != nil {
		return f.UpdateShardsFn(req)
	}

	return OK(), nil
}

// RollbackShards implements scheduler.Scheduler.
func (f *Fake) RollbackShards(_ context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	f.record("RollbackShards")

	if f.RollbackShardsFn != nil {
		return f.RollbackShardsFn(req)
	}

	return OK(), nil
}
