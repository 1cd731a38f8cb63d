package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/metrics"
	"github.com/oshokin/jobctl/internal/rollout"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/session"
)

// Operation labels used for outcome metrics.
const (
	OperationUpdate = "update"
	OperationCancel = "cancel"
)

var (
	// ErrTokenRequired is returned when a cancel request has no update token.
	ErrTokenRequired = errors.New("update token must be provided")
	// ErrNoPublisher is returned when an artifact is given but nothing can publish it.
	ErrNoPublisher = errors.New("no artifact publisher configured")
	// ErrNoStepper is returned when an update is requested without a stepper factory.
	ErrNoStepper = errors.New("no rollout stepper configured")
)

// Publisher places the application artifact into the shared filesystem.
type Publisher interface {
	PublishApp(ctx context.Context, src, rootURI, fsPath string) error
}

// Options configures an Orchestrator.
type Options struct {
	// RPC is the scheduler client.
	RPC scheduler.Scheduler
	// Session authenticates every call.
	Session *session.Credential
	// Steppers builds the rollout stepper of each cycle.
	Steppers rollout.Factory
	// Publisher places artifacts. Optional when no artifact is given.
	Publisher Publisher
	// RootURI is the shared filesystem root of the cluster.
	RootURI string
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Orchestrator runs update and cancel requests against one scheduler.
type Orchestrator struct {
	rpc       scheduler.Scheduler
	session   *session.Credential
	steppers  rollout.Factory
	publisher Publisher
	rootURI   string
	clock     clock.Clock
	metrics   *metrics.Metrics
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Orchestrator{
		rpc:       opts.RPC,
		session:   opts.Session,
		steppers:  opts.Steppers,
		publisher: opts.Publisher,
		rootURI:   opts.RootURI,
		clock:     clk,
		metrics:   opts.Metrics,
	}
}

// cycle tracks the phase of one update.
type cycle struct {
	ctx   context.Context
	state State
}

func (c *cycle) enter(state State) {
	logger.InfoKV(c.ctx, "Update state changed", "from", c.state.String(), "to", state.String())
	c.state = state
}

// Update publishes artifact when it is not empty, then starts an update of
// cfg, rolls it out with a fresh stepper and finishes it.
// Remote refusals are reported in the outcome, transport failures as errors.
func (o *Orchestrator) Update(ctx context.Context, cfg *job.Config, artifact string) (job.Outcome, error) {
	if cfg == nil {
		return job.Outcome{}, job.ErrNoConfig
	}

	ctx = logger.WithKV(ctx, "job", cfg.Key())
	c := &cycle{ctx: ctx, state: StateNotStarted}

	if o.steppers == nil {
		return job.Outcome{}, ErrNoStepper
	}

	if artifact != "" {
		if o.publisher == nil {
			return job.Outcome{}, ErrNoPublisher
		}

		if err := o.publisher.PublishApp(ctx, artifact, o.rootURI, cfg.FilesystemPath); err != nil {
			return job.Outcome{}, fmt.Errorf("publish artifact: %w", err)
		}
	}

	started := o.clock.Now()

	c.enter(StateStarting)

	startResp, err := o.rpc.StartUpdate(ctx, &scheduler.StartUpdateRequest{Job: *cfg, Session: o.session})
	if err != nil {
		o.metrics.ObserveCall("StartUpdate", nil)
		return job.Outcome{}, fmt.Errorf("start update: %w", err)
	}

	o.metrics.ObserveCall("StartUpdate", &startResp.Response)

	if !startResp.OK() {
		c.enter(StateRejected)
		return o.finalize(OperationUpdate, job.Rejected(startResp.Message)), nil
	}

	token := startResp.UpdateToken
	ctx = logger.WithKV(ctx, "update_token", token)
	c.ctx = ctx

	logger.InfoKV(ctx, "Update started")
	c.enter(StateRolling)

	stepper := o.steppers(rollout.Params{
		Role:        cfg.Role,
		JobName:     cfg.Name,
		RPC:         o.rpc,
		Clock:       o.clock,
		UpdateToken: token,
		Session:     o.session,
	})

	failed, stepErr := stepper.Update(ctx, cfg)
	if stepErr != nil {
		// The scheduler must not be left with a pending update.
		o.abort(context.WithoutCancel(ctx), cfg, token)
		return job.Outcome{}, fmt.Errorf("roll out update: %w", stepErr)
	}

	c.enter(StateFinishing)

	result := job.UpdateSuccess
	if !failed.Empty() {
		logger.WarnKV(ctx, "Shards failed to update", "shards", failed.Sorted())

		result = job.UpdateFailed
	}

	finishResp, err := o.finish(ctx, cfg.Role, cfg.Name, result, token)
	if err != nil {
		return job.Outcome{}, err
	}

	o.metrics.ObserveUpdate(o.clock.Since(started), len(failed))

	var outcome job.Outcome

	switch {
	case !finishResp.OK():
		c.enter(StateRejected)

		outcome = job.Rejected(finishResp.Message)
	case !failed.Empty():
		c.enter(StatePartialFailure)

		outcome = job.Outcome{Code: job.ResponseWarning, Message: job.MessageUpdateUnsuccessful}
	default:
		c.enter(StateSucceeded)

		outcome = job.Outcome{Code: job.ResponseOK, Message: job.MessageUpdateSuccessful}
	}

	return o.finalize(OperationUpdate, outcome), nil
}

// Cancel terminates the pending update identified by token.
func (o *Orchestrator) Cancel(ctx context.Context, role, jobName, token string) (job.Outcome, error) {
	if token == "" {
		return job.Outcome{}, ErrTokenRequired
	}

	ctx = logger.WithKV(ctx, "job", job.Key(role, jobName))

	resp, err := o.finish(ctx, role, jobName, job.UpdateTerminate, token)
	if err != nil {
		return job.Outcome{}, err
	}

	if !resp.OK() {
		return o.finalize(OperationCancel, job.Rejected(resp.Message)), nil
	}

	return o.finalize(OperationCancel, job.Outcome{Code: job.ResponseOK, Message: job.MessageUpdateCancelled}), nil
}

func (o *Orchestrator) finish(
	ctx context.Context,
	role, jobName string,
	result job.UpdateResult,
	token string,
) (*job.Response, error) {
	resp, err := o.rpc.FinishUpdate(ctx, &scheduler.FinishUpdateRequest{
		Role:        role,
		JobName:     jobName,
		Result:      result,
		UpdateToken: token,
		Session:     o.session,
	})
	if err != nil {
		o.metrics.ObserveCall("FinishUpdate", nil)
		return nil, fmt.Errorf("finish update %s: %w", token, err)
	}

	o.metrics.ObserveCall("FinishUpdate", resp)

	return resp, nil
}

// abort reports an interrupted rollout as failed. Errors are only logged.
func (o *Orchestrator) abort(ctx context.Context, cfg *job.Config, token string) {
	resp, err := o.finish(ctx, cfg.Role, cfg.Name, job.UpdateFailed, token)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to abort update", "error", err)
		return
	}

	if !resp.OK() {
		logger.WarnKV(ctx, "Scheduler refused update abort", "code", resp.Code, "message", resp.Message)
	}
}

func (o *Orchestrator) finalize(operation string, outcome job.Outcome) job.Outcome {
	o.metrics.ObserveOutcome(operation, outcome)

	return outcome
}
