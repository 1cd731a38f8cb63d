package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/version"
)

// Client speaks the scheduler protocol over a gRPC connection.
type Client struct {
	// conn is the underlying gRPC connection to the scheduler.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialer replaces the default TCP dialer, e.g. to tunnel through a proxy.
	dialer func(ctx context.Context, address string) (net.Conn, error)
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for scheduler calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// ErrNotServing is returned by Probe when the scheduler reports it is not serving.
	ErrNotServing = errors.New("scheduler is not serving")
)

// WithDialer routes the connection through the given dialer.
func WithDialer(dialer func(ctx context.Context, address string) (net.Conn, error)) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// Compile-time check that Client satisfies the scheduler API.
var _ scheduler.Scheduler = (*Client)(nil)

// Dial prepares a gRPC connection to the scheduler at address.
// The connection is established lazily by gRPC on the first call.
// Note: this uses insecure transport credentials; reach remote clusters through
// the SSH proxy or terminate TLS in front of the scheduler.
func Dial(address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := new(Client)

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent()),
	}

	if client.dialer != nil {
		// Names are resolved on the far side of the tunnel.
		address = "passthrough:///" + address

		dialOptions = append(dialOptions, grpc.WithContextDialer(client.dialer))
	}

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial scheduler: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Target returns the address the client was dialed with.
func (c *Client) Target() string {
	return c.conn.Target()
}

// Probe asks the standard gRPC health service whether the scheduler serves.
func (c *Client) Probe(ctx context.Context) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := healthpb.NewHealthClient(c.conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, resp.GetStatus())
	}

	return nil
}

// CreateJob schedules a new job.
func (c *Client) CreateJob(ctx context.Context, req *scheduler.CreateJobRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodCreateJob, req)
}

// StartUpdate opens an update cycle.
func (c *Client) StartUpdate(
	ctx context.Context,
	req *scheduler.StartUpdateRequest,
) (*scheduler.StartUpdateResponse, error) {
	return invoke[scheduler.StartUpdateResponse](ctx, c, methodStartUpdate, req)
}

// FinishUpdate closes an update cycle.
func (c *Client) FinishUpdate(ctx context.Context, req *scheduler.FinishUpdateRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodFinishUpdate, req)
}

// StartCronJob triggers a cron job.
func (c *Client) StartCronJob(ctx context.Context, req *scheduler.StartCronJobRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodStartCronJob, req)
}

// KillTasks kills the tasks matching the query.
func (c *Client) KillTasks(ctx context.Context, req *scheduler.KillTasksRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodKillTasks, req)
}

// GetTasksStatus lists the tasks matching the query.
func (c *Client) GetTasksStatus(
	ctx context.Context,
	req *scheduler.GetTasksStatusRequest,
) (*scheduler.TasksStatusResponse, error) {
	return invoke[scheduler.TasksStatusResponse](ctx, c, methodGetTasksStatus, req)
}

// GetQuota returns the quota of a role.
func (c *Client) GetQuota(ctx context.Context, req *scheduler.GetQuotaRequest) (*scheduler.QuotaResponse, error) {
	return invoke[scheduler.QuotaResponse](ctx, c, methodGetQuota, req)
}

// SetQuota replaces the quota of a role.
func (c *Client) SetQuota(ctx context.Context, req *scheduler.SetQuotaRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodSetQuota, req)
}

// ForceTaskState moves a task to the given state.
func (c *Client) ForceTaskState(ctx context.Context, req *scheduler.ForceTaskStateRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodForceTaskState, req)
}

// UpdateShards applies the pending update to the listed shards.
func (c *Client) UpdateShards(ctx context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodUpdateShards, req)
}

// RollbackShards restores the previous configuration of the listed shards.
func (c *Client) RollbackShards(ctx context.Context, req *scheduler.ShardsRequest) (*job.Response, error) {
	return invoke[job.Response](ctx, c, methodRollbackShards, req)
}

// invoke performs one unary call with the JSON codec and the client timeout.
func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(Resp)

	if err := c.conn.Invoke(callCtx, fullMethod(method), req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
