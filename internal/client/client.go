package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/jobctl/internal/artifact"
	"github.com/oshokin/jobctl/internal/cluster"
	"github.com/oshokin/jobctl/internal/connection"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/metrics"
	"github.com/oshokin/jobctl/internal/rollout"
	"github.com/oshokin/jobctl/internal/session"
	"github.com/oshokin/jobctl/internal/update"
)

var (
	// ErrPrincipalRequired is returned when a privileged operation runs without a principal.
	ErrPrincipalRequired = errors.New("principal must be provided")
	// errNoAuthenticator is returned when a privileged operation runs without signing key.
	errNoAuthenticator = errors.New("no session authenticator configured")
	// errNoResolver is returned when the client has no way to connect.
	errNoResolver = errors.New("no connection resolver configured")
)

// Authenticator signs session credentials.
type Authenticator interface {
	Acquire(principal string) (*session.Credential, error)
}

// Directory is the part of the cluster directory the client needs.
type Directory interface {
	cluster.Checker

	FilesystemRootURI(name string) (string, error)
}

// Options configures a Client.
type Options struct {
	// Cluster is the "name" or "name:port" reference of the target cluster.
	Cluster string
	// Directory validates cluster names and locates the shared filesystem.
	Directory Directory
	// Principal is the identity sessions are signed for.
	Principal string
	// Authenticator signs sessions for privileged operations.
	Authenticator Authenticator
	// Resolver connects to the scheduler of the cluster.
	Resolver connection.Resolver
	// Steppers builds rollout steppers for updates.
	// Defaults to a single batch stepper without watch period.
	Steppers rollout.Factory
	// FilesystemCommand is the shared filesystem client.
	// Defaults to artifact.DefaultFilesystemCommand.
	FilesystemCommand []string
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Client runs scheduler operations against one cluster.
type Client struct {
	ref       cluster.Reference
	directory Directory
	principal string
	auth      Authenticator
	// credential is nil until the first privileged operation.
	credential *session.Credential
	conn       *connection.Manager

	steppers  rollout.Factory
	fsCommand []string
	clock     clock.Clock
	metrics   *metrics.Metrics
}

// New validates the cluster reference and builds an unconnected client.
func New(opts Options) (*Client, error) {
	directory := opts.Directory
	if directory == nil {
		directory = new(cluster.Directory)
	}

	ref, err := cluster.ParseReference(opts.Cluster, directory)
	if err != nil {
		return nil, err
	}

	if opts.Resolver == nil {
		return nil, errNoResolver
	}

	steppers := opts.Steppers
	if steppers == nil {
		steppers = rollout.NewSingleBatchFactory(0)
	}

	fsCommand := opts.FilesystemCommand
	if len(fsCommand) == 0 {
		fsCommand = artifact.DefaultFilesystemCommand
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Client{
		ref:       ref,
		directory: directory,
		principal: opts.Principal,
		auth:      opts.Authenticator,
		conn:      connection.NewManager(ref, opts.Resolver),
		steppers:  steppers,
		fsCommand: fsCommand,
		clock:     clk,
		metrics:   opts.Metrics,
	}, nil
}

// Cluster returns the validated cluster reference.
func (c *Client) Cluster() cluster.Reference {
	return c.ref
}

// Authenticated reports whether a session has been signed.
func (c *Client) Authenticated() bool {
	return c.credential != nil
}

// Connected reports whether the scheduler connection is established.
func (c *Client) Connected() bool {
	return c.conn.Connected()
}

// Close releases the scheduler connection. The signed session is kept.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ensureAuthenticated signs a session on first use and returns the cached one afterwards.
func (c *Client) ensureAuthenticated(ctx context.Context) (*session.Credential, error) {
	if c.credential != nil {
		return c.credential, nil
	}

	if c.auth == nil {
		return nil, errNoAuthenticator
	}

	if c.principal == "" {
		return nil, ErrPrincipalRequired
	}

	credential, err := c.auth.Acquire(c.principal)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	c.credential = credential

	logger.DebugKV(ctx, "Session acquired", "principal", c.principal)

	return credential, nil
}

// ensureConnected connects to the scheduler on first use.
//
//nolint:ireturn // The scheduler client is an interface so that it can be faked.
func (c *Client) ensureConnected(ctx context.Context) (connection.RPC, error) {
	return c.conn.RPC(ctx)
}

// privileged passes both guards and returns the scheduler with the session.
//
//nolint:ireturn // See ensureConnected.
func (c *Client) privileged(ctx context.Context) (connection.RPC, *session.Credential, error) {
	credential, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return nil, nil, err
	}

	rpc, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, nil, err
	}

	return rpc, credential, nil
}

// publisher places artifacts through the proxy host when the cluster has one.
func (c *Client) publisher(ctx context.Context) (*artifact.Publisher, string, error) {
	proxy, err := c.conn.Proxy(ctx)
	if err != nil {
		return nil, "", err
	}

	rootURI := ""
	if !c.ref.IsLocal() {
		rootURI, err = c.directory.FilesystemRootURI(c.ref.Name)
		if err != nil {
			return nil, "", err
		}
	}

	if proxy == nil {
		return artifact.NewPublisher(artifact.NewCommandFS(artifact.LocalRunner{}, c.fsCommand), nil), rootURI, nil
	}

	return artifact.NewPublisher(artifact.NewCommandFS(proxy, c.fsCommand), proxy), rootURI, nil
}

// orchestrator builds the update orchestrator over the live connection.
func (c *Client) orchestrator(ctx context.Context, withPublisher bool) (*update.Orchestrator, error) {
	rpc, credential, err := c.privileged(ctx)
	if err != nil {
		return nil, err
	}

	opts := update.Options{
		RPC:      rpc,
		Session:  credential,
		Steppers: c.steppers,
		Clock:    c.clock,
		Metrics:  c.metrics,
	}

	if withPublisher {
		publisher, rootURI, pubErr := c.publisher(ctx)
		if pubErr != nil {
			return nil, pubErr
		}

		opts.Publisher = publisher
		opts.RootURI = rootURI
	}

	return update.New(opts), nil
}
