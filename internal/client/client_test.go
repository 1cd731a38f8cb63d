package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/jobctl/internal/cluster"
	"github.com/oshokin/jobctl/internal/connection"
	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/metrics"
	"github.com/oshokin/jobctl/internal/scheduler"
	"github.com/oshokin/jobctl/internal/scheduler/schedulertest"
	"github.com/oshokin/jobctl/internal/session"
)

// countingAuthenticator counts credential acquisitions.
type countingAuthenticator struct {
	acquired int
	err      error
}

func (a *countingAuthenticator) Acquire(principal string) (*session.Credential, error) {
	a.acquired++
	if a.err != nil {
		return nil, a.err
	}

	return &session.Credential{Principal: principal, Token: "signed"}, nil
}

// fakeResolver hands out a fixed handle and counts resolutions.
type fakeResolver struct {
	handle   *connection.Handle
	resolved int
}

func (r *fakeResolver) Resolve(context.Context, cluster.Reference) (*connection.Handle, error) {
	r.resolved++
	return r.handle, nil
}

// countingDirectory is a cluster directory counting lookups.
type countingDirectory struct {
	cluster.Directory

	lookups int
}

func (d *countingDirectory) AssertExists(name string) error {
	d.lookups++
	return d.Directory.AssertExists(name)
}

// recordingProxy records commands run on the proxy host.
type recordingProxy struct {
	commands []string
	uploads  []string
	exitCode map[string]int
	closed   bool
}

func (p *recordingProxy) Run(_ context.Context, argv []string) (int, error) {
	line := strings.Join(argv, " ")
	p.commands = append(p.commands, line)

	return p.exitCode[line], nil
}

func (p *recordingProxy) Upload(_ context.Context, src, name string) error {
	p.uploads = append(p.uploads, filepath.Base(src)+" -> "+name)
	return nil
}

func (p *recordingProxy) Close() error {
	p.closed = true
	return nil
}

func testDirectory() *countingDirectory {
	return &countingDirectory{Directory: cluster.Directory{Clusters: map[string]cluster.Entry{
		"clusterA": {Scheduler: "scheduler.a:8081", FilesystemRoot: "hdfs://nn.a:8020/"},
	}}}
}

type fixture struct {
	client   *Client
	auth     *countingAuthenticator
	resolver *fakeResolver
	rpc      *schedulertest.Fake
	proxy    *recordingProxy
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, ref string, withProxy bool) *fixture {
	t.Helper()

	f := &fixture{
		auth:    new(countingAuthenticator),
		rpc:     new(schedulertest.Fake),
		metrics: metrics.New(),
	}

	f.resolver = &fakeResolver{handle: &connection.Handle{RPC: f.rpc}}

	if withProxy {
		f.proxy = &recordingProxy{exitCode: map[string]int{}}
		f.resolver.handle.Proxy = f.proxy
	}

	c, err := New(Options{
		Cluster:       ref,
		Directory:     testDirectory(),
		Principal:     "mesos",
		Authenticator: f.auth,
		Resolver:      f.resolver,
		Metrics:       f.metrics,
	})
	require.NoError(t, err)

	f.client = c

	return f
}

func testJob() *job.Config {
	return &job.Config{Role: "www", Name: "web", Shards: 2, FilesystemPath: "apps/web.zip"}
}

// TestNew_ClusterReference validates references before any connection.
func TestNew_ClusterReference(t *testing.T) {
	t.Parallel()

	resolver := new(fakeResolver)

	dir := testDirectory()
	c, err := New(Options{Cluster: "localhost:8080", Directory: dir, Resolver: resolver})
	require.NoError(t, err)
	require.True(t, c.Cluster().IsLocal())
	require.Zero(t, dir.lookups)

	dir = testDirectory()
	c, err = New(Options{Cluster: "clusterA", Directory: dir, Resolver: resolver})
	require.NoError(t, err)
	require.Equal(t, "clusterA", c.Cluster().Name)
	require.Equal(t, 1, dir.lookups)

	_, err = New(Options{Cluster: "clusterB", Directory: testDirectory(), Resolver: resolver})
	require.ErrorIs(t, err, cluster.ErrUnknownCluster)

	_, err = New(Options{Cluster: "clusterA:notanumber", Directory: testDirectory(), Resolver: resolver})
	require.ErrorIs(t, err, cluster.ErrInvalidReference)

	require.Zero(t, resolver.resolved)
}

// TestClient_LazyInitOnce acquires one session and one connection for many operations.
func TestClient_LazyInitOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)
	ctx := context.Background()

	require.False(t, f.client.Authenticated())
	require.False(t, f.client.Connected())

	resp, err := f.client.KillJob(ctx, "www", "web")
	require.NoError(t, err)
	require.True(t, resp.OK())

	resp, err = f.client.SetQuota(ctx, "www", job.Quota{CPU: 4, RAMMB: 1024, DiskMB: 2048})
	require.NoError(t, err)
	require.True(t, resp.OK())

	_, err = f.client.StartCronJob(ctx, "www", "nightly")
	require.NoError(t, err)

	require.Equal(t, 1, f.auth.acquired)
	require.Equal(t, 1, f.resolver.resolved)
	require.True(t, f.client.Authenticated())
	require.True(t, f.client.Connected())
	require.Equal(t, []string{"KillTasks", "SetQuota", "StartCronJob"}, f.rpc.Calls())
}

// TestClient_UnprivilegedSkipsSession connects without signing a session.
func TestClient_UnprivilegedSkipsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)
	f.rpc.GetQuotaFn = func(req *scheduler.GetQuotaRequest) (*scheduler.QuotaResponse, error) {
		return &scheduler.QuotaResponse{Response: *schedulertest.OK(), Quota: job.Quota{CPU: 2}}, nil
	}

	quota, err := f.client.GetQuota(context.Background(), "www")
	require.NoError(t, err)
	require.InDelta(t, 2.0, quota.Quota.CPU, 0)

	_, err = f.client.CheckStatus(context.Background(), "www", "web")
	require.NoError(t, err)

	require.Zero(t, f.auth.acquired)
	require.Equal(t, 1, f.resolver.resolved)
}

// TestClient_AuthFailure makes no remote call when the session cannot be signed.
func TestClient_AuthFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)
	f.auth.err = session.ErrNoSigningKey

	_, err := f.client.KillJob(context.Background(), "www", "web")
	require.ErrorIs(t, err, session.ErrNoSigningKey)
	require.Zero(t, f.resolver.resolved)
	require.False(t, f.client.Authenticated())
}

// TestClient_UpdateAndCancel threads the session into the orchestrator.
func TestClient_UpdateAndCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)
	ctx := context.Background()

	f.rpc.GetTasksStatusFn = func(*scheduler.GetTasksStatusRequest) (*scheduler.TasksStatusResponse, error) {
		return &scheduler.TasksStatusResponse{
			Response: *schedulertest.OK(),
			Tasks: []job.Task{
				{ShardID: 0, Status: job.TaskRunning},
				{ShardID: 1, Status: job.TaskRunning},
			},
		}, nil
	}

	var finished []*scheduler.FinishUpdateRequest

	f.rpc.FinishUpdateFn = func(req *scheduler.FinishUpdateRequest) (*job.Response, error) {
		finished = append(finished, req)
		return schedulertest.OK(), nil
	}

	outcome, err := f.client.UpdateJob(ctx, testJob(), "")
	require.NoError(t, err)
	require.Equal(t, job.Outcome{Code: job.ResponseOK, Message: job.MessageUpdateSuccessful}, outcome)

	outcome, err = f.client.CancelUpdate(ctx, "www", "web", "token-9")
	require.NoError(t, err)
	require.Equal(t, job.MessageUpdateCancelled, outcome.Message)

	require.Len(t, finished, 2)
	require.Equal(t, job.UpdateTerminate, finished[1].Result)
	require.Equal(t, "token-9", finished[1].UpdateToken)
	require.Equal(t, "mesos", finished[1].Session.Principal)
	require.Equal(t, 1, f.auth.acquired)
	require.Equal(t, 1, f.resolver.resolved)
}

// TestClient_CreateJobThroughProxy stages the artifact and replaces the existing file.
func TestClient_CreateJobThroughProxy(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "web.zip")
	require.NoError(t, os.WriteFile(src, []byte("app"), 0o600))

	f := newFixture(t, "clusterA", true)
	dst := "hdfs://nn.a:8020/apps/web.zip"

	resp, err := f.client.CreateJob(context.Background(), testJob(), src)
	require.NoError(t, err)
	require.True(t, resp.OK())

	require.Equal(t, []string{"web.zip -> web.zip"}, f.proxy.uploads)
	require.Equal(t, []string{
		"hadoop fs -test -e " + dst,
		"hadoop fs -rm " + dst,
		"hadoop fs -put web.zip " + dst,
	}, f.proxy.commands)
	require.Equal(t, []string{"CreateJob"}, f.rpc.Calls())

	require.NoError(t, f.client.Close())
	require.True(t, f.proxy.closed)
	require.Equal(t, 1, f.rpc.Closed)
}

// TestClient_CreateJobMissingDirectory creates the destination directory first.
func TestClient_CreateJobMissingDirectory(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "web.zip")
	require.NoError(t, os.WriteFile(src, []byte("app"), 0o600))

	f := newFixture(t, "clusterA", true)
	f.proxy.exitCode["hadoop fs -test -e hdfs://nn.a:8020/apps/web.zip"] = 1
	f.proxy.exitCode["hadoop fs -test -e hdfs://nn.a:8020/apps"] = 1

	_, err := f.client.CreateJob(context.Background(), testJob(), src)
	require.NoError(t, err)
	require.Equal(t, []string{
		"hadoop fs -test -e hdfs://nn.a:8020/apps/web.zip",
		"hadoop fs -test -e hdfs://nn.a:8020/apps",
		"hadoop fs -mkdir -p hdfs://nn.a:8020/apps",
		"hadoop fs -put web.zip hdfs://nn.a:8020/apps/web.zip",
	}, f.proxy.commands)
}

// TestClient_CreateJobMissingArtifact aborts before any remote change.
func TestClient_CreateJobMissingArtifact(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", true)

	_, err := f.client.CreateJob(context.Background(), testJob(), filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	require.Empty(t, f.rpc.Calls())
	require.Empty(t, f.proxy.commands)
}

// TestClient_NoConfig refuses a missing job configuration before any lazy setup.
func TestClient_NoConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)

	_, err := f.client.CreateJob(context.Background(), nil, "")
	require.ErrorIs(t, err, job.ErrNoConfig)

	_, err = f.client.UpdateJob(context.Background(), nil, "")
	require.ErrorIs(t, err, job.ErrNoConfig)

	require.Zero(t, f.auth.acquired)
	require.Zero(t, f.resolver.resolved)
}

// TestClient_TransportErrorCounted records transport failures in metrics.
func TestClient_TransportErrorCounted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "clusterA", false)
	f.rpc.KillTasksFn = func(*scheduler.KillTasksRequest) (*job.Response, error) {
		return nil, errors.New("connection reset")
	}

	_, err := f.client.KillJob(context.Background(), "www", "web")
	require.ErrorContains(t, err, "connection reset")
	require.InDelta(t, 1, testutil.ToFloat64(f.metrics.RemoteCalls.WithLabelValues("KillTasks", "TRANSPORT_ERROR")), 0)
}
