package integration

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/jobctl/internal/config"
	"github.com/oshokin/jobctl/internal/domain/job"
	"github.com/oshokin/jobctl/internal/service/common"
	"github.com/oshokin/jobctl/internal/service/jobs"
	"github.com/oshokin/jobctl/internal/service/sandbox"
	"github.com/oshokin/jobctl/internal/session"
)

// reservePort returns a free local port.
func reservePort(t *testing.T) uint16 {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok)
	require.NoError(t, l.Close())

	return uint16(addr.Port) //nolint:gosec // TCP ports fit.
}

// sandboxEnv is a running sandbox with matching client settings.
type sandboxEnv struct {
	settingsPath string
	statePath    string
	cluster      string
}

// startSandbox runs a session-verifying sandbox until the test ends.
func startSandbox(t *testing.T) *sandboxEnv {
	t.Helper()

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "session.pem")

	_, err := session.GenerateKey(keyPath)
	require.NoError(t, err)

	port := reservePort(t)
	env := &sandboxEnv{
		settingsPath: filepath.Join(dir, config.DefaultConfigFilename),
		statePath:    filepath.Join(dir, "sandbox.yaml"),
		cluster:      "localhost:" + strconv.Itoa(int(port)),
	}

	require.NoError(t, config.Save(env.settingsPath, &config.Config{
		Cluster:      env.cluster,
		Principal:    "mesos",
		SigningKey:   keyPath,
		ClustersFile: filepath.Join(dir, "clusters.yaml"),
		Timeout:      5 * time.Second,
		HealthCheck:  true,
		WatchPeriod:  time.Millisecond,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- sandbox.Run(ctx, &sandbox.Options{
			ListenAddress: net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))),
			StateFile:     env.statePath,
			PublicKeyPath: keyPath + ".pub",
		})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return env
}

// open builds a client for the sandbox and waits until it answers.
func (e *sandboxEnv) open(t *testing.T) *common.Environment {
	t.Helper()

	client, err := common.Open(context.Background(), &common.Options{ConfigPath: e.settingsPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close(context.Background())
	})

	require.Eventually(t, func() bool {
		_, err := client.Client.GetQuota(context.Background(), "www")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	return client
}

func writeJob(t *testing.T, cfg *job.Config) string {
	t.Helper()

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

// TestSandbox_UpdateLifecycle creates a job, updates it and checks rollbacks over gRPC.
func TestSandbox_UpdateLifecycle(t *testing.T) {
	t.Parallel()

	sb := startSandbox(t)
	env := sb.open(t)
	ctx := context.Background()

	cfg := &job.Config{Role: "www", Name: "web", Shards: 2, Command: "./web"}

	resp, err := env.Client.CreateJob(ctx, cfg, "")
	require.NoError(t, err)
	require.True(t, resp.OK(), resp.Message)

	status, err := env.Client.CheckStatus(ctx, "www", "web")
	require.NoError(t, err)
	require.Len(t, status.Tasks, 2)

	next := *cfg
	next.Command = "./web --v2"

	outcome, err := env.Client.UpdateJob(ctx, &next, "")
	require.NoError(t, err)
	require.Equal(t, job.Outcome{Code: job.ResponseOK, Message: job.MessageUpdateSuccessful}, outcome)

	broken := *cfg
	broken.Command = ""

	outcome, err = env.Client.UpdateJob(ctx, &broken, "")
	require.NoError(t, err)
	require.Equal(t, job.Outcome{Code: job.ResponseWarning, Message: job.MessageUpdateUnsuccessful}, outcome)

	status, err = env.Client.CheckStatus(ctx, "www", "web")
	require.NoError(t, err)

	for _, task := range status.Tasks {
		require.Equal(t, job.TaskRunning, task.Status)
	}

	outcome, err = env.Client.CancelUpdate(ctx, "www", "web", "stale-token")
	require.NoError(t, err)
	require.Equal(t, job.ResponseInvalidRequest, outcome.Code)

	resp, err = env.Client.KillJob(ctx, "www", "web")
	require.NoError(t, err)
	require.True(t, resp.OK())

	_, err = os.Stat(sb.statePath)
	require.NoError(t, err)
}

// TestSandbox_StartRejected reports the scheduler message when the update cannot start.
func TestSandbox_StartRejected(t *testing.T) {
	t.Parallel()

	env := startSandbox(t).open(t)

	outcome, err := env.Client.UpdateJob(context.Background(), &job.Config{Role: "www", Name: "missing", Shards: 1}, "")
	require.NoError(t, err)
	require.Equal(t, job.Rejected("job not found"), outcome)
}

// TestSandbox_Commands drives the jobctl commands end to end.
func TestSandbox_Commands(t *testing.T) {
	t.Parallel()

	sb := startSandbox(t)
	sb.open(t)

	ctx := context.Background()
	jobPath := writeJob(t, &job.Config{Role: "www", Name: "web", Shards: 1, Command: "./web"})

	var out bytes.Buffer

	opts := jobs.Options{Options: common.Options{ConfigPath: sb.settingsPath}, Out: &out}

	require.NoError(t, jobs.Create(ctx, &jobs.ConfigOptions{Options: opts, JobConfigPath: jobPath}))
	require.Equal(t, "OK\n", out.String())

	out.Reset()
	require.NoError(t, jobs.Status(ctx, &jobs.JobOptions{Options: opts, Role: "www", JobName: "web"}))
	require.Contains(t, out.String(), "status: RUNNING")

	out.Reset()
	require.NoError(t, jobs.SetQuota(ctx, &jobs.QuotaOptions{Options: opts, Role: "www", Quota: job.Quota{CPU: 8}}))

	out.Reset()
	require.NoError(t, jobs.GetQuota(ctx, &jobs.QuotaOptions{Options: opts, Role: "www"}))
	require.Contains(t, out.String(), "cpu: 8")

	out.Reset()
	err := jobs.Create(ctx, &jobs.ConfigOptions{Options: opts, JobConfigPath: jobPath})
	require.ErrorIs(t, err, jobs.ErrNotOK)
	require.Equal(t, "INVALID_REQUEST: job already exists\n", out.String())
}

// TestSandbox_RejectsForeignSession refuses sessions signed by another key.
func TestSandbox_RejectsForeignSession(t *testing.T) {
	t.Parallel()

	sb := startSandbox(t)
	sb.open(t)

	foreignKey := filepath.Join(t.TempDir(), "foreign.pem")
	_, err := session.GenerateKey(foreignKey)
	require.NoError(t, err)

	settings, err := config.Load(sb.settingsPath)
	require.NoError(t, err)

	settings.SigningKey = foreignKey
	foreignSettings := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(foreignSettings, settings))

	env, err := common.Open(context.Background(), &common.Options{ConfigPath: foreignSettings})
	require.NoError(t, err)

	defer env.Close(context.Background())

	resp, err := env.Client.KillJob(context.Background(), "www", "web")
	require.NoError(t, err)
	require.Equal(t, job.ResponseAuthFailed, resp.Code)
}
