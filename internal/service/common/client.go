//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/jobctl/internal/client"
	"github.com/oshokin/jobctl/internal/cluster"
	"github.com/oshokin/jobctl/internal/config"
	"github.com/oshokin/jobctl/internal/connection"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/metrics"
	"github.com/oshokin/jobctl/internal/rollout"
	"github.com/oshokin/jobctl/internal/session"
	"github.com/oshokin/jobctl/internal/sshproxy"
)

// Options are the settings every jobctl command accepts.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// Cluster overrides the cluster reference from the settings.
	Cluster string
	// Principal overrides the principal from the settings.
	Principal string
	// LogLevel overrides the log level from the settings.
	LogLevel string
	// MetricsFile receives the collected metrics in textfile format when set.
	MetricsFile string
}

var (
	// errNoCluster is returned when neither the settings nor the flags name a cluster.
	errNoCluster = errors.New("cluster must be provided")
	// errUnknownLogLevel is returned for log levels zap does not know.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Environment is a connected-on-demand client plus what is needed to tear it down.
type Environment struct {
	// Client talks to the scheduler.
	Client *client.Client
	// Settings are the loaded settings after overrides.
	Settings *config.Config
	// Metrics collects the calls of the command.
	Metrics *metrics.Metrics

	metricsFile string
}

// Open loads the settings and builds an unconnected client.
// Nothing is signed or dialed until the first operation.
func Open(ctx context.Context, opts *Options) (*Environment, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.Cluster != "" {
		settings.Cluster = opts.Cluster
	}

	if opts.Principal != "" {
		settings.Principal = opts.Principal
	}

	if settings.Cluster == "" {
		return nil, errNoCluster
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if settings.LogLevel != "" {
		level, ok := logger.ParseLogLevel(settings.LogLevel)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownLogLevel, settings.LogLevel)
		}

		logger.SetLevel(level)
	}

	directory, err := loadDirectory(settings.ClustersFile)
	if err != nil {
		return nil, err
	}

	principal, err := config.ResolvePrincipal(settings.Principal)
	if err != nil {
		return nil, err
	}

	sshUser := settings.SSHUser
	if sshUser == "" {
		sshUser = principal
	}

	m := metrics.New()

	c, err := client.New(client.Options{
		Cluster:       settings.Cluster,
		Directory:     directory,
		Principal:     principal,
		Authenticator: &lazyAuthenticator{path: settings.SigningKey},
		Resolver: &connection.GRPCResolver{
			Directory: directory,
			ProxyHost: settings.SSHProxy,
			Proxy: sshproxy.Config{
				User:           sshUser,
				KeyPath:        settings.SSHKey,
				KnownHostsPath: settings.KnownHosts,
				Timeout:        settings.Timeout,
			},
			CallTimeout: settings.Timeout,
			HealthCheck: settings.HealthCheck,
		},
		Steppers: rollout.NewSingleBatchFactory(settings.WatchPeriod),
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Client ready", "cluster", c.Cluster().String(), "principal", principal)

	return &Environment{
		Client:      c,
		Settings:    settings,
		Metrics:     m,
		metricsFile: opts.MetricsFile,
	}, nil
}

// Close releases the connection and writes the metrics file.
func (e *Environment) Close(ctx context.Context) {
	if err := e.Client.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close scheduler connection", "error", err)
	}

	if e.metricsFile == "" {
		return
	}

	if err := e.Metrics.WriteTextfile(e.metricsFile); err != nil {
		logger.WarnKV(ctx, "Failed to write metrics", "path", e.metricsFile, "error", err)
	}
}

// loadDirectory reads the cluster directory. A missing file is only an
// error for named clusters, so local references work without one.
func loadDirectory(path string) (*cluster.Directory, error) {
	if path == "" {
		return new(cluster.Directory), nil
	}

	directory, err := cluster.LoadDirectory(path)
	if errors.Is(err, os.ErrNotExist) {
		return new(cluster.Directory), nil
	}

	if err != nil {
		return nil, fmt.Errorf("load cluster directory: %w", err)
	}

	return directory, nil
}

// lazyAuthenticator reads the signing key on first use, so that
// unprivileged commands work without one.
type lazyAuthenticator struct {
	path string
	auth *session.Authenticator
}

func (a *lazyAuthenticator) Acquire(principal string) (*session.Credential, error) {
	if a.auth == nil {
		auth, err := session.LoadAuthenticator(a.path)
		if err != nil {
			return nil, err
		}

		a.auth = auth
	}

	return a.auth.Acquire(principal)
}
