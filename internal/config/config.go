package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the jobctl binaries.
type Config struct {
	// Cluster is the default cluster reference, "name" or "name:port".
	Cluster string `yaml:"cluster"`
	// Principal is the identity used to sign sessions.
	// When empty, the current OS user is used.
	Principal string `yaml:"principal,omitempty"`
	// SigningKey is the path to the PEM-encoded Ed25519 private key.
	SigningKey string `yaml:"signing_key"`
	// ClustersFile is the path to the cluster directory YAML file.
	ClustersFile string `yaml:"clusters_file"`
	// SSHUser is the remote user on the proxy host. Defaults to the principal.
	SSHUser string `yaml:"ssh_user,omitempty"`
	// SSHProxy overrides the proxy host of the cluster directory.
	SSHProxy string `yaml:"ssh_proxy,omitempty"`
	// SSHKey is the private key used to authenticate against the proxy host.
	SSHKey string `yaml:"ssh_key,omitempty"`
	// KnownHosts is the known_hosts file used to verify the proxy host.
	KnownHosts string `yaml:"known_hosts,omitempty"`
	// Timeout bounds every individual RPC call.
	Timeout time.Duration `yaml:"timeout"`
	// HealthCheck probes the scheduler health service before first use.
	HealthCheck bool `yaml:"health_check"`
	// WatchPeriod is how long the rollout stepper waits before checking shards.
	WatchPeriod time.Duration `yaml:"watch_period"`
	// LogLevel is the minimum level of emitted log entries.
	LogLevel string `yaml:"log_level,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for jobctl settings.
	DefaultConfigFilename = "jobctl-settings.yaml"

	// DefaultClustersFilename is the default filename of the cluster directory.
	DefaultClustersFilename = "jobctl-clusters.yaml"

	// DefaultSigningKeyFilename is the default location of the session signing key.
	DefaultSigningKeyFilename = "jobctl-session.pem"

	// DefaultTimeout is the default duration for a single RPC call.
	DefaultTimeout = 30 * time.Second

	// DefaultWatchPeriod is the default time shards must stay healthy after an update.
	DefaultWatchPeriod = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeDuration is returned when a duration setting is below zero.
	errNegativeDuration = errors.New("duration must not be negative")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
// The cluster reference itself is validated against the cluster directory
// when a client is constructed.
func Validate(settings *Config) error {
	if settings.Timeout < 0 || settings.WatchPeriod < 0 {
		return errNegativeDuration
	}

	if settings.Timeout == 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.WatchPeriod == 0 {
		settings.WatchPeriod = DefaultWatchPeriod
	}

	if settings.ClustersFile == "" {
		settings.ClustersFile = DefaultClustersFilename
	}

	if settings.SigningKey == "" {
		settings.SigningKey = DefaultSigningKeyFilename
	}

	return nil
}

// ResolvePrincipal returns the explicit principal when set, otherwise the
// name of the user running the process.
func ResolvePrincipal(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	return current.Username, nil
}
