package cluster

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownCluster is returned when a cluster name is not in the directory.
var ErrUnknownCluster = errors.New("unknown cluster")

// errSchedulerMissing is returned when a cluster has no scheduler address.
var errSchedulerMissing = errors.New("scheduler address must be provided")

// Checker reports whether a cluster name is known.
type Checker interface {
	AssertExists(name string) error
}

// Entry describes one cluster of the directory.
type Entry struct {
	// Scheduler is the "host:port" address of the scheduler RPC endpoint.
	Scheduler string `yaml:"scheduler"`
	// FilesystemRoot is the URI prefix of the shared filesystem, e.g. "hdfs://nn:8020".
	FilesystemRoot string `yaml:"filesystem_root"`
	// ProxyHost is the SSH host used to reach the cluster network, if any.
	ProxyHost string `yaml:"proxy_host,omitempty"`
}

// Directory is the catalogue of known clusters.
type Directory struct {
	Clusters map[string]Entry `yaml:"clusters"`
}

// LoadDirectory reads the cluster directory from a YAML file.
func LoadDirectory(path string) (*Directory, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read cluster directory: %w", err)
	}

	var dir Directory
	if err = yaml.Unmarshal(contents, &dir); err != nil {
		return nil, fmt.Errorf("unmarshal cluster directory: %w", err)
	}

	for name, entry := range dir.Clusters {
		if entry.Scheduler == "" {
			return nil, fmt.Errorf("cluster %q: %w", name, errSchedulerMissing)
		}
	}

	return &dir, nil
}

// AssertExists returns ErrUnknownCluster when name is not in the directory.
func (d *Directory) AssertExists(name string) error {
	if _, err := d.lookup(name); err != nil {
		return err
	}

	return nil
}

// FilesystemRootURI returns the shared filesystem root of the cluster.
func (d *Directory) FilesystemRootURI(name string) (string, error) {
	entry, err := d.lookup(name)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(entry.FilesystemRoot, "/"), nil
}

// SchedulerAddress returns the scheduler endpoint of the cluster.
func (d *Directory) SchedulerAddress(name string) (string, error) {
	entry, err := d.lookup(name)
	if err != nil {
		return "", err
	}

	return entry.Scheduler, nil
}

// ProxyHost returns the SSH proxy host of the cluster, or "" when the
// cluster is reachable directly.
func (d *Directory) ProxyHost(name string) (string, error) {
	entry, err := d.lookup(name)
	if err != nil {
		return "", err
	}

	return entry.ProxyHost, nil
}

// Names returns the known cluster names in lexical order.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.Clusters))
	for name := range d.Clusters {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (d *Directory) lookup(name string) (Entry, error) {
	if d != nil {
		if entry, ok := d.Clusters[name]; ok {
			return entry, nil
		}
	}

	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownCluster, name)
}
