package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/jobctl/internal/cluster"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/scheduler"
)

// ErrNoScheduler is returned when a cluster yields no usable scheduler.
var ErrNoScheduler = errors.New("could not find scheduler")

// RPC is a scheduler client owning its connection.
type RPC interface {
	scheduler.Scheduler

	Close() error
}

// Proxy is the intermediary host used to reach a restricted cluster.
type Proxy interface {
	Run(ctx context.Context, argv []string) (int, error)
	Upload(ctx context.Context, src, name string) error
	Close() error
}

// Handle is a live connection to one cluster.
type Handle struct {
	// Proxy is nil when the scheduler is reachable directly.
	Proxy Proxy
	// RPC is the scheduler client.
	RPC RPC
}

// Resolver connects to the scheduler of a cluster.
type Resolver interface {
	Resolve(ctx context.Context, ref cluster.Reference) (*Handle, error)
}

// Manager lazily connects to one cluster and caches the handle.
// The zero handle means "not connected yet"; once set it never changes until Close.
// A Manager is not safe for concurrent first use.
type Manager struct {
	ref      cluster.Reference
	resolver Resolver
	handle   *Handle
}

// NewManager binds a manager to a validated cluster reference.
func NewManager(ref cluster.Reference, resolver Resolver) *Manager {
	return &Manager{
		ref:      ref,
		resolver: resolver,
	}
}

// Connected reports whether the cluster has already been resolved.
func (m *Manager) Connected() bool {
	return m.handle != nil
}

// Ensure resolves the cluster on first use and returns the cached handle afterwards.
func (m *Manager) Ensure(ctx context.Context) (*Handle, error) {
	if m.handle != nil {
		return m.handle, nil
	}

	handle, err := m.resolver.Resolve(ctx, m.ref)
	if err != nil {
		return nil, fmt.Errorf("connect to cluster %s: %w", m.ref, err)
	}

	if handle == nil || handle.RPC == nil {
		return nil, fmt.Errorf("%w (cluster = %s)", ErrNoScheduler, m.ref)
	}

	m.handle = handle

	logger.DebugKV(ctx, "Connected to scheduler", "cluster", m.ref.String(), "proxied", handle.Proxy != nil)

	return handle, nil
}

// RPC returns the scheduler client, connecting first if needed.
//
//nolint:ireturn // The client is an interface so that it can be faked.
func (m *Manager) RPC(ctx context.Context) (RPC, error) {
	handle, err := m.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return handle.RPC, nil
}

// Proxy returns the proxy host handle, or nil for directly reachable clusters.
//
//nolint:ireturn // The proxy is an interface so that it can be faked.
func (m *Manager) Proxy(ctx context.Context) (Proxy, error) {
	handle, err := m.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	return handle.Proxy, nil
}

// Cluster returns the validated cluster reference once connected.
func (m *Manager) Cluster(ctx context.Context) (cluster.Reference, error) {
	if _, err := m.Ensure(ctx); err != nil {
		return cluster.Reference{}, err
	}

	return m.ref, nil
}

// Close releases the scheduler connection and then the proxy.
func (m *Manager) Close() error {
	if m.handle == nil {
		return nil
	}

	handle := m.handle
	m.handle = nil

	var errs []error

	if err := handle.RPC.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close scheduler connection: %w", err))
	}

	if handle.Proxy != nil {
		if err := handle.Proxy.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close proxy: %w", err))
		}
	}

	return errors.Join(errs...)
}
