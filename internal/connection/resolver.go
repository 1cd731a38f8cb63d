package connection

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	api "github.com/oshokin/jobctl/internal/api/grpc/scheduler"
	"github.com/oshokin/jobctl/internal/cluster"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/sshproxy"
)

// LocalHost is the address local cluster references resolve to.
const LocalHost = "127.0.0.1"

// Directory locates schedulers and proxy hosts by cluster name.
type Directory interface {
	SchedulerAddress(name string) (string, error)
	ProxyHost(name string) (string, error)
}

// GRPCResolver dials the scheduler over gRPC, tunnelling through the
// cluster's SSH proxy when one is configured.
type GRPCResolver struct {
	// Directory resolves named clusters.
	Directory Directory
	// ProxyHost overrides the directory's proxy host for every named cluster.
	ProxyHost string
	// Proxy carries the SSH credentials; its Host is filled in per cluster.
	Proxy sshproxy.Config
	// CallTimeout bounds every RPC call.
	CallTimeout time.Duration
	// HealthCheck probes the scheduler health service before accepting the connection.
	HealthCheck bool
}

// Resolve connects to the scheduler of ref.
func (r *GRPCResolver) Resolve(ctx context.Context, ref cluster.Reference) (*Handle, error) {
	address, proxyHost, err := r.locate(ref)
	if err != nil {
		return nil, err
	}

	opts := []api.Option{api.WithCallTimeout(r.CallTimeout)}

	var proxy *sshproxy.Proxy

	if proxyHost != "" {
		cfg := r.Proxy
		cfg.Host = proxyHost

		logger.InfoKV(ctx, "Connecting through proxy host", "proxy", proxyHost, "user", cfg.User)

		proxy, err = sshproxy.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}

		opts = append(opts, api.WithDialer(proxy.DialContext))
	}

	rpc, err := api.Dial(address, opts...)
	if err != nil {
		closeProxy(proxy)
		return nil, err
	}

	if r.HealthCheck {
		if err = rpc.Probe(ctx); err != nil {
			_ = rpc.Close()
			closeProxy(proxy)

			return nil, fmt.Errorf("%w at %s: %w", ErrNoScheduler, address, err)
		}
	}

	handle := &Handle{RPC: rpc}
	if proxy != nil {
		handle.Proxy = proxy
	}

	return handle, nil
}

// locate returns the scheduler address and the proxy host of ref.
func (r *GRPCResolver) locate(ref cluster.Reference) (string, string, error) {
	if ref.IsLocal() {
		return net.JoinHostPort(LocalHost, strconv.FormatUint(uint64(ref.Port), 10)), "", nil
	}

	if r.Directory == nil {
		return "", "", fmt.Errorf("%w: %q", cluster.ErrUnknownCluster, ref.Name)
	}

	address, err := r.Directory.SchedulerAddress(ref.Name)
	if err != nil {
		return "", "", err
	}

	if ref.HasPort {
		host, _, splitErr := net.SplitHostPort(address)
		if splitErr != nil {
			host = address
		}

		address = net.JoinHostPort(host, strconv.FormatUint(uint64(ref.Port), 10))
	}

	proxyHost := r.ProxyHost
	if proxyHost == "" {
		proxyHost, err = r.Directory.ProxyHost(ref.Name)
		if err != nil {
			return "", "", err
		}
	}

	return address, proxyHost, nil
}

func closeProxy(proxy *sshproxy.Proxy) {
	if proxy != nil {
		_ = proxy.Close()
	}
}
