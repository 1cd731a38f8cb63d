package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/jobctl/internal/api/grpc/scheduler"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/metrics"
	repository "github.com/oshokin/jobctl/internal/repository/state"
	"github.com/oshokin/jobctl/internal/session"
)

// Options controls the sandbox scheduler process.
type Options struct {
	// ListenAddress is the gRPC listen address, e.g. "127.0.0.1:8081".
	ListenAddress string
	// StateFile is the path of the persisted state. Empty keeps state in memory only.
	StateFile string
	// PublicKeyPath enables session verification with the given Ed25519 public key.
	PublicKeyPath string
	// MetricsAddress serves prometheus metrics over HTTP when set.
	MetricsAddress string
}

// DefaultListenAddress is used when no listen address is given.
const DefaultListenAddress = "127.0.0.1:8081"

const shutdownTimeout = 5 * time.Second

// Run starts the sandbox scheduler and blocks until context is canceled or the server stops.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "jobctl-sandbox")

	listenAddress := opts.ListenAddress
	if listenAddress == "" {
		listenAddress = DefaultListenAddress
	}

	m := metrics.New()
	serviceOpts := []Option{WithMetrics(m)}

	if opts.PublicKeyPath != "" {
		key, err := session.LoadPublicKey(opts.PublicKeyPath)
		if err != nil {
			return err
		}

		serviceOpts = append(serviceOpts, WithPublicKey(key))
	}

	var repo repository.Repository
	if opts.StateFile != "" {
		repo = repository.NewFileRepository(opts.StateFile)
	}

	svc, err := NewService(ctx, repo, serviceOpts...)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	api.Register(grpcServer, svc)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if opts.MetricsAddress != "" {
		stopMetrics := serveMetrics(ctx, opts.MetricsAddress, m)
		defer stopMetrics()
	}

	logger.InfoKV(
		ctx,
		"Sandbox scheduler listening",
		"listen_address", listenAddress,
		"state_file", opts.StateFile,
		"verify_sessions", opts.PublicKeyPath != "",
	)

	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// serveMetrics exposes the registry of m on address and returns a stop function.
func serveMetrics(ctx context.Context, address string, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		logger.InfoKV(ctx, "Serving metrics", "address", address)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorKV(ctx, "Metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}
}
