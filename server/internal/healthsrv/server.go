package healthsrv

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside "".
const ServiceName = "datastore"

// DefaultInterval is the probe period used when New is given zero.
const DefaultInterval = 10 * time.Second

// Checker reports whether the backing store is usable.
type Checker interface {
	Check() error
}

// Server serves grpc.health.v1.Health driven by a Checker.
type Server struct {
	check    Checker
	interval time.Duration
	health   *health.Server
	grpc     *grpc.Server

	last healthpb.HealthCheckResponse_ServingStatus
}

// New creates a Server and runs one probe so the initial status is accurate.
func New(check Checker, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Server{
		check:    check,
		interval: interval,
		health:   health.NewServer(),
		grpc:     grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor())),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.probe()
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc health: serving", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Run re-probes the checker every interval until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.probe()
		}
	}
}

// Stop marks all services NOT_SERVING and gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) probe() {
	st := healthpb.HealthCheckResponse_SERVING
	err := s.check.Check()
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)

	if st != s.last {
		if err != nil {
			slog.Warn("grpc health: not serving", "err", err)
		} else {
			slog.Info("grpc health: serving")
		}
		s.last = st
	}
}
