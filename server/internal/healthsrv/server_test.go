package healthsrv

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakeChecker returns whatever error is currently set.
type fakeChecker struct {
	mu  sync.Mutex
	err error
}

func (f *fakeChecker) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeChecker) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func startServer(t *testing.T, chk Checker, interval time.Duration) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := New(chk, interval)
	go srv.Serve(lis) //nolint:errcheck

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return srv, healthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealth_ServingWhenCheckPasses(t *testing.T) {
	_, c := startServer(t, &fakeChecker{}, time.Hour)

	for _, svc := range []string{"", ServiceName} {
		if got := checkStatus(t, c, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("service %q: got %v, want SERVING", svc, got)
		}
	}
}

func TestHealth_NotServingWhenCheckFails(t *testing.T) {
	_, c := startServer(t, &fakeChecker{err: errors.New("root missing")}, time.Hour)

	if got := checkStatus(t, c, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("got %v, want NOT_SERVING", got)
	}
}

func TestHealth_UnknownService(t *testing.T) {
	_, c := startServer(t, &fakeChecker{}, time.Hour)

	_, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("code: got %v, want NotFound", status.Code(err))
	}
}

func TestHealth_RunReprobes(t *testing.T) {
	chk := &fakeChecker{}
	srv, c := startServer(t, chk, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	chk.set(errors.New("gone"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if checkStatus(t, c, ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("status never flipped to NOT_SERVING")
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	i := LoggingInterceptor()
	want := errors.New("boom")
	res, err := i(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", want })
	if res != "ok" || !errors.Is(err, want) {
		t.Errorf("got (%v, %v), want (ok, boom)", res, err)
	}
}
