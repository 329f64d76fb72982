package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/busmux/transport"
)

// TestClient provides a testcontainers-based NATS server for testing
type TestClient struct {
	container testcontainers.Container
	URL       string
	Host      string
	Port      int
	cleanup   func()
}

// testConfig holds configuration for test client
type testConfig struct {
	natsVersion  string
	startTimeout time.Duration
	fastStartup  bool
}

// TestOption for configuring test client
type TestOption func(*testConfig)

// WithNATSVersion specifies a specific NATS server version to use
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// WithFastStartup waits only for the client port instead of the monitoring endpoint
func WithFastStartup() TestOption {
	return func(cfg *testConfig) {
		cfg.fastStartup = true
	}
}

// NewSharedTestClient creates a new NATS test container for use in TestMain.
// Unlike NewTestClient, this doesn't require testing.T and returns errors.
func NewSharedTestClient(opts ...TestOption) (*TestClient, error) {
	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	waitFor := wait.ForAll(
		wait.ForListeningPort("4222/tcp"),
		wait.ForHTTP("/").WithPort("8222/tcp"),
	).WithDeadline(cfg.startTimeout)
	if cfg.fastStartup {
		waitFor = wait.ForAll(wait.ForListeningPort("4222/tcp")).WithDeadline(cfg.startTimeout)
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor:   waitFor,
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &TestClient{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
		Host:      host,
		Port:      port.Int(),
		cleanup: func() {
			_ = container.Terminate(context.Background()) // Best effort test cleanup
		},
	}, nil
}

// NewTestClient creates a new NATS test container and registers its cleanup.
// Accepts testing.TB so it works with both *testing.T and *testing.B.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	tc, err := NewSharedTestClient(opts...)
	if err != nil {
		t.Fatalf("Failed to start NATS test server: %v", err)
	}
	t.Cleanup(func() { _ = tc.Terminate() })
	return tc
}

// Config returns a transport config for the container's NATS server
func (tc *TestClient) Config() transport.Config {
	return transport.Config{
		Transport:      transport.KindNATS,
		Host:           tc.Host,
		Port:           tc.Port,
		Protocol:       "nats",
		ConnectTimeout: 5 * time.Second,
		ReconnectWait:  100 * time.Millisecond,
	}
}

// Terminate manually terminates the container (usually handled by t.Cleanup)
func (tc *TestClient) Terminate() error {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
	return nil
}
