// Package testutil starts throwaway backing services for integration tests.
//
// Every helper skips the calling test unless BRIDGE_INTEGRATION is set, since
// the containers need a reachable Docker daemon.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"PPBridge/global/config"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const integrationEnv = "BRIDGE_INTEGRATION"

// RequireIntegration skips t unless integration tests are enabled.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv(integrationEnv) == "" {
		t.Skipf("set %s=1 to run integration tests", integrationEnv)
	}
}

func start(t *testing.T, req testcontainers.ContainerRequest) (testcontainers.Container, string) {
	t.Helper()
	RequireIntegration(t)
	ctx := context.Background()
	begin := time.Now()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("starting %s: %v [%s]", req.Image, err, time.Since(begin))
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	t.Logf("%s started [%s]", req.Image, time.Since(begin))
	return c, host
}

// StartPostgres returns database settings pointing at a fresh PostgreSQL.
func StartPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	})
	p, err := c.MappedPort(context.Background(), "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	port := p.Int()
	return config.DatabaseConfig{
		Enabled:         true,
		Host:            host,
		Port:            port,
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
}

// StartRedis returns the host:port of a fresh Redis.
func StartRedis(t *testing.T) string {
	t.Helper()
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	p, err := c.MappedPort(context.Background(), "6379")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	port := p.Int()
	return fmt.Sprintf("%s:%d", host, port)
}

// StartNats returns the client URL of a fresh nats-server.
func StartNats(t *testing.T) string {
	t.Helper()
	c, host := start(t, testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	})
	p, err := c.MappedPort(context.Background(), "4222")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	port := p.Int()
	return fmt.Sprintf("nats://%s:%d", host, port)
}
