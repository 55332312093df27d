package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/labtrend/labtrend/internal/platform/db"
)

const (
	defaultPostgresImage = "postgres:16-alpine"
	containerUser        = "labtrend"
	containerPassword    = "labtrend"
	containerDB          = "labtrend_snapshots"
)

// postgresContainer is a throwaway database started through the docker CLI.
// The container runs with --rm so stopping it also removes it.
type postgresContainer struct {
	id      string
	connStr string
}

// startPostgresContainer publishes postgres on a docker-assigned host port
// and waits until snapshot migrations could run against it.
// INTEGRATION_POSTGRES_IMAGE overrides the image.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	image := os.Getenv("INTEGRATION_POSTGRES_IMAGE")
	if image == "" {
		image = defaultPostgresImage
	}

	out, err := docker(ctx, "run", "--rm", "-d", "-P",
		"--label", "labtrend.integration=snapshots",
		"-e", "POSTGRES_USER="+containerUser,
		"-e", "POSTGRES_PASSWORD="+containerPassword,
		"-e", "POSTGRES_DB="+containerDB,
		image,
	)
	if err != nil {
		return "", nil, err
	}
	pc := &postgresContainer{id: out}

	hostPort, err := pc.hostPort(ctx)
	if err != nil {
		pc.stop()
		return "", nil, err
	}
	pc.connStr = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		containerUser, containerPassword, hostPort, containerDB)

	if err := pc.waitReady(ctx, 45*time.Second); err != nil {
		pc.stop()
		return "", nil, err
	}
	return pc.connStr, pc.stop, nil
}

// hostPort resolves the address docker published for 5432/tcp, e.g.
// "0.0.0.0:49153", and rewrites the wildcard host to localhost.
func (pc *postgresContainer) hostPort(ctx context.Context) (string, error) {
	out, err := docker(ctx, "port", pc.id, "5432/tcp")
	if err != nil {
		return "", err
	}
	addr := strings.SplitN(out, "\n", 2)[0]
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", fmt.Errorf("unexpected docker port output %q", out)
	}
	return "localhost" + addr[i:], nil
}

func (pc *postgresContainer) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		pool, err := db.NewPool(ctx, pc.connStr, 1, 0)
		if err == nil {
			pool.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres in %s not ready: %w", pc.id[:12], errors.Join(ctx.Err(), lastErr))
		case <-time.After(300 * time.Millisecond):
		}
	}
}

func (pc *postgresContainer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	_, _ = docker(ctx, "stop", pc.id)
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
