package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresImage = "postgres:16-alpine"

// startPostgresContainer runs a throwaway Postgres through the Docker CLI,
// publishing 5432 on a host port Docker picks. INTEGRATION_PG_IMAGE overrides
// the image.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	image := os.Getenv("INTEGRATION_PG_IMAGE")
	if image == "" {
		image = defaultPostgresImage
	}
	name := "tracker-it-" + uuid.NewString()[:8]

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=tracker",
		"-e", "POSTGRES_PASSWORD=tracker",
		"-e", "POSTGRES_DB=tracker",
		image,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run %s: %w: %s", image, err, out)
	}
	cleanup := func() {
		_ = exec.Command("docker", "rm", "-f", name).Run()
	}

	hostPort, err := publishedPort(ctx, name)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	connStr := fmt.Sprintf("postgres://tracker:tracker@%s/tracker?sslmode=disable", hostPort)
	if err := waitForPostgres(ctx, connStr, 30*time.Second); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

// publishedPort returns the host:port Docker bound to the container's 5432.
func publishedPort(ctx context.Context, name string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", name, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port %s: %w", name, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return "", fmt.Errorf("docker port %s: no binding for 5432", name)
	}
	return line, nil
}

func waitForPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return err
	}
	cfg.MaxConns = 1

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if pool, err := pgxpool.NewWithConfig(ctx, cfg); err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v", timeout)
		case <-ticker.C:
		}
	}
}
