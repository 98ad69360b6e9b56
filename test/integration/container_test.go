//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/retinacare/retina/internal/platform/db"
)

// pgContainer describes a disposable PostgreSQL instance run through the
// docker CLI.
type pgContainer struct {
	Image    string
	Database string
	User     string
	Password string
	Ready    time.Duration
}

// defaultContainer honours RETINA_TEST_PG_IMAGE so CI can pin a mirror.
func defaultContainer() pgContainer {
	image := os.Getenv("RETINA_TEST_PG_IMAGE")
	if image == "" {
		image = "postgres:16-alpine"
	}
	return pgContainer{
		Image:    image,
		Database: "retinatest",
		User:     "retina",
		Password: "retina",
		Ready:    30 * time.Second,
	}
}

func (c pgContainer) url(port int) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("localhost:%d", port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// start runs the container on a free host port and blocks until the
// database answers a ping. stop removes the container.
func (c pgContainer) start(ctx context.Context) (connStr string, stop func(), err error) {
	port, err := freePort()
	if err != nil {
		return "", nil, fmt.Errorf("reserve port: %w", err)
	}
	name := fmt.Sprintf("retina-integration-%d", port)

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--name", name,
		"-p", fmt.Sprintf("%d:5432", port),
		"-e", "POSTGRES_DB="+c.Database,
		"-e", "POSTGRES_USER="+c.User,
		"-e", "POSTGRES_PASSWORD="+c.Password,
		c.Image,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run %s: %w: %s", c.Image, err, strings.TrimSpace(string(out)))
	}
	stop = func() { _ = exec.Command("docker", "rm", "-f", name).Run() }

	connStr = c.url(port)
	if err := c.awaitReady(ctx, connStr); err != nil {
		stop()
		return "", nil, err
	}
	return connStr, stop, nil
}

func (c pgContainer) awaitReady(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Ready)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		pool, err := db.NewPool(ctx, connStr, db.PoolOptions{MaxConns: 1})
		if err == nil {
			pool.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", c.Ready, lastErr)
		case <-tick.C:
		}
	}
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
