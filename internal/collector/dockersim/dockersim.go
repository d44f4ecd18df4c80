// Package dockersim launches a containerized trace simulator and exposes its
// emitted byte stream to the wire parser over a dialed TCP connection:
// create, start, resolve the mapped port, dial, and remove on teardown.
package dockersim

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/matgreaves/run"

	"github.com/auxoncorp/rtrace/internal/collector/dockerutil"
)

// Config describes the simulator image to run.
type Config struct {
	// Image is the Docker image reference for the trace simulator.
	Image string
	// ContainerPort is the TCP port inside the container the simulator
	// streams its trace on.
	ContainerPort int
	// Name, if set, is used as the container's name; otherwise Docker
	// assigns one.
	Name string
}

// Collector runs a simulator container for the lifetime of its Runner and
// exposes the resulting trace stream via Conn once the container is up.
type Collector struct {
	cfg    Config
	connCh chan net.Conn
	errCh  chan error
}

// New builds a Collector for cfg. Call Runner to start the container, then
// Conn to obtain the dialed trace stream once the container is reachable.
func New(cfg Config) *Collector {
	return &Collector{
		cfg:    cfg,
		connCh: make(chan net.Conn, 1),
		errCh:  make(chan error, 1),
	}
}

// Conn blocks until the simulator container's trace socket is dialed (or ctx
// is cancelled, or the container fails to start), returning the live
// connection as an io.ReadCloser for the wire parser.
func (c *Collector) Conn(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-c.connCh:
		return conn, nil
	case err := <-c.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Runner returns a run.Runner that creates, starts, and manages the
// simulator container, removing it on teardown.
func (c *Collector) Runner() run.Runner {
	return run.Func(func(ctx context.Context) error {
		cli, err := dockerutil.Client()
		if err != nil {
			return fmt.Errorf("dockersim: docker client: %w", err)
		}
		if _, err := cli.Ping(ctx); err != nil {
			return fmt.Errorf("dockersim: cannot connect to Docker daemon: %w", err)
		}

		containerPort := nat.Port(fmt.Sprintf("%d/tcp", c.cfg.ContainerPort))
		hostConfig := &container.HostConfig{
			PortBindings: nat.PortMap{
				containerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "0"}},
			},
		}
		cfg := &container.Config{
			Image:        c.cfg.Image,
			ExposedPorts: nat.PortSet{containerPort: struct{}{}},
		}

		resp, err := cli.ContainerCreate(ctx, cfg, hostConfig, nil, nil, c.cfg.Name)
		if err != nil {
			c.errCh <- err
			return fmt.Errorf("dockersim: create container: %w", err)
		}
		containerID := resp.ID

		defer func() {
			cleanCtx := context.Background()
			timeout := 5
			cli.ContainerStop(cleanCtx, containerID, container.StopOptions{Timeout: &timeout})
			cli.ContainerRemove(cleanCtx, containerID, container.RemoveOptions{Force: true})
		}()

		if err := cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			c.errCh <- err
			return fmt.Errorf("dockersim: start container: %w", err)
		}

		logReader, err := cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
		if err == nil {
			go func() {
				stdcopy.StdCopy(io.Discard, io.Discard, logReader)
				logReader.Close()
			}()
		}

		hostPort, err := dialablePort(ctx, cli, containerID, containerPort)
		if err != nil {
			c.errCh <- err
			return fmt.Errorf("dockersim: resolving mapped port: %w", err)
		}

		conn, err := dialWithRetry(ctx, hostPort)
		if err != nil {
			c.errCh <- err
			return fmt.Errorf("dockersim: dialing simulator: %w", err)
		}
		c.connCh <- conn

		waitCh, waitErrCh := cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
		select {
		case result := <-waitCh:
			if result.StatusCode != 0 {
				return fmt.Errorf("dockersim: simulator exited with code %d", result.StatusCode)
			}
			return nil
		case err := <-waitErrCh:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dockersim: container wait: %w", err)
		case <-ctx.Done():
			return nil
		}
	})
}

func dialablePort(ctx context.Context, cli *client.Client, containerID string, containerPort nat.Port) (string, error) {
	inspect, err := cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	bindings, ok := inspect.NetworkSettings.Ports[containerPort]
	if !ok || len(bindings) == 0 {
		return "", fmt.Errorf("no host binding for container port %s", containerPort)
	}
	return net.JoinHostPort("127.0.0.1", bindings[0].HostPort), nil
}

func dialWithRetry(ctx context.Context, hostPort string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < 50; i++ {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("dockersim: could not dial %s: %w", hostPort, lastErr)
}
