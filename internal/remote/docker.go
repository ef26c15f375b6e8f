package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrContainerNotRunning is returned when the target container is missing
// or stopped.
var ErrContainerNotRunning = errors.New("container not running")

// DockerSession runs commands in a container through docker exec.
type DockerSession struct {
	cli         *client.Client
	containerID string
	logger      *slog.Logger
}

// NewDockerSession connects to the Docker daemon from the environment and
// checks that the container is running.
func NewDockerSession(ctx context.Context, containerName string, logger *slog.Logger) (*DockerSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	s := &DockerSession{cli: cli, containerID: containerName, logger: logger}
	id, err := s.inspect(ctx)
	if err != nil {
		cli.Close()
		return nil, err
	}
	s.containerID = id
	logger.Info("Docker exec session ready", "container", containerName, "container_id", id)
	return s, nil
}

func (s *DockerSession) inspect(ctx context.Context) (string, error) {
	inspect, err := s.cli.ContainerInspect(ctx, s.containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s not found", ErrContainerNotRunning, s.containerID)
		}
		return "", fmt.Errorf("inspect container %s: %w", s.containerID, err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return "", fmt.Errorf("%w: %s", ErrContainerNotRunning, s.containerID)
	}
	return inspect.ID, nil
}

// execCommand wraps a catalog command for exec, which takes an argv.
func execCommand(command string) []string {
	return []string{"sh", "-c", command}
}

// Run implements Session.
func (s *DockerSession) Run(ctx context.Context, command string, stdout, stderr io.Writer) error {
	resp, err := s.cli.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          execCommand(command),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrContainerNotRunning, s.containerID)
		}
		return fmt.Errorf("create exec: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	// Without a TTY the stream is multiplexed.
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		return fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return fmt.Errorf("inspect exec: %w", err)
	}
	if inspect.ExitCode != 0 {
		s.logger.Debug("Remote command exited non-zero", "status", inspect.ExitCode)
	}
	return nil
}

// Ping implements Session.
func (s *DockerSession) Ping(ctx context.Context) error {
	if _, err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	_, err := s.inspect(ctx)
	return err
}

// Close implements Session.
func (s *DockerSession) Close() error {
	return s.cli.Close()
}
