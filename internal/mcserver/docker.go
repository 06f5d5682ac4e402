package mcserver

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
)

// DockerController drives a pre-created container holding the server.
type DockerController struct {
	cli   *client.Client
	name  string
	probe *Probe
	opts  Options
}

func NewDockerController(opts Options, probe *Probe) (*DockerController, error) {
	if opts.Container == "" {
		return nil, fmt.Errorf("docker mode needs a container name")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerController{cli: cli, name: opts.Container, probe: probe, opts: opts}, nil
}

func (c *DockerController) Close() error {
	return c.cli.Close()
}

func (c *DockerController) Running(ctx context.Context) (bool, error) {
	info, err := c.cli.ContainerInspect(ctx, c.name)
	if err != nil {
		return false, fmt.Errorf("inspect container %s: %w", c.name, err)
	}
	return info.State != nil && info.State.Running, nil
}

func (c *DockerController) Start(ctx context.Context) error {
	running, err := c.Running(ctx)
	if err != nil {
		return err
	}
	if running {
		return ErrAlreadyRunning
	}
	if err := c.cli.ContainerStart(ctx, c.name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	log.Info().Str("container", c.name).Msg("minecraft container started")
	return waitFor(ctx, c.opts.StartTimeout, pollInterval, true, c.probe.Reachable)
}

func (c *DockerController) Stop(ctx context.Context) error {
	running, err := c.Running(ctx)
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	timeout := int(c.opts.StopTimeout.Seconds())
	if err := c.cli.ContainerStop(ctx, c.name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	log.Info().Str("container", c.name).Msg("minecraft container stopped")
	return nil
}
