package mcserver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
	ErrStartTimeout   = errors.New("server did not come up in time")
)

// Controller starts, stops and inspects the game server.
type Controller interface {
	Running(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Commander sends console commands to the running server.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

type Mode string

const (
	ModeProcess Mode = "process"
	ModeDocker  Mode = "docker"
)

type Options struct {
	Mode         Mode
	Dir          string
	Jar          string
	MinRAM       string
	MaxRAM       string
	Container    string
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// New builds the controller for opts.Mode.
func New(opts Options, probe *Probe, console Commander) (Controller, error) {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 3 * time.Minute
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = time.Minute
	}
	switch opts.Mode {
	case ModeProcess, "":
		return NewProcessController(opts, probe, console), nil
	case ModeDocker:
		return NewDockerController(opts, probe)
	}
	return nil, fmt.Errorf("unknown server mode %q", opts.Mode)
}

// waitFor polls check every interval until it reports want or timeout passes.
func waitFor(ctx context.Context, timeout, interval time.Duration, want bool, check func(context.Context) bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if check(ctx) == want {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStartTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
