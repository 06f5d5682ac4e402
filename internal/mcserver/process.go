package mcserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/minecraft"
)

const pollInterval = 2 * time.Second

// ProcessController runs the server as a child java process.
type ProcessController struct {
	opts    Options
	probe   *Probe
	console Commander

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func NewProcessController(opts Options, probe *Probe, console Commander) *ProcessController {
	return &ProcessController{opts: opts, probe: probe, console: console}
}

func (c *ProcessController) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Running is true while the child lives or anything answers on the game port.
func (c *ProcessController) Running(ctx context.Context) (bool, error) {
	if c.alive() {
		return true, nil
	}
	return c.probe.Reachable(ctx), nil
}

func (c *ProcessController) Start(ctx context.Context) error {
	running, err := c.Running(ctx)
	if err != nil {
		return err
	}
	if running {
		return ErrAlreadyRunning
	}

	jar := c.opts.Jar
	if !filepath.IsAbs(jar) {
		jar = filepath.Join(c.opts.Dir, jar)
	}
	if _, err := os.Stat(jar); err != nil {
		return fmt.Errorf("server jar: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(c.opts.Dir, "reedcraft-console.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open console log: %w", err)
	}

	cmd := exec.Command("java", "-Xmx"+c.opts.MaxRAM, "-Xms"+c.opts.MinRAM, "-jar", jar, "nogui")
	cmd.Dir = c.opts.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("start java: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.done = done
	c.mu.Unlock()

	go func() {
		err := cmd.Wait()
		logFile.Close()
		close(done)
		log.Info().Err(err).Int("pid", cmd.Process.Pid).Msg("minecraft server process exited")
	}()
	log.Info().Int("pid", cmd.Process.Pid).Str("jar", jar).Msg("minecraft server process started")

	if err := waitFor(ctx, c.opts.StartTimeout, pollInterval, true, c.probe.Reachable); err != nil {
		return err
	}
	return nil
}

// Stop asks the server to save and exit through the console.
func (c *ProcessController) Stop(ctx context.Context) error {
	running, err := c.Running(ctx)
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	if _, err := c.console.Execute(ctx, minecraft.StopCommand); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		select {
		case <-done:
			return nil
		case <-time.After(c.opts.StopTimeout):
			return fmt.Errorf("server process still alive after %s", c.opts.StopTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return waitFor(ctx, c.opts.StopTimeout, pollInterval, false, c.probe.Reachable)
}
