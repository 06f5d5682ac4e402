package rcon

import (
	"context"
	"fmt"
	"time"

	"github.com/gorcon/rcon"
	"github.com/rs/zerolog/log"
)

// Client runs commands over a fresh RCON connection per call.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
}

func New(addr, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: addr, password: password, timeout: timeout}
}

func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	conn, err := rcon.Dial(c.addr, c.password, rcon.SetDialTimeout(c.timeout), rcon.SetDeadline(c.timeout))
	if err != nil {
		return "", fmt.Errorf("rcon dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	type reply struct {
		out string
		err error
	}
	done := make(chan reply, 1)
	go func() {
		out, err := conn.Execute(command)
		done <- reply{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("rcon execute: %w", r.err)
		}
		log.Debug().Str("command", command).Int("bytes", len(r.out)).Msg("rcon command executed")
		return r.out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
