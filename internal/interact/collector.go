package interact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const cleanupTimeout = 5 * time.Second

// Collector gathers free-text answers from a requester.
type Collector struct {
	transport Transport
	events    *Dispatcher
}

func NewCollector(t Transport, d *Dispatcher) *Collector {
	return &Collector{transport: t, events: d}
}

// CollectText posts p and returns the requester's next message in the same
// channel, or fallback when none arrives within timeout.
func (c *Collector) CollectText(ctx context.Context, who Requester, p Prompt, timeout time.Duration, fallback string) (string, error) {
	l := Listen(c.events, func(m Message) bool {
		return m.AuthorID == who.UserID && m.ChannelID == who.ChannelID
	})
	defer l.Close()

	ref, err := c.transport.Post(ctx, who.ChannelID, p)
	if err != nil {
		return "", fmt.Errorf("post prompt: %w", err)
	}
	defer removeQuietly(c.transport, ref)

	out, err := l.Wait(ctx, timeout)
	if err != nil {
		return "", err
	}
	if out.TimedOut {
		log.Debug().Uint64("user", who.UserID).Str("prompt", p.Title).Msg("prompt timed out, using fallback")
		return fallback, nil
	}
	removeQuietly(c.transport, MessageRef{ChannelID: out.Value.ChannelID, MessageID: out.Value.ID})
	return strings.TrimSpace(out.Value.Content), nil
}

func removeQuietly(t Transport, ref MessageRef) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := t.Remove(ctx, ref); err != nil {
		log.Debug().Err(err).Uint64("message", ref.MessageID).Msg("could not remove message")
	}
}
