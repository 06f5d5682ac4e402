package interact

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EmojiConfirm = "✅"
	EmojiDecline = "❌"
)

// Gate asks a requester to confirm an action with a reaction.
type Gate struct {
	transport Transport
	events    *Dispatcher
}

func NewGate(t Transport, d *Dispatcher) *Gate {
	return &Gate{transport: t, events: d}
}

func (g *Gate) Confirm(ctx context.Context, who Requester, p Prompt, timeout time.Duration) (Decision, error) {
	ref, err := g.transport.Post(ctx, who.ChannelID, p)
	if err != nil {
		return TimedOut, fmt.Errorf("post confirmation: %w", err)
	}

	l := Listen(g.events, func(r Reaction) bool {
		return r.UserID == who.UserID && r.MessageID == ref.MessageID &&
			(r.Emoji == EmojiConfirm || r.Emoji == EmojiDecline)
	})
	defer l.Close()

	for _, emoji := range []string{EmojiConfirm, EmojiDecline} {
		if err := g.transport.AddReaction(ctx, ref, emoji); err != nil {
			log.Warn().Err(err).Str("emoji", emoji).Msg("could not add reaction")
		}
	}

	out, err := l.Wait(ctx, timeout)
	g.clear(ref)
	if err != nil {
		return TimedOut, err
	}
	if out.TimedOut {
		return TimedOut, nil
	}
	if out.Value.Emoji == EmojiConfirm {
		return Confirmed, nil
	}
	return Declined, nil
}

func (g *Gate) clear(ref MessageRef) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := g.transport.ClearReactions(ctx, ref); err != nil {
		log.Debug().Err(err).Uint64("message", ref.MessageID).Msg("could not clear reactions")
	}
}
