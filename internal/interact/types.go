package interact

import (
	"context"
	"fmt"
)

// Requester identifies who invoked a command and where replies go.
type Requester struct {
	UserID    uint64
	ChannelID uint64
	Username  string
}

// Prompt is a titled message shown to a requester.
type Prompt struct {
	Title string
	Body  string
}

type Decision int

const (
	TimedOut Decision = iota
	Confirmed
	Declined
)

func (d Decision) String() string {
	switch d {
	case Confirmed:
		return "confirmed"
	case Declined:
		return "declined"
	case TimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// MessageRef points at a message posted through a Transport.
type MessageRef struct {
	ChannelID uint64
	MessageID uint64
}

// Message is an inbound chat message.
type Message struct {
	ID        uint64
	ChannelID uint64
	AuthorID  uint64
	Content   string
}

// Reaction is an inbound reaction added to a message.
type Reaction struct {
	ChannelID uint64
	MessageID uint64
	UserID    uint64
	Emoji     string
}

// Transport is the chat surface prompts are posted through.
type Transport interface {
	Post(ctx context.Context, channelID uint64, p Prompt) (MessageRef, error)
	Remove(ctx context.Context, ref MessageRef) error
	AddReaction(ctx context.Context, ref MessageRef, emoji string) error
	ClearReactions(ctx context.Context, ref MessageRef) error
}
