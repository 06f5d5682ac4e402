package discord

import (
	"context"
	"fmt"

	"github.com/andersfylling/disgord"
	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/config"
	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/mcserver"
	"github.com/reedfamily/reedcraft/internal/snapshot"
	"github.com/reedfamily/reedcraft/internal/verify"
)

type SnapshotHandler interface {
	Handle(ctx context.Context, inv snapshot.Invocation) snapshot.Result
}

type Verifier interface {
	Verify(ctx context.Context, who interact.Requester) verify.Outcome
}

type CommandRecorder interface {
	CommandHandled(command, outcome string)
}

type Deps struct {
	Snapshots SnapshotHandler
	Verifier  Verifier
	Server    mcserver.Controller
	Probe     *mcserver.Probe
	Console   mcserver.Commander
	Links     verify.LinkStore
	Events    *interact.Dispatcher
	Metrics   CommandRecorder
	ServerDir string
}

// messenger is the part of Transport the command handlers use.
type messenger interface {
	SendEmbed(ctx context.Context, channelID uint64, e *disgord.Embed) (uint64, error)
	Remove(ctx context.Context, ref interact.MessageRef) error
	Upload(ctx context.Context, who interact.Requester, a snapshot.Attachment) error
}

// Bot listens for prefixed commands and feeds replies and reactions to
// pending prompts.
type Bot struct {
	client    *disgord.Client
	transport messenger
	cfg       config.DiscordConfig
	deps      Deps
	auth      *authorizer
	commands  map[string]*command
	ctx       context.Context
}

func NewBot(client *disgord.Client, transport *Transport, cfg config.DiscordConfig, deps Deps) *Bot {
	b := &Bot{
		client:    client,
		transport: transport,
		cfg:       cfg,
		deps:      deps,
		auth: &authorizer{
			ownerID:      cfg.OwnerID,
			operatorRole: cfg.OperatorRole,
			links:        deps.Links,
			serverDir:    deps.ServerDir,
		},
		commands: map[string]*command{},
		ctx:      context.Background(),
	}
	for _, c := range b.commandTable() {
		b.commands[c.name] = c
	}
	return b
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.client.On(disgord.EvtMessageCreate, b.onMessage)
	b.client.On(disgord.EvtMessageReactionAdd, b.onReaction)

	if err := b.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to discord: %w", err)
	}
	log.Info().Str("prefix", b.cfg.Prefix).Msg("discord bot connected")

	<-ctx.Done()
	log.Info().Msg("disconnecting from discord")
	return b.client.Disconnect()
}

func (b *Bot) onMessage(_ disgord.Session, evt *disgord.MessageCreate) {
	msg := evt.Message
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	consumed := b.deps.Events.Deliver(interact.Message{
		ID:        uint64(msg.ID),
		ChannelID: uint64(msg.ChannelID),
		AuthorID:  uint64(msg.Author.ID),
		Content:   msg.Content,
	})
	if consumed {
		return
	}

	name, args, raw, ok := parseCommand(msg.Content, b.cfg.Prefix)
	if !ok {
		return
	}
	var roles []uint64
	if msg.Member != nil {
		for _, r := range msg.Member.Roles {
			roles = append(roles, uint64(r))
		}
	}
	who := interact.Requester{
		UserID:    uint64(msg.Author.ID),
		ChannelID: uint64(msg.ChannelID),
		Username:  msg.Author.Username,
	}
	go b.dispatch(name, who, roles, args, raw)
}

func (b *Bot) onReaction(_ disgord.Session, evt *disgord.MessageReactionAdd) {
	if evt.PartialEmoji == nil {
		return
	}
	b.deps.Events.Deliver(interact.Reaction{
		ChannelID: uint64(evt.ChannelID),
		MessageID: uint64(evt.MessageID),
		UserID:    uint64(evt.UserID),
		Emoji:     evt.PartialEmoji.Name,
	})
}

// dispatch runs one command in its own goroutine. Panics are reported to the
// channel and never take the bot down.
func (b *Bot) dispatch(name string, who interact.Requester, roles []uint64, args []string, raw string) {
	ctx := b.ctx
	logger := log.With().Str("command", name).Uint64("user", who.UserID).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("command panicked")
			b.record(name, "error")
			b.send(ctx, who.ChannelID, errorEmbed("💥 Internal Error", "Something went wrong while running that command."))
		}
	}()

	cmd, ok := b.commands[name]
	if !ok {
		b.record("unknown", "error")
		b.send(ctx, who.ChannelID, errorEmbed("❓ Unknown Command", fmt.Sprintf("Try `%sinfo` for a list of commands.", b.cfg.Prefix)))
		return
	}

	lvl := b.auth.level(ctx, who.UserID, roles)
	if lvl < cmd.level {
		logger.Info().Stringer("level", lvl).Msg("permission denied")
		b.record(name, "denied")
		b.send(ctx, who.ChannelID, deniedEmbed())
		return
	}

	logger.Debug().Strs("args", args).Msg("running command")
	if err := cmd.run(ctx, request{who: who, level: lvl, args: args, raw: raw}); err != nil {
		logger.Error().Err(err).Msg("command failed")
		b.record(name, "error")
		b.send(ctx, who.ChannelID, errorEmbed("❌ Error", err.Error()))
		return
	}
	b.record(name, "ok")
}

func (b *Bot) record(name, outcome string) {
	if b.deps.Metrics != nil {
		b.deps.Metrics.CommandHandled(name, outcome)
	}
}

func (b *Bot) send(ctx context.Context, channelID uint64, e *disgord.Embed) {
	if _, err := b.transport.SendEmbed(ctx, channelID, e); err != nil {
		log.Warn().Err(err).Uint64("channel", channelID).Msg("failed to send message")
	}
}
