package discord

import (
	"context"
	"fmt"

	"github.com/andersfylling/disgord"

	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/snapshot"
)

// maxUploadBytes is the attachment limit for bots on servers without boosts.
const maxUploadBytes = 25 << 20

// Transport posts prompts and files through the Discord REST API.
type Transport struct {
	client *disgord.Client
}

func NewClient(token string) *disgord.Client {
	return disgord.New(disgord.Config{BotToken: token})
}

func NewTransport(client *disgord.Client) *Transport {
	return &Transport{client: client}
}

var _ interact.Transport = (*Transport)(nil)

func (t *Transport) Post(ctx context.Context, channelID uint64, p interact.Prompt) (interact.MessageRef, error) {
	msg, err := t.client.CreateMessage(ctx, disgord.Snowflake(channelID), &disgord.CreateMessageParams{
		Embed: promptEmbed(p),
	})
	if err != nil {
		return interact.MessageRef{}, err
	}
	return interact.MessageRef{ChannelID: channelID, MessageID: uint64(msg.ID)}, nil
}

func (t *Transport) Remove(ctx context.Context, ref interact.MessageRef) error {
	return t.client.DeleteMessage(ctx, disgord.Snowflake(ref.ChannelID), disgord.Snowflake(ref.MessageID))
}

func (t *Transport) AddReaction(ctx context.Context, ref interact.MessageRef, emoji string) error {
	return t.client.CreateReaction(ctx, disgord.Snowflake(ref.ChannelID), disgord.Snowflake(ref.MessageID), emoji)
}

func (t *Transport) ClearReactions(ctx context.Context, ref interact.MessageRef) error {
	return t.client.DeleteAllReactions(ctx, disgord.Snowflake(ref.ChannelID), disgord.Snowflake(ref.MessageID))
}

func (t *Transport) SendEmbed(ctx context.Context, channelID uint64, e *disgord.Embed) (uint64, error) {
	msg, err := t.client.CreateMessage(ctx, disgord.Snowflake(channelID), &disgord.CreateMessageParams{Embed: e})
	if err != nil {
		return 0, err
	}
	return uint64(msg.ID), nil
}

// Upload attaches a snapshot archive to a message in the requester's channel.
func (t *Transport) Upload(ctx context.Context, who interact.Requester, a snapshot.Attachment) error {
	if a.Size > maxUploadBytes {
		return fmt.Errorf("archive is %s, over the %s upload limit",
			snapshot.FormatSize(a.Size), snapshot.FormatSize(maxUploadBytes))
	}
	_, err := t.client.CreateMessage(ctx, disgord.Snowflake(who.ChannelID), &disgord.CreateMessageParams{
		Content: fmt.Sprintf("📦 %s (%s)", a.Name, snapshot.FormatSize(a.Size)),
		Files: []disgord.CreateMessageFileParams{
			{Reader: a.Body, FileName: a.Filename},
		},
	})
	return err
}
