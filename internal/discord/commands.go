package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/mcserver"
	"github.com/reedfamily/reedcraft/internal/snapshot"
)

type request struct {
	who   interact.Requester
	level level
	args  []string
	// raw is the text after the command name, spacing preserved.
	raw string
}

type command struct {
	name  string
	usage string
	help  string
	level level
	run   func(ctx context.Context, req request) error
}

// parseCommand splits "$snapshots create Base | notes" into its command name,
// whitespace separated args and the raw argument text.
func parseCommand(content, prefix string) (name string, args []string, raw string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, "", false
	}
	body := strings.TrimSpace(content[len(prefix):])
	if body == "" {
		return "", nil, "", false
	}
	name, raw, _ = strings.Cut(body, " ")
	raw = strings.TrimSpace(raw)
	return strings.ToLower(name), strings.Fields(raw), raw, true
}

var snapshotLevels = map[snapshot.Action]level{
	snapshot.ActionList:     levelEveryone,
	snapshot.ActionDownload: levelEveryone,
	snapshot.ActionCreate:   levelOperator,
	snapshot.ActionDelete:   levelOwner,
	snapshot.ActionRestore:  levelOwner,
}

func (b *Bot) commandTable() []*command {
	return []*command{
		{name: "start", usage: "start", help: "Start the Minecraft server.", level: levelOperator, run: b.cmdStart},
		{name: "stop", usage: "stop", help: "Save the world and stop the server.", level: levelOperator, run: b.cmdStop},
		{name: "status", usage: "status", help: "Show whether the server is online.", run: b.cmdStatus},
		{name: "console", usage: "console <command>", help: "Run a server console command over RCON.", level: levelOperator, run: b.cmdConsole},
		{name: "snapshots", usage: "snapshots [list|create|delete|restore|download] ...", help: "Manage world snapshots. See `info snapshots`.", run: b.cmdSnapshots},
		{name: "verify", usage: "verify", help: "Link your Discord account to your Minecraft account.", run: b.cmdVerify},
		{name: "ping", usage: "ping", help: "Check the bot's response time.", run: b.cmdPing},
		{name: "info", usage: "info [snapshots]", help: "Show this help.", run: b.cmdInfo},
	}
}

func (b *Bot) cmdStart(ctx context.Context, req request) error {
	b.send(ctx, req.who.ChannelID, messageEmbed("🚀 Starting", "Starting the server, this can take a while.", colorBlue))
	err := b.deps.Server.Start(ctx)
	switch {
	case errors.Is(err, mcserver.ErrAlreadyRunning):
		b.send(ctx, req.who.ChannelID, messageEmbed("⚠️ Already Running", "The server is already running.", colorOrange))
	case errors.Is(err, mcserver.ErrStartTimeout):
		b.send(ctx, req.who.ChannelID, errorEmbed("❌ Start Timed Out", "The server process started but is not accepting connections yet."))
	case err != nil:
		return fmt.Errorf("start server: %w", err)
	default:
		b.send(ctx, req.who.ChannelID, messageEmbed("✅ Server Started", "The server is up. Have fun!", colorGreen))
	}
	return nil
}

func (b *Bot) cmdStop(ctx context.Context, req request) error {
	err := b.deps.Server.Stop(ctx)
	switch {
	case errors.Is(err, mcserver.ErrNotRunning):
		b.send(ctx, req.who.ChannelID, messageEmbed("⚠️ Not Running", "The server is not running.", colorOrange))
	case err != nil:
		return fmt.Errorf("stop server: %w", err)
	default:
		b.send(ctx, req.who.ChannelID, messageEmbed("🛑 Server Stopped", "The server has been stopped.", colorGreen))
	}
	return nil
}

func (b *Bot) cmdStatus(ctx context.Context, req request) error {
	running, err := b.deps.Server.Running(ctx)
	if err != nil {
		return fmt.Errorf("server state: %w", err)
	}
	if !running {
		b.send(ctx, req.who.ChannelID, messageEmbed("🔴 Server Offline", "The server is not running.", colorRed))
		return nil
	}
	body := "The server is running."
	if latency, err := b.deps.Probe.Ping(ctx); err == nil {
		body += fmt.Sprintf("\nLatency: %d ms", latency.Milliseconds())
	}
	b.send(ctx, req.who.ChannelID, messageEmbed("🟢 Server Online", body, colorGreen))
	return nil
}

func (b *Bot) cmdConsole(ctx context.Context, req request) error {
	if req.raw == "" {
		b.send(ctx, req.who.ChannelID, errorEmbed("❓ Missing Command", "Usage: `console <command>`"))
		return nil
	}
	out, err := b.deps.Console.Execute(ctx, req.raw)
	if err != nil {
		log.Warn().Err(err).Str("command", req.raw).Msg("console command failed")
		b.send(ctx, req.who.ChannelID, errorEmbed("❌ Console Error", "Could not reach the server console. Is the server running?"))
		return nil
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	b.send(ctx, req.who.ChannelID, messageEmbed("🖥️ Console", "```\n"+truncate(out, maxDescription-10)+"\n```", colorBlue))
	return nil
}

func (b *Bot) cmdSnapshots(ctx context.Context, req request) error {
	action := snapshot.ActionList
	args := req.args
	if len(args) > 0 {
		a, err := snapshot.ParseAction(args[0])
		if err != nil {
			b.send(ctx, req.who.ChannelID, errorEmbed("❓ Unknown Action", "Use list, create, delete, restore or download."))
			return nil
		}
		action, args = a, args[1:]
	}
	if req.level < snapshotLevels[action] {
		b.send(ctx, req.who.ChannelID, deniedEmbed())
		return nil
	}

	res := b.deps.Snapshots.Handle(ctx, snapshot.Invocation{
		Action:    action,
		Requester: req.who,
		Args:      args,
		Uploader:  b.transport,
	})
	if !res.Silent {
		b.send(ctx, req.who.ChannelID, resultEmbed(res))
	}
	return nil
}

func (b *Bot) cmdVerify(ctx context.Context, req request) error {
	out := b.deps.Verifier.Verify(ctx, req.who)
	if out.Success {
		b.send(ctx, req.who.ChannelID, messageEmbed(out.Title, out.Message, colorGreen))
	} else {
		b.send(ctx, req.who.ChannelID, errorEmbed(out.Title, out.Message))
	}
	return nil
}

func (b *Bot) cmdPing(ctx context.Context, req request) error {
	start := time.Now()
	id, err := b.transport.SendEmbed(ctx, req.who.ChannelID, messageEmbed("🏓 Pinging...", "", colorBlue))
	if err != nil {
		return err
	}
	rtt := time.Since(start)
	if err := b.transport.Remove(ctx, interact.MessageRef{ChannelID: req.who.ChannelID, MessageID: id}); err != nil {
		log.Debug().Err(err).Uint64("channel", req.who.ChannelID).Msg("failed to remove ping message")
	}
	b.send(ctx, req.who.ChannelID, messageEmbed("🏓 Pong!", fmt.Sprintf("Round trip: %d ms", rtt.Milliseconds()), colorGreen))
	return nil
}

func (b *Bot) cmdInfo(ctx context.Context, req request) error {
	if len(req.args) > 0 && strings.EqualFold(req.args[0], "snapshots") {
		b.send(ctx, req.who.ChannelID, messageEmbed("📸 Snapshot Commands", snapshotHelp(b.cfg.Prefix), colorBlue))
		return nil
	}
	b.send(ctx, req.who.ChannelID, messageEmbed("ℹ️ Commands", commandHelp(b.cfg.Prefix, b.commandTable()), colorBlue))
	return nil
}

func commandHelp(prefix string, cmds []*command) string {
	var sb strings.Builder
	for _, c := range cmds {
		fmt.Fprintf(&sb, "`%s%s` %s", prefix, c.usage, c.help)
		if c.level > levelEveryone {
			fmt.Fprintf(&sb, " (%s)", c.level)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func snapshotHelp(prefix string) string {
	lines := []string{
		fmt.Sprintf("`%ssnapshots list` List all snapshots.", prefix),
		fmt.Sprintf("`%ssnapshots create [name | description]` Snapshot the world. The server must be stopped. (operator)", prefix),
		fmt.Sprintf("`%ssnapshots delete <name>` Delete a snapshot. (owner)", prefix),
		fmt.Sprintf("`%ssnapshots restore <name>` Restore a snapshot, saving the current world first. (owner)", prefix),
		fmt.Sprintf("`%ssnapshots download <name>` Upload a snapshot archive here.", prefix),
	}
	return strings.Join(lines, "\n")
}
