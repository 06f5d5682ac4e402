package verify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/minecraft"
)

type ServerState interface {
	Running(ctx context.Context) (bool, error)
}

type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

type Collector interface {
	CollectText(ctx context.Context, who interact.Requester, p interact.Prompt, timeout time.Duration, fallback string) (string, error)
}

type Gate interface {
	Confirm(ctx context.Context, who interact.Requester, p interact.Prompt, timeout time.Duration) (interact.Decision, error)
}

type LinkStore interface {
	Lookup(ctx context.Context, discordID uint64) (Link, error)
	Save(ctx context.Context, l Link) error
}

// Outcome is the final message of a verification attempt.
type Outcome struct {
	Success bool
	Title   string
	Message string
	Err     error
}

// Service links Discord users to Minecraft accounts by sending a one-time
// code to the player in game.
type Service struct {
	links     LinkStore
	server    ServerState
	console   Commander
	collector Collector
	gate      Gate
	timeout   time.Duration
	newCode   func() (string, error)
	now       func() time.Time
}

func NewService(links LinkStore, server ServerState, console Commander, collector Collector, gate Gate, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		links:     links,
		server:    server,
		console:   console,
		collector: collector,
		gate:      gate,
		timeout:   timeout,
		newCode:   randomCode,
		now:       time.Now,
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func failed(msg string, err error) Outcome {
	return Outcome{Title: "❌ Verification Failed", Message: msg, Err: err}
}

func (s *Service) Verify(ctx context.Context, who interact.Requester) Outcome {
	logger := log.With().Uint64("user", who.UserID).Logger()

	running, err := s.server.Running(ctx)
	if err != nil {
		return failed("Could not determine whether the server is running.", err)
	}
	if !running {
		return failed("The server must be running to verify your account.", nil)
	}

	existing, err := s.links.Lookup(ctx, who.UserID)
	switch {
	case err == nil:
		decision, err := s.gate.Confirm(ctx, who, interact.Prompt{
			Title: "⚠️ Already Verified!",
			Body: fmt.Sprintf("You are already verified as %s.\nReact with %s to restart verification or %s to abort.",
				existing.MinecraftName, interact.EmojiConfirm, interact.EmojiDecline),
		}, s.timeout)
		if err != nil {
			return failed("Could not ask for confirmation.", err)
		}
		switch decision {
		case interact.TimedOut:
			return failed("Verification process timed out.", nil)
		case interact.Declined:
			return failed("Verification process aborted.", nil)
		}
	case !errors.Is(err, ErrNotLinked):
		return failed("Could not read verification records.", err)
	}

	name, err := s.collector.CollectText(ctx, who, interact.Prompt{
		Title: "🚀 Verification",
		Body:  "Please join the Minecraft server and send your Minecraft username here.",
	}, s.timeout, "")
	if err != nil {
		return failed("Could not collect your username.", err)
	}
	if name == "" {
		return failed("Verification process timed out.", nil)
	}
	if !minecraft.ValidName(name) {
		return failed(fmt.Sprintf("%q is not a valid Minecraft username.", name), nil)
	}

	resp, err := s.console.Execute(ctx, minecraft.ListCommand)
	if err != nil {
		logger.Warn().Err(err).Msg("list command failed during verification")
		return failed(`An error occurred while executing the "list" command in the Minecraft server.`, err)
	}
	players, err := minecraft.ParsePlayerList(resp)
	if err != nil || !players.Has(name) {
		return failed("Your Minecraft username was not found online on the server. Please try again.", err)
	}

	code, err := s.newCode()
	if err != nil {
		return failed("Could not generate a verification code.", err)
	}
	if _, err := s.console.Execute(ctx, minecraft.TellCommand(name, "Discord verification code: "+code)); err != nil {
		logger.Warn().Err(err).Msg("tell command failed during verification")
		return failed("An error occurred while sending the verification code to the Minecraft server.", err)
	}

	answer, err := s.collector.CollectText(ctx, who, interact.Prompt{
		Title: "✅ Code Sent",
		Body:  "A verification code has been sent to you in Minecraft. Please enter it here to complete the verification process.",
	}, s.timeout, "")
	if err != nil {
		return failed("Could not collect the verification code.", err)
	}
	if answer == "" {
		return failed("Verification process timed out.", nil)
	}
	if strings.TrimSpace(answer) != code {
		return failed("Incorrect verification code. Please try again.", nil)
	}

	err = s.links.Save(ctx, Link{DiscordID: who.UserID, MinecraftName: name, VerifiedAt: s.now()})
	if errors.Is(err, ErrNameTaken) {
		return failed("That Minecraft account is already linked to another Discord user.", err)
	}
	if err != nil {
		return failed("Could not store the verification.", err)
	}
	logger.Info().Str("minecraft_name", name).Msg("account verified")
	return Outcome{
		Success: true,
		Title:   "✅ Success!",
		Message: "Verification successful! Your Minecraft account has been linked.",
	}
}
