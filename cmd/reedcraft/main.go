package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/reedfamily/reedcraft/internal/auth"
	"github.com/reedfamily/reedcraft/internal/config"
	"github.com/reedfamily/reedcraft/internal/server"
)

func setupLogging(cfg config.LogConfig) {
	var w io.Writer = zerolog.NewConsoleWriter()
	if cfg.Format == "json" {
		w = os.Stdout
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer srv.Close()

	log.Info().
		Str("server_dir", cfg.Server.Dir).
		Str("snapshot_dir", cfg.Snapshots.Dir).
		Str("mode", cfg.Server.Mode).
		Msg("reedcraft starting")
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("reedcraft stopped")
	return nil
}

// hashToken prints a fresh API token and the bcrypt hash to put in the config.
func hashToken(_ context.Context, cmd *cli.Command) error {
	token := cmd.String("token")
	if token == "" {
		t, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		token = t
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Printf("token:      %s\ntoken_hash: %s\n", token, hash)
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "reedcraft.yaml",
		Sources: cli.EnvVars("REEDCRAFT_CONFIG"),
	}

	cmd := &cli.Command{
		Name:   "reedcraft",
		Usage:  "Discord bot that runs a Minecraft server and manages world snapshots",
		Flags:  []cli.Flag{configFlag},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and serve the admin API",
				Flags:  []cli.Flag{configFlag},
				Action: run,
			},
			{
				Name:  "hash-token",
				Usage: "Generate an API bearer token and its bcrypt hash",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "Hash this token instead of generating one"},
				},
				Action: hashToken,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("reedcraft failed")
		os.Exit(1)
	}
}
