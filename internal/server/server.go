package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reedfamily/reedcraft/internal/api"
	"github.com/reedfamily/reedcraft/internal/auth"
	"github.com/reedfamily/reedcraft/internal/config"
	"github.com/reedfamily/reedcraft/internal/db"
	"github.com/reedfamily/reedcraft/internal/discord"
	"github.com/reedfamily/reedcraft/internal/events"
	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/mcserver"
	"github.com/reedfamily/reedcraft/internal/metrics"
	"github.com/reedfamily/reedcraft/internal/rcon"
	"github.com/reedfamily/reedcraft/internal/snapshot"
	"github.com/reedfamily/reedcraft/internal/verify"
)

const (
	probeTimeout    = 3 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server owns every long-lived component of the bot.
type Server struct {
	cfg       *config.Config
	db        *sql.DB
	bot       *discord.Bot
	broker    *events.Broker
	snapshots *snapshot.Service
	http      *http.Server
}

func New(cfg *config.Config) (*Server, error) {
	conn, err := db.Open(cfg.Snapshots.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s, err := build(cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func build(cfg *config.Config, conn *sql.DB) (*Server, error) {
	console := rcon.New(cfg.RCON.Address, cfg.RCON.Password, cfg.RCON.Timeout)

	probe, err := mcserver.NewProbe(cfg.Server.Host, cfg.Server.Port, probeTimeout)
	if err != nil {
		return nil, fmt.Errorf("server probe: %w", err)
	}
	controller, err := mcserver.New(mcserver.Options{
		Mode:         mcserver.Mode(cfg.Server.Mode),
		Dir:          cfg.Server.Dir,
		Jar:          cfg.Server.Jar,
		MinRAM:       cfg.Server.MinRAM,
		MaxRAM:       cfg.Server.MaxRAM,
		Container:    cfg.Server.Container,
		StartTimeout: cfg.Server.StartTimeout,
		StopTimeout:  cfg.Server.StopTimeout,
	}, probe, console)
	if err != nil {
		return nil, fmt.Errorf("server controller: %w", err)
	}

	client := discord.NewClient(cfg.Discord.Token)
	transport := discord.NewTransport(client)
	dispatcher := interact.NewDispatcher()
	collector := interact.NewCollector(transport, dispatcher)
	gate := interact.NewGate(transport, dispatcher)

	archiver, err := snapshot.NewArchiver(cfg.Snapshots.StagingDir, cfg.Snapshots.Exclude)
	if err != nil {
		return nil, fmt.Errorf("archiver: %w", err)
	}

	m := metrics.New()
	broker := events.NewBroker(32)

	snapshots := snapshot.NewService(snapshot.Options{
		ServerDir:      cfg.Server.Dir,
		WorldDirs:      cfg.Snapshots.WorldDirs,
		SnapshotDir:    cfg.Snapshots.Dir,
		PromptTimeout:  cfg.Snapshots.PromptTimeout,
		ConfirmTimeout: cfg.Snapshots.ConfirmTimeout,
	}, snapshot.NewSQLiteStore(conn), archiver, controller, collector, gate,
		snapshot.WithRecorder(m),
		snapshot.WithPublisher(broker),
	)

	links := verify.NewStore(conn)
	verifier := verify.NewService(links, controller, console, collector, gate, cfg.Snapshots.PromptTimeout)

	bot := discord.NewBot(client, transport, cfg.Discord, discord.Deps{
		Snapshots: snapshots,
		Verifier:  verifier,
		Server:    controller,
		Probe:     probe,
		Console:   console,
		Links:     links,
		Events:    dispatcher,
		Metrics:   m,
		ServerDir: cfg.Server.Dir,
	})

	s := &Server{cfg: cfg, db: conn, bot: bot, broker: broker, snapshots: snapshots}
	if cfg.API.Enabled {
		router := api.NewRouter(api.Deps{
			Snapshots:      snapshots,
			Server:         controller,
			Probe:          probe,
			Console:        console,
			Events:         broker,
			Metrics:        m.Handler(),
			Tokens:         auth.NewTokenVerifier(cfg.API.TokenHash),
			AllowedOrigins: cfg.API.AllowedOrigins,
		})
		s.http = &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return s, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.bot.Run(gCtx)
	})

	g.Go(func() error {
		if err := events.WatchArchives(gCtx, s.cfg.Snapshots.Dir, s.broker); err != nil {
			// the bot keeps working without out-of-band notifications
			log.Warn().Err(err).Msg("snapshot directory watcher stopped")
		}
		return nil
	})

	if s.http != nil {
		g.Go(func() error {
			log.Info().Str("addr", s.http.Addr).Msg("http api listening")
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.http.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("http shutdown")
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) Close() error {
	return s.db.Close()
}
