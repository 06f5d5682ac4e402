package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/minecraft"
)

type ServerState interface {
	Running(ctx context.Context) (bool, error)
}

type Pinger interface {
	Addr() string
	Ping(ctx context.Context) (time.Duration, error)
}

type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

type StatusHandler struct {
	server  ServerState
	probe   Pinger
	console Commander
}

func NewStatusHandler(server ServerState, probe Pinger, console Commander) *StatusHandler {
	return &StatusHandler{server: server, probe: probe, console: console}
}

type statusResponse struct {
	Running   bool     `json:"running"`
	Address   string   `json:"address"`
	LatencyMS int64    `json:"latency_ms,omitempty"`
	Online    int      `json:"online"`
	Max       int      `json:"max"`
	Players   []string `json:"players"`
}

// Status reports reachability and the online player list.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	running, err := h.server.Running(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query server state")
		return
	}
	out := statusResponse{Running: running, Players: []string{}}
	if h.probe != nil {
		out.Address = h.probe.Addr()
	}
	if !running {
		writeJSON(w, http.StatusOK, out)
		return
	}

	if h.probe != nil {
		if rtt, err := h.probe.Ping(ctx); err == nil {
			out.LatencyMS = rtt.Milliseconds()
		}
	}
	if h.console != nil {
		resp, err := h.console.Execute(ctx, minecraft.ListCommand)
		if err != nil {
			log.Debug().Err(err).Msg("status: list command failed")
		} else if pl, err := minecraft.ParsePlayerList(resp); err == nil {
			out.Online, out.Max = pl.Online, pl.Max
			if pl.Players != nil {
				out.Players = pl.Players
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}
