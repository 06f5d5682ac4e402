package snapshot

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/interact"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingName
	StateAwaitingDescription
	StateAwaitingConfirmation
	StateInProgress
	StateSucceeded
	StateFailed
	StateAborted
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateAwaitingName:         "awaiting_name",
	StateAwaitingDescription:  "awaiting_description",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateInProgress:           "in_progress",
	StateSucceeded:            "succeeded",
	StateFailed:               "failed",
	StateAborted:              "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// run tracks one invocation through the state machine. States only move
// forward and a terminal state is final.
type run struct {
	action  Action
	who     interact.Requester
	state   State
	trail   []State
	started time.Time
	name    string
	logger  zerolog.Logger
}

func newRun(action Action, who interact.Requester) *run {
	return &run{
		action:  action,
		who:     who,
		state:   StateIdle,
		trail:   []State{StateIdle},
		started: time.Now(),
		logger: log.With().
			Str("action", string(action)).
			Uint64("user", who.UserID).
			Logger(),
	}
}

func (r *run) advance(next State) {
	if r.state.Terminal() || next <= r.state {
		r.logger.Debug().Stringer("from", r.state).Stringer("to", next).Msg("ignored backwards transition")
		return
	}
	r.logger.Debug().Stringer("from", r.state).Stringer("to", next).Msg("transition")
	r.state = next
	r.trail = append(r.trail, next)
}

func (r *run) withSnapshot(name string) {
	if r.name == name {
		return
	}
	r.name = name
	r.logger = r.logger.With().Str("snapshot", name).Logger()
}
