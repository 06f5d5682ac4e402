package discord

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/minecraft"
	"github.com/reedfamily/reedcraft/internal/verify"
)

type level int

const (
	levelEveryone level = iota
	levelOperator
	levelOwner
)

func (l level) String() string {
	switch l {
	case levelOwner:
		return "owner"
	case levelOperator:
		return "operator"
	}
	return "everyone"
}

// authorizer decides what a Discord user may do. Operators are members of
// the operator role or users linked to a Minecraft account listed in ops.json.
type authorizer struct {
	ownerID      uint64
	operatorRole uint64
	links        verify.LinkStore
	serverDir    string
}

func (a *authorizer) level(ctx context.Context, userID uint64, roles []uint64) level {
	if userID == a.ownerID {
		return levelOwner
	}
	if a.operatorRole != 0 {
		for _, r := range roles {
			if r == a.operatorRole {
				return levelOperator
			}
		}
	}
	if a.links == nil {
		return levelEveryone
	}
	link, err := a.links.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, verify.ErrNotLinked) {
			log.Warn().Err(err).Uint64("user", userID).Msg("link lookup failed")
		}
		return levelEveryone
	}
	op, err := minecraft.IsOperator(a.serverDir, link.MinecraftName)
	if err != nil {
		log.Warn().Err(err).Msg("could not read ops.json")
		return levelEveryone
	}
	if op {
		return levelOperator
	}
	return levelEveryone
}
