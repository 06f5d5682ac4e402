package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotLinked = errors.New("discord account is not linked")
	ErrNameTaken = errors.New("minecraft name is linked to another account")
)

// Link ties a Discord user to a Minecraft username.
type Link struct {
	DiscordID     uint64
	MinecraftName string
	VerifiedAt    time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Lookup(ctx context.Context, discordID uint64) (Link, error) {
	var l Link
	err := s.db.QueryRowContext(ctx,
		`SELECT discord_id, minecraft_name, verified_at FROM verification WHERE discord_id = ?`, int64(discordID),
	).Scan(&l.DiscordID, &l.MinecraftName, &l.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotLinked
	}
	if err != nil {
		return Link{}, fmt.Errorf("lookup link: %w", err)
	}
	return l, nil
}

// Save creates or replaces the link for l.DiscordID. A name already linked to
// another account yields ErrNameTaken.
func (s *Store) Save(ctx context.Context, l Link) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification (discord_id, minecraft_name, verified_at) VALUES (?, ?, ?)
		ON CONFLICT(discord_id) DO UPDATE SET minecraft_name = excluded.minecraft_name, verified_at = excluded.verified_at`,
		int64(l.DiscordID), l.MinecraftName, l.VerifiedAt.UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrNameTaken
		}
		return fmt.Errorf("save link: %w", err)
	}
	return nil
}
