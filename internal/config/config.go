package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Discord   DiscordConfig   `yaml:"discord"`
	Server    ServerConfig    `yaml:"server"`
	RCON      RCONConfig      `yaml:"rcon"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	API       APIConfig       `yaml:"api"`
}

// NewDefault returns a config with every optional field filled in. Load
// decodes the YAML file on top of it.
func NewDefault() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Discord: DiscordConfig{
			Prefix: "$",
		},
		Server: ServerConfig{
			Dir:          "./server",
			Mode:         "process",
			Jar:          "server.jar",
			MinRAM:       "1G",
			MaxRAM:       "2G",
			Host:         "localhost",
			Port:         "25565/tcp",
			StartTimeout: 3 * time.Minute,
			StopTimeout:  time.Minute,
		},
		RCON: RCONConfig{
			Address: "localhost:25575",
			Timeout: 5 * time.Second,
		},
		Snapshots: SnapshotsConfig{
			Dir:            "./data/snapshots",
			StagingDir:     "./data/staging",
			Database:       "./data/reedcraft.db",
			WorldDirs:      []string{"world", "world_nether", "world_the_end"},
			Exclude:        []string{"session.lock"},
			PromptTimeout:  120 * time.Second,
			ConfirmTimeout: 120 * time.Second,
		},
		API: APIConfig{
			Listen: ":8080",
		},
	}
}

func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.Log, &c.Discord, &c.Server, &c.RCON, &c.Snapshots, &c.API} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResolvePaths makes every filesystem path absolute and creates the data
// directories the bot writes to.
func (c *Config) ResolvePaths() error {
	for _, p := range []*string{&c.Server.Dir, &c.Snapshots.Dir, &c.Snapshots.StagingDir, &c.Snapshots.Database} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return err
		}
		*p = abs
	}
	for _, dir := range []string{c.Snapshots.Dir, c.Snapshots.StagingDir, filepath.Dir(c.Snapshots.Database)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.In("console", "json")),
	)
}

type DiscordConfig struct {
	Token  string `yaml:"token"`
	Prefix string `yaml:"prefix"`
	// OwnerID may run every command.
	OwnerID uint64 `yaml:"owner_id"`
	// OperatorRole is a role id whose members may run operator commands.
	OperatorRole uint64 `yaml:"operator_role"`
}

func (c *DiscordConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.Prefix, validation.Required),
		validation.Field(&c.OwnerID, validation.Required),
	)
}

type ServerConfig struct {
	Dir          string        `yaml:"dir"`
	Mode         string        `yaml:"mode"`
	Container    string        `yaml:"container"`
	Jar          string        `yaml:"jar"`
	MinRAM       string        `yaml:"min_ram"`
	MaxRAM       string        `yaml:"max_ram"`
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
}

func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Mode, validation.Required, validation.In("process", "docker")),
		validation.Field(&c.Container, validation.When(c.Mode == "docker", validation.Required)),
		validation.Field(&c.Jar, validation.When(c.Mode == "process", validation.Required)),
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.StartTimeout, validation.Min(time.Second)),
	)
}

type RCONConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *RCONConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Address, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

type SnapshotsConfig struct {
	Dir        string `yaml:"dir"`
	StagingDir string `yaml:"staging_dir"`
	Database   string `yaml:"database"`
	// WorldDirs are relative to the server dir; the first one is mandatory.
	WorldDirs      []string      `yaml:"world_dirs"`
	Exclude        []string      `yaml:"exclude"`
	PromptTimeout  time.Duration `yaml:"prompt_timeout"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

func (c *SnapshotsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.StagingDir, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.WorldDirs, validation.Required),
		validation.Field(&c.PromptTimeout, validation.Min(time.Second)),
		validation.Field(&c.ConfirmTimeout, validation.Min(time.Second)),
	)
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// TokenHash is a bcrypt hash of the bearer token; empty disables auth.
	TokenHash      string   `yaml:"token_hash"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.When(c.Enabled, validation.Required)),
	)
}
