// Package config loads node settings from <home>/config/app.toml, SCGD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"stakecardgame/apps/chain/internal/engine"
)

const (
	EnvPrefix = "SCGD"
	FileName  = "app.toml"
)

// Keys shared by the config file, env vars and flags.
const (
	KeyABCIAddr          = "abci.addr"
	KeyABCITransport     = "abci.transport"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyGameMinStake      = "game.min_stake"
	KeyGameTotalRounds   = "game.total_rounds"
	KeyGameTiePolicy     = "game.tie_policy"
	KeyGameAllowMint     = "game.allow_mint"
	KeyNATSURL           = "nats.url"
	KeyNATSSubjectPrefix = "nats.subject_prefix"
	KeyNATSName          = "nats.name"
)

type ABCI struct {
	Addr      string `mapstructure:"addr"`
	Transport string `mapstructure:"transport"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Game struct {
	MinStake    uint64 `mapstructure:"min_stake"`
	TotalRounds uint8  `mapstructure:"total_rounds"`
	TiePolicy   string `mapstructure:"tie_policy"`
	AllowMint   bool   `mapstructure:"allow_mint"`
}

// NATS publishing is disabled when URL is empty.
type NATS struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Name          string `mapstructure:"name"`
}

type Config struct {
	Home string `mapstructure:"-"`
	ABCI ABCI   `mapstructure:"abci"`
	Log  Log    `mapstructure:"log"`
	Game Game   `mapstructure:"game"`
	NATS NATS   `mapstructure:"nats"`
}

func Default() Config {
	p := engine.DefaultParams()
	return Config{
		ABCI: ABCI{Addr: "tcp://127.0.0.1:26658", Transport: "socket"},
		Log:  Log{Level: "info", Format: "plain"},
		Game: Game{
			MinStake:    p.MinStake,
			TotalRounds: p.TotalRounds,
			TiePolicy:   string(p.TiePolicy),
		},
		NATS: NATS{SubjectPrefix: "scg", Name: "scgd"},
	}
}

// NewViper returns a viper instance with defaults and env bindings set.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyABCIAddr, d.ABCI.Addr)
	v.SetDefault(KeyABCITransport, d.ABCI.Transport)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyGameMinStake, d.Game.MinStake)
	v.SetDefault(KeyGameTotalRounds, d.Game.TotalRounds)
	v.SetDefault(KeyGameTiePolicy, d.Game.TiePolicy)
	v.SetDefault(KeyGameAllowMint, d.Game.AllowMint)
	v.SetDefault(KeyNATSURL, d.NATS.URL)
	v.SetDefault(KeyNATSSubjectPrefix, d.NATS.SubjectPrefix)
	v.SetDefault(KeyNATSName, d.NATS.Name)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func FilePath(home string) string {
	return filepath.Join(home, "config", FileName)
}

// Load reads the config file under home, if present, on top of whatever v
// already carries and returns the validated result.
func Load(v *viper.Viper, home string) (Config, error) {
	v.SetConfigFile(FilePath(home))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", FilePath(home), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Home = home
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default config file under home. An existing file is
// only replaced when overwrite is set.
func WriteDefault(home string, overwrite bool) (string, error) {
	path := FilePath(home)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, fmt.Errorf("mkdir config dir: %w", err)
	}
	v := NewViper()
	if err := v.WriteConfigAs(path); err != nil {
		return path, fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func (c Config) Validate() error {
	switch c.ABCI.Transport {
	case "socket", "grpc":
	default:
		return fmt.Errorf("abci.transport must be socket or grpc, got %q", c.ABCI.Transport)
	}
	if c.ABCI.Addr == "" {
		return fmt.Errorf("abci.addr is required")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "plain", "json":
	default:
		return fmt.Errorf("log.format must be plain or json, got %q", c.Log.Format)
	}
	if _, err := c.EngineParams(); err != nil {
		return err
	}
	return nil
}

func (c Config) EngineParams() (engine.Params, error) {
	tp, err := engine.ParseTiePolicy(c.Game.TiePolicy)
	if err != nil {
		return engine.Params{}, err
	}
	p := engine.Params{
		MinStake:    c.Game.MinStake,
		TotalRounds: c.Game.TotalRounds,
		TiePolicy:   tp,
	}
	return p, p.Validate()
}

func (c Config) Logger(w io.Writer) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := []log.Option{log.LevelOption(lvl)}
	if c.Log.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(w, opts...), nil
}
