package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LADDER_"

// EnvConfigPath names the variable holding an optional YAML config path.
const EnvConfigPath = EnvPrefix + "CONFIG"

// list-valued keys are replaced wholesale when overridden, never merged
// element-wise into the defaults.
var listKeys = []string{
	"tiers",
	"fields.id", "fields.url", "fields.teams", "fields.players", "fields.name",
	"fields.skill", "fields.sigma", "fields.team_id", "fields.faction", "fields.won",
	"fields.winning_team", "fields.start_time", "fields.duration", "fields.map",
	"fields.engine_version", "fields.game_version",
}

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) from path, or LADDER_CONFIG when path is empty
//  3. env (prefix LADDER_, "__" separates nested keys)
func Load(ctx context.Context, path string) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// LADDER_MAX_REPLAY_AGE_DAYS -> max_replay_age_days
	// LADDER_RATING__MAX_CHANGE  -> rating.max_change
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	for _, key := range listKeys {
		if k.Exists(key) {
			clearList(&cfg, key)
		}
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func clearList(c *Config, key string) {
	f := &c.Fields
	switch key {
	case "tiers":
		c.Tiers = nil
	case "fields.id":
		f.ID = nil
	case "fields.url":
		f.URL = nil
	case "fields.teams":
		f.Teams = nil
	case "fields.players":
		f.Players = nil
	case "fields.name":
		f.Name = nil
	case "fields.skill":
		f.Skill = nil
	case "fields.sigma":
		f.Sigma = nil
	case "fields.team_id":
		f.TeamID = nil
	case "fields.faction":
		f.Faction = nil
	case "fields.won":
		f.Won = nil
	case "fields.winning_team":
		f.WinningTeam = nil
	case "fields.start_time":
		f.StartTime = nil
	case "fields.duration":
		f.Duration = nil
	case "fields.map":
		f.Map = nil
	case "fields.engine_version":
		f.EngineVersion = nil
	case "fields.game_version":
		f.GameVersion = nil
	}
}
