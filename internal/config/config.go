// Package config defines ladder configuration structures and loading hooks.
//
// Conventions:
// - Build a Config with New(ctx) to get defaults, then layer overrides via Load.
// - The resulting Config is treated as immutable and passed explicitly to components.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the read API listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SubmissionsDir holds one JSON document per submitted series.
	SubmissionsDir string `koanf:"submissions_dir"`

	// DataDir receives the leaderboard and its derived documents.
	DataDir string `koanf:"data_dir"`

	MaxReplayAgeDays int     `koanf:"max_replay_age_days"`
	MinReplays       int     `koanf:"min_replays"`
	MaxReplays       int     `koanf:"max_replays"`
	RequiredWins     int     `koanf:"required_wins"`
	MinTeamID        int     `koanf:"min_team_id"`
	DefaultSigma     float64 `koanf:"default_sigma"`

	// MaxTimeBetweenReplaysDays is recognized for compatibility with existing
	// config files. No rule consumes it.
	MaxTimeBetweenReplaysDays int `koanf:"max_time_between_replays_days"`

	Rating    Rating    `koanf:"rating"`
	Tiers     []Tier    `koanf:"tiers"`
	ReplayAPI ReplayAPI `koanf:"replay_api"`
	Fields    Fields    `koanf:"fields"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// PushgatewayURL, when set, receives run metrics after every recomputation.
	PushgatewayURL string `koanf:"pushgateway_url"`

	Metrics Metrics `koanf:"metrics"`
}

// Metrics shapes the exported Prometheus series.
type Metrics struct {
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`

	// Labels are attached to every series, e.g. {instance: eu} when several
	// ladders push to one gateway.
	Labels map[string]string `koanf:"labels"`

	// LatencyBuckets, in seconds, for the run, commit and fetch histograms.
	// Empty keeps the Prometheus defaults.
	LatencyBuckets []float64 `koanf:"latency_buckets"`
}

// Rating bounds the per-series rating change.
type Rating struct {
	BaseChange float64 `koanf:"base_change" json:"base_change"`
	MinChange  float64 `koanf:"min_change" json:"min_change"`
	MaxChange  float64 `koanf:"max_change" json:"max_change"`
	// GapScale is the rating gap at which the change saturates at MinChange or MaxChange.
	GapScale float64 `koanf:"gap_scale" json:"gap_scale"`
}

// Tier is one row of the tier table. Skill bounds partition mu-sigma,
// rating bounds partition the ladder rating.
type Tier struct {
	Name      string  `koanf:"name" json:"name"`
	MinSkill  float64 `koanf:"min_skill" json:"min_skill"`
	MaxSkill  float64 `koanf:"max_skill" json:"max_skill"`
	MinRating float64 `koanf:"min_rating" json:"min_rating"`
	MaxRating float64 `koanf:"max_rating" json:"max_rating"`
}

// ReplayAPI configures the external replay-detail source.
type ReplayAPI struct {
	BaseURL           string  `koanf:"base_url"`
	TimeoutSeconds    int     `koanf:"timeout_seconds"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	URLPattern        string  `koanf:"url_pattern"`

	// Workers fetch bare replay references ahead of a run. Zero disables
	// prefetching; references are then fetched one by one as they are met.
	Workers int `koanf:"workers"`

	// PrefetchTimeoutSeconds bounds the whole prefetch; workers still busy
	// are stopped and the run resolves the rest one by one.
	PrefetchTimeoutSeconds int `koanf:"prefetch_timeout_seconds"`
}

// Fields lists, per logical attribute, the payload keys to try in priority
// order. Dotted keys walk nested objects.
type Fields struct {
	ID            []string `koanf:"id"`
	URL           []string `koanf:"url"`
	Teams         []string `koanf:"teams"`
	Players       []string `koanf:"players"`
	Name          []string `koanf:"name"`
	Skill         []string `koanf:"skill"`
	Sigma         []string `koanf:"sigma"`
	TeamID        []string `koanf:"team_id"`
	Faction       []string `koanf:"faction"`
	Won           []string `koanf:"won"`
	WinningTeam   []string `koanf:"winning_team"`
	StartTime     []string `koanf:"start_time"`
	Duration      []string `koanf:"duration"`
	Map           []string `koanf:"map"`
	EngineVersion []string `koanf:"engine_version"`
	GameVersion   []string `koanf:"game_version"`
}

// Default values.
const (
	defaultMaxReplayAgeDays    = 40
	defaultMinReplays          = 2
	defaultMaxReplays          = 3
	defaultRequiredWins        = 2
	defaultSigma               = 8.333
	defaultMaxBetweenDays      = 10
	defaultAPITimeoutSeconds   = 12
	defaultRequestsPerSecond   = 2
	defaultFetchWorkers        = 4
	defaultPrefetchSeconds     = 120
	defaultMaxLeaderboardLimit = 500
)

// New creates a Config populated with defaults. The context is reserved for
// future use and currently ignored.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		SubmissionsDir:            "data/submissions",
		DataDir:                   "data",
		MaxReplayAgeDays:          defaultMaxReplayAgeDays,
		MinReplays:                defaultMinReplays,
		MaxReplays:                defaultMaxReplays,
		RequiredWins:              defaultRequiredWins,
		MinTeamID:                 0,
		DefaultSigma:              defaultSigma,
		MaxTimeBetweenReplaysDays: defaultMaxBetweenDays,
		Rating: Rating{
			BaseChange: 15,
			MinChange:  2,
			MaxChange:  30,
			GapScale:   300,
		},
		Tiers:               DefaultTiers(),
		ReplayAPI:           DefaultReplayAPI(),
		Fields:              DefaultFields(),
		MaxLeaderboardLimit: defaultMaxLeaderboardLimit,
		Metrics:             Metrics{Namespace: "bar", Subsystem: "ladder"},
	}
}

// DefaultTiers returns the Bronze..Grandmaster table.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Bronze", MinSkill: 0, MaxSkill: 10, MinRating: 900, MaxRating: 1200},
		{Name: "Silver", MinSkill: 10, MaxSkill: 20, MinRating: 1200, MaxRating: 1500},
		{Name: "Gold", MinSkill: 20, MaxSkill: 30, MinRating: 1500, MaxRating: 1800},
		{Name: "Platinum", MinSkill: 30, MaxSkill: 40, MinRating: 1800, MaxRating: 2100},
		{Name: "Diamond", MinSkill: 40, MaxSkill: 50, MinRating: 2100, MaxRating: 2500},
		{Name: "Master", MinSkill: 50, MaxSkill: 60, MinRating: 2500, MaxRating: 3000},
		{Name: "Grandmaster", MinSkill: 60, MaxSkill: 100, MinRating: 3000, MaxRating: 5000},
	}
}

// DefaultReplayAPI points at the public BAR replay service.
func DefaultReplayAPI() ReplayAPI {
	return ReplayAPI{
		BaseURL:           "https://api.bar-rts.com",
		TimeoutSeconds:    defaultAPITimeoutSeconds,
		RequestsPerSecond: defaultRequestsPerSecond,
		URLPattern:        `^https?://api\.bar-rts\.com/replays/([A-Za-z0-9]+)$`,
		Workers:           defaultFetchWorkers,

		PrefetchTimeoutSeconds: defaultPrefetchSeconds,
	}
}

// DefaultFields matches the key variants seen in BAR replay payloads.
func DefaultFields() Fields {
	return Fields{
		ID:            []string{"id", "Id", "replayId"},
		URL:           []string{"url", "URL"},
		Teams:         []string{"AllyTeams", "allyTeams"},
		Players:       []string{"Players", "players"},
		Name:          []string{"name", "Name"},
		Skill:         []string{"skill", "Skill"},
		Sigma:         []string{"skillUncertainty", "SkillUncertainty"},
		TeamID:        []string{"teamId", "TeamId"},
		Faction:       []string{"faction", "Faction"},
		Won:           []string{"winningTeam", "won"},
		WinningTeam:   []string{"gamestats.winningTeamId", "winningTeamId"},
		StartTime:     []string{"startTime", "Start Time"},
		Duration:      []string{"durationMs", "duration_ms"},
		Map:           []string{"hostSettings.mapname", "Map.fileName", "mapname"},
		EngineVersion: []string{"engineVersion"},
		GameVersion:   []string{"gameVersion"},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxReplayAgeDays < 0 {
		return fmt.Errorf("%w: max_replay_age_days must not be negative", ErrInvalidConfig)
	}
	if c.MinReplays < 1 || c.MaxReplays < c.MinReplays {
		return fmt.Errorf("%w: replay count bounds [%d,%d]", ErrInvalidConfig, c.MinReplays, c.MaxReplays)
	}
	if c.RequiredWins < 1 || c.RequiredWins > c.MaxReplays {
		return fmt.Errorf("%w: required_wins %d outside [1,%d]", ErrInvalidConfig, c.RequiredWins, c.MaxReplays)
	}
	if c.DefaultSigma <= 0 {
		return fmt.Errorf("%w: default_sigma must be positive", ErrInvalidConfig)
	}
	r := c.Rating
	if r.MinChange < 0 || r.MinChange > r.BaseChange || r.BaseChange > r.MaxChange {
		return fmt.Errorf("%w: rating changes must satisfy 0 <= min <= base <= max", ErrInvalidConfig)
	}
	if r.GapScale <= 0 {
		return fmt.Errorf("%w: rating.gap_scale must be positive", ErrInvalidConfig)
	}
	if err := validateTiers(c.Tiers); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.ReplayAPI.URLPattern); err != nil {
		return fmt.Errorf("%w: replay_api.url_pattern: %v", ErrInvalidConfig, err)
	}
	if c.ReplayAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: replay_api.timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.ReplayAPI.Workers < 0 {
		return fmt.Errorf("%w: replay_api.workers must not be negative", ErrInvalidConfig)
	}
	if c.ReplayAPI.PrefetchTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: replay_api.prefetch_timeout_seconds must be positive", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	if !slices.IsSorted(c.Metrics.LatencyBuckets) {
		return fmt.Errorf("%w: metrics.latency_buckets must be ascending", ErrInvalidConfig)
	}
	return nil
}

func validateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidTierTable)
	}
	for i, t := range tiers {
		if t.Name == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, i)
		}
		if t.MinRating >= t.MaxRating {
			return fmt.Errorf("%w: tier %s rating range is empty", ErrInvalidTierTable, t.Name)
		}
		if t.MinSkill >= t.MaxSkill {
			return fmt.Errorf("%w: tier %s skill range is empty", ErrInvalidTierTable, t.Name)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.MaxSkill != t.MinSkill || prev.MaxRating != t.MinRating {
			return fmt.Errorf("%w: tier %s is not contiguous with %s", ErrInvalidTierTable, t.Name, prev.Name)
		}
	}
	return nil
}

// Fingerprint identifies the settings that shape derived ladder state. Two
// configs with different fingerprints can disagree on ratings for the same
// submission history.
func (c *Config) Fingerprint() string {
	payload := struct {
		Rating       Rating  `json:"rating"`
		Tiers        []Tier  `json:"tiers"`
		MaxAge       int     `json:"max_age"`
		MinReplays   int     `json:"min_replays"`
		MaxReplays   int     `json:"max_replays"`
		RequiredWins int     `json:"required_wins"`
		MinTeamID    int     `json:"min_team_id"`
		DefaultSigma float64 `json:"default_sigma"`
	}{c.Rating, c.Tiers, c.MaxReplayAgeDays, c.MinReplays, c.MaxReplays, c.RequiredWins, c.MinTeamID, c.DefaultSigma}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
