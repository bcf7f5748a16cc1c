// Package types contains the published document shapes shared by the
// persistence layer and the read API.
package types

import "time"

// Entry represents a leaderboard entry.
type Entry struct {
	Rank          int     `json:"rank"`
	PlayerName    string  `json:"player_name"`
	Rating        float64 `json:"rating"`
	Tier          string  `json:"tier"`
	TierRank      int     `json:"tier_rank"`
	InitialRating float64 `json:"initial_rating"`
	InitialSkill  float64 `json:"initial_skill"`
	MatchesPlayed int     `json:"matches_played"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent, one decimal
}

// TierSummary counts players per tier.
type TierSummary struct {
	Name      string  `json:"name"`
	MinRating float64 `json:"min_rating"`
	MaxRating float64 `json:"max_rating"`
	Players   int     `json:"players"`
}

// Leaderboard is the published ranking.
type Leaderboard struct {
	UpdatedAt   time.Time     `json:"updated_at"`
	PlayerCount int           `json:"player_count"`
	Tiers       []TierSummary `json:"tiers"`
	Entries     []Entry       `json:"entries"`
}

// ReplayPlayer is one side of a published replay.
type ReplayPlayer struct {
	Name          string  `json:"name"`
	Faction       string  `json:"faction,omitempty"`
	IsWinner      bool    `json:"is_winner"`
	Mu            float64 `json:"mu"`
	Sigma         float64 `json:"sigma"`
	SkillEstimate float64 `json:"skill_estimate"`
}

// ReplayRecord is the denormalized view of one accepted replay.
type ReplayRecord struct {
	ID                string         `json:"id"`
	URL               string         `json:"url"`
	Date              string         `json:"date"`
	SubmissionID      string         `json:"submission_id"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	SubmittedBy       string         `json:"submitted_by,omitempty"`
	Map               string         `json:"map"`
	DurationMs        int64          `json:"duration_ms"`
	DurationFormatted string         `json:"duration_formatted"`
	Winner            string         `json:"winner"`
	Players           []ReplayPlayer `json:"players"`
	PlayerNames       []string       `json:"player_names"`
	SeriesWinner      string         `json:"series_winner"`
	EngineVersion     string         `json:"engine_version,omitempty"`
	GameVersion       string         `json:"game_version,omitempty"`
	Tags              []string       `json:"tags"`
}

// ReplayDatabase lists accepted replays, newest first.
type ReplayDatabase struct {
	UpdatedAt   time.Time      `json:"updated_at"`
	ReplayCount int            `json:"replay_count"`
	Replays     []ReplayRecord `json:"replays"`
}

// MatchSummary is one game from a player's point of view.
type MatchSummary struct {
	ReplayID     string `json:"replay_id"`
	SubmissionID string `json:"submission_id"`
	Date         string `json:"date"`
	Opponent     string `json:"opponent"`
	Result       string `json:"result"` // win, loss or undetermined
	Map          string `json:"map"`
	Faction      string `json:"faction,omitempty"`
	Duration     string `json:"duration"`
}

// SkillPoint is the upstream skill reported for a player in one game.
type SkillPoint struct {
	ReplayID string  `json:"replay_id"`
	Date     string  `json:"date"`
	Mu       float64 `json:"mu"`
	Sigma    float64 `json:"sigma"`
}

// RatingPoint is a player's ladder rating after one series.
type RatingPoint struct {
	SubmissionID string    `json:"submission_id"`
	At           time.Time `json:"at"`
	Opponent     string    `json:"opponent"`
	Won          bool      `json:"won"`
	Change       float64   `json:"change"`
	Rating       float64   `json:"rating"`
	Tier         string    `json:"tier"`
}

// PlayerHistory aggregates every accepted game of a player.
type PlayerHistory struct {
	Name              string         `json:"name"`
	TotalMatches      int            `json:"total_matches"`
	Wins              int            `json:"wins"`
	Losses            int            `json:"losses"`
	WinRate           float64        `json:"win_rate"`
	SeriesPlayed      int            `json:"series_played"`
	SeriesWon         int            `json:"series_won"`
	RecentMatches     []MatchSummary `json:"recent_matches"`
	FavoriteFactions  map[string]int `json:"favorite_factions"`
	MostPlayedFaction string         `json:"most_played_faction,omitempty"`
	MapsPlayed        map[string]int `json:"maps_played"`
	OpponentsFaced    map[string]int `json:"opponents_faced"`
	SkillProgression  []SkillPoint   `json:"skill_progression"`
	RatingProgression []RatingPoint  `json:"rating_progression"`
}

// MatchHistory holds every player's history.
type MatchHistory struct {
	UpdatedAt time.Time                `json:"updated_at"`
	Players   map[string]PlayerHistory `json:"players"`
}

// Stats is a compact summary served by the read API.
type Stats struct {
	UpdatedAt         time.Time      `json:"updated_at"`
	Players           int            `json:"players"`
	Series            int            `json:"series"`
	Replays           int            `json:"replays"`
	Rejected          int            `json:"rejected"`
	RejectionsByCode  map[string]int `json:"rejections_by_code"`
	PlayersByTier     map[string]int `json:"players_by_tier"`
	ConfigFingerprint string         `json:"config_fingerprint"`
	LastRunID         string         `json:"last_run_id,omitempty"`
}
