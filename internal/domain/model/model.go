// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// Participant is one non-spectator player of a replay.
type Participant struct {
	Name    string  `json:"name"`
	Mu      float64 `json:"mu"`    // upstream skill mean
	Sigma   float64 `json:"sigma"` // upstream skill uncertainty
	TeamID  int     `json:"team_id"`
	Faction string  `json:"faction,omitempty"`
	Won     bool    `json:"won"`
}

// Replay is a validated, normalized match record. It is immutable once built.
type Replay struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Players       []Participant `json:"players"`
	Winner        string        `json:"winner,omitempty"` // empty when undetermined
	Map           string        `json:"map,omitempty"`
	DurationMs    int64         `json:"duration_ms"`
	StartTime     string        `json:"start_time,omitempty"` // as reported by the source
	EngineVersion string        `json:"engine_version,omitempty"`
	GameVersion   string        `json:"game_version,omitempty"`
}

// WinnerDetermined reports whether the replay carries a resolved winner.
func (r Replay) WinnerDetermined() bool { return r.Winner != "" }

// Names returns both participant names in replay order.
func (r Replay) Names() []string {
	out := make([]string, len(r.Players))
	for i, p := range r.Players {
		out[i] = p.Name
	}
	return out
}

// Participant returns the entry for name.
func (r Replay) Participant(name string) (Participant, bool) {
	for _, p := range r.Players {
		if p.Name == name {
			return p, true
		}
	}
	return Participant{}, false
}

// Submission is one claimed best-of-three series as produced by the
// submission front end. Replays hold raw payloads; entries carrying only an
// id and url are resolved through the replay-detail source.
type Submission struct {
	ID          string           `json:"submission_id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	SubmittedBy string           `json:"submitted_by,omitempty"`
	Players     []string         `json:"players"`
	Replays     []map[string]any `json:"replays"`

	// Malformed is set by the loader when the document could not be decoded.
	Malformed string `json:"-"`
}

// UnmarshalJSON accepts "timestamp" as an alias for submitted_at.
func (s *Submission) UnmarshalJSON(b []byte) error {
	type plain Submission
	aux := struct {
		*plain
		Timestamp *time.Time `json:"timestamp"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if s.SubmittedAt.IsZero() && aux.Timestamp != nil {
		s.SubmittedAt = *aux.Timestamp
	}
	return nil
}

// SeriesOutcome is the result of a legal series.
type SeriesOutcome struct {
	Winner    string         `json:"winner"`
	Loser     string         `json:"loser"`
	Wins      map[string]int `json:"wins"`
	ReplayIDs []string       `json:"replay_ids"`
}
