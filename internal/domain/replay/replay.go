// Package replay validates raw match payloads and normalizes them into
// model.Replay records.
package replay

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
)

const (
	playersPerReplay = 2
	day              = 24 * time.Hour
)

// Start time layouts accepted from the source, tried in order. Layouts
// without a zone are read as UTC.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Validator turns raw payloads into normalized replays.
type Validator struct {
	fields       config.Fields
	minTeamID    int
	defaultSigma float64
	maxAgeDays   int
	urlPattern   *regexp.Regexp
	baseURL      string
}

// NewValidator creates a Validator. Defaults match config.New.
func NewValidator(opts ...Option) *Validator {
	api := config.DefaultReplayAPI()
	v := &Validator{
		fields:       config.DefaultFields(),
		defaultSigma: 8.333,
		maxAgeDays:   40,
		urlPattern:   regexp.MustCompile(api.URLPattern),
		baseURL:      api.BaseURL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type candidate struct {
	obj     map[string]any
	teamWon *bool
}

// Validate checks the structure of a single payload. A replay whose winner
// cannot be determined is returned with an empty Winner; resolving it is the
// series validator's job.
func (v *Validator) Validate(raw map[string]any) (model.Replay, error) {
	f := v.fields
	id, ok := lookupString(raw, f.ID)
	if !ok {
		return model.Replay{}, rejection.New(rejection.CodeMissingField, "", "replay id not found under %v", f.ID)
	}

	url, err := v.canonicalURL(raw, id)
	if err != nil {
		return model.Replay{}, err
	}

	eligible := v.eligible(v.candidates(raw))
	if len(eligible) != playersPerReplay {
		return model.Replay{}, rejection.New(rejection.CodeInvalidPlayerCount, id,
			"found %d eligible participants, want %d", len(eligible), playersPerReplay)
	}

	players := make([]model.Participant, 0, playersPerReplay)
	for _, c := range eligible {
		p, err := v.participant(id, c.obj)
		if err != nil {
			return model.Replay{}, err
		}
		players = append(players, p)
	}
	if players[0].Name == players[1].Name {
		return model.Replay{}, rejection.New(rejection.CodeInvalidPlayerCount, id,
			"both participants are named %q", players[0].Name)
	}

	winner := v.winner(raw, players, eligible)
	for i := range players {
		players[i].Won = players[i].Name == winner
	}

	r := model.Replay{
		ID:      id,
		URL:     url,
		Players: players,
		Winner:  winner,
	}
	r.Map, _ = lookupString(raw, f.Map)
	if d, ok, err := lookupNumber(raw, f.Duration); ok && err == nil && d > 0 {
		r.DurationMs = int64(d)
	}
	r.StartTime, _ = lookupString(raw, f.StartTime)
	r.EngineVersion, _ = lookupString(raw, f.EngineVersion)
	r.GameVersion, _ = lookupString(raw, f.GameVersion)
	return r, nil
}

// ValidateAt runs Validate followed by CheckAge against ref.
func (v *Validator) ValidateAt(raw map[string]any, ref time.Time) (model.Replay, error) {
	r, err := v.Validate(raw)
	if err != nil {
		return model.Replay{}, err
	}
	if err := v.CheckAge(r, ref); err != nil {
		return model.Replay{}, err
	}
	return r, nil
}

// CheckAge rejects replays older than the configured maximum, measured in
// whole days before ref. A replay exactly at the limit is accepted.
func (v *Validator) CheckAge(r model.Replay, ref time.Time) error {
	if strings.TrimSpace(r.StartTime) == "" {
		return rejection.New(rejection.CodeMissingStartTime, r.ID, "replay has no start time")
	}
	start, err := ParseStartTime(r.StartTime)
	if err != nil {
		return rejection.New(rejection.CodeInvalidDateFormat, r.ID, "unparseable start time %q", r.StartTime)
	}
	days := int(math.Floor(float64(ref.Sub(start)) / float64(day)))
	if days > v.maxAgeDays {
		return rejection.New(rejection.CodeReplayTooOld, r.ID,
			"replay is %d days old (max: %d)", days, v.maxAgeDays)
	}
	return nil
}

// ParseStartTime parses a source timestamp.
func ParseStartTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range startTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// ReplayID extracts the id from a replay URL, reporting false when the URL
// does not match the configured pattern.
func (v *Validator) ReplayID(url string) (string, bool) {
	m := v.urlPattern.FindStringSubmatch(strings.TrimSpace(url))
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// URLFor builds the canonical URL of a replay id.
func (v *Validator) URLFor(id string) string {
	return strings.TrimRight(v.baseURL, "/") + "/replays/" + id
}

func (v *Validator) canonicalURL(raw map[string]any, id string) (string, error) {
	url, ok := lookupString(raw, v.fields.URL)
	if !ok {
		return v.URLFor(id), nil
	}
	got, ok := v.ReplayID(url)
	if !ok {
		return "", rejection.New(rejection.CodeInvalidReplayURL, id, "url %q does not match %s", url, v.urlPattern)
	}
	if got != id {
		return "", rejection.New(rejection.CodeInvalidReplayURL, id, "url names replay %s", got)
	}
	return url, nil
}

// candidates lists every participant with the win flag of its team. Team
// grouping is preferred; a flat player list is the fallback.
func (v *Validator) candidates(raw map[string]any) []candidate {
	var out []candidate
	if teams, ok := lookupList(raw, v.fields.Teams); ok && len(teams) > 0 {
		for _, team := range teams {
			var flag *bool
			if won, ok := lookupBool(team, v.fields.Won); ok {
				flag = &won
			}
			players, _ := lookupList(team, v.fields.Players)
			for _, p := range players {
				out = append(out, candidate{obj: p, teamWon: flag})
			}
		}
		return out
	}
	players, _ := lookupList(raw, v.fields.Players)
	for _, p := range players {
		out = append(out, candidate{obj: p})
	}
	return out
}

// eligible drops spectators: participants without a team id or with one
// below the threshold.
func (v *Validator) eligible(cs []candidate) []candidate {
	out := make([]candidate, 0, len(cs))
	for _, c := range cs {
		tid, ok, err := lookupNumber(c.obj, v.fields.TeamID)
		if !ok || err != nil || int(tid) < v.minTeamID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (v *Validator) participant(replayID string, obj map[string]any) (model.Participant, error) {
	f := v.fields
	name, ok := lookupString(obj, f.Name)
	if !ok {
		return model.Participant{}, rejection.New(rejection.CodeMissingField, replayID, "player name not found under %v", f.Name)
	}
	mu, ok, err := lookupNumber(obj, f.Skill)
	if !ok {
		return model.Participant{}, rejection.New(rejection.CodeMissingField, replayID, "skill not found for %s", name)
	}
	if err != nil {
		return model.Participant{}, rejection.New(rejection.CodeMissingField, replayID, "skill for %s is not a finite number", name)
	}
	// zero means unknown, not certain
	sigma, ok, err := lookupNumber(obj, f.Sigma)
	if !ok || err != nil || sigma == 0 {
		sigma = v.defaultSigma
	}
	tid, _, _ := lookupNumber(obj, f.TeamID)
	faction, _ := lookupString(obj, f.Faction)
	return model.Participant{
		Name:    name,
		Mu:      mu,
		Sigma:   sigma,
		TeamID:  int(tid),
		Faction: faction,
	}, nil
}

// winner applies the match-level winning team id first, then the per-player
// or per-team win flags. Anything other than exactly one winner yields "".
func (v *Validator) winner(raw map[string]any, players []model.Participant, cs []candidate) string {
	if wid, ok, err := lookupNumber(raw, v.fields.WinningTeam); ok && err == nil {
		var match []string
		for _, p := range players {
			if float64(p.TeamID) == wid {
				match = append(match, p.Name)
			}
		}
		if len(match) == 1 {
			return match[0]
		}
	}
	var flagged []string
	for i, c := range cs {
		won, ok := lookupBool(c.obj, v.fields.Won)
		if !ok && c.teamWon != nil {
			won, ok = *c.teamWon, true
		}
		if ok && won {
			flagged = append(flagged, players[i].Name)
		}
	}
	if len(flagged) == 1 {
		return flagged[0]
	}
	return ""
}
