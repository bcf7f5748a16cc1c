// Package projection derives the published documents from ladder state. All
// three documents are pure functions of the same state, so they cannot
// disagree after a run.
package projection

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/okian/ladder/internal/domain/ladder"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rating"
	"github.com/okian/ladder/internal/domain/replay"
	"github.com/okian/ladder/internal/domain/types"
)

const recentMatches = 10

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Documents bundles everything published after a run.
type Documents struct {
	Leaderboard    types.Leaderboard
	ReplayDatabase types.ReplayDatabase
	MatchHistory   types.MatchHistory
}

// Build derives all documents stamped with now.
func Build(state *ladder.State, engine *rating.Engine, now time.Time) Documents {
	return Documents{
		Leaderboard:    Leaderboard(state, engine, now),
		ReplayDatabase: ReplayDatabase(state, now),
		MatchHistory:   MatchHistory(state, now),
	}
}

// Leaderboard ranks players by rating. Tier is re-derived from rating here,
// never trusted from stored state.
func Leaderboard(state *ladder.State, engine *rating.Engine, now time.Time) types.Leaderboard {
	standings := state.Standings()
	tiers := engine.Tiers()
	counts := make(map[string]int, len(tiers))

	entries := make([]types.Entry, 0, len(standings))
	for i, p := range standings {
		tier := engine.TierFor(p.Rating)
		counts[tier]++
		entries = append(entries, types.Entry{
			Rank:          i + 1,
			PlayerName:    p.Name,
			Rating:        p.Rating,
			Tier:          tier,
			TierRank:      counts[tier],
			InitialRating: p.InitialRating,
			InitialSkill:  p.InitialSkill,
			MatchesPlayed: p.Matches,
			Wins:          p.Wins,
			Losses:        p.Losses,
			WinRate:       round1(p.WinRate()),
		})
	}

	summary := make([]types.TierSummary, 0, len(tiers))
	for i := len(tiers) - 1; i >= 0; i-- {
		t := tiers[i]
		summary = append(summary, types.TierSummary{
			Name: t.Name, MinRating: t.MinRating, MaxRating: t.MaxRating, Players: counts[t.Name],
		})
	}

	return types.Leaderboard{
		UpdatedAt:   now.UTC(),
		PlayerCount: len(entries),
		Tiers:       summary,
		Entries:     entries,
	}
}

// ReplayDatabase lists every accepted replay, newest first.
func ReplayDatabase(state *ladder.State, now time.Time) types.ReplayDatabase {
	type dated struct {
		at  time.Time
		rec types.ReplayRecord
	}
	var all []dated
	for _, s := range state.Series {
		for _, r := range s.Replays {
			at, _ := replay.ParseStartTime(r.StartTime)
			all = append(all, dated{at: at, rec: replayRecord(s, r, at)})
		}
	}
	slices.SortStableFunc(all, func(a, b dated) int {
		if c := b.at.Compare(a.at); c != 0 {
			return c
		}
		return strings.Compare(a.rec.ID, b.rec.ID)
	})

	out := make([]types.ReplayRecord, 0, len(all))
	for _, d := range all {
		out = append(out, d.rec)
	}
	return types.ReplayDatabase{UpdatedAt: now.UTC(), ReplayCount: len(out), Replays: out}
}

func replayRecord(s ladder.SeriesRecord, r model.Replay, at time.Time) types.ReplayRecord {
	players := make([]types.ReplayPlayer, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, types.ReplayPlayer{
			Name:          p.Name,
			Faction:       p.Faction,
			IsWinner:      p.Won,
			Mu:            p.Mu,
			Sigma:         p.Sigma,
			SkillEstimate: p.Mu - p.Sigma,
		})
	}
	return types.ReplayRecord{
		ID:                r.ID,
		URL:               r.URL,
		Date:              formatDate(at, r.StartTime),
		SubmissionID:      s.SubmissionID,
		SubmittedAt:       s.SubmittedAt,
		SubmittedBy:       s.SubmittedBy,
		Map:               r.Map,
		DurationMs:        r.DurationMs,
		DurationFormatted: FormatDuration(r.DurationMs),
		Winner:            r.Winner,
		Players:           players,
		PlayerNames:       r.Names(),
		SeriesWinner:      s.Outcome.Winner,
		EngineVersion:     r.EngineVersion,
		GameVersion:       r.GameVersion,
		Tags:              Tags(r),
	}
}

// MatchHistory aggregates per-player game history.
func MatchHistory(state *ladder.State, now time.Time) types.MatchHistory {
	hist := make(map[string]*types.PlayerHistory, len(state.Players))
	get := func(name string) *types.PlayerHistory {
		h, ok := hist[name]
		if !ok {
			h = &types.PlayerHistory{
				Name:             name,
				FavoriteFactions: map[string]int{},
				MapsPlayed:       map[string]int{},
				OpponentsFaced:   map[string]int{},
			}
			hist[name] = h
		}
		return h
	}

	for _, s := range state.Series {
		for _, r := range s.Replays {
			at, _ := replay.ParseStartTime(r.StartTime)
			for _, p := range r.Players {
				h := get(p.Name)
				opp := opponent(r, p.Name)
				h.TotalMatches++
				result := "undetermined"
				switch {
				case !r.WinnerDetermined():
				case p.Won:
					h.Wins++
					result = "win"
				default:
					h.Losses++
					result = "loss"
				}
				if p.Faction != "" {
					h.FavoriteFactions[p.Faction]++
				}
				if r.Map != "" {
					h.MapsPlayed[r.Map]++
				}
				h.OpponentsFaced[opp]++
				h.RecentMatches = append(h.RecentMatches, types.MatchSummary{
					ReplayID:     r.ID,
					SubmissionID: s.SubmissionID,
					Date:         formatDate(at, r.StartTime),
					Opponent:     opp,
					Result:       result,
					Map:          r.Map,
					Faction:      p.Faction,
					Duration:     FormatDuration(r.DurationMs),
				})
				h.SkillProgression = append(h.SkillProgression, types.SkillPoint{
					ReplayID: r.ID, Date: formatDate(at, r.StartTime), Mu: p.Mu, Sigma: p.Sigma,
				})
			}
		}
		for _, name := range []string{s.Outcome.Winner, s.Outcome.Loser} {
			h := get(name)
			won := name == s.Outcome.Winner
			h.SeriesPlayed++
			if won {
				h.SeriesWon++
			}
			opp := s.Outcome.Loser
			if !won {
				opp = s.Outcome.Winner
			}
			h.RatingProgression = append(h.RatingProgression, types.RatingPoint{
				SubmissionID: s.SubmissionID,
				At:           s.SubmittedAt,
				Opponent:     opp,
				Won:          won,
				Change:       s.After[name] - s.Before[name],
				Rating:       s.After[name],
				Tier:         s.TiersAfter[name],
			})
		}
	}

	out := make(map[string]types.PlayerHistory, len(hist))
	for name, h := range hist {
		slices.Reverse(h.RecentMatches)
		if len(h.RecentMatches) > recentMatches {
			h.RecentMatches = h.RecentMatches[:recentMatches]
		}
		if decided := h.Wins + h.Losses; decided > 0 {
			h.WinRate = round1(float64(h.Wins) / float64(decided) * 100)
		}
		h.MostPlayedFaction = mostPlayed(h.FavoriteFactions)
		out[name] = *h
	}
	return types.MatchHistory{UpdatedAt: now.UTC(), Players: out}
}

// FormatDuration renders milliseconds as "1h 2m 3s" or "12m 5s".
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "Unknown"
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// Tags classifies a replay by length, skill, factions and map.
func Tags(r model.Replay) []string {
	var tags []string
	if r.DurationMs > 0 {
		switch minutes := float64(r.DurationMs) / 60000; {
		case minutes < 10:
			tags = append(tags, "short")
		case minutes < 30:
			tags = append(tags, "medium")
		case minutes < 60:
			tags = append(tags, "long")
		default:
			tags = append(tags, "epic")
		}
	}

	if len(r.Players) > 0 {
		var sum float64
		for _, p := range r.Players {
			sum += p.Mu
		}
		switch avg := sum / float64(len(r.Players)); {
		case avg > 25:
			tags = append(tags, "high-skill")
		case avg > 15:
			tags = append(tags, "mid-skill")
		default:
			tags = append(tags, "beginner-friendly")
		}
	}

	factions := map[string]struct{}{}
	for _, p := range r.Players {
		if p.Faction != "" {
			factions[strings.ToLower(p.Faction)] = struct{}{}
		}
	}
	switch len(factions) {
	case 0:
	case 1:
		for f := range factions {
			tags = append(tags, "all-"+f)
		}
	default:
		tags = append(tags, "mixed-factions")
	}

	if clean := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(r.Map), "-"), "-"); clean != "" {
		tags = append(tags, "map-"+clean)
	}
	return tags
}

func opponent(r model.Replay, name string) string {
	for _, p := range r.Players {
		if p.Name != name {
			return p.Name
		}
	}
	return ""
}

func mostPlayed(counts map[string]int) string {
	best, n := "", 0
	for k, c := range counts {
		if c > n || (c == n && k < best) {
			best, n = k, c
		}
	}
	return best
}

func formatDate(at time.Time, raw string) string {
	if at.IsZero() {
		return raw
	}
	return at.UTC().Format(time.RFC3339)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
