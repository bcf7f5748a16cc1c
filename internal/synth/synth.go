// Package synth generates random but plausible submission histories for
// rehearsal runs and property tests.
package synth

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/okian/ladder/internal/domain/model"
)

const (
	defaultPlayers = 8
	oldReplayAge   = 60 * 24 * time.Hour
)

var (
	factions = []string{"Armada", "Cortex", "Legion"}
	mapNames = []string{"Supreme Isthmus", "Altair Crossing", "Throne Acidic", "Red Comet", "Quicksilver"}
)

// Kind labels what a generated submission is meant to exercise.
type Kind string

const (
	KindValid       Kind = "valid"
	KindSplit       Kind = "split"       // 1-1, no series winner
	KindResubmitted Kind = "resubmitted" // replay set already used
	KindStale       Kind = "stale"       // one replay past the age limit
	KindMismatch    Kind = "mismatch"    // claimed players differ from replays
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithPlayers sets the size of the player pool.
func WithPlayers(n int) Option {
	return func(g *Generator) {
		if n >= 2 {
			g.poolSize = n
		}
	}
}

// WithStart sets the time of the first submission.
func WithStart(t time.Time) Option {
	return func(g *Generator) {
		if !t.IsZero() {
			g.start = t.UTC()
		}
	}
}

// WithInvalidRatio sets the share, in percent, of submissions that should be
// rejected.
func WithInvalidRatio(pct int) Option {
	return func(g *Generator) {
		if pct >= 0 && pct <= 100 {
			g.invalidPct = pct
		}
	}
}

type competitor struct {
	name  string
	mu    float64
	sigma float64
}

// Generator is deterministic for a given seed.
type Generator struct {
	faker      *gofakeit.Faker
	start      time.Time
	poolSize   int
	invalidPct int
	pool       []competitor
	seq        int
	used       [][]map[string]any
}

// New creates a Generator.
func New(seed int64, opts ...Option) *Generator {
	g := &Generator{
		faker:      gofakeit.New(uint64(seed)),
		start:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		poolSize:   defaultPlayers,
		invalidPct: 25,
	}
	for _, opt := range opts {
		opt(g)
	}
	seen := make(map[string]struct{}, g.poolSize)
	for len(g.pool) < g.poolSize {
		name := g.faker.Username()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		g.pool = append(g.pool, competitor{
			name:  name,
			mu:    g.faker.Float64Range(2, 70),
			sigma: g.faker.Float64Range(1, 8),
		})
	}
	return g
}

// History returns n submissions in chronological order, with roughly the
// configured share meant to be rejected.
func (g *Generator) History(n int) []model.Submission {
	out := make([]model.Submission, 0, n)
	at := g.start
	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(g.faker.Number(1, 48)) * time.Hour)
		kind := KindValid
		if g.faker.Number(1, 100) <= g.invalidPct {
			kind = Kind(g.faker.RandomString([]string{
				string(KindSplit), string(KindResubmitted), string(KindStale), string(KindMismatch),
			}))
		}
		out = append(out, g.Submission(kind, at))
	}
	return out
}

// Submission builds one submission of the given kind at time at.
func (g *Generator) Submission(kind Kind, at time.Time) model.Submission {
	g.seq++
	a, b := g.pair()
	sub := model.Submission{
		ID:          fmt.Sprintf("%s-%04d", at.Format("20060102T150405"), g.seq),
		SubmittedAt: at,
		SubmittedBy: g.faker.Username(),
		Players:     []string{a.name, b.name},
	}

	aFirst := g.faker.Bool()
	switch kind {
	case KindSplit:
		sub.Replays = []map[string]any{g.replay(a, b, true, at), g.replay(a, b, false, at)}
	case KindResubmitted:
		if len(g.used) == 0 {
			return g.Submission(KindValid, at)
		}
		prev := g.used[g.faker.Number(0, len(g.used)-1)]
		sub.Replays = prev
		sub.Players = playersOf(prev[0])
	case KindStale:
		sub.Replays = g.series(a, b, aFirst, at)
		sub.Replays[len(sub.Replays)-1]["startTime"] = at.Add(-oldReplayAge).Format(time.RFC3339)
	case KindMismatch:
		sub.Replays = g.series(a, b, aFirst, at)
		sub.Players = []string{a.name, b.name + "_smurf"}
	default:
		sub.Replays = g.series(a, b, aFirst, at)
		g.used = append(g.used, sub.Replays)
	}
	return sub
}

// Replay builds a raw BAR-style payload in which a beats b when aWins.
func (g *Generator) Replay(aName, bName string, aWins bool, at time.Time) map[string]any {
	return g.replay(competitor{name: aName, mu: 20, sigma: 3}, competitor{name: bName, mu: 20, sigma: 3}, aWins, at)
}

func (g *Generator) pair() (competitor, competitor) {
	i := g.faker.Number(0, len(g.pool)-1)
	j := g.faker.Number(0, len(g.pool)-2)
	if j >= i {
		j++
	}
	return g.pool[i], g.pool[j]
}

// series plays out a 2-0 or 2-1 for the chosen winner.
func (g *Generator) series(a, b competitor, aWins bool, at time.Time) []map[string]any {
	if g.faker.Bool() {
		return []map[string]any{g.replay(a, b, aWins, at), g.replay(a, b, aWins, at)}
	}
	return []map[string]any{g.replay(a, b, aWins, at), g.replay(a, b, !aWins, at), g.replay(a, b, aWins, at)}
}

func (g *Generator) replay(a, b competitor, aWins bool, at time.Time) map[string]any {
	g.seq++
	id := fmt.Sprintf("%s%05d", g.faker.Numerify("####"), g.seq)
	winningTeam := 1.0
	if aWins {
		winningTeam = 0
	}
	start := at.Add(-time.Duration(g.faker.Number(1, 72)) * time.Hour)
	return map[string]any{
		"id":            id,
		"startTime":     start.Format(time.RFC3339),
		"durationMs":    float64(g.faker.Number(4, 70) * 60_000),
		"engineVersion": "2025.04.08",
		"gameVersion":   "BAR-" + g.faker.Numerify("#####"),
		"hostSettings":  map[string]any{"mapname": g.faker.RandomString(mapNames)},
		"gamestats":     map[string]any{"winningTeamId": winningTeam},
		"AllyTeams": []any{
			map[string]any{"winningTeam": aWins, "Players": []any{g.participant(a, 0)}},
			map[string]any{"winningTeam": !aWins, "Players": []any{g.participant(b, 1)}},
			map[string]any{"Players": []any{map[string]any{"name": g.faker.Username(), "teamId": -1.0, "skill": 0.0}}},
		},
	}
}

func (g *Generator) participant(c competitor, team int) map[string]any {
	return map[string]any{
		"name":             c.name,
		"teamId":           float64(team),
		"skill":            fmt.Sprintf("[%.2f]", c.mu+g.faker.Float64Range(-1, 1)),
		"skillUncertainty": c.sigma,
		"faction":          g.faker.RandomString(factions),
	}
}

func playersOf(raw map[string]any) []string {
	var names []string
	teams, _ := raw["AllyTeams"].([]any)
	for _, t := range teams[:2] {
		ps := t.(map[string]any)["Players"].([]any)
		names = append(names, ps[0].(map[string]any)["name"].(string))
	}
	return names
}
