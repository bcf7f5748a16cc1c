// Package rating places new players on the ladder and applies the per-series
// rating update.
package rating

import (
	"math"

	"github.com/okian/ladder/internal/config"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTiers sets the tier table. The table is assumed validated.
func WithTiers(tiers []config.Tier) Option {
	return func(e *Engine) {
		if len(tiers) > 0 {
			e.tiers = append([]config.Tier(nil), tiers...)
		}
	}
}

// WithBounds sets the rating-change bounds.
func WithBounds(b config.Rating) Option {
	return func(e *Engine) {
		if b.GapScale > 0 && b.MinChange <= b.BaseChange && b.BaseChange <= b.MaxChange {
			e.bounds = b
		}
	}
}

// FromConfig maps a Config onto engine options.
func FromConfig(c *config.Config) []Option {
	return []Option{WithTiers(c.Tiers), WithBounds(c.Rating)}
}

// Standing is a rating with its derived tier.
type Standing struct {
	Rating float64 `json:"rating"`
	Tier   string  `json:"tier"`
}

// Engine is stateless apart from its configuration.
type Engine struct {
	tiers  []config.Tier
	bounds config.Rating
}

// NewEngine creates an Engine with the default tier table and bounds.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tiers:  config.DefaultTiers(),
		bounds: config.Rating{BaseChange: 15, MinChange: 2, MaxChange: 30, GapScale: 300},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tiers returns a copy of the tier table.
func (e *Engine) Tiers() []config.Tier {
	return append([]config.Tier(nil), e.tiers...)
}

// Place returns the initial standing for skill mu-sigma: the midpoint of the
// rating range of the tier whose skill range contains it.
func (e *Engine) Place(mu, sigma float64) Standing {
	skill := mu - sigma
	last := len(e.tiers) - 1
	t := e.tiers[last]
	for i, cand := range e.tiers {
		if (i == 0 || skill >= cand.MinSkill) && (i == last || skill < cand.MaxSkill) {
			t = cand
			break
		}
	}
	return Standing{Rating: (t.MinRating + t.MaxRating) / 2, Tier: t.Name}
}

// TierFor derives the tier of a rating. Ranges are half-open; the first tier
// is open downward and the last open upward.
func (e *Engine) TierFor(r float64) string {
	last := len(e.tiers) - 1
	for i, t := range e.tiers {
		if (i == 0 || r >= t.MinRating) && (i == last || r < t.MaxRating) {
			return t.Name
		}
	}
	return e.tiers[last].Name
}

// Magnitude is the rating exchanged when winner beats loser. Equal ratings
// exchange the base change; an upset scales toward the max change and an
// expected result toward the min change, saturating at a gap of GapScale.
func (e *Engine) Magnitude(winner, loser float64) float64 {
	b := e.bounds
	ratio := math.Max(-1, math.Min(1, (loser-winner)/b.GapScale))
	m := b.BaseChange
	if ratio > 0 {
		m += ratio * (b.MaxChange - b.BaseChange)
	} else {
		m += ratio * (b.BaseChange - b.MinChange)
	}
	return math.Max(b.MinChange, math.Min(b.MaxChange, m))
}

// ApplyResult returns the player's standing after one series against
// opponent. Ratings are not clamped; only tier lookup is bounded.
func (e *Engine) ApplyResult(player, opponent float64, playerWon bool) Standing {
	var next float64
	if playerWon {
		next = player + e.Magnitude(player, opponent)
	} else {
		next = player - e.Magnitude(opponent, player)
	}
	return Standing{Rating: next, Tier: e.TierFor(next)}
}
