// Package series decides whether a group of validated replays forms a legal
// best-of series and computes its outcome.
package series

import (
	"slices"
	"strings"

	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
)

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithReplayBounds sets the accepted number of replays per series.
func WithReplayBounds(minReplays, maxReplays int) Option {
	return func(v *Validator) {
		if minReplays > 0 && maxReplays >= minReplays {
			v.minReplays = minReplays
			v.maxReplays = maxReplays
		}
	}
}

// WithRequiredWins sets the win count that makes a series final.
func WithRequiredWins(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.requiredWins = n
		}
	}
}

// FromConfig maps a Config onto validator options.
func FromConfig(c *config.Config) []Option {
	return []Option{
		WithReplayBounds(c.MinReplays, c.MaxReplays),
		WithRequiredWins(c.RequiredWins),
	}
}

// Validator checks series legality.
type Validator struct {
	minReplays   int
	maxReplays   int
	requiredWins int
}

// NewValidator creates a best-of-three Validator unless options say otherwise.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{minReplays: 2, maxReplays: 3, requiredWins: 2}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks that every replay names the same two players (and the
// claimed ones, when given) and that exactly one of them reaches the
// required win count. Replays with an undetermined winner count for nobody;
// they only matter when the determined ones fall short.
func (v *Validator) Validate(claimed []string, replays []model.Replay) (model.SeriesOutcome, error) {
	if n := len(replays); n < v.minReplays || n > v.maxReplays {
		return model.SeriesOutcome{}, rejection.New(rejection.CodeInvalidSeriesLength, "",
			"series has %d replays, want %d to %d", n, v.minReplays, v.maxReplays)
	}

	players := pair(replays[0].Names())
	for _, r := range replays[1:] {
		if !slices.Equal(pair(r.Names()), players) {
			return model.SeriesOutcome{}, rejection.New(rejection.CodePlayerMismatch, r.ID,
				"players %s differ from %s", strings.Join(r.Names(), " vs "), strings.Join(players, " vs "))
		}
	}
	if len(claimed) > 0 && !slices.Equal(pair(claimed), players) {
		return model.SeriesOutcome{}, rejection.New(rejection.CodePlayerMismatch, "",
			"submission claims %s but replays show %s", strings.Join(claimed, " vs "), strings.Join(players, " vs "))
	}

	wins := map[string]int{players[0]: 0, players[1]: 0}
	ids := make([]string, 0, len(replays))
	undetermined := 0
	for _, r := range replays {
		ids = append(ids, r.ID)
		if r.WinnerDetermined() {
			wins[r.Winner]++
		} else {
			undetermined++
		}
	}

	var reached []string
	for _, p := range players {
		if wins[p] >= v.requiredWins {
			reached = append(reached, p)
		}
	}
	if len(reached) != 1 {
		return model.SeriesOutcome{}, rejection.New(rejection.CodeNoSeriesWinner, "",
			"wins %s=%d %s=%d (%d undetermined), %d required",
			players[0], wins[players[0]], players[1], wins[players[1]], undetermined, v.requiredWins)
	}

	winner := reached[0]
	loser := players[0]
	if loser == winner {
		loser = players[1]
	}
	return model.SeriesOutcome{
		Winner:    winner,
		Loser:     loser,
		Wins:      wins,
		ReplayIDs: ids,
	}, nil
}

// pair returns names sorted so that player order does not matter.
func pair(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return out
}
