package ladder

import (
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/rating"
	"github.com/okian/ladder/internal/domain/replay"
	"github.com/okian/ladder/internal/domain/series"
)

// Option applies a configuration option to the Driver.
type Option func(*Driver)

// WithReplayValidator sets the per-replay validator.
func WithReplayValidator(v *replay.Validator) Option {
	return func(d *Driver) {
		if v != nil {
			d.replays = v
		}
	}
}

// WithSeriesValidator sets the series validator.
func WithSeriesValidator(v *series.Validator) Option {
	return func(d *Driver) {
		if v != nil {
			d.series = v
		}
	}
}

// WithEngine sets the rating engine.
func WithEngine(e *rating.Engine) Option {
	return func(d *Driver) {
		if e != nil {
			d.engine = e
		}
	}
}

// WithResolver sets the stage that completes referenced replays. Without
// one, submissions must carry full payloads.
func WithResolver(r Resolver) Option {
	return func(d *Driver) {
		if r != nil {
			d.resolver = r
		}
	}
}

// FromConfig builds every pipeline stage from c.
func FromConfig(c *config.Config) []Option {
	return []Option{
		WithReplayValidator(replay.NewValidator(replay.FromConfig(c)...)),
		WithSeriesValidator(series.NewValidator(series.FromConfig(c)...)),
		WithEngine(rating.NewEngine(rating.FromConfig(c)...)),
	}
}
