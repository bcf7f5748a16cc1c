package replay

import (
	"regexp"

	"github.com/okian/ladder/internal/config"
)

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithFields sets the key-variant lookup table.
func WithFields(f config.Fields) Option {
	return func(v *Validator) {
		v.fields = f
	}
}

// WithMinTeamID sets the spectator threshold. Participants below it are dropped.
func WithMinTeamID(id int) Option {
	return func(v *Validator) {
		v.minTeamID = id
	}
}

// WithDefaultSigma sets the uncertainty used when the source reports zero.
func WithDefaultSigma(sigma float64) Option {
	return func(v *Validator) {
		if sigma > 0 {
			v.defaultSigma = sigma
		}
	}
}

// WithMaxAgeDays sets the age limit enforced by CheckAge.
func WithMaxAgeDays(days int) Option {
	return func(v *Validator) {
		if days >= 0 {
			v.maxAgeDays = days
		}
	}
}

// WithURLPattern sets the replay URL pattern. The first capture group must
// hold the replay id. Invalid patterns are ignored.
func WithURLPattern(pattern string) Option {
	return func(v *Validator) {
		if re, err := regexp.Compile(pattern); err == nil {
			v.urlPattern = re
		}
	}
}

// WithBaseURL sets the prefix used to build canonical replay URLs.
func WithBaseURL(base string) Option {
	return func(v *Validator) {
		if base != "" {
			v.baseURL = base
		}
	}
}

// FromConfig maps a Config onto validator options.
func FromConfig(c *config.Config) []Option {
	return []Option{
		WithFields(c.Fields),
		WithMinTeamID(c.MinTeamID),
		WithDefaultSigma(c.DefaultSigma),
		WithMaxAgeDays(c.MaxReplayAgeDays),
		WithURLPattern(c.ReplayAPI.URLPattern),
		WithBaseURL(c.ReplayAPI.BaseURL),
	}
}
