// Package service runs ladder recomputations and serves the read side of
// the published documents.
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/ladder/internal/adapters/replayapi"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/ladder"
	"github.com/okian/ladder/internal/domain/replay"
	"github.com/okian/ladder/pkg/logger"
)

// Service owns the store for the duration of a run. Runs are serialized.
type Service struct {
	mu sync.Mutex

	cfg      *config.Config
	store    repository.Store
	driver   *ladder.Driver
	resolver ladder.Resolver
	pushURL  string
	now      func() time.Time
	newRunID func() string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore replaces the file store built from configuration.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithResolver replaces the replay service client.
func WithResolver(r ladder.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithPushgateway pushes run metrics to url after every run.
func WithPushgateway(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.pushURL = url
		}
	}
}

// WithClock sets the time source used to stamp documents.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newRunID = next
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service from configuration. Unless replaced by options,
// submissions and documents live under the configured directories and
// referenced replays are fetched from the configured replay service.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		pushURL:  cfg.PushgatewayURL,
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewFileStore(cfg.SubmissionsDir, cfg.DataDir, repository.WithLogger(s.logger))
	}

	replays := replay.NewValidator(replay.FromConfig(cfg)...)
	if s.resolver == nil {
		s.resolver = replayapi.New(append(replayapi.FromConfig(cfg),
			replayapi.WithIDParser(replays),
			replayapi.WithLogger(s.logger),
		)...)
	}
	s.driver = ladder.NewDriver(append(ladder.FromConfig(cfg),
		ladder.WithReplayValidator(replays),
		ladder.WithResolver(s.resolver),
	)...)
	return s
}
