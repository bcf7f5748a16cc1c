package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/ladder"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/projection"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Mode selects how a run folds submissions into the ladder.
type Mode string

// Recomputation modes.
const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

const pushJob = "ladder"

// Report describes one run.
type Report struct {
	RunID      string
	Mode       Mode
	Pending    int
	Applied    []*ladder.SeriesRecord
	Rejected   []*rejection.Error
	OutOfOrder []string
	Committed  bool
	StartedAt  time.Time
	Duration   time.Duration
}

// run carries per-run logging context.
type run struct {
	*Report
	log  logger.Logger
	base []logger.Field
}

func (r *run) fields(extra ...logger.Field) []logger.Field {
	return append(slices.Clone(r.base), extra...)
}

// Run performs one recomputation. A transient failure returns an error
// satisfying rejection.IsTransient and persists nothing. Terminal
// rejections are listed in the report and do not fail the run.
func (s *Service) Run(ctx context.Context, mode Mode) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &run{
		Report: &Report{RunID: s.newRunID(), Mode: mode, StartedAt: s.now()},
		log:    s.logger.Named("run"),
	}
	r.base = []logger.Field{logger.String("run_id", r.RunID), logger.String("mode", string(mode))}
	r.log.Info(ctx, "run started", r.fields()...)

	var err error
	switch mode {
	case ModeIncremental:
		err = s.incremental(ctx, r)
	case ModeFull:
		err = s.full(ctx, r)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	finished := s.now()
	r.Duration = finished.Sub(r.StartedAt)
	result := outcome(r.Report, err)
	metrics.RecordRun(string(mode), result, r.Duration.Seconds(), float64(finished.Unix()))
	if perr := metrics.Push(ctx, s.pushURL, pushJob); perr != nil {
		r.log.Warn(ctx, "metrics push failed", r.fields(logger.Error(perr))...)
	}

	if err != nil {
		r.log.Error(ctx, "run aborted", r.fields(logger.String("result", result), logger.Error(err))...)
		return r.Report, err
	}
	r.log.Info(ctx, "run finished", r.fields(
		logger.String("result", result),
		logger.Int("pending", r.Pending),
		logger.Int("applied", len(r.Applied)),
		logger.Int("rejected", len(r.Rejected)),
		logger.Bool("committed", r.Committed),
		logger.Duration("took", r.Duration),
	)...)
	return r.Report, nil
}

func (s *Service) incremental(ctx context.Context, r *run) error {
	subs, err := s.store.Submissions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	fingerprint := s.cfg.Fingerprint()
	switch snap.ConfigFingerprint {
	case "":
		snap.ConfigFingerprint = fingerprint
	case fingerprint:
	default:
		r.log.Warn(ctx, "rating configuration changed since the last full recalculation; run full to restore consistency",
			r.fields(logger.String("stored", snap.ConfigFingerprint), logger.String("current", fingerprint))...)
	}

	state := snap.State
	var pending []model.Submission
	for _, sub := range ladder.Order(subs) {
		if !state.Settled(sub.ID) {
			pending = append(pending, sub)
		}
	}
	r.Pending = len(pending)
	if len(pending) == 0 {
		r.log.Info(ctx, "nothing to process", r.fields()...)
		return nil
	}

	s.prefetch(ctx, pending)
	headAt, headID := state.Latest()
	head := model.Submission{ID: headID, SubmittedAt: headAt}
	for _, sub := range pending {
		if !sub.SubmittedAt.IsZero() && headID != "" && ladder.Compare(sub, head) < 0 {
			r.OutOfOrder = append(r.OutOfOrder, sub.ID)
			metrics.RecordOutOfOrder()
			r.log.Warn(ctx, "submission sorts before the ladder head; only a full recalculation restores chronological order",
				r.fields(
					logger.String("submission", sub.ID),
					logger.Time("submitted_at", sub.SubmittedAt),
					logger.String("head", headID),
					logger.Time("head_at", headAt),
				)...)
		}
		rec, err := s.driver.Incremental(ctx, state, sub)
		if err := s.tally(ctx, r, sub.ID, rec, err); err != nil {
			return err
		}
	}
	return s.commit(ctx, r, snap)
}

func (s *Service) full(ctx context.Context, r *run) error {
	subs, err := s.store.Submissions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	r.Pending = len(subs)

	s.prefetch(ctx, subs)
	state, out, err := s.driver.Full(ctx, subs)
	if err != nil {
		return s.tally(ctx, r, "", nil, err)
	}
	for _, rec := range out.Applied {
		_ = s.tally(ctx, r, rec.SubmissionID, rec, nil)
	}
	for _, rerr := range out.Rejected {
		_ = s.tally(ctx, r, "", nil, rerr)
	}

	snap := &repository.Snapshot{ConfigFingerprint: s.cfg.Fingerprint(), State: state}
	return s.commit(ctx, r, snap)
}

// prefetcher is implemented by resolvers that can warm their cache for a
// batch of submissions before the driver walks them in order.
type prefetcher interface {
	Prefetch(ctx context.Context, subs []model.Submission)
}

func (s *Service) prefetch(ctx context.Context, subs []model.Submission) {
	if p, ok := s.resolver.(prefetcher); ok {
		p.Prefetch(ctx, subs)
	}
}

// tally records one submission result. Only a non-terminal failure is
// returned, which aborts the run.
func (s *Service) tally(ctx context.Context, r *run, id string, rec *ladder.SeriesRecord, err error) error {
	mode := string(r.Mode)
	switch {
	case err == nil:
		r.Applied = append(r.Applied, rec)
		metrics.RecordSubmission(mode, metrics.ResultApplied)
		metrics.RecordRatingChange(rec.Magnitude)
		for range rec.Placed {
			metrics.RecordPlacement()
		}
		r.log.Info(ctx, "series applied", r.fields(
			logger.String("submission", rec.SubmissionID),
			logger.String("winner", rec.Outcome.Winner),
			logger.String("loser", rec.Outcome.Loser),
			logger.Float64("change", rec.Magnitude),
		)...)
		return nil
	case errors.Is(err, ladder.ErrAlreadySettled):
		r.log.Debug(ctx, "submission already settled", r.fields(logger.String("submission", id))...)
		return nil
	case rejection.IsTerminal(err):
		re, _ := rejection.As(err)
		r.Rejected = append(r.Rejected, re)
		metrics.RecordSubmission(mode, metrics.ResultRejected)
		metrics.RecordRejection(string(re.Code))
		r.log.Warn(ctx, "submission rejected", r.fields(
			logger.String("submission", re.SubmissionID),
			logger.String("replay", re.ReplayID),
			logger.String("code", string(re.Code)),
			logger.String("reason", re.Reason),
		)...)
		return nil
	default:
		metrics.RecordSubmission(mode, metrics.ResultTransient)
		metrics.RecordErrorByComponent("run", "transient")
		return err
	}
}

func (s *Service) commit(ctx context.Context, r *run, snap *repository.Snapshot) error {
	now := s.now()
	engine := s.driver.Engine()
	snap.LastRunID = r.RunID
	snap.LastRunAt = now
	snap.Mode = string(r.Mode)
	snap.Retier(engine)

	docs := projection.Build(snap.State, engine, now)
	start := time.Now()
	if err := s.store.Commit(ctx, snap, docs); err != nil {
		metrics.RecordErrorByComponent("repository", "commit")
		return err
	}
	metrics.RecordCommitLatency(time.Since(start).Seconds())
	r.Committed = true

	byTier := make(map[string]int, len(docs.Leaderboard.Tiers))
	for _, t := range docs.Leaderboard.Tiers {
		byTier[t.Name] = t.Players
	}
	metrics.UpdateLadderSize(len(snap.Players), len(snap.Series))
	metrics.UpdatePlayersByTier(byTier)
	return nil
}

func outcome(rep *Report, err error) string {
	switch {
	case err != nil && rejection.IsTransient(err):
		return metrics.ResultTransient
	case err != nil:
		return metrics.ResultFailed
	case len(rep.Rejected) > 0:
		return metrics.ResultRejected
	case len(rep.Applied) > 0:
		return metrics.ResultApplied
	}
	return metrics.ResultNoop
}
