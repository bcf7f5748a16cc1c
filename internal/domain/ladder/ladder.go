// Package ladder sequences the validation pipeline and the rating engine in
// the two recomputation modes. Incremental applied once per submission in
// chronological order yields the same State as Full over the same history.
package ladder

import (
	"context"
	"errors"

	"github.com/okian/ladder/internal/domain/admission"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rating"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/domain/replay"
	"github.com/okian/ladder/internal/domain/series"
)

// Resolver completes submissions whose replays are only referenced by id or
// URL. Failures are rejections; transient ones abort the run.
type Resolver interface {
	Resolve(ctx context.Context, sub model.Submission) (model.Submission, error)
}

// Driver runs submissions through the pipeline. It holds no ladder state.
type Driver struct {
	replays  *replay.Validator
	series   *series.Validator
	engine   *rating.Engine
	resolver Resolver
}

// NewDriver creates a Driver with default stages.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		replays: replay.NewValidator(),
		series:  series.NewValidator(),
		engine:  rating.NewEngine(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Engine exposes the rating engine used by the driver.
func (d *Driver) Engine() *rating.Engine { return d.engine }

// Incremental folds one submission into state. On success the series record
// is returned and state holds the new ratings. A terminal rejection is logged
// in state.Rejected and returned, ratings untouched. A transient error leaves
// state exactly as it was.
func (d *Driver) Incremental(ctx context.Context, state *State, sub model.Submission) (*SeriesRecord, error) {
	if state.Settled(sub.ID) {
		return nil, ErrAlreadySettled
	}
	rec, err := d.evaluate(ctx, state, sub)
	if err != nil {
		if !rejection.IsTerminal(err) {
			return nil, err
		}
		re, _ := rejection.As(err)
		return nil, state.Reject(sub, re)
	}
	d.apply(state, rec)
	return rec, nil
}

// Outcome summarizes a Full run.
type Outcome struct {
	Applied  []*SeriesRecord
	Rejected []error
}

// Full rebuilds the ladder from an empty state over subs in chronological
// order. It stops at the first transient error and returns no state.
func (d *Driver) Full(ctx context.Context, subs []model.Submission) (*State, Outcome, error) {
	state := NewState()
	var out Outcome
	for _, sub := range Order(subs) {
		if err := ctx.Err(); err != nil {
			return nil, Outcome{}, err
		}
		rec, err := d.Incremental(ctx, state, sub)
		switch {
		case err == nil:
			out.Applied = append(out.Applied, rec)
		case errors.Is(err, ErrAlreadySettled):
		case rejection.IsTerminal(err):
			out.Rejected = append(out.Rejected, err)
		default:
			return nil, Outcome{}, err
		}
	}
	return state, out, nil
}

// evaluate runs every check without mutating state.
func (d *Driver) evaluate(ctx context.Context, state *State, sub model.Submission) (*SeriesRecord, error) {
	if sub.Malformed != "" {
		return nil, rejection.New(rejection.CodeMalformedSubmission, "", "%s", sub.Malformed)
	}
	if sub.ID == "" {
		return nil, rejection.New(rejection.CodeMalformedSubmission, "", "submission has no id")
	}
	if sub.SubmittedAt.IsZero() {
		return nil, rejection.New(rejection.CodeMissingField, "", "submission has no submitted_at")
	}
	if d.resolver != nil {
		resolved, err := d.resolver.Resolve(ctx, sub)
		if err != nil {
			return nil, err
		}
		sub = resolved
	}

	replays := make([]model.Replay, 0, len(sub.Replays))
	for _, raw := range sub.Replays {
		r, err := d.replays.Validate(raw)
		if err != nil {
			return nil, err
		}
		replays = append(replays, r)
	}

	outcome, err := d.series.Validate(sub.Players, replays)
	if err != nil {
		return nil, err
	}

	// submission time is the age reference so that Full judges a
	// submission the same way its incremental run did
	if err := admission.NewFilter(state.seen(), d.replays).Admit(replays, sub.SubmittedAt); err != nil {
		return nil, err
	}

	return &SeriesRecord{
		SubmissionID: sub.ID,
		SubmittedAt:  sub.SubmittedAt,
		SubmittedBy:  sub.SubmittedBy,
		Outcome:      outcome,
		Replays:      replays,
	}, nil
}

// apply performs the single rating update of an admitted series.
func (d *Driver) apply(state *State, rec *SeriesRecord) {
	winner := d.player(state, rec, rec.Outcome.Winner)
	loser := d.player(state, rec, rec.Outcome.Loser)

	rec.Before = map[string]float64{winner.Name: winner.Rating, loser.Name: loser.Rating}
	rec.Magnitude = d.engine.Magnitude(winner.Rating, loser.Rating)

	w := d.engine.ApplyResult(winner.Rating, loser.Rating, true)
	l := d.engine.ApplyResult(loser.Rating, winner.Rating, false)
	winner.Rating, winner.Tier = w.Rating, w.Tier
	loser.Rating, loser.Tier = l.Rating, l.Tier

	rec.After = map[string]float64{winner.Name: winner.Rating, loser.Name: loser.Rating}
	rec.TiersAfter = map[string]string{winner.Name: winner.Tier, loser.Name: loser.Tier}

	winner.Wins++
	loser.Losses++
	for _, p := range []*Player{winner, loser} {
		p.Matches++
		p.LastPlayed = rec.SubmittedAt
		p.GameWins += rec.Outcome.Wins[p.Name]
	}
	winner.GameLosses += rec.Outcome.Wins[loser.Name]
	loser.GameLosses += rec.Outcome.Wins[winner.Name]

	admission.NewFilter(state.seen(), d.replays).Commit(rec.SubmissionID, rec.Outcome.ReplayIDs)
	state.Series = append(state.Series, *rec)
	state.Processed = append(state.Processed, rec.SubmissionID)
	state.settle(rec.SubmissionID)
}

// player returns the ladder entry for name, placing it from its first
// replay appearance when it is new.
func (d *Driver) player(state *State, rec *SeriesRecord, name string) *Player {
	if p, ok := state.Players[name]; ok {
		return p
	}
	var first model.Participant
	for _, r := range rec.Replays {
		if p, ok := r.Participant(name); ok {
			first = p
			break
		}
	}
	placed := d.engine.Place(first.Mu, first.Sigma)
	p := &Player{
		Name:          name,
		Rating:        placed.Rating,
		Tier:          placed.Tier,
		InitialRating: placed.Rating,
		InitialSkill:  first.Mu - first.Sigma,
		InitialMu:     first.Mu,
		InitialSigma:  first.Sigma,
		FirstSeen:     rec.SubmittedAt,
	}
	state.Players[name] = p
	rec.Placed = append(rec.Placed, name)
	return p
}
