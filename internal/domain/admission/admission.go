// Package admission applies submission-wide gates before a series may touch
// ratings: duplicate detection, resubmission detection and the age limit.
package admission

import (
	"time"

	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
)

// AgeChecker rejects replays that are too old relative to ref.
type AgeChecker interface {
	CheckAge(r model.Replay, ref time.Time) error
}

// Filter runs the gates in a fixed order; the first failure wins.
type Filter struct {
	seen dedupe.Deduper
	age  AgeChecker
}

// NewFilter creates a Filter over the accepted-replay ledger.
func NewFilter(seen dedupe.Deduper, age AgeChecker) *Filter {
	return &Filter{seen: seen, age: age}
}

// Admit checks a validated series. Order:
//  1. a replay id repeated within the submission -> DuplicateReplay
//  2. the exact replay-id set was accepted before -> AlreadySubmitted
//  3. any replay id accepted before -> DuplicateReplay
//  4. any replay older than the limit at ref -> its age rejection
//
// Admit does not record anything; call Commit once the series is applied.
func (f *Filter) Admit(replays []model.Replay, ref time.Time) error {
	ids := make([]string, 0, len(replays))
	within := make(map[string]struct{}, len(replays))
	for _, r := range replays {
		if _, dup := within[r.ID]; dup {
			return rejection.New(rejection.CodeDuplicateReplay, r.ID, "replay appears twice in the submission")
		}
		within[r.ID] = struct{}{}
		ids = append(ids, r.ID)
	}

	if owner, ok := f.seen.SetOwner(ids); ok {
		return rejection.New(rejection.CodeAlreadySubmitted, "", "same replays were accepted in submission %s", owner)
	}
	for _, id := range ids {
		if owner, ok := f.seen.ReplayOwner(id); ok {
			return rejection.New(rejection.CodeDuplicateReplay, id, "replay already accepted in submission %s", owner)
		}
	}

	// the whole series goes when any one replay is too old
	for _, r := range replays {
		if err := f.age.CheckAge(r, ref); err != nil {
			return err
		}
	}
	return nil
}

// Commit records an applied series so later submissions see its replays.
func (f *Filter) Commit(submissionID string, replayIDs []string) {
	f.seen.Record(submissionID, replayIDs)
}
