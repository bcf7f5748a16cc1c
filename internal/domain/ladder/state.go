package ladder

import (
	"slices"
	"strings"
	"time"

	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rating"
	"github.com/okian/ladder/internal/domain/rejection"
)

// Player is a ladder competitor. Counters are per series; game counters
// count individual replays.
type Player struct {
	Name          string    `json:"name"`
	Rating        float64   `json:"rating"`
	Tier          string    `json:"tier"`
	InitialRating float64   `json:"initial_rating"`
	InitialSkill  float64   `json:"initial_skill"`
	InitialMu     float64   `json:"initial_mu"`
	InitialSigma  float64   `json:"initial_sigma"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Matches       int       `json:"matches_played"`
	GameWins      int       `json:"game_wins"`
	GameLosses    int       `json:"game_losses"`
	FirstSeen     time.Time `json:"first_seen"`
	LastPlayed    time.Time `json:"last_played"`
}

// WinRate is the series win percentage.
func (p *Player) WinRate() float64 {
	if p.Matches == 0 {
		return 0
	}
	return float64(p.Wins) / float64(p.Matches) * 100
}

// SeriesRecord is one accepted series with the rating exchange it caused.
type SeriesRecord struct {
	SubmissionID string              `json:"submission_id"`
	SubmittedAt  time.Time           `json:"submitted_at"`
	SubmittedBy  string              `json:"submitted_by,omitempty"`
	Outcome      model.SeriesOutcome `json:"outcome"`
	Replays      []model.Replay      `json:"replays"`
	Magnitude    float64             `json:"magnitude"`
	Before       map[string]float64  `json:"rating_before"`
	After        map[string]float64  `json:"rating_after"`
	TiersAfter   map[string]string   `json:"tiers_after"`
	Placed       []string            `json:"placed,omitempty"` // players first seen in this series
}

// Rejection is a terminal rejection kept so the submission is not retried.
type Rejection struct {
	SubmissionID string         `json:"submission_id"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Code         rejection.Code `json:"code"`
	ReplayID     string         `json:"replay_id,omitempty"`
	Reason       string         `json:"reason"`
}

// State is everything the ladder knows. It is owned by one run at a time.
type State struct {
	Players   map[string]*Player `json:"players"`
	Series    []SeriesRecord     `json:"series"`
	Processed []string           `json:"processed"`
	Rejected  []Rejection        `json:"rejected"`

	ledger  *dedupe.Ledger
	settled map[string]struct{}
}

// NewState returns an empty ladder.
func NewState() *State {
	return &State{Players: make(map[string]*Player)}
}

// seen lazily rebuilds the accepted-replay ledger from the series log.
func (s *State) seen() *dedupe.Ledger {
	if s.ledger == nil {
		s.ledger = dedupe.NewLedger(dedupe.WithCapacity(len(s.Series) * 3))
		for _, rec := range s.Series {
			s.ledger.Record(rec.SubmissionID, rec.Outcome.ReplayIDs)
		}
	}
	return s.ledger
}

// Settled reports whether a submission was already accepted or rejected.
func (s *State) Settled(id string) bool {
	if s.settled == nil {
		s.settled = make(map[string]struct{}, len(s.Processed)+len(s.Rejected))
		for _, p := range s.Processed {
			s.settled[p] = struct{}{}
		}
		for _, r := range s.Rejected {
			s.settled[r.SubmissionID] = struct{}{}
		}
	}
	_, ok := s.settled[id]
	return ok
}

func (s *State) settle(id string) {
	s.Settled(id)
	s.settled[id] = struct{}{}
}

// Reject logs a terminal rejection of sub so it is never retried. The
// returned error is re attributed to the submission.
func (s *State) Reject(sub model.Submission, re *rejection.Error) *rejection.Error {
	re = re.For(sub.ID)
	s.Rejected = append(s.Rejected, Rejection{
		SubmissionID: sub.ID,
		SubmittedAt:  sub.SubmittedAt,
		Code:         re.Code,
		ReplayID:     re.ReplayID,
		Reason:       re.Reason,
	})
	s.settle(sub.ID)
	return re
}

// Latest returns the submission time and id of the newest submission folded
// into the state, newest by Compare. Both are zero for an empty ladder.
func (s *State) Latest() (time.Time, string) {
	var head model.Submission
	consider := func(at time.Time, id string) {
		if Compare(model.Submission{ID: id, SubmittedAt: at}, head) > 0 {
			head = model.Submission{ID: id, SubmittedAt: at}
		}
	}
	for _, rec := range s.Series {
		consider(rec.SubmittedAt, rec.SubmissionID)
	}
	for _, r := range s.Rejected {
		consider(r.SubmittedAt, r.SubmissionID)
	}
	return head.SubmittedAt, head.ID
}

// Retier re-derives every tier from its rating.
func (s *State) Retier(e *rating.Engine) {
	for _, p := range s.Players {
		p.Tier = e.TierFor(p.Rating)
	}
}

// Standings returns players ordered by rating, highest first, ties by name.
func (s *State) Standings() []*Player {
	out := make([]*Player, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int {
		switch {
		case a.Rating > b.Rating:
			return -1
		case a.Rating < b.Rating:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Compare orders submissions chronologically, ties by id.
func Compare(a, b model.Submission) int {
	if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Order sorts submissions by Compare.
func Order(subs []model.Submission) []model.Submission {
	out := slices.Clone(subs)
	slices.SortStableFunc(out, Compare)
	return out
}
