package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/types"
)

const (
	maxSuggestions  = 5
	maxEditDistance = 2
)

// TopN returns the first n leaderboard entries. Before the first run the
// leaderboard is empty.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	lb, err := s.store.Leaderboard(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return []types.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if n < len(lb.Entries) {
		return lb.Entries[:n], nil
	}
	return lb.Entries, nil
}

// Player returns the leaderboard entry for name. An unknown name yields a
// *NotFoundError listing close matches.
func (s *Service) Player(ctx context.Context, name string) (types.Entry, error) {
	lb, err := s.store.Leaderboard(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return types.Entry{}, err
	}
	names := make([]string, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		if e.PlayerName == name {
			return e, nil
		}
		names = append(names, e.PlayerName)
	}
	return types.Entry{}, &NotFoundError{Name: name, Suggestions: suggest(name, names)}
}

// PlayerHistory returns the match history of name.
func (s *Service) PlayerHistory(ctx context.Context, name string) (types.PlayerHistory, error) {
	h, err := s.store.MatchHistory(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return types.PlayerHistory{}, err
	}
	if ph, ok := h.Players[name]; ok {
		return ph, nil
	}
	names := make([]string, 0, len(h.Players))
	for n := range h.Players {
		names = append(names, n)
	}
	return types.PlayerHistory{}, &NotFoundError{Name: name, Suggestions: suggest(name, names)}
}

// Stats summarizes the persisted ladder.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return types.Stats{}, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	st := types.Stats{
		UpdatedAt:         snap.LastRunAt,
		Players:           len(snap.Players),
		Series:            len(snap.Series),
		Rejected:          len(snap.Rejected),
		RejectionsByCode:  make(map[string]int),
		PlayersByTier:     make(map[string]int),
		ConfigFingerprint: snap.ConfigFingerprint,
		LastRunID:         snap.LastRunID,
	}
	for _, rec := range snap.Series {
		st.Replays += len(rec.Replays)
	}
	for _, rj := range snap.Rejected {
		st.RejectionsByCode[string(rj.Code)]++
	}
	engine := s.driver.Engine()
	for _, p := range snap.Players {
		st.PlayersByTier[engine.TierFor(p.Rating)]++
	}
	return st, nil
}

// suggest ranks known names by fuzzy match against name, falling back to
// edit distance for typos that are not subsequences.
func suggest(name string, known []string) []string {
	ranks := fuzzy.RankFindNormalizedFold(name, known)
	if len(ranks) == 0 {
		lower := strings.ToLower(name)
		for i, k := range known {
			if d := fuzzy.LevenshteinDistance(lower, strings.ToLower(k)); d <= maxEditDistance {
				ranks = append(ranks, fuzzy.Rank{Source: name, Target: k, Distance: d, OriginalIndex: i})
			}
		}
	}
	slices.SortFunc(ranks, func(a, b fuzzy.Rank) int {
		if a.Distance != b.Distance {
			return a.Distance - b.Distance
		}
		return strings.Compare(a.Target, b.Target)
	})
	out := make([]string, 0, min(len(ranks), maxSuggestions))
	for _, r := range ranks {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, r.Target)
	}
	return out
}
