// Package repository persists ladder documents as whole JSON files.
package repository

import (
	"context"
	"time"

	"github.com/okian/ladder/internal/domain/ladder"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/projection"
	"github.com/okian/ladder/internal/domain/types"
)

// Document file names inside the data directory.
const (
	LeaderboardFile    = "leaderboard.json"
	ReplayDatabaseFile = "replay_database.json"
	MatchHistoryFile   = "player_match_history.json"
	StateFile          = ".ladder_state.json"
)

// SnapshotVersion is the state document layout written by this build.
const SnapshotVersion = 1

// Snapshot is the persisted state document. The ladder state is inlined.
type Snapshot struct {
	Version           int       `json:"version"`
	ConfigFingerprint string    `json:"config_fingerprint"`
	LastRunID         string    `json:"last_run_id,omitempty"`
	LastRunAt         time.Time `json:"last_run_at"`
	Mode              string    `json:"mode,omitempty"`
	*ladder.State
}

// Store provides read/write access to the ladder documents.
type Store interface {
	// Submissions returns every submission document. Files that cannot be
	// decoded, or that repeat an id declared by another file, come back with
	// Malformed set instead of failing the listing.
	Submissions(ctx context.Context) ([]model.Submission, error)
	// WriteSubmission stores one submission document.
	WriteSubmission(ctx context.Context, sub model.Submission) error

	// Load returns the persisted state, or an empty one when none exists.
	Load(ctx context.Context) (*Snapshot, error)
	// Commit replaces the state and every derived document together.
	Commit(ctx context.Context, snap *Snapshot, docs projection.Documents) error

	// Leaderboard returns the published leaderboard.
	// Returns ErrNotFound before the first commit.
	Leaderboard(ctx context.Context) (types.Leaderboard, error)
	// ReplayDatabase returns the published replay database.
	ReplayDatabase(ctx context.Context) (types.ReplayDatabase, error)
	// MatchHistory returns the published per-player history.
	MatchHistory(ctx context.Context) (types.MatchHistory, error)
}
