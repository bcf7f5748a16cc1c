package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/okian/ladder/internal/domain/ladder"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/projection"
	"github.com/okian/ladder/internal/domain/types"
	"github.com/okian/ladder/pkg/logger"
)

const (
	defaultFileMode fs.FileMode = 0o644
	dirMode         fs.FileMode = 0o755
	submissionExt               = ".json"
)

// FileStore keeps submissions and documents as JSON files on disk. It is
// owned by one run at a time; concurrent runs are serialized by the caller.
type FileStore struct {
	submissionsDir string
	dataDir        string
	mode           fs.FileMode
	indent         string
	log            logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store reading submissions from submissionsDir and
// writing documents to dataDir.
func NewFileStore(submissionsDir, dataDir string, opts ...Option) *FileStore {
	s := &FileStore{
		submissionsDir: submissionsDir,
		dataDir:        dataDir,
		mode:           defaultFileMode,
		indent:         "  ",
		log:            logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submissions lists submission documents in file name order. A missing
// directory is an empty history.
func (s *FileStore) Submissions(ctx context.Context) ([]model.Submission, error) {
	entries, err := os.ReadDir(s.submissionsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}

	subs := make([]model.Submission, 0, len(entries))
	stems := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != submissionExt {
			continue
		}
		stem := strings.TrimSuffix(name, submissionExt)

		data, err := os.ReadFile(filepath.Join(s.submissionsDir, name))
		if err != nil {
			return nil, fmt.Errorf("read submission %s: %w", name, err)
		}
		var sub model.Submission
		if err := json.Unmarshal(data, &sub); err != nil {
			s.log.Warn(ctx, "undecodable submission", logger.String("file", name), logger.Error(err))
			sub = model.Submission{Malformed: fmt.Sprintf("decode %s: %v", name, err)}
		}
		if sub.ID == "" {
			sub.ID = stem
		}
		subs = append(subs, sub)
		stems = append(stems, stem)
	}
	s.claimIDs(ctx, subs, stems)
	return subs, nil
}

// claimIDs leaves each declared id to one file: the one named after it, else
// the earliest submitted. Every other file claiming the id is renamed to its
// file stem and marked malformed, so runs reject it rather than mistake it
// for the settled owner.
func (s *FileStore) claimIDs(ctx context.Context, subs []model.Submission, stems []string) {
	byID := make(map[string][]int, len(subs))
	for i, sub := range subs {
		byID[sub.ID] = append(byID[sub.ID], i)
	}
	for id, idx := range byID {
		if len(idx) < 2 {
			continue
		}
		named := func(i int) int {
			if stems[i] == id {
				return 0
			}
			return 1
		}
		owner := slices.MinFunc(idx, func(a, b int) int {
			return cmp.Or(
				cmp.Compare(named(a), named(b)),
				subs[a].SubmittedAt.Compare(subs[b].SubmittedAt),
				cmp.Compare(stems[a], stems[b]),
			)
		})
		for _, i := range idx {
			if i == owner {
				continue
			}
			renamed := stems[i]
			if _, taken := byID[renamed]; taken {
				renamed += submissionExt
			}
			s.log.Warn(ctx, "duplicate submission id",
				logger.String("id", id),
				logger.String("file", stems[i]+submissionExt),
				logger.String("kept", stems[owner]+submissionExt),
			)
			subs[i].ID = renamed
			if subs[i].Malformed == "" {
				subs[i].Malformed = fmt.Sprintf("duplicate submission id %q, also declared by %s", id, stems[owner]+submissionExt)
			}
		}
	}
}

// WriteSubmission stores sub as <id>.json in the submissions directory.
func (s *FileStore) WriteSubmission(ctx context.Context, sub model.Submission) error {
	if sub.ID == "" || strings.ContainsAny(sub.ID, `/\`) {
		return fmt.Errorf("submission id %q is not a file name", sub.ID)
	}
	data, err := s.marshal(sub)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.submissionsDir, dirMode); err != nil {
		return fmt.Errorf("create submissions dir: %w", err)
	}
	tmp, err := s.stage(s.submissionsDir, sub.ID+submissionExt, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.submissionsDir, sub.ID+submissionExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store submission %s: %w", sub.ID, err)
	}
	return ctx.Err()
}

// Load reads the state document.
func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.read(StateFile, &snap)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Snapshot{Version: SnapshotVersion, State: ladder.NewState()}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	case snap.Version > SnapshotVersion:
		return nil, fmt.Errorf("%w: version %d is newer than %d", ErrCorruptState, snap.Version, SnapshotVersion)
	}
	if snap.State == nil {
		snap.State = ladder.NewState()
	}
	if snap.Players == nil {
		snap.Players = make(map[string]*ladder.Player)
	}
	return &snap, nil
}

// Commit serializes every document, stages each next to its target, and
// only then renames them into place with the state document last. Nothing
// is renamed when any document fails to stage.
func (s *FileStore) Commit(ctx context.Context, snap *Snapshot, docs projection.Documents) error {
	if snap == nil || snap.State == nil {
		return fmt.Errorf("%w: empty snapshot", ErrCommitFailed)
	}
	snap.Version = SnapshotVersion

	payloads := []struct {
		name string
		v    any
	}{
		{LeaderboardFile, docs.Leaderboard},
		{ReplayDatabaseFile, docs.ReplayDatabase},
		{MatchHistoryFile, docs.MatchHistory},
		{StateFile, snap},
	}

	if err := os.MkdirAll(s.dataDir, dirMode); err != nil {
		return fmt.Errorf("%w: create data dir: %w", ErrCommitFailed, err)
	}

	staged := make([]string, 0, len(payloads))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}
	for _, p := range payloads {
		data, err := s.marshal(p.v)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %s: %w", ErrCommitFailed, p.name, err)
		}
		tmp, err := s.stage(s.dataDir, p.name, data)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
		staged = append(staged, tmp)
	}
	if err := ctx.Err(); err != nil {
		cleanup()
		return err
	}

	for i, p := range payloads {
		if err := os.Rename(staged[i], filepath.Join(s.dataDir, p.name)); err != nil {
			staged = staged[i:]
			cleanup()
			return fmt.Errorf("%w: rename %s: %w", ErrCommitFailed, p.name, err)
		}
	}
	return nil
}

// Leaderboard reads the published leaderboard.
func (s *FileStore) Leaderboard(_ context.Context) (types.Leaderboard, error) {
	var lb types.Leaderboard
	return lb, s.read(LeaderboardFile, &lb)
}

// ReplayDatabase reads the published replay database.
func (s *FileStore) ReplayDatabase(_ context.Context) (types.ReplayDatabase, error) {
	var db types.ReplayDatabase
	return db, s.read(ReplayDatabaseFile, &db)
}

// MatchHistory reads the published match history.
func (s *FileStore) MatchHistory(_ context.Context) (types.MatchHistory, error) {
	var h types.MatchHistory
	return h, s.read(MatchHistoryFile, &h)
}

func (s *FileStore) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) marshal(v any) ([]byte, error) {
	if s.indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", s.indent)
}

// stage writes data to a synced temp file in dir and returns its path.
func (s *FileStore) stage(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	tmp := f.Name()
	fail := func(err error) (string, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fail(err)
	}
	if err := f.Chmod(s.mode); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	return tmp, nil
}
