package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/okian/ladder/internal/adapters/repository"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/synth"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	start = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	clock = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
)

type downResolver struct{}

func (downResolver) Resolve(_ context.Context, sub model.Submission) (model.Submission, error) {
	for _, raw := range sub.Replays {
		if _, full := raw["AllyTeams"]; !full {
			id, _ := raw["id"].(string)
			return sub, rejection.Transient(id, errors.New("connection refused"))
		}
	}
	return sub, nil
}

func newService(t *testing.T, opts ...service.Option) (*service.Service, *repository.FileStore, string) {
	t.Helper()
	cfg := config.New(context.Background())
	root := t.TempDir()
	cfg.SubmissionsDir = filepath.Join(root, "submissions")
	cfg.DataDir = filepath.Join(root, "data")
	store := repository.NewFileStore(cfg.SubmissionsDir, cfg.DataDir)

	n := 0
	base := []service.Option{
		service.WithStore(store),
		service.WithClock(clock),
		service.WithRunIDs(func() string { n++; return fmt.Sprintf("run-%d", n) }),
	}
	return service.New(cfg, append(base, opts...)...), store, cfg.DataDir
}

func write(store *repository.FileStore, subs ...model.Submission) {
	for _, sub := range subs {
		So(store.WriteSubmission(context.Background(), sub), ShouldBeNil)
	}
}

func TestRun(t *testing.T) {
	Convey("Given a service over an empty data directory", t, func() {
		ctx := context.Background()
		svc, store, _ := newService(t)

		Convey("When an incremental run finds nothing", func() {
			rep, err := svc.Run(ctx, service.ModeIncremental)

			Convey("Then it is a no-op that writes nothing", func() {
				So(err, ShouldBeNil)
				So(rep.Pending, ShouldEqual, 0)
				So(rep.Committed, ShouldBeFalse)
				_, err := store.Leaderboard(ctx)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a history is submitted and processed incrementally", func() {
			history := synth.New(5, synth.WithStart(start)).History(20)
			write(store, history...)

			rep, err := svc.Run(ctx, service.ModeIncremental)
			So(err, ShouldBeNil)

			Convey("Then every submission is settled and the documents are written", func() {
				So(rep.RunID, ShouldEqual, "run-1")
				So(rep.Pending, ShouldEqual, len(history))
				So(len(rep.Applied)+len(rep.Rejected), ShouldEqual, len(history))
				So(len(rep.Applied), ShouldBeGreaterThan, 0)
				So(rep.Committed, ShouldBeTrue)

				lb, err := store.Leaderboard(ctx)
				So(err, ShouldBeNil)
				So(lb.UpdatedAt.Equal(clock()), ShouldBeTrue)
				for i := 1; i < len(lb.Entries); i++ {
					So(lb.Entries[i-1].Rating, ShouldBeGreaterThanOrEqualTo, lb.Entries[i].Rating)
				}
			})

			Convey("Then a second incremental run is a no-op", func() {
				again, err := svc.Run(ctx, service.ModeIncremental)
				So(err, ShouldBeNil)
				So(again.Pending, ShouldEqual, 0)
				So(again.Committed, ShouldBeFalse)
			})

			Convey("Then a full recalculation publishes the same leaderboard", func() {
				before, err := store.Leaderboard(ctx)
				So(err, ShouldBeNil)

				full, err := svc.Run(ctx, service.ModeFull)
				So(err, ShouldBeNil)
				So(full.Committed, ShouldBeTrue)
				So(len(full.Applied), ShouldEqual, len(rep.Applied))

				after, err := store.Leaderboard(ctx)
				So(err, ShouldBeNil)
				diff := cmp.Diff(before.Entries, after.Entries, cmpopts.EquateApprox(0, 1e-9))
				So(diff, ShouldBeEmpty)

				snap, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(snap.Mode, ShouldEqual, "full")
				So(snap.LastRunID, ShouldEqual, "run-2")
			})

			Convey("Then a late submission is applied and flagged out of order", func() {
				late := synth.New(99, synth.WithStart(start)).Submission(synth.KindValid, start)
				write(store, late)

				next, err := svc.Run(ctx, service.ModeIncremental)
				So(err, ShouldBeNil)
				So(next.Pending, ShouldEqual, 1)
				So(next.OutOfOrder, ShouldResemble, []string{late.ID})
				So(len(next.Applied), ShouldEqual, 1)
			})

			Convey("Then stats reflect the persisted ladder", func() {
				st, err := svc.Stats(ctx)
				So(err, ShouldBeNil)
				So(st.Series, ShouldEqual, len(rep.Applied))
				So(st.Rejected, ShouldEqual, len(rep.Rejected))
				So(st.LastRunID, ShouldEqual, "run-1")
				So(st.ConfigFingerprint, ShouldNotBeEmpty)

				total := 0
				for _, n := range st.PlayersByTier {
					total += n
				}
				So(total, ShouldEqual, st.Players)
			})
		})

		Convey("When an unknown mode is requested", func() {
			_, err := svc.Run(ctx, service.Mode("partial"))
			So(errors.Is(err, service.ErrUnknownMode), ShouldBeTrue)
		})
	})

	Convey("Given a processed submission and a late one sharing its timestamp", t, func() {
		ctx := context.Background()
		svc, store, _ := newService(t)

		at := start.Add(time.Hour)
		gen := synth.New(21, synth.WithStart(start), synth.WithPlayers(2))
		first := gen.Submission(synth.KindValid, at)
		first.ID = "b"
		late := gen.Submission(synth.KindValid, at)
		late.ID = "a"

		write(store, first)
		rep, err := svc.Run(ctx, service.ModeIncremental)
		So(err, ShouldBeNil)
		So(len(rep.Applied), ShouldEqual, 1)
		write(store, late)

		Convey("When the late one is processed incrementally", func() {
			next, err := svc.Run(ctx, service.ModeIncremental)

			Convey("Then it is flagged out of order because it sorts before the head", func() {
				So(err, ShouldBeNil)
				So(next.OutOfOrder, ShouldResemble, []string{"a"})
				So(len(next.Applied), ShouldEqual, 1)
			})
		})
	})

	Convey("Given two submission files declaring the same id", t, func() {
		ctx := context.Background()
		svc, store, dataDir := newService(t)

		owner := synth.New(34, synth.WithStart(start)).Submission(synth.KindValid, start.Add(time.Hour))
		owner.ID = "x"
		write(store, owner)
		body, err := json.Marshal(owner)
		So(err, ShouldBeNil)
		copyPath := filepath.Join(filepath.Dir(dataDir), "submissions", "copy.json")
		So(os.WriteFile(copyPath, body, 0o644), ShouldBeNil)

		for _, mode := range []service.Mode{service.ModeIncremental, service.ModeFull} {
			Convey(fmt.Sprintf("When running %s", mode), func() {
				rep, err := svc.Run(ctx, mode)

				Convey("Then the copy is rejected as malformed under its file stem", func() {
					So(err, ShouldBeNil)
					So(len(rep.Applied), ShouldEqual, 1)
					So(len(rep.Rejected), ShouldEqual, 1)
					So(rep.Rejected[0].Code, ShouldEqual, rejection.CodeMalformedSubmission)
					So(rep.Rejected[0].SubmissionID, ShouldEqual, "copy")
				})
			})
		}
	})

	Convey("Given a replay service that is down", t, func() {
		ctx := context.Background()
		svc, store, _ := newService(t, service.WithResolver(downResolver{}))

		valid := synth.New(8, synth.WithStart(start)).Submission(synth.KindValid, start.Add(time.Hour))
		refs := model.Submission{
			ID:          "refs",
			SubmittedAt: start.Add(2 * time.Hour),
			Players:     []string{"alice", "bob"},
			Replays:     []map[string]any{{"id": "r1"}, {"id": "r2"}},
		}
		write(store, valid, refs)

		Convey("When running incrementally", func() {
			rep, err := svc.Run(ctx, service.ModeIncremental)

			Convey("Then the run aborts transiently and persists nothing", func() {
				So(rejection.IsTransient(err), ShouldBeTrue)
				So(rep.Committed, ShouldBeFalse)
				snap, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(snap.Processed, ShouldBeEmpty)
				So(snap.Rejected, ShouldBeEmpty)
			})
		})

		Convey("When running a full recalculation", func() {
			_, err := svc.Run(ctx, service.ModeFull)
			So(rejection.IsTransient(err), ShouldBeTrue)
			_, err = store.Leaderboard(ctx)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestReads(t *testing.T) {
	Convey("Given a processed ladder", t, func() {
		ctx := context.Background()
		svc, store, _ := newService(t)
		write(store, synth.New(13, synth.WithStart(start), synth.WithInvalidRatio(0)).History(10)...)
		_, err := svc.Run(ctx, service.ModeIncremental)
		So(err, ShouldBeNil)

		entries, err := svc.TopN(ctx, 500)
		So(err, ShouldBeNil)
		So(entries, ShouldNotBeEmpty)

		Convey("When asking for fewer entries than exist", func() {
			top, err := svc.TopN(ctx, 1)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 1)
			So(top[0], ShouldResemble, entries[0])
		})

		Convey("When looking up a known player", func() {
			name := entries[len(entries)-1].PlayerName
			e, err := svc.Player(ctx, name)
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, len(entries))

			h, err := svc.PlayerHistory(ctx, name)
			So(err, ShouldBeNil)
			So(h.Name, ShouldEqual, name)
			So(h.SeriesPlayed, ShouldEqual, e.MatchesPlayed)
		})

		Convey("When looking up a misspelled player", func() {
			name := entries[0].PlayerName
			typo := name[:len(name)-1]
			_, err := svc.Player(ctx, typo)

			Convey("Then the error suggests the real name", func() {
				So(errors.Is(err, service.ErrPlayerNotFound), ShouldBeTrue)
				var nf *service.NotFoundError
				So(errors.As(err, &nf), ShouldBeTrue)
				So(nf.Suggestions, ShouldContain, name)
			})
		})

		Convey("When the history of an unknown player is requested", func() {
			_, err := svc.PlayerHistory(ctx, "nobody-at-all-xyz")
			So(errors.Is(err, service.ErrPlayerNotFound), ShouldBeTrue)
		})
	})

	Convey("Given nothing was published yet", t, func() {
		svc, _, _ := newService(t)
		entries, err := svc.TopN(context.Background(), 10)
		So(err, ShouldBeNil)
		So(entries, ShouldBeEmpty)
	})
}
