package synth_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/domain/replay"
	"github.com/okian/ladder/internal/domain/series"
	"github.com/okian/ladder/internal/synth"
	. "github.com/smartystreets/goconvey/convey"
)

var at = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func validateAll(sub model.Submission) ([]model.Replay, error) {
	v := replay.NewValidator()
	out := make([]model.Replay, 0, len(sub.Replays))
	for _, raw := range sub.Replays {
		r, err := v.ValidateAt(raw, sub.SubmittedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func TestGenerator(t *testing.T) {
	Convey("Given two generators with the same seed", t, func() {
		a := synth.New(7).History(20)
		b := synth.New(7).History(20)

		Convey("Then they should produce the same history", func() {
			So(cmp.Diff(a, b), ShouldBeEmpty)
		})

		Convey("Then submissions should be chronological with unique ids", func() {
			ids := map[string]struct{}{}
			for i, s := range a {
				if i > 0 {
					So(s.SubmittedAt.After(a[i-1].SubmittedAt), ShouldBeTrue)
				}
				ids[s.ID] = struct{}{}
			}
			So(len(ids), ShouldEqual, 20)
		})
	})

	Convey("Given a valid generated submission", t, func() {
		sub := synth.New(3, synth.WithPlayers(4)).Submission(synth.KindValid, at)

		Convey("Then its replays should validate and form a legal series", func() {
			replays, err := validateAll(sub)
			So(err, ShouldBeNil)
			So(len(replays), ShouldBeBetweenOrEqual, 2, 3)
			out, err := series.NewValidator().Validate(sub.Players, replays)
			So(err, ShouldBeNil)
			So(out.Wins[out.Winner], ShouldEqual, 2)
		})
	})

	Convey("Given a split submission", t, func() {
		sub := synth.New(11).Submission(synth.KindSplit, at)

		Convey("Then the series validator should find no winner", func() {
			replays, err := validateAll(sub)
			So(err, ShouldBeNil)
			_, err = series.NewValidator().Validate(sub.Players, replays)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeNoSeriesWinner)
		})
	})

	Convey("Given a stale submission", t, func() {
		sub := synth.New(5).Submission(synth.KindStale, at)

		Convey("Then one replay should fail the age check", func() {
			_, err := validateAll(sub)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeReplayTooOld)
		})
	})

	Convey("Given a mismatched submission", t, func() {
		sub := synth.New(5).Submission(synth.KindMismatch, at)

		Convey("Then the claimed players should disagree with the replays", func() {
			replays, err := validateAll(sub)
			So(err, ShouldBeNil)
			_, err = series.NewValidator().Validate(sub.Players, replays)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodePlayerMismatch)
		})
	})

	Convey("Given a generator that has issued a valid series", t, func() {
		g := synth.New(9)
		first := g.Submission(synth.KindValid, at)
		again := g.Submission(synth.KindResubmitted, at.Add(time.Hour))

		Convey("Then a resubmission should reuse its replays under a new id", func() {
			So(again.ID, ShouldNotEqual, first.ID)
			So(cmp.Diff(first.Replays, again.Replays), ShouldBeEmpty)
			So(again.Players, ShouldResemble, first.Players)
		})
	})
}
