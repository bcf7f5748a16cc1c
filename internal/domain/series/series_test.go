package series_test

import (
	"testing"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/domain/series"
	. "github.com/smartystreets/goconvey/convey"
)

func game(id, a, b, winner string) model.Replay {
	return model.Replay{
		ID:      id,
		Players: []model.Participant{{Name: a, Won: winner == a}, {Name: b, Won: winner == b}},
		Winner:  winner,
	}
}

func TestSeriesValidate(t *testing.T) {
	v := series.NewValidator()
	claimed := []string{"alice", "bob"}

	Convey("Given two replays won by the same player", t, func() {
		out, err := v.Validate(claimed, []model.Replay{
			game("r1", "alice", "bob", "alice"),
			game("r2", "bob", "alice", "alice"),
		})

		Convey("Then the series should be accepted for that player", func() {
			So(err, ShouldBeNil)
			So(out.Winner, ShouldEqual, "alice")
			So(out.Loser, ShouldEqual, "bob")
			So(out.Wins["alice"], ShouldEqual, 2)
			So(out.Wins["bob"], ShouldEqual, 0)
			So(out.ReplayIDs, ShouldResemble, []string{"r1", "r2"})
		})
	})

	Convey("Given a 2-1 series", t, func() {
		out, err := v.Validate(claimed, []model.Replay{
			game("r1", "alice", "bob", "bob"),
			game("r2", "alice", "bob", "alice"),
			game("r3", "alice", "bob", "bob"),
		})

		Convey("Then the player with two wins should take it", func() {
			So(err, ShouldBeNil)
			So(out.Winner, ShouldEqual, "bob")
			So(out.Wins["alice"], ShouldEqual, 1)
		})
	})

	Convey("Given two replays split 1-1", t, func() {
		_, err := v.Validate(claimed, []model.Replay{
			game("r1", "alice", "bob", "alice"),
			game("r2", "alice", "bob", "bob"),
		})

		Convey("Then it should be rejected with NoSeriesWinner", func() {
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeNoSeriesWinner)
		})
	})

	Convey("Given an undetermined replay", t, func() {
		Convey("When the other replays already decide the series", func() {
			out, err := v.Validate(claimed, []model.Replay{
				game("r1", "alice", "bob", "alice"),
				game("r2", "alice", "bob", ""),
				game("r3", "alice", "bob", "alice"),
			})

			Convey("Then it should be irrelevant to the outcome", func() {
				So(err, ShouldBeNil)
				So(out.Winner, ShouldEqual, "alice")
				So(out.Wins["alice"], ShouldEqual, 2)
			})
		})

		Convey("When the series cannot be decided without it", func() {
			_, err := v.Validate(claimed, []model.Replay{
				game("r1", "alice", "bob", "alice"),
				game("r2", "alice", "bob", ""),
			})

			Convey("Then it should be rejected with NoSeriesWinner", func() {
				So(rejection.CodeOf(err), ShouldEqual, rejection.CodeNoSeriesWinner)
			})
		})
	})

	Convey("Given replays between different players", t, func() {
		_, err := v.Validate(nil, []model.Replay{
			game("r1", "alice", "bob", "alice"),
			game("r2", "alice", "carol", "alice"),
		})

		Convey("Then it should be rejected with PlayerMismatch naming the replay", func() {
			re, ok := rejection.As(err)
			So(ok, ShouldBeTrue)
			So(re.Code, ShouldEqual, rejection.CodePlayerMismatch)
			So(re.ReplayID, ShouldEqual, "r2")
		})
	})

	Convey("Given replays that disagree with the claimed players", t, func() {
		_, err := v.Validate([]string{"alice", "dave"}, []model.Replay{
			game("r1", "alice", "bob", "alice"),
			game("r2", "alice", "bob", "alice"),
		})

		Convey("Then it should be rejected with PlayerMismatch", func() {
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodePlayerMismatch)
		})
	})

	Convey("Given a series with the wrong number of replays", t, func() {
		one := []model.Replay{game("r1", "alice", "bob", "alice")}
		four := append(append(one, one...), one[0], one[0])

		Convey("Then too few and too many should both be rejected", func() {
			_, err := v.Validate(claimed, one)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeInvalidSeriesLength)
			_, err = v.Validate(claimed, four)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeInvalidSeriesLength)
		})
	})

	Convey("Given a best-of-five validator", t, func() {
		bo5 := series.NewValidator(series.WithReplayBounds(3, 5), series.WithRequiredWins(3))
		_, err := bo5.Validate(claimed, []model.Replay{
			game("r1", "alice", "bob", "alice"),
			game("r2", "alice", "bob", "alice"),
			game("r3", "alice", "bob", "bob"),
		})

		Convey("Then two wins should not be enough", func() {
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeNoSeriesWinner)
		})
	})
}
