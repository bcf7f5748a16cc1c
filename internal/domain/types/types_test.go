package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/ladder/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLeaderboardJSON(t *testing.T) {
	Convey("Given a leaderboard with one entry", t, func() {
		lb := types.Leaderboard{
			UpdatedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			PlayerCount: 1,
			Entries: []types.Entry{{
				Rank: 1, PlayerName: "alice", Rating: 1652.5, Tier: "Gold", TierRank: 1,
				MatchesPlayed: 3, Wins: 2, Losses: 1, WinRate: 66.7,
			}},
		}

		Convey("When it is encoded", func() {
			b, err := json.Marshal(lb)

			Convey("Then it should use the published field names", func() {
				So(err, ShouldBeNil)
				var doc map[string]any
				So(json.Unmarshal(b, &doc), ShouldBeNil)
				So(doc["player_count"], ShouldEqual, 1)
				entry := doc["entries"].([]any)[0].(map[string]any)
				So(entry["player_name"], ShouldEqual, "alice")
				So(entry["matches_played"], ShouldEqual, 3)
				So(entry["win_rate"], ShouldEqual, 66.7)
				So(entry["tier_rank"], ShouldEqual, 1)
			})
		})
	})
}
