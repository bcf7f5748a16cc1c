package replayapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/ladder/internal/adapters/replayapi"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/internal/domain/replay"
	. "github.com/smartystreets/goconvey/convey"
)

func payload(id string) map[string]any {
	return map[string]any{
		"id":        id,
		"startTime": "2025-05-01T10:00:00Z",
		"gamestats": map[string]any{"winningTeamId": 0},
		"AllyTeams": []any{
			map[string]any{"Players": []any{map[string]any{"name": "alice", "teamId": 0, "skill": "[30.5]"}}},
			map[string]any{"Players": []any{map[string]any{"name": "bob", "teamId": 1, "skill": 21.0}}},
		},
	}
}

func TestFetch(t *testing.T) {
	Convey("Given a replay service", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			id := strings.TrimPrefix(r.URL.Path, "/replays/")
			switch id {
			case "missing":
				w.WriteHeader(http.StatusNotFound)
			case "broken":
				w.WriteHeader(http.StatusBadGateway)
			case "garbled":
				_, _ = w.Write([]byte("<html>"))
			case "slow":
				time.Sleep(200 * time.Millisecond)
				_ = json.NewEncoder(w).Encode(payload(id))
			default:
				_ = json.NewEncoder(w).Encode(payload(id))
			}
		}))
		defer srv.Close()

		client := replayapi.New(
			replayapi.WithBaseURL(srv.URL),
			replayapi.WithTimeout(50*time.Millisecond),
			replayapi.WithRequestsPerSecond(0),
		)
		ctx := context.Background()

		Convey("When the replay exists", func() {
			got, err := client.Fetch(ctx, "abc123")

			Convey("Then the payload is returned", func() {
				So(err, ShouldBeNil)
				So(got["id"], ShouldEqual, "abc123")
			})

			Convey("Then a second fetch is served from cache", func() {
				_, err := client.Fetch(ctx, "abc123")
				So(err, ShouldBeNil)
				So(hits.Load(), ShouldEqual, int32(1))
			})
		})

		Convey("When the service does not know the replay", func() {
			_, err := client.Fetch(ctx, "missing")

			Convey("Then the rejection is terminal", func() {
				So(rejection.CodeOf(err), ShouldEqual, rejection.CodeInvalidReplayURL)
				So(rejection.IsTerminal(err), ShouldBeTrue)
			})

			Convey("Then asking again does not hit the service", func() {
				_, again := client.Fetch(ctx, "missing")
				So(rejection.CodeOf(again), ShouldEqual, rejection.CodeInvalidReplayURL)
				So(hits.Load(), ShouldEqual, int32(1))
			})
		})

		Convey("When the service fails", func() {
			for _, id := range []string{"broken", "garbled", "slow"} {
				_, err := client.Fetch(ctx, id)
				So(rejection.IsTransient(err), ShouldBeTrue)
				So(rejection.IsTerminal(err), ShouldBeFalse)
			}
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := client.Fetch(cctx, "abc123")
			So(rejection.IsTransient(err), ShouldBeTrue)
		})
	})
}

func TestResolve(t *testing.T) {
	Convey("Given a submission mixing references and full payloads", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if strings.HasSuffix(r.URL.Path, "/down") {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_ = json.NewEncoder(w).Encode(payload(strings.TrimPrefix(r.URL.Path, "/replays/")))
		}))
		defer srv.Close()

		validator := replay.NewValidator(
			replay.WithBaseURL(srv.URL),
			replay.WithURLPattern(`^http://127\.0\.0\.1:\d+/replays/([A-Za-z0-9]+)$`),
		)
		client := replayapi.New(
			replayapi.WithBaseURL(srv.URL),
			replayapi.WithIDParser(validator),
			replayapi.WithRequestsPerSecond(0),
		)

		full := payload("inline1")
		sub := model.Submission{
			ID:      "sub-1",
			Players: []string{"alice", "bob"},
			Replays: []map[string]any{
				{"url": srv.URL + "/replays/byurl"},
				{"id": "byid"},
				full,
			},
		}

		Convey("When resolving", func() {
			got, err := client.Resolve(context.Background(), sub)
			So(err, ShouldBeNil)

			Convey("Then references become payloads and keep their url", func() {
				So(got.Replays[0]["id"], ShouldEqual, "byurl")
				So(got.Replays[0]["url"], ShouldEqual, srv.URL+"/replays/byurl")
				So(got.Replays[0]["AllyTeams"], ShouldNotBeNil)
				So(got.Replays[1]["id"], ShouldEqual, "byid")
			})

			Convey("Then full payloads are left alone", func() {
				So(got.Replays[2], ShouldResemble, full)
				So(hits.Load(), ShouldEqual, int32(2))
			})

			Convey("Then the input submission is not modified", func() {
				So(sub.Replays[0]["AllyTeams"], ShouldBeNil)
			})

			Convey("Then the resolved payloads validate", func() {
				for _, raw := range got.Replays {
					_, err := validator.Validate(raw)
					So(err, ShouldBeNil)
				}
			})
		})

		Convey("When a reference cannot be fetched", func() {
			sub.Replays = append(sub.Replays, map[string]any{"id": "down"})
			_, err := client.Resolve(context.Background(), sub)

			Convey("Then the submission fails transiently under its own id", func() {
				So(rejection.IsTransient(err), ShouldBeTrue)
				re, ok := rejection.As(err)
				So(ok, ShouldBeTrue)
				So(re.SubmissionID, ShouldEqual, "sub-1")
				So(re.ReplayID, ShouldEqual, "down")
			})
		})
	})
}

func TestPrefetch(t *testing.T) {
	Convey("Given submissions referencing replays by id", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			id := strings.TrimPrefix(r.URL.Path, "/replays/")
			if id == "missing" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(payload(id))
		}))
		defer srv.Close()

		subs := []model.Submission{
			{ID: "s1", Replays: []map[string]any{{"id": "r1"}, {"id": "r2"}}},
			{ID: "s2", Replays: []map[string]any{{"id": "r2"}, {"id": "r3"}, payload("full")}},
			{ID: "s3", Replays: []map[string]any{{"id": "missing"}}},
			{ID: "s4", Malformed: "unexpected EOF", Replays: []map[string]any{{"id": "r9"}}},
		}
		ctx := context.Background()

		Convey("When the client prefetches with workers", func() {
			client := replayapi.New(
				replayapi.WithBaseURL(srv.URL),
				replayapi.WithRequestsPerSecond(0),
				replayapi.WithWorkers(3),
			)
			client.Prefetch(ctx, subs)

			Convey("Then each distinct reference is fetched once", func() {
				So(hits.Load(), ShouldEqual, int32(4))
			})

			Convey("Then resolving the submissions needs no further requests", func() {
				got, err := client.Resolve(ctx, subs[1])
				So(err, ShouldBeNil)
				So(got.Replays[1]["id"], ShouldEqual, "r3")
				_, err = client.Resolve(ctx, subs[2])
				So(rejection.CodeOf(err), ShouldEqual, rejection.CodeInvalidReplayURL)
				So(hits.Load(), ShouldEqual, int32(4))
			})
		})

		Convey("When prefetching is disabled", func() {
			client := replayapi.New(replayapi.WithBaseURL(srv.URL), replayapi.WithRequestsPerSecond(0))
			client.Prefetch(ctx, subs)

			Convey("Then nothing is requested", func() {
				So(hits.Load(), ShouldEqual, int32(0))
			})
		})
	})
}

func TestPrefetchTimeout(t *testing.T) {
	Convey("Given a replay service that never answers", t, func() {
		release := make(chan struct{})
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		subs := []model.Submission{
			{ID: "s1", Replays: []map[string]any{{"id": "r1"}, {"id": "r2"}, {"id": "r3"}}},
		}
		client := replayapi.New(
			replayapi.WithBaseURL(srv.URL),
			replayapi.WithRequestsPerSecond(0),
			replayapi.WithWorkers(2),
			replayapi.WithPrefetchTimeout(50*time.Millisecond),
		)

		Convey("When the client prefetches", func() {
			start := time.Now()
			client.Prefetch(context.Background(), subs)
			elapsed := time.Since(start)

			Convey("Then it gives up once the prefetch timeout passes", func() {
				So(elapsed, ShouldBeLessThan, 2*time.Second)
				So(hits.Load(), ShouldBeGreaterThan, int32(0))
				So(hits.Load(), ShouldBeLessThanOrEqualTo, int32(3))
			})
		})
	})
}
