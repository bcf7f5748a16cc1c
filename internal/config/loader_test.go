package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/ladder/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MaxReplayAgeDays, convey.ShouldEqual, 40)
				convey.So(cfg.Fields.Skill, convey.ShouldResemble, []string{"skill", "Skill"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LADDER_ADDR", ":8080")
			_ = os.Setenv("LADDER_MAX_REPLAY_AGE_DAYS", "30")
			_ = os.Setenv("LADDER_RATING__MAX_CHANGE", "40")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then flat and nested keys should override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MaxReplayAgeDays, convey.ShouldEqual, 30)
				convey.So(cfg.Rating.MaxChange, convey.ShouldEqual, 40)
				convey.So(cfg.Rating.MinChange, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(dir, `
addr: ":9090"
required_wins: 2
rating:
  base_change: 20
fields:
  name: ["player_name"]
tiers:
  - {name: Low, min_skill: 0, max_skill: 25, min_rating: 1000, max_rating: 1500}
  - {name: High, min_skill: 25, max_skill: 50, min_rating: 1500, max_rating: 2000}
metrics:
  labels: {instance: eu}
  latency_buckets: [0.5, 2, 10]
`)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should replace lists and merge scalars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Rating.BaseChange, convey.ShouldEqual, 20)
				convey.So(cfg.Rating.MaxChange, convey.ShouldEqual, 30)
				convey.So(cfg.Fields.Name, convey.ShouldResemble, []string{"player_name"})
				convey.So(cfg.Fields.Skill, convey.ShouldResemble, []string{"skill", "Skill"})
				convey.So(len(cfg.Tiers), convey.ShouldEqual, 2)
				convey.So(cfg.Tiers[1].Name, convey.ShouldEqual, "High")
				convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "bar")
				convey.So(cfg.Metrics.Labels, convey.ShouldResemble, map[string]string{"instance": "eu"})
				convey.So(cfg.Metrics.LatencyBuckets, convey.ShouldResemble, []float64{0.5, 2, 10})
			})
		})

		convey.Convey("When the config path comes from LADDER_CONFIG and env overrides it", func() {
			path := writeConfigFile(dir, "addr: \":9090\"\nmax_replay_age_days: 10\n")
			_ = os.Setenv("LADDER_CONFIG", path)
			_ = os.Setenv("LADDER_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then env should win over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.MaxReplayAgeDays, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(dir, `invalid: yaml: content: [`)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file breaks the tier table", func() {
			path := writeConfigFile(dir, `
tiers:
  - {name: Low, min_skill: 0, max_skill: 25, min_rating: 1000, max_rating: 1500}
  - {name: High, min_skill: 30, max_skill: 50, min_rating: 1500, max_rating: 2000}
`)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidTierTable), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("LADDER_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func writeConfigFile(dir, content string) string {
	path := filepath.Join(dir, "ladder.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"LADDER_CONFIG",
		"LADDER_ADDR",
		"LADDER_MAX_REPLAY_AGE_DAYS",
		"LADDER_RATING__MAX_CHANGE",
	} {
		_ = os.Unsetenv(name)
	}
}
