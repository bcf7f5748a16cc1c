package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/smartystreets/goconvey/convey"
)

func TestExitCode(t *testing.T) {
	convey.Convey("Given the errors a command can end with", t, func() {
		transient := rejection.Transient("r1", errors.New("connection reset")).For("s1")

		convey.So(exitCode(nil), convey.ShouldEqual, exitOK)
		convey.So(exitCode(fmt.Errorf("run: %w", transient)), convey.ShouldEqual, exitTransient)
		convey.So(exitCode(fmt.Errorf("%w: 3", errRejected)), convey.ShouldEqual, exitRejected)
		convey.So(exitCode(errors.New("disk full")), convey.ShouldEqual, exitFailure)
	})
}

func TestCommands(t *testing.T) {
	convey.Convey("Given empty submission and data directories", t, func() {
		root := t.TempDir()
		subsDir := filepath.Join(root, "submissions")
		dataDir := filepath.Join(root, "data")
		t.Setenv("LADDER_SUBMISSIONS_DIR", subsDir)
		t.Setenv("LADDER_DATA_DIR", dataDir)
		t.Setenv("LADDER_PUSHGATEWAY_URL", "")
		ctx := context.Background()

		convey.Convey("When synth writes a history", func() {
			var out bytes.Buffer
			code := run(ctx, []string{"ladder", "synth", "--count", "20", "--seed", "7", "--invalid-ratio", "50"}, &out)
			convey.So(code, convey.ShouldEqual, exitOK)
			convey.So(out.String(), convey.ShouldContainSubstring, "wrote 20 submissions")

			files, err := filepath.Glob(filepath.Join(subsDir, "*.json"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(files), convey.ShouldEqual, 20)

			convey.Convey("Then an incremental run should report the rejections", func() {
				convey.So(run(ctx, []string{"ladder", "incremental"}, &out), convey.ShouldEqual, exitRejected)
				_, err := os.Stat(filepath.Join(dataDir, "leaderboard.json"))
				convey.So(err, convey.ShouldBeNil)

				convey.Convey("And a second incremental run should have nothing to do", func() {
					convey.So(run(ctx, []string{"ladder", "incremental"}, &out), convey.ShouldEqual, exitOK)
				})

				convey.Convey("And a full rebuild should reject the same submissions again", func() {
					convey.So(run(ctx, []string{"ladder", "full"}, &out), convey.ShouldEqual, exitRejected)
				})
			})
		})

		convey.Convey("When there is nothing submitted", func() {
			var out bytes.Buffer
			convey.Convey("Then an incremental run should succeed without writing", func() {
				convey.So(run(ctx, []string{"ladder", "incremental"}, &out), convey.ShouldEqual, exitOK)
				_, err := os.Stat(filepath.Join(dataDir, "leaderboard.json"))
				convey.So(os.IsNotExist(err), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			var out bytes.Buffer
			code := run(ctx, []string{"ladder", "--config", filepath.Join(root, "missing.yaml"), "full"}, &out)
			convey.So(code, convey.ShouldEqual, exitFailure)
		})
	})
}
