package rejection_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/ladder/internal/domain/rejection"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRejectionError(t *testing.T) {
	Convey("Given a terminal rejection", t, func() {
		err := rejection.New(rejection.CodeReplayTooOld, "abc123", "age %d days exceeds %d", 151, 40)

		Convey("Then it should unwrap to its sentinel", func() {
			So(errors.Is(err, rejection.ErrReplayTooOld), ShouldBeTrue)
			So(errors.Is(err, rejection.ErrTransient), ShouldBeFalse)
		})

		Convey("Then it should be terminal with a stable code", func() {
			So(rejection.IsTerminal(err), ShouldBeTrue)
			So(rejection.CodeOf(err), ShouldEqual, rejection.CodeReplayTooOld)
		})

		Convey("When attributed to a submission and wrapped", func() {
			wrapped := fmt.Errorf("run: %w", err.For("sub-1"))

			Convey("Then the code and ids survive wrapping", func() {
				re, ok := rejection.As(wrapped)
				So(ok, ShouldBeTrue)
				So(re.SubmissionID, ShouldEqual, "sub-1")
				So(re.ReplayID, ShouldEqual, "abc123")
				So(re.Error(), ShouldEqual, "ReplayTooOld submission=sub-1 replay=abc123: age 151 days exceeds 40")
			})

			Convey("Then the original should be left untouched", func() {
				So(err.SubmissionID, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a transient rejection", t, func() {
		err := rejection.Transient("abc123", context.DeadlineExceeded)

		Convey("Then it should match both the sentinel and its cause", func() {
			So(rejection.IsTransient(err), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(rejection.IsTerminal(err), ShouldBeFalse)
		})
	})

	Convey("Given a plain error", t, func() {
		err := errors.New("boom")

		Convey("Then it should carry no code", func() {
			So(rejection.CodeOf(err), ShouldEqual, rejection.Code(""))
			So(rejection.IsTerminal(err), ShouldBeFalse)
		})
	})
}
