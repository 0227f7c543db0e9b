package reconcile_test

import (
	"testing"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/reconcile"
	. "github.com/smartystreets/goconvey/convey"
)

func v(n int64) *int64 { return &n }

func TestReconciler(t *testing.T) {
	Convey("Given a reconciler", t, func() {
		r := reconcile.New()
		t0 := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)

		Convey("When neither source answered", func() {
			_, ok := r.Reconcile(reconcile.Observation{At: t0})
			Convey("Then there is no decision", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When both sources agree on the first cycle", func() {
			d, ok := r.Reconcile(reconcile.Observation{API: v(500), Web: v(500), At: t0})

			Convey("Then the API is chosen and there is no disagreement", func() {
				So(ok, ShouldBeTrue)
				So(d.Value, ShouldEqual, 500)
				So(d.Chosen, ShouldEqual, model.SourceAPI)
				So(d.Disagree, ShouldBeFalse)
				So(d.Diff(), ShouldBeNil)
			})
		})

		Convey("When the API is unchanged and the web page moved", func() {
			r.Reconcile(reconcile.Observation{API: v(500), Web: v(500), At: t0})
			d, _ := r.Reconcile(reconcile.Observation{API: v(500), Web: v(510), At: t0.Add(time.Minute)})

			Convey("Then the web value wins and the disagreement is recorded", func() {
				So(d.Value, ShouldEqual, 510)
				So(d.Chosen, ShouldEqual, model.SourceWeb)
				So(d.WebChanged, ShouldBeTrue)
				So(d.APIChanged, ShouldBeFalse)
				So(d.Diff(), ShouldResemble, &model.SourceDiff{API: 500, Web: 510, Chosen: model.SourceWeb})
			})

			Convey("And the API catches up later", func() {
				d, _ := r.Reconcile(reconcile.Observation{API: v(510), Web: v(510), At: t0.Add(2 * time.Minute)})

				Convey("Then the API becomes authoritative again without a diff", func() {
					So(d.Chosen, ShouldEqual, model.SourceAPI)
					So(d.Value, ShouldEqual, 510)
					So(d.Disagree, ShouldBeFalse)
				})
			})
		})

		Convey("When source A changed at t1 and source B at t2 > t1", func() {
			r.Reconcile(reconcile.Observation{API: v(100), Web: v(100), At: t0})
			r.Reconcile(reconcile.Observation{API: v(120), Web: v(100), At: t0.Add(time.Minute)})
			d, _ := r.Reconcile(reconcile.Observation{API: v(120), Web: v(130), At: t0.Add(2 * time.Minute)})

			Convey("Then B's value is chosen", func() {
				So(d.Value, ShouldEqual, 130)
				So(d.Chosen, ShouldEqual, model.SourceWeb)
				So(d.Disagree, ShouldBeTrue)
			})
		})

		Convey("When both changed in the same cycle", func() {
			r.Reconcile(reconcile.Observation{API: v(100), Web: v(90), At: t0})
			r.Reconcile(reconcile.Observation{API: v(100), Web: v(95), At: t0.Add(time.Minute)})
			d, _ := r.Reconcile(reconcile.Observation{API: v(110), Web: v(111), At: t0.Add(2 * time.Minute)})

			Convey("Then the previous choice is kept", func() {
				So(d.Chosen, ShouldEqual, model.SourceWeb)
				So(d.Value, ShouldEqual, 111)
			})
		})

		Convey("When only one source answered", func() {
			r.Reconcile(reconcile.Observation{API: v(100), Web: v(100), At: t0})
			d, ok := r.Reconcile(reconcile.Observation{Web: v(105), At: t0.Add(time.Minute)})

			Convey("Then that source is used and no diff is possible", func() {
				So(ok, ShouldBeTrue)
				So(d.Chosen, ShouldEqual, model.SourceWeb)
				So(d.Value, ShouldEqual, 105)
				So(d.Disagree, ShouldBeFalse)
			})

			Convey("And the failed source keeps its state", func() {
				api, _, _ := r.States()
				So(api.LastValue, ShouldEqual, 100)
				So(api.LastChangedAt, ShouldEqual, t0)
			})
		})

		Convey("When the leading source fails and the lagging one still answers", func() {
			r.Reconcile(reconcile.Observation{API: v(500), Web: v(500), At: t0})
			r.Reconcile(reconcile.Observation{API: v(500), Web: v(510), At: t0.Add(time.Minute)})
			d, ok := r.Reconcile(reconcile.Observation{API: v(500), At: t0.Add(2 * time.Minute)})

			Convey("Then the failed source's last value is carried", func() {
				So(ok, ShouldBeTrue)
				So(d.Chosen, ShouldEqual, model.SourceWeb)
				So(d.Value, ShouldEqual, 510)
				So(d.Carried, ShouldBeTrue)
				So(d.Disagree, ShouldBeFalse)
				So(d.Diff(), ShouldBeNil)
			})

			Convey("And the lagging source takes over once it moves", func() {
				d, _ := r.Reconcile(reconcile.Observation{API: v(520), At: t0.Add(3 * time.Minute)})
				So(d.Chosen, ShouldEqual, model.SourceAPI)
				So(d.Value, ShouldEqual, 520)
				So(d.Carried, ShouldBeFalse)
			})
		})

		Convey("When state is restored", func() {
			state := reconcile.SourceState{LastValue: 700, LastChangedAt: t0, Seen: true}
			r.Restore(state, state, model.SourceWeb)
			d, _ := r.Reconcile(reconcile.Observation{API: v(700), Web: v(700), At: t0.Add(time.Hour)})

			Convey("Then an unchanged reading is not a change and the choice sticks", func() {
				So(d.APIChanged, ShouldBeFalse)
				So(d.WebChanged, ShouldBeFalse)
				So(d.Chosen, ShouldEqual, model.SourceWeb)
			})
		})
	})
}
