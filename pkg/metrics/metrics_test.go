package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "squadwatch")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"entity": "ABC"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 10, 100})
				So(manager.constLabels["entity"], ShouldEqual, "ABC")
			})

			Convey("And the collectors should carry the namespace", func() {
				manager.snapshotWrites.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_snapshot_writes_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording poll and source metrics", func() {
			before := testutil.ToFloat64(globalManager.pollCycles.WithLabelValues("ok"))
			RecordPollCycle("ok")
			RecordPollCycle("ok")

			Convey("Then counters should increase", func() {
				So(testutil.ToFloat64(globalManager.pollCycles.WithLabelValues("ok")), ShouldEqual, before+2)
			})

			So(func() {
				RecordPollCycleDuration(12)
				RecordSourceFetch("api", "ok")
				RecordSourceFetchLatency("web", 40)
				RecordListingPageRead()
				RecordCacheHit()
				RecordCacheMiss()
				UpdateBreakerState("api", 2)
			}, ShouldNotPanic)
		})

		Convey("When recording reconciliation and snapshot metrics", func() {
			diffs := testutil.ToFloat64(globalManager.sourceDiffs)
			RecordSourceDiff()
			So(testutil.ToFloat64(globalManager.sourceDiffs), ShouldEqual, diffs+1)

			UpdateTotalScore(15230)
			So(testutil.ToFloat64(globalManager.totalScore), ShouldEqual, 15230)

			So(func() {
				RecordReconciledSource("web")
				RecordSnapshotWrite()
				RecordSnapshotUnchanged()
				RecordSnapshotRejected()
				RecordArchive()
				UpdateRosterMembers(42)
			}, ShouldNotPanic)
		})

		Convey("When recording event log and session metrics", func() {
			UpdateSessionTally(3, 1)
			So(testutil.ToFloat64(globalManager.sessionWins), ShouldEqual, 3)
			So(testutil.ToFloat64(globalManager.sessionLosses), ShouldEqual, 1)

			So(func() {
				RecordEventAppended("points_change")
				RecordEventLogCorrupt()
				UpdateEventLogSize(10)
				RecordDuplicateEventID()
				UpdateSessionPhase(1)
				RecordFinalization("finalized")
			}, ShouldNotPanic)
		})

		Convey("When recording delivery, HTTP and system metrics", func() {
			So(func() {
				UpdateNoticeQueueSize(2)
				RecordNoticeDelivery("update", "ok")
				RecordNoticeLatency(3)
				RecordHTTPRequest("session", "GET", "200")
				RecordHTTPRequestDuration("session", "GET", "200", 1.5)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When fetching the registry", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
