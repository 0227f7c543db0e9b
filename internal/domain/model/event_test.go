package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEvent(t *testing.T) {
	Convey("Given events of every type", t, func() {
		ts := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)

		Convey("When the payload matches the type", func() {
			events := []model.Event{
				{Type: model.EventSessionStart, SessionStart: &model.SessionStart{}},
				{Type: model.EventSessionReset, SessionReset: &model.SessionReset{}},
				{Type: model.EventPointsChange, PointsChange: &model.PointsChange{}},
				{Type: model.EventMemberJoin, Member: &model.MemberChange{Name: "A"}},
				{Type: model.EventMemberLeave, Member: &model.MemberChange{Name: "B"}},
				{Type: model.EventSourceDiff, SourceDiff: &model.SourceDiff{}},
			}

			Convey("Then every event is valid", func() {
				for _, e := range events {
					So(e.Valid(), ShouldBeTrue)
				}
			})
		})

		Convey("When the payload is missing or the type unknown", func() {
			So(model.Event{Type: model.EventPointsChange}.Valid(), ShouldBeFalse)
			So(model.Event{Type: "bogus", SourceDiff: &model.SourceDiff{}}.Valid(), ShouldBeFalse)
		})

		Convey("When a points_change is encoded", func() {
			e := model.Event{
				ID:        "id-1",
				Type:      model.EventPointsChange,
				TS:        ts,
				WindowKey: "2024-05-01|early",
				PointsChange: &model.PointsChange{
					Delta: 20, From: 1000, To: 1020, WonCount: 1, ChosenSource: model.SourceWeb,
				},
			}
			raw, err := json.Marshal(e)
			So(err, ShouldBeNil)

			Convey("Then only its own payload appears on the wire", func() {
				s := string(raw)
				So(s, ShouldContainSubstring, `"type":"points_change"`)
				So(s, ShouldContainSubstring, `"chosen_source":"web"`)
				So(s, ShouldNotContainSubstring, "session_start")
				So(s, ShouldNotContainSubstring, "source_diff")
			})
		})
	})
}

func TestSnapshotDate(t *testing.T) {
	Convey("Given a snapshot taken late in a non-UTC zone", t, func() {
		loc := time.FixedZone("UTC-5", -5*3600)
		s := model.Snapshot{Timestamp: time.Date(2024, 5, 1, 22, 0, 0, 0, loc)}

		Convey("Then its date is the UTC date", func() {
			So(s.Date(), ShouldEqual, "2024-05-02")
		})
	})
}
