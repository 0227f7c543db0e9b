package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/squadwatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a roster entry", t, func() {
		entry := types.Entry{Rank: 1, Name: "Alpha", Score: 4200, Role: "Commander"}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(entry)
			So(err, ShouldBeNil)

			Convey("Then it uses the API field names", func() {
				So(string(raw), ShouldEqual, `{"rank":1,"name":"Alpha","score":4200,"role":"Commander"}`)
			})
		})

		Convey("When the role is empty", func() {
			raw, err := json.Marshal(types.Entry{Rank: 2, Name: "Bravo", Score: 10})
			So(err, ShouldBeNil)

			Convey("Then role is omitted", func() {
				So(string(raw), ShouldNotContainSubstring, "role")
			})
		})
	})
}
