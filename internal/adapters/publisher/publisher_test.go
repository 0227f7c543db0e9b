package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/okian/squadwatch/internal/adapters/publisher"
	"github.com/okian/squadwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLog(t *testing.T) {
	Convey("Given a log publisher", t, func() {
		p := publisher.NewLog(logger.Nop())
		ctx := context.Background()

		So(p.UpdateSummary(ctx, "2024-05-01|early", "text"), ShouldBeNil)
		So(p.PublishSummary(ctx, "text"), ShouldBeNil)
	})
}

func TestRedis(t *testing.T) {
	Convey("Given a redis publisher", t, func() {
		db, mock := redismock.NewClientMock()
		p := publisher.NewRedis(db, "squadwatch:summaries", "squadwatch:summary")
		ctx := context.Background()

		Convey("When a live summary is updated", func() {
			mock.ExpectHSet("squadwatch:summary", "2024-05-01|early", "W1 L0").SetVal(1)
			err := p.UpdateSummary(ctx, "2024-05-01|early", "W1 L0")

			Convey("Then the hash field is set", func() {
				So(err, ShouldBeNil)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When a final summary is published", func() {
			mock.ExpectPublish("squadwatch:summaries", "final").SetVal(1)
			err := p.PublishSummary(ctx, "final")

			Convey("Then it goes to the channel", func() {
				So(err, ShouldBeNil)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When redis fails", func() {
			mock.ExpectPublish("squadwatch:summaries", "final").SetErr(errors.New("connection refused"))
			err := p.PublishSummary(ctx, "final")

			Convey("Then a delivery error is returned", func() {
				So(errors.Is(err, publisher.ErrDelivery), ShouldBeTrue)
			})
		})
	})
}

func TestWebhook(t *testing.T) {
	Convey("Given a webhook endpoint", t, func() {
		var got map[string]any
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(status)
		}))
		defer srv.Close()
		p := publisher.NewWebhook(srv.URL, time.Second)
		ctx := context.Background()

		Convey("When a live summary is updated", func() {
			err := p.UpdateSummary(ctx, "2024-05-01|late", "hello")

			Convey("Then the key and text are posted", func() {
				So(err, ShouldBeNil)
				So(got["key"], ShouldEqual, "2024-05-01|late")
				So(got["text"], ShouldEqual, "hello")
				So(got["final"], ShouldEqual, false)
			})
		})

		Convey("When the endpoint rejects the post", func() {
			status = http.StatusInternalServerError
			err := p.PublishSummary(ctx, "bye")

			Convey("Then a delivery error is returned", func() {
				So(errors.Is(err, publisher.ErrDelivery), ShouldBeTrue)
				So(got["final"], ShouldEqual, true)
			})
		})
	})
}
