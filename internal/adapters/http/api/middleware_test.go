package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/skillsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a wrapped handler that panics", t, func() {
		h := MetricsMiddleware(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}, "test")

		Convey("Then the client should get a 500", func() {
			rec := httptest.NewRecorder()
			So(func() { h(rec, httptest.NewRequest(http.MethodGet, "/", nil)) }, ShouldNotPanic)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a wrapped handler that writes twice", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			w.WriteHeader(http.StatusTeapot)
		}, "test")

		Convey("Then the first status should win", func() {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			So(rec.Code, ShouldEqual, http.StatusAccepted)
		})
	})

	Convey("Given failing statuses", t, func() {
		Convey("Then each should map to its error bucket", func() {
			So(errorType(http.StatusTooManyRequests), ShouldEqual, "backpressure")
			So(errorType(http.StatusServiceUnavailable), ShouldEqual, "unavailable")
			So(errorType(http.StatusBadGateway), ShouldEqual, "server_error")
			So(errorType(http.StatusConflict), ShouldEqual, "conflict")
			So(errorType(http.StatusForbidden), ShouldEqual, "forbidden")
			So(errorType(http.StatusNotFound), ShouldEqual, "not_found")
			So(errorType(http.StatusUnprocessableEntity), ShouldEqual, "client_error")
		})
	})
}
