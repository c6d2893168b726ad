package page_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/storyline/internal/adapters/page"
	"github.com/okian/storyline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func articleHTML() string {
	para := strings.Repeat("Negotiators from both countries met in Doha to agree the terms of the ceasefire. ", 6)
	return `<html><head><title>Ceasefire</title></head><body>
<nav>Home | World | Sport</nav>
<article><h1>Ceasefire agreed</h1>
<p>` + para + `</p>
<p>` + para + `</p>
<p>` + para + `</p>
</article>
<footer>Copyright</footer>
</body></html>`
}

func TestFetcher(t *testing.T) {
	Convey("Given a page server", t, func() {
		ctx := context.Background()
		var userAgent string
		mux := http.NewServeMux()
		mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.UserAgent()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, articleHTML())
		})
		mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><main><p>Strikes hit the port.</p><p>Two ships sank.</p></main></body></html>`)
		})
		mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body></body></html>`)
		})
		mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4")
		})
		mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		f := page.New(page.WithUserAgent("storyline-test"))

		Convey("When the page is a full article", func() {
			text, err := f.Text(ctx, srv.URL+"/article")

			Convey("Then the article text should be returned", func() {
				So(err, ShouldBeNil)
				So(text, ShouldContainSubstring, "Negotiators from both countries met in Doha")
				So(userAgent, ShouldEqual, "storyline-test")
			})
		})

		Convey("When the page is short", func() {
			text, err := f.Text(ctx, srv.URL+"/short")

			Convey("Then the paragraphs should still be found", func() {
				So(err, ShouldBeNil)
				So(text, ShouldContainSubstring, "Strikes hit the port.")
				So(text, ShouldContainSubstring, "Two ships sank.")
			})
		})

		Convey("When the text is longer than the limit", func() {
			text, err := page.New(page.WithMaxChars(50)).Text(ctx, srv.URL+"/article")

			Convey("Then it should be truncated", func() {
				So(err, ShouldBeNil)
				So(len([]rune(text)), ShouldEqual, 50)
			})
		})

		Convey("When the page has no text", func() {
			_, err := f.Text(ctx, srv.URL+"/empty")

			Convey("Then no content should be reported", func() {
				So(errors.Is(err, page.ErrNoContent), ShouldBeTrue)
			})
		})

		Convey("When the page is not html", func() {
			_, err := f.Text(ctx, srv.URL+"/pdf")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, page.ErrNotHTML), ShouldBeTrue)
			})
		})

		Convey("When the page is missing", func() {
			_, err := f.Text(ctx, srv.URL+"/gone")

			Convey("Then the status should be reported", func() {
				So(errors.Is(err, page.ErrStatus), ShouldBeTrue)
			})
		})

		Convey("When the url is not http", func() {
			_, err := f.Text(ctx, "ftp://example.com/file")

			Convey("Then it should be rejected before any request", func() {
				So(errors.Is(err, page.ErrBadURL), ShouldBeTrue)
			})
		})
	})
}
