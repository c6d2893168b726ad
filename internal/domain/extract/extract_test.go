package extract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/storyline/internal/domain/extract"
	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakePages struct {
	text  string
	err   error
	calls int
}

func (f *fakePages) Text(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeCompleter struct {
	reply       string
	err         error
	calls       int
	prompt      string
	temperature float32
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string, temperature float32) (string, error) {
	f.calls++
	f.prompt, f.temperature = prompt, temperature
	return f.reply, f.err
}

type memoryCache struct {
	events map[string][]model.Event
	stores int
}

func (m *memoryCache) LoadEvents(_ context.Context, url string) ([]model.Event, bool, error) {
	ev, ok := m.events[url]
	return ev, ok, nil
}

func (m *memoryCache) StoreEvents(_ context.Context, url string, events []model.Event) error {
	m.stores++
	m.events[url] = events
	return nil
}

var article = model.Article{
	Title:       "Ceasefire holds",
	URL:         "https://news.example/ceasefire",
	Text:        "short description",
	PublishedAt: "2025-06-25",
}

func TestParseEvents(t *testing.T) {
	Convey("Given raw model replies", t, func() {
		Convey("When the reply is fenced JSON", func() {
			raw := "```json\n[{\"event\": \"Ceasefire announced\", \"date\": \"2025/06/24\"}]\n```"
			events, dropped, ok := extract.ParseEvents(raw, article.URL)

			Convey("Then the fence and tag should be stripped", func() {
				So(ok, ShouldBeTrue)
				So(dropped, ShouldEqual, 0)
				So(events, ShouldHaveLength, 1)
				So(events[0].Text, ShouldEqual, "Ceasefire announced")
				So(events[0].Date.String(), ShouldEqual, "2025/06/24")
				So(events[0].SourceURL, ShouldEqual, article.URL)
			})
		})

		Convey("When dates come in other shapes", func() {
			raw := `[
				{"event": "Talks resumed", "date": "2025-06-05"},
				{"event": "Strikes reported", "date": "June 7, 2025"},
				{"event": "Unknown timing", "date": "sometime soon"},
				{"event": "  ", "date": "2025/06/08"}
			]`
			events, dropped, ok := extract.ParseEvents(raw, article.URL)

			Convey("Then lenient dates should parse and bad entries should be dropped", func() {
				So(ok, ShouldBeTrue)
				So(dropped, ShouldEqual, 2)
				So(events, ShouldHaveLength, 2)
				So(events[0].Date.String(), ShouldEqual, "2025/06/05")
				So(events[1].Date.String(), ShouldEqual, "2025/06/07")
			})
		})

		Convey("When the reply is not JSON", func() {
			events, _, ok := extract.ParseEvents("I could not find any events.", article.URL)

			Convey("Then nothing should be returned", func() {
				So(ok, ShouldBeFalse)
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When the reply is an empty array", func() {
			events, _, ok := extract.ParseEvents("[]", article.URL)

			Convey("Then it should parse to no events", func() {
				So(ok, ShouldBeTrue)
				So(events, ShouldBeEmpty)
			})
		})
	})
}

func TestExtractor(t *testing.T) {
	Convey("Given an extractor", t, func() {
		ctx := context.Background()
		pages := &fakePages{text: "Israel and Iran agreed to a ceasefire on June 24."}
		llm := &fakeCompleter{reply: `[{"event": "Ceasefire announced", "date": "2025/06/24"}]`}

		Convey("When extraction succeeds", func() {
			events, err := extract.New(pages, llm).Extract(ctx, article)

			Convey("Then events should carry the article URL", func() {
				So(err, ShouldBeNil)
				So(events, ShouldResemble, []model.Event{{
					Text:      "Ceasefire announced",
					Date:      model.NewDate(2025, time.June, 24),
					SourceURL: article.URL,
				}})
				So(llm.temperature, ShouldAlmostEqual, 0.2, 1e-6)
				So(llm.prompt, ShouldContainSubstring, "2025-06-25")
				So(llm.prompt, ShouldContainSubstring, "Ceasefire holds")
				So(llm.prompt, ShouldContainSubstring, "agreed to a ceasefire")
			})
		})

		Convey("When the model returns invalid JSON", func() {
			llm.reply = "not json"
			events, err := extract.New(pages, llm).Extract(ctx, article)

			Convey("Then it should yield no events and no error", func() {
				So(err, ShouldBeNil)
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When the page has no text", func() {
			pages.text = "  "
			events, err := extract.New(pages, llm).Extract(ctx, article)

			Convey("Then the model should not be called", func() {
				So(err, ShouldBeNil)
				So(events, ShouldBeEmpty)
				So(llm.calls, ShouldEqual, 0)
			})
		})

		Convey("When the page fetch fails", func() {
			pages.err = errors.New("connection reset")
			_, err := extract.New(pages, llm).Extract(ctx, article)

			Convey("Then a page error should be returned", func() {
				So(errors.Is(err, extract.ErrPageText), ShouldBeTrue)
				So(llm.calls, ShouldEqual, 0)
			})
		})

		Convey("When the model call fails", func() {
			llm.err = errors.New("quota exceeded")
			_, err := extract.New(pages, llm).Extract(ctx, article)

			Convey("Then a generation error should be returned", func() {
				So(errors.Is(err, extract.ErrGenerate), ShouldBeTrue)
			})
		})

		Convey("When a cache is configured", func() {
			cache := &memoryCache{events: map[string][]model.Event{}}
			ex := extract.New(pages, llm, extract.WithCache(cache), extract.WithTemperature(0.1))

			first, err1 := ex.Extract(ctx, article)
			second, err2 := ex.Extract(ctx, article)

			Convey("Then the second call should be served from the cache", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second, ShouldResemble, first)
				So(llm.calls, ShouldEqual, 1)
				So(pages.calls, ShouldEqual, 1)
				So(cache.stores, ShouldEqual, 1)
			})
		})

		Convey("When a cache is configured and the reply is malformed", func() {
			cache := &memoryCache{events: map[string][]model.Event{}}
			llm.reply = "oops"
			_, err := extract.New(pages, llm, extract.WithCache(cache)).Extract(ctx, article)

			Convey("Then nothing should be cached", func() {
				So(err, ShouldBeNil)
				So(cache.stores, ShouldEqual, 0)
			})
		})
	})
}
