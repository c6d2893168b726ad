package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/storyline/internal/adapters/llm"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/retry"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var fastRetry = retry.Config{MaxAttempts: 3, Delay: time.Millisecond}

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func openAIServer(chatStatus *int32, calls *int32, last *chatRequest) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if status := atomic.LoadInt32(chatStatus); status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(status))
			fmt.Fprint(w, `{"error":{"message":"failure","type":"invalid_request_error","code":"x"}}`)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(last)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Title: T\nSummary: S"},"finish_reason":"stop"}]}`)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose.
		fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	})
	return httptest.NewServer(mux)
}

func TestOpenAI(t *testing.T) {
	Convey("Given an OpenAI compatible server", t, func() {
		ctx := context.Background()
		status := int32(http.StatusOK)
		var calls int32
		var last chatRequest
		srv := openAIServer(&status, &calls, &last)
		defer srv.Close()

		p, err := llm.New(ctx, llm.Config{Provider: "openai", APIKey: "k", BaseURL: srv.URL + "/v1"})
		So(err, ShouldBeNil)
		client := llm.NewClient(p, llm.WithRetry(fastRetry), llm.WithRateLimit(1000, 10))

		Convey("When completing a prompt", func() {
			text, err := client.Complete(ctx, "system text", "user text", 0.2)

			Convey("Then the reply and request should match", func() {
				So(err, ShouldBeNil)
				So(text, ShouldEqual, "Title: T\nSummary: S")
				So(last.Model, ShouldEqual, "gpt-4o")
				So(last.Temperature, ShouldAlmostEqual, 0.2, 1e-6)
				So(last.Messages, ShouldHaveLength, 2)
				So(last.Messages[0].Role, ShouldEqual, "system")
				So(last.Messages[1].Content, ShouldEqual, "user text")
				So(client.Name(), ShouldEqual, "openai:gpt-4o")
			})
		})

		Convey("When embedding texts", func() {
			vectors, err := client.Embed(ctx, []string{"a", "b"})

			Convey("Then vectors should follow input order", func() {
				So(err, ShouldBeNil)
				So(vectors, ShouldResemble, [][]float32{{1, 0}, {0, 1}})
			})
		})

		Convey("When the key is rejected", func() {
			atomic.StoreInt32(&status, http.StatusUnauthorized)
			_, err := client.Complete(ctx, "s", "p", 0.3)

			Convey("Then it should fail without retrying", func() {
				So(err, ShouldNotBeNil)
				So(atomic.LoadInt32(&calls), ShouldEqual, 1)
			})
		})

		Convey("When the server keeps failing", func() {
			atomic.StoreInt32(&status, http.StatusInternalServerError)
			_, err := client.Complete(ctx, "s", "p", 0.3)

			Convey("Then every attempt should be used", func() {
				So(errors.Is(err, retry.ErrExhausted), ShouldBeTrue)
				So(atomic.LoadInt32(&calls), ShouldEqual, 3)
			})
		})
	})
}

type flakyProvider struct {
	failures int32
	calls    int32
}

func (f *flakyProvider) Name() string { return "fake:model" }
func (f *flakyProvider) Close() error { return nil }

func (f *flakyProvider) Complete(context.Context, string, string, float32) (string, error) {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return "", errors.New("temporary")
	}
	return "ok", nil
}

func (f *flakyProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestClient(t *testing.T) {
	Convey("Given a client over a flaky provider", t, func() {
		ctx := context.Background()
		p := &flakyProvider{failures: 2}
		c := llm.NewClient(p, llm.WithRetry(fastRetry))

		Convey("When the provider recovers within the attempts", func() {
			text, err := c.Complete(ctx, "s", "p", 0.2)

			Convey("Then the call should succeed", func() {
				So(err, ShouldBeNil)
				So(text, ShouldEqual, "ok")
				So(atomic.LoadInt32(&p.calls), ShouldEqual, 3)
			})
		})

		Convey("When embedding nothing", func() {
			out, err := c.Embed(ctx, nil)

			Convey("Then the provider should not be called", func() {
				So(err, ShouldBeNil)
				So(out, ShouldBeEmpty)
				So(atomic.LoadInt32(&p.calls), ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled while waiting for the limiter", func() {
			limited := llm.NewClient(&flakyProvider{}, llm.WithRateLimit(0.001, 1), llm.WithRetry(fastRetry))
			_, _ = limited.Complete(ctx, "s", "p", 0.2)
			cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err := limited.Complete(cctx, "s", "p", 0.2)

			Convey("Then the call should fail fast", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given provider configuration", t, func() {
		ctx := context.Background()

		Convey("When the provider is unknown", func() {
			_, err := llm.New(ctx, llm.Config{Provider: "llama", APIKey: "k"})

			Convey("Then construction should fail", func() {
				So(errors.Is(err, llm.ErrUnknownProvider), ShouldBeTrue)
			})
		})

		Convey("When the key is missing", func() {
			_, err := llm.New(ctx, llm.Config{Provider: "openai"})

			Convey("Then construction should fail", func() {
				So(errors.Is(err, llm.ErrMissingAPIKey), ShouldBeTrue)
			})
		})
	})
}
