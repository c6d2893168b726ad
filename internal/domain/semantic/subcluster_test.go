package semantic_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/internal/domain/semantic"
	"github.com/okian/storyline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   int
	err     error
	drop    bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0}
		}
		out = append(out, v)
	}
	if f.drop {
		out = out[1:]
	}
	return out, nil
}

func bucket(n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = model.Event{Text: fmt.Sprintf("event %d", i), Date: model.NewDate(2025, time.June, 1+i)}
	}
	return out
}

func TestSubClusterer(t *testing.T) {
	Convey("Given a sub-clusterer with the default threshold", t, func() {
		ctx := context.Background()
		emb := &fakeEmbedder{vectors: map[string][]float32{}}
		s := semantic.New(emb)
		So(s.Threshold(), ShouldEqual, 5)

		Convey("When the bucket holds four events", func() {
			events := bucket(4)
			clusters, err := s.Cluster(ctx, events)

			Convey("Then it should not embed and return the whole bucket", func() {
				So(err, ShouldBeNil)
				So(emb.calls, ShouldEqual, 0)
				So(clusters, ShouldHaveLength, 1)
				So(clusters[0], ShouldResemble, events)
			})
		})

		Convey("When the bucket holds five events", func() {
			clusters, err := s.Cluster(ctx, bucket(5))

			Convey("Then it should embed once and keep every event", func() {
				So(err, ShouldBeNil)
				So(emb.calls, ShouldEqual, 1)
				total := 0
				for _, c := range clusters {
					total += len(c)
				}
				So(total, ShouldEqual, 5)
			})
		})

		Convey("When the events form two topics and one stray event", func() {
			emb.vectors = map[string][]float32{
				"strike a": {0, 0}, "strike b": {0, 0.1}, "strike c": {0.1, 0},
				"talks a": {10, 10}, "talks b": {10, 10.1}, "talks c": {10.1, 10},
				"deportation": {50, -50},
			}
			var events []model.Event
			for i, text := range []string{"strike a", "talks a", "deportation", "strike b", "talks b", "strike c", "talks c"} {
				events = append(events, model.Event{Text: text, Date: model.NewDate(2025, time.June, 20+i)})
			}
			clusters, err := s.Cluster(ctx, events)

			Convey("Then the stray event should be kept as its own cluster", func() {
				So(err, ShouldBeNil)
				So(clusters, ShouldHaveLength, 3)
				So(clusters[0], ShouldHaveLength, 3)
				So(clusters[0][0].Text, ShouldEqual, "strike a")
				So(clusters[1][0].Text, ShouldEqual, "talks a")
				So(clusters[2], ShouldHaveLength, 1)
				So(clusters[2][0].Text, ShouldEqual, "deportation")
			})

			Convey("And the clusters should partition the bucket", func() {
				seen := map[string]int{}
				for _, c := range clusters {
					for _, e := range c {
						seen[e.Text]++
					}
				}
				So(seen, ShouldHaveLength, len(events))
			})
		})

		Convey("When every event embeds to the same vector", func() {
			clusters, err := s.Cluster(ctx, bucket(6))

			Convey("Then the noise should come back as a single cluster", func() {
				So(err, ShouldBeNil)
				So(clusters, ShouldHaveLength, 1)
				So(clusters[0], ShouldHaveLength, 6)
			})
		})

		Convey("When the embedder fails", func() {
			emb.err = errors.New("quota")
			_, err := s.Cluster(ctx, bucket(5))

			Convey("Then the error should be wrapped as an embed failure", func() {
				So(errors.Is(err, semantic.ErrEmbed), ShouldBeTrue)
			})
		})

		Convey("When the embedder returns too few vectors", func() {
			emb.drop = true
			_, err := s.Cluster(ctx, bucket(5))

			Convey("Then it should report a mismatch", func() {
				So(errors.Is(err, semantic.ErrEmbeddingMismatch), ShouldBeTrue)
			})
		})

		Convey("When the bucket is empty", func() {
			clusters, err := s.Cluster(ctx, nil)

			Convey("Then it should return nothing", func() {
				So(err, ShouldBeNil)
				So(clusters, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a custom threshold", t, func() {
		emb := &fakeEmbedder{}
		s := semantic.New(emb, semantic.WithThreshold(3), semantic.WithMinClusterSize(2))
		_, err := s.Cluster(context.Background(), bucket(3))

		Convey("Then a bucket at the threshold should be embedded", func() {
			So(err, ShouldBeNil)
			So(emb.calls, ShouldEqual, 1)
		})
	})
}
