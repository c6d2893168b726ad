// Package temporal groups events into time buckets by date.
//
// Grouping is one-dimensional k-means over day offsets. Because the data is
// one-dimensional the optimum is found exactly by dynamic programming over
// the sorted distinct offsets, so results are deterministic and every
// bucket covers a contiguous date range.
package temporal

import (
	"context"
	"math"
	"sort"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

const defaultBuckets = 4

// Partitioner splits events into at most k time buckets.
type Partitioner struct {
	k      int
	logger logger.Logger
}

// Option applies a configuration option to the Partitioner.
type Option func(*Partitioner)

// WithBuckets sets the target number of buckets.
func WithBuckets(k int) Option {
	return func(p *Partitioner) {
		if k > 0 {
			p.k = k
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Partitioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Partitioner with four buckets by default.
func New(opts ...Option) *Partitioner {
	p := &Partitioner{k: defaultBuckets}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("temporal")
	}
	return p
}

// Buckets returns the configured bucket count.
func (p *Partitioner) Buckets() int { return p.k }

// Partition returns the events grouped into buckets ordered by their
// earliest date. When there are fewer distinct dates than buckets, each
// distinct date gets its own bucket. Events keep their input order inside a bucket.
func (p *Partitioner) Partition(ctx context.Context, events []model.Event) ([][]model.Event, error) {
	if len(events) == 0 {
		return nil, ErrEmptyInput
	}

	weights := make(map[int]float64, len(events))
	for _, e := range events {
		weights[e.Date.DayOffset()]++
	}
	values := make([]int, 0, len(weights))
	for v := range weights {
		values = append(values, v)
	}
	sort.Ints(values)

	k := p.k
	if len(values) < k {
		k = len(values)
	}

	xs := make([]float64, len(values))
	ws := make([]float64, len(values))
	for i, v := range values {
		xs[i] = float64(v)
		ws[i] = weights[v]
	}
	labels := optimalSegments(xs, ws, k)

	bucketOf := make(map[int]int, len(values))
	for i, v := range values {
		bucketOf[v] = labels[i]
	}
	groups := make([][]model.Event, k)
	for _, e := range events {
		b := bucketOf[e.Date.DayOffset()]
		groups[b] = append(groups[b], e)
	}

	metrics.RecordClusters("temporal", k)
	p.logger.Debug(ctx, "partitioned events",
		logger.Int("events", len(events)),
		logger.Int("distinctDays", len(values)),
		logger.Int("buckets", k),
	)
	return groups, nil
}

// optimalSegments assigns each sorted value to one of k contiguous segments
// minimising the weighted within-segment sum of squares. Ties resolve to the
// earliest split point.
func optimalSegments(xs, ws []float64, k int) []int {
	n := len(xs)

	// Centre values to keep the prefix sums well conditioned.
	var mean, total float64
	for i := range xs {
		mean += xs[i] * ws[i]
		total += ws[i]
	}
	mean /= total

	sw := make([]float64, n+1)
	s1 := make([]float64, n+1)
	s2 := make([]float64, n+1)
	for i := 0; i < n; i++ {
		x := xs[i] - mean
		sw[i+1] = sw[i] + ws[i]
		s1[i+1] = s1[i] + ws[i]*x
		s2[i+1] = s2[i] + ws[i]*x*x
	}
	cost := func(a, b int) float64 { // inclusive
		w := sw[b+1] - sw[a]
		m := s1[b+1] - s1[a]
		c := s2[b+1] - s2[a] - m*m/w
		if c < 0 {
			return 0
		}
		return c
	}

	dp := make([][]float64, k)
	split := make([][]int, k)
	for j := range dp {
		dp[j] = make([]float64, n)
		split[j] = make([]int, n)
	}
	for i := 0; i < n; i++ {
		dp[0][i] = cost(0, i)
	}
	for j := 1; j < k; j++ {
		for i := j; i < n; i++ {
			best, bestL := math.Inf(1), j
			for l := j; l <= i; l++ {
				if c := dp[j-1][l-1] + cost(l, i); c < best {
					best, bestL = c, l
				}
			}
			dp[j][i] = best
			split[j][i] = bestL
		}
	}

	labels := make([]int, n)
	end := n - 1
	for j := k - 1; j >= 0; j-- {
		start := 0
		if j > 0 {
			start = split[j][end]
		}
		for i := start; i <= end; i++ {
			labels[i] = j
		}
		end = start - 1
	}
	return labels
}
