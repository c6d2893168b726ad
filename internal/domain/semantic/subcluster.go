// Package semantic splits a time bucket into topic clusters using text
// embeddings and density-based clustering.
package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
)

const (
	defaultThreshold      = 5
	defaultMinClusterSize = 2
	defaultEmbedTimeout   = 30 * time.Second
)

// Embedder turns texts into fixed-length vectors, one per text, in order.
// Identical text must map to the identical vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SubClusterer groups the events of one time bucket by topic.
type SubClusterer struct {
	embedder       Embedder
	threshold      int
	minClusterSize int
	minSamples     int
	embedTimeout   time.Duration
	logger         logger.Logger
}

// Option applies a configuration option to the SubClusterer.
type Option func(*SubClusterer)

// WithThreshold sets the bucket size from which sub-clustering runs.
func WithThreshold(n int) Option {
	return func(s *SubClusterer) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithMinClusterSize sets the smallest group HDBSCAN may report. It also
// sets min samples, matching the usual HDBSCAN default.
func WithMinClusterSize(n int) Option {
	return func(s *SubClusterer) {
		if n >= 2 {
			s.minClusterSize = n
			s.minSamples = n
		}
	}
}

// WithEmbedTimeout bounds each embedding call.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *SubClusterer) {
		if d > 0 {
			s.embedTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SubClusterer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a SubClusterer backed by embedder.
func New(embedder Embedder, opts ...Option) *SubClusterer {
	s := &SubClusterer{
		embedder:       embedder,
		threshold:      defaultThreshold,
		minClusterSize: defaultMinClusterSize,
		minSamples:     defaultMinClusterSize,
		embedTimeout:   defaultEmbedTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("semantic")
	}
	return s
}

// Threshold returns the bucket size from which sub-clustering runs.
func (s *SubClusterer) Threshold() int { return s.threshold }

// Cluster splits bucket into topic clusters. Buckets smaller than the
// threshold come back whole without calling the embedder. Otherwise there is
// one cluster per HDBSCAN label, noise included, in order of first appearance
// in bucket. Every input event lands in exactly one cluster.
func (s *SubClusterer) Cluster(ctx context.Context, bucket []model.Event) ([][]model.Event, error) {
	if len(bucket) == 0 {
		return nil, nil
	}
	if len(bucket) < s.threshold {
		metrics.RecordClusters("single", 1)
		return [][]model.Event{bucket}, nil
	}

	vectors, err := s.embed(ctx, bucket)
	if err != nil {
		return nil, err
	}
	labels := hdbscan(vectors, s.minClusterSize, s.minSamples)

	var clusters [][]model.Event
	index := make(map[int]int)
	noise := 0
	for i, label := range labels {
		pos, ok := index[label]
		if !ok {
			pos = len(clusters)
			index[label] = pos
			clusters = append(clusters, nil)
		}
		clusters[pos] = append(clusters[pos], bucket[i])
		if label == NoiseLabel {
			noise++
		}
	}

	if _, ok := index[NoiseLabel]; ok {
		metrics.RecordClusters("noise", 1)
		metrics.RecordClusters("semantic", len(clusters)-1)
	} else {
		metrics.RecordClusters("semantic", len(clusters))
	}
	s.logger.Debug(ctx, "sub-clustered bucket",
		logger.Int("events", len(bucket)),
		logger.Int("clusters", len(clusters)),
		logger.Int("noise", noise),
	)
	return clusters, nil
}

func (s *SubClusterer) embed(ctx context.Context, bucket []model.Event) ([][]float64, error) {
	texts := make([]string, len(bucket))
	for i, e := range bucket {
		texts[i] = e.Text
	}

	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	raw, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbed, err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(raw), len(texts))
	}

	vectors := make([][]float64, len(raw))
	for i, v := range raw {
		if len(v) == 0 || len(v) != len(raw[0]) {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions", ErrEmbeddingMismatch, i, len(v))
		}
		vectors[i] = make([]float64, len(v))
		for j, x := range v {
			vectors[i][j] = float64(x)
		}
	}
	return vectors, nil
}
