// Package timeline assembles a query's news coverage into an ordered
// timeline of summarised sub-stories.
package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/storyline/internal/domain/model"
	"github.com/okian/storyline/pkg/logger"
	"github.com/okian/storyline/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultExtractConcurrency   = 1
	defaultSummarizeConcurrency = 1
	defaultSearchTimeout        = 15 * time.Second
)

// Pipeline stage names, used for logs and metrics.
const (
	StageFetching      = "fetching"
	StageExtracting    = "extracting"
	StagePartitioning  = "partitioning"
	StageSubClustering = "sub_clustering"
	StageSummarizing   = "summarizing"
	StageAssembled     = "assembled"
)

// ArticleSource finds candidate articles for a query.
type ArticleSource interface {
	Search(ctx context.Context, query string) ([]model.Article, error)
}

// EventExtractor returns the dated events reported by one article.
type EventExtractor interface {
	Extract(ctx context.Context, article model.Article) ([]model.Event, error)
}

// Partitioner groups events into time buckets ordered by earliest date.
type Partitioner interface {
	Partition(ctx context.Context, events []model.Event) ([][]model.Event, error)
}

// SubClusterer splits one time bucket into topic clusters.
type SubClusterer interface {
	Cluster(ctx context.Context, bucket []model.Event) ([][]model.Event, error)
}

// Summarizer writes a title and summary for a date-ordered cluster.
type Summarizer interface {
	Summarize(ctx context.Context, events []model.Event) (model.Summary, error)
}

// Stages are the collaborators the assembler drives, in pipeline order.
type Stages struct {
	Source      ArticleSource
	Extractor   EventExtractor
	Partitioner Partitioner
	Clusterer   SubClusterer
	Summarizer  Summarizer
}

func (s Stages) validate() error {
	switch {
	case s.Source == nil:
		return fmt.Errorf("%w: article source", ErrMissingStage)
	case s.Extractor == nil:
		return fmt.Errorf("%w: event extractor", ErrMissingStage)
	case s.Partitioner == nil:
		return fmt.Errorf("%w: partitioner", ErrMissingStage)
	case s.Clusterer == nil:
		return fmt.Errorf("%w: sub-clusterer", ErrMissingStage)
	case s.Summarizer == nil:
		return fmt.Errorf("%w: summarizer", ErrMissingStage)
	}
	return nil
}

// Assembler runs the timeline pipeline for one query at a time. It holds no
// per-request state and is safe for concurrent use.
type Assembler struct {
	stages               Stages
	extractConcurrency   int
	summarizeConcurrency int
	searchTimeout        time.Duration
	logger               logger.Logger
}

// Option applies a configuration option to the Assembler.
type Option func(*Assembler)

// WithExtractConcurrency bounds how many articles are extracted at once.
func WithExtractConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.extractConcurrency = n
		}
	}
}

// WithSummarizeConcurrency bounds how many clusters are summarised at once.
func WithSummarizeConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.summarizeConcurrency = n
		}
	}
}

// WithSearchTimeout bounds the article search.
func WithSearchTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.searchTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Assembler. All stages are required.
func New(stages Stages, opts ...Option) (*Assembler, error) {
	if err := stages.validate(); err != nil {
		return nil, err
	}
	a := &Assembler{
		stages:               stages,
		extractConcurrency:   defaultExtractConcurrency,
		summarizeConcurrency: defaultSummarizeConcurrency,
		searchTimeout:        defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("timeline")
	}
	return a, nil
}

// Generate builds the timeline for query. Article and cluster level
// failures are absorbed; a failed search or partitioning fails the whole
// run and no partial timeline is returned. No events yields an empty
// timeline and no error.
func (a *Assembler) Generate(ctx context.Context, query string) (model.Timeline, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	tl, err := a.generate(ctx, query)
	switch {
	case err != nil:
		metrics.RecordTimelineGenerated("failed")
		a.logger.Error(ctx, "timeline generation failed", logger.String("query", query), logger.Error(err))
	case len(tl) == 0:
		metrics.RecordTimelineGenerated("empty")
	default:
		metrics.RecordTimelineGenerated("success")
	}
	return tl, err
}

func (a *Assembler) generate(ctx context.Context, query string) (model.Timeline, error) {
	started := time.Now()

	articles, err := a.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	events, err := a.extract(ctx, articles)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		a.logger.Info(ctx, "no events extracted",
			logger.String("query", query),
			logger.Int("articles", len(articles)),
		)
		return model.Timeline{}, nil
	}

	buckets, err := a.partition(ctx, events)
	if err != nil {
		return nil, err
	}

	clustered, err := a.subCluster(ctx, buckets)
	if err != nil {
		return nil, err
	}

	summaries, err := a.summarize(ctx, clustered)
	if err != nil {
		return nil, err
	}

	tl := make(model.Timeline, 0, len(buckets))
	for i, bucket := range buckets {
		seg := model.TimelineSegment{
			TimeWindow: model.TimeWindow(bucket),
			Substories: make([]model.Substory, 0, len(clustered[i])),
		}
		for j, cluster := range clustered[i] {
			s := summaries[i][j]
			seg.Substories = append(seg.Substories, model.Substory{
				Title:   s.Title,
				Summary: s.Summary,
				Events:  cluster,
			})
		}
		tl = append(tl, seg)
	}

	a.logger.Info(ctx, "timeline assembled",
		logger.String("state", StageAssembled),
		logger.String("query", query),
		logger.Int("articles", len(articles)),
		logger.Int("events", len(events)),
		logger.Int("segments", len(tl)),
		logger.Duration("took", time.Since(started)),
	)
	return tl, nil
}

func (a *Assembler) fetch(ctx context.Context, query string) ([]model.Article, error) {
	defer a.stage(ctx, StageFetching, time.Now())

	sctx, cancel := context.WithTimeout(ctx, a.searchTimeout)
	defer cancel()
	articles, err := a.stages.Source.Search(sctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	metrics.RecordArticlesFetched(len(articles))
	return articles, nil
}

// extract runs the extractor over every article with bounded parallelism.
// Results keep article order. A failed article contributes no events.
func (a *Assembler) extract(ctx context.Context, articles []model.Article) ([]model.Event, error) {
	defer a.stage(ctx, StageExtracting, time.Now())

	perArticle := make([][]model.Event, len(articles))
	var g errgroup.Group
	g.SetLimit(a.extractConcurrency)
	for i, art := range articles {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			events, err := a.stages.Extractor.Extract(ctx, art)
			if err != nil {
				a.logger.Warn(ctx, "article skipped",
					logger.String("url", art.URL),
					logger.Error(err),
				)
				return nil
			}
			perArticle[i] = events
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []model.Event
	for _, ev := range perArticle {
		events = append(events, ev...)
	}
	return events, nil
}

func (a *Assembler) partition(ctx context.Context, events []model.Event) ([][]model.Event, error) {
	defer a.stage(ctx, StagePartitioning, time.Now())

	buckets, err := a.stages.Partitioner.Partition(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartition, err)
	}
	for _, b := range buckets {
		model.SortByDate(b)
	}
	return buckets, nil
}

// subCluster splits each bucket by topic. A bucket whose clustering fails
// is kept as a single cluster. Clusters come back sorted by date.
func (a *Assembler) subCluster(ctx context.Context, buckets [][]model.Event) ([][][]model.Event, error) {
	defer a.stage(ctx, StageSubClustering, time.Now())

	out := make([][][]model.Event, len(buckets))
	for i, bucket := range buckets {
		clusters, err := a.stages.Clusterer.Cluster(ctx, bucket)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.RecordErrorByComponent("semantic", "cluster")
			a.logger.Warn(ctx, "sub-clustering failed, keeping bucket whole",
				logger.Int("bucket", i),
				logger.Int("events", len(bucket)),
				logger.Error(err),
			)
			clusters = [][]model.Event{bucket}
		}
		for _, c := range clusters {
			model.SortByDate(c)
		}
		out[i] = clusters
	}
	return out, nil
}

// summarize fills one summary slot per cluster. Slots are indexed so the
// result never depends on completion order. A failed call leaves an empty
// summary.
func (a *Assembler) summarize(ctx context.Context, clustered [][][]model.Event) ([][]model.Summary, error) {
	defer a.stage(ctx, StageSummarizing, time.Now())

	out := make([][]model.Summary, len(clustered))
	var g errgroup.Group
	g.SetLimit(a.summarizeConcurrency)
	for i, clusters := range clustered {
		out[i] = make([]model.Summary, len(clusters))
		for j, cluster := range clusters {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				s, err := a.stages.Summarizer.Summarize(ctx, cluster)
				if err != nil {
					a.logger.Warn(ctx, "summary unavailable",
						logger.Int("bucket", i),
						logger.Int("cluster", j),
						logger.Error(err),
					)
					return nil
				}
				out[i][j] = s
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Assembler) stage(ctx context.Context, name string, started time.Time) {
	took := time.Since(started)
	metrics.RecordStageDuration(name, took)
	a.logger.Debug(ctx, "stage finished", logger.String("state", name), logger.Duration("took", took))
}
