// Package extractor drives one extraction: it builds the query, streams the
// pages, feeds every row to the incremental tracker and the writer, and
// finalizes the output and the state.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/internal/fetcher"
	"github.com/ajitpratap0/aztable-extractor/internal/incremental"
	"github.com/ajitpratap0/aztable-extractor/internal/writer"
	"github.com/ajitpratap0/aztable-extractor/pkg/config"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/metrics"
	"github.com/ajitpratap0/aztable-extractor/pkg/observability"
	"github.com/ajitpratap0/aztable-extractor/pkg/publish"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
	"github.com/ajitpratap0/aztable-extractor/pkg/retry"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
)

// DefaultProgressInterval is the minimum time between two progress logs
const DefaultProgressInterval = 30 * time.Second

// Result summarizes a finished extraction
type Result struct {
	Rows      int
	Pages     int
	Artifacts []string
	Published []string
	// State is the persisted watermark, nil when nothing was written
	State *incremental.State
}

// Extractor exports one table
type Extractor struct {
	cfg    *config.Config
	client tableclient.Client
	policy *retry.Policy

	dataDir          string
	progressInterval time.Duration
	metrics          *metrics.Metrics
	publisher        *publish.Publisher
	logger           *zap.Logger
	now              func() time.Time

	rows         int
	pages        int
	lastProgress time.Time
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithMetrics records extraction metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithPublisher mirrors the output files after a successful run
func WithPublisher(p *publish.Publisher) Option {
	return func(e *Extractor) { e.publisher = p }
}

// WithProgressInterval sets the minimum time between progress logs
func WithProgressInterval(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.progressInterval = d
		}
	}
}

// WithRetryPolicy overrides the backoff of page reads
func WithRetryPolicy(p *retry.Policy) Option {
	return func(e *Extractor) { e.policy = p }
}

// WithClock replaces the clock used for progress logging
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an extractor writing into dataDir
func New(cfg *config.Config, client tableclient.Client, dataDir string, opts ...Option) *Extractor {
	e := &Extractor{
		cfg:              cfg,
		client:           client,
		dataDir:          dataDir,
		progressInterval: DefaultProgressInterval,
		logger:           zap.NewNop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		e.policy = retry.NewPolicy(cfg.Parameters.Attempts(), tableclient.IsTransient)
	}
	e.logger = e.logger.With(zap.String("component", "extractor"))
	return e
}

// InputStatePath is the state left by the previous run
func (e *Extractor) InputStatePath() string {
	return filepath.Join(e.dataDir, "in", "state.json")
}

// OutputStatePath is where the new state is written
func (e *Extractor) OutputStatePath() string {
	return filepath.Join(e.dataDir, "out", "state.json")
}

// TestConnection probes the account without retries
func (e *Extractor) TestConnection(ctx context.Context) error {
	if err := e.client.QueryTables(ctx); err != nil {
		return errors.Redact(err, errors.ErrorTypeConnection, "", e.cfg.Parameters.DB.ConnectionString)
	}
	return nil
}

// Extract exports the configured table. The state is written only when the
// whole table was exported.
func (e *Extractor) Extract(ctx context.Context) (*Result, error) {
	p := &e.cfg.Parameters
	ctx, span := observability.StartSpan(ctx, "extract",
		attribute.String("table", p.Table),
		attribute.String("output", p.Output),
		attribute.String("mode", p.Mode))

	res, err := e.extract(ctx)
	if res != nil {
		span.SetAttributes(attribute.Int("rows", res.Rows), attribute.Int("pages", res.Pages))
	}
	observability.EndSpan(span, err)
	return res, err
}

func (e *Extractor) extract(ctx context.Context) (res *Result, err error) {
	p := &e.cfg.Parameters
	e.rows, e.pages, e.lastProgress = 0, 0, time.Time{}

	prior, err := incremental.LoadState(e.InputStatePath())
	if err != nil {
		return nil, err
	}
	tracker := incremental.New(p.IncrementalKey(), prior, e.logger)

	mapping, err := p.MappingObject()
	if err != nil {
		return nil, err
	}
	w, err := writer.New(p.Mode, writer.Options{
		DataDir:     e.dataDir,
		Output:      p.Output,
		Incremental: p.Incremental,
		Select:      p.SelectFields(),
		Mapping:     mapping,
		Compression: p.CompressionAlgorithm(),
		Metrics:     e.metrics,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}
	// Output of a run that fails before the state is persisted is discarded
	committed := false
	defer func() {
		if err == nil || committed {
			return
		}
		if abortErr := w.Abort(); abortErr != nil {
			e.logger.Warn("failed to discard output", zap.Error(abortErr))
		}
	}()

	q := query.Build(query.Options{
		Watermark: tracker.Watermark(),
		Filter:    p.FilterExpr(),
		Select:    p.SelectFields(),
		Limit:     p.LimitValue(),
	})
	e.logger.Info(fmt.Sprintf("Exporting table \"%s\" to \"%s\" ...", p.Table, p.Output),
		zap.String("filter", q.Filter),
		zap.Int("top", q.Top))

	if err := e.export(ctx, q, tracker, w); err != nil {
		return nil, err
	}
	e.logger.Info(fmt.Sprintf("Exported \"%d\" rows / \"%d\" pages.", e.rows, e.pages))

	if err := w.Finalize(ctx); err != nil {
		return nil, err
	}
	if err := tracker.Persist(e.OutputStatePath()); err != nil {
		return nil, err
	}
	committed = true

	res = &Result{Rows: e.rows, Pages: e.pages, Artifacts: w.Artifacts()}
	if st, ok := tracker.State(); ok {
		res.State = &st
	}

	if e.publisher != nil && len(res.Artifacts) > 0 {
		keys, err := e.publisher.Publish(ctx, res.Artifacts)
		if err != nil {
			return nil, err
		}
		res.Published = keys
	}

	return res, nil
}

// export streams all pages into the tracker and the writer, stopping at
// the row limit.
func (e *Extractor) export(ctx context.Context, q query.Query, tracker *incremental.Tracker, w writer.Writer) error {
	p := &e.cfg.Parameters
	limit := p.LimitValue()

	opts := []fetcher.Option{fetcher.WithLogger(e.logger)}
	if e.metrics != nil {
		opts = append(opts, fetcher.WithMetrics(e.metrics))
	}
	f := fetcher.New(e.client, p.Table, q, e.policy, opts...)

	// rowErr keeps errors of row processing apart from read failures
	var rowErr error
	err := f.Each(ctx, func(page *tableclient.Page) (bool, error) {
		e.pages++
		for _, ent := range page.Entities {
			if rowErr = tracker.Process(ent, e.rows); rowErr != nil {
				return true, rowErr
			}
			if rowErr = w.WriteItem(ctx, ent); rowErr != nil {
				return true, rowErr
			}
			e.rows++
			if e.metrics != nil {
				e.metrics.RowsExtracted.WithLabelValues(p.Table).Inc()
			}

			// $top only bounds a single page
			if limit > 0 && e.rows >= limit {
				return true, nil
			}
		}
		e.logProgress()
		return false, nil
	})

	switch {
	case err == nil:
		return nil
	case rowErr != nil:
		return rowErr
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case isClassified(err) && !errors.IsUser(err):
		// Defects of the client, such as undecodable entities, stay
		// application errors
		return err
	default:
		return errors.Redact(err, errors.ErrorTypeQuery,
			fmt.Sprintf("Export of the table \"%s\" failed: ", p.Table),
			p.DB.ConnectionString)
	}
}

func isClassified(err error) bool {
	var e *errors.Error
	return errors.As(err, &e)
}

// logProgress logs at most once per interval. The first call only starts
// the clock.
func (e *Extractor) logProgress() {
	now := e.now()
	if !e.lastProgress.IsZero() && now.Sub(e.lastProgress) < e.progressInterval {
		return
	}
	if !e.lastProgress.IsZero() {
		e.logger.Info(fmt.Sprintf("Progress: \"%d\" rows / \"%d\" pages exported.", e.rows, e.pages))
	}
	e.lastProgress = now
}
