// Package fetcher streams the pages of a table query with one page of
// look-ahead.
package fetcher

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/metrics"
	"github.com/ajitpratap0/aztable-extractor/pkg/observability"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
	"github.com/ajitpratap0/aztable-extractor/pkg/retry"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
)

// PageFunc receives pages in order. Returning stop ends the iteration.
type PageFunc func(page *tableclient.Page) (stop bool, err error)

// Fetcher reads all pages of one query
type Fetcher struct {
	client  tableclient.Client
	table   string
	query   query.Query
	policy  *retry.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithMetrics records page counts, retries and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a fetcher. Transient read failures are retried under policy.
func New(client tableclient.Client, table string, q query.Query, policy *retry.Policy, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		table:  table,
		query:  q,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.logger = f.logger.With(zap.String("component", "fetcher"), zap.String("table", table))

	p := *policy
	p.Logger = f.logger
	p.ShouldRetry = tableclient.IsTransient
	if f.metrics != nil {
		onRetry := policy.OnRetry
		p.OnRetry = func(attempt int, err error) {
			f.metrics.FetchRetries.WithLabelValues(table).Inc()
			if onRetry != nil {
				onRetry(attempt, err)
			}
		}
	}
	f.policy = &p

	return f
}

type result struct {
	page *tableclient.Page
	err  error
}

// Each calls fn for every page in server order. The read of the next page
// is issued before fn sees the current one, so at most one read is in flight
// while a page is processed. When fn stops, no further read is issued and the
// in-flight page is discarded.
func (f *Fetcher) Each(ctx context.Context, fn PageFunc) error {
	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	pending := f.start(ctx, stopCtx, query.ContinuationToken{})
	for pending != nil {
		var res result
		select {
		case res = <-pending:
		case <-ctx.Done():
			return ctx.Err()
		}
		if res.err != nil {
			return res.err
		}

		pending = nil
		if res.page.HasMore() {
			pending = f.start(ctx, stopCtx, *res.page.Next)
		}

		done, err := fn(res.page)
		if err != nil {
			return err
		}
		if done {
			if pending != nil {
				f.logger.Debug("stopping early, discarding in-flight page")
			}
			return nil
		}
	}

	return nil
}

// start issues a read in the background. The request runs on ctx so an
// in-flight read completes even after a stop; retries end with stopCtx.
func (f *Fetcher) start(ctx, stopCtx context.Context, token query.ContinuationToken) <-chan result {
	ch := make(chan result, 1)
	go func() {
		page, err := retry.Do(stopCtx, f.policy, func(context.Context) (*tableclient.Page, error) {
			return f.read(ctx, token)
		})
		ch <- result{page: page, err: err}
	}()
	return ch
}

func (f *Fetcher) read(ctx context.Context, token query.ContinuationToken) (*tableclient.Page, error) {
	ctx, span := observability.StartSpan(ctx, "fetch_page",
		attribute.String("table", f.table),
		attribute.Bool("first_page", token.IsZero()))

	timer := metrics.NewTimer("fetch_page")
	page, err := f.client.QueryEntities(ctx, f.table, f.query, token)
	elapsed := timer.Stop()
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.PagesFetched.WithLabelValues(f.table).Inc()
		f.metrics.FetchLatency.WithLabelValues(f.table).Observe(elapsed.Seconds())
	}
	f.logger.Debug("page fetched",
		zap.Int("rows", len(page.Entities)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("has_more", page.HasMore()))

	return page, nil
}
