package tableclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

const memoryPartition = "memory-page"

// Call records one QueryEntities invocation of a Memory client
type Call struct {
	Table string
	Query query.Query
	Token query.ContinuationToken
}

// Memory serves pre-built pages. Page i carries a continuation token
// pointing at page i+1, except the last one.
type Memory struct {
	// Latency delays every read
	Latency time.Duration
	// ProbeErr is returned by QueryTables
	ProbeErr error

	mu       sync.Mutex
	tables   map[string][][]*entity.Entity
	failures []error
	calls    []Call

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewMemory creates an empty in-memory client
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][][]*entity.Entity)}
}

// AddTable registers a table served as the given pages
func (m *Memory) AddTable(name string, pages ...[]*entity.Entity) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = pages
	return m
}

// FailNext makes the next reads fail with errs, one per read
func (m *Memory) FailNext(errs ...error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
	return m
}

// Calls returns the reads issued so far
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// MaxInFlight returns the highest number of concurrent reads observed
func (m *Memory) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// QueryTables returns ProbeErr
func (m *Memory) QueryTables(ctx context.Context) error {
	return m.ProbeErr
}

// QueryEntities returns the page addressed by token
func (m *Memory) QueryEntities(ctx context.Context, table string, q query.Query, token query.ContinuationToken) (*Page, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{Table: table, Query: q, Token: token})
	var failure error
	if len(m.failures) > 0 {
		failure, m.failures = m.failures[0], m.failures[1:]
	}
	pages, ok := m.tables[table]
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, &StatusError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("table %q not found", table)}
	}

	index := 0
	if !token.IsZero() {
		i, err := strconv.Atoi(token.NextRowKey)
		if err != nil || token.NextPartitionKey != memoryPartition || i < 0 || i >= len(pages) {
			return nil, &StatusError{StatusCode: http.StatusBadRequest, Message: "invalid continuation token"}
		}
		index = i
	}

	page := &Page{}
	if len(pages) > 0 {
		for _, e := range pages[index] {
			page.Entities = append(page.Entities, e.Clone())
		}
	}
	if index+1 < len(pages) {
		page.Next = &query.ContinuationToken{
			NextPartitionKey: memoryPartition,
			NextRowKey:       strconv.Itoa(index + 1),
		}
	}

	return page, nil
}
