// Package testutil provides testing utilities for the extractor
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// Rows builds n entities of one partition with zero padded row keys
// starting at from, each carrying an Int32 "Index" property.
func Rows(partition string, from, n int) []*entity.Entity {
	rows := make([]*entity.Entity, 0, n)
	for i := from; i < from+n; i++ {
		rows = append(rows, entity.MustDecode(fmt.Sprintf(
			`{"odata.etag":"W/\"%d\"","PartitionKey":"%s","RowKey":"%04d","Index":%d,"Index@odata.type":"Edm.Int32"}`,
			i, partition, i, i)))
	}
	return rows
}

// Pages splits rows into pages of size rows
func Pages(rows []*entity.Entity, size int) [][]*entity.Entity {
	var pages [][]*entity.Entity
	for len(rows) > size {
		pages = append(pages, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		pages = append(pages, rows)
	}
	return pages
}
