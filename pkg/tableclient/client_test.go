package tableclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), false},
		{"azure throttled", &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}, true},
		{"azure server", &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}, true},
		{"azure forbidden", &azcore.ResponseError{StatusCode: http.StatusForbidden}, false},
		{"azure not found", &azcore.ResponseError{StatusCode: http.StatusNotFound}, false},
		{"status timeout", &StatusError{StatusCode: http.StatusRequestTimeout}, true},
		{"status bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"network", &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}, true},
		{"truncated body", fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), true},
		{"other", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestMemoryPagination(t *testing.T) {
	m := NewMemory().AddTable("people",
		[]*entity.Entity{entity.MustDecode(`{"RowKey":"A"}`), entity.MustDecode(`{"RowKey":"B"}`)},
		[]*entity.Entity{entity.MustDecode(`{"RowKey":"C"}`)},
	)
	ctx := context.Background()

	first, err := m.QueryEntities(ctx, "people", query.Query{}, query.ContinuationToken{})
	require.NoError(t, err)
	require.Len(t, first.Entities, 2)
	require.True(t, first.HasMore())

	second, err := m.QueryEntities(ctx, "people", query.Query{}, *first.Next)
	require.NoError(t, err)
	require.Len(t, second.Entities, 1)
	assert.False(t, second.HasMore())

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Token.IsZero())
	assert.Equal(t, *first.Next, calls[1].Token)
}

func TestMemoryFailures(t *testing.T) {
	m := NewMemory().AddTable("t", nil)
	boom := &StatusError{StatusCode: http.StatusInternalServerError}
	m.FailNext(boom)

	_, err := m.QueryEntities(context.Background(), "t", query.Query{}, query.ContinuationToken{})
	assert.Same(t, boom, err)

	page, err := m.QueryEntities(context.Background(), "t", query.Query{}, query.ContinuationToken{})
	require.NoError(t, err)
	assert.Empty(t, page.Entities)
	assert.False(t, page.HasMore())

	_, err = m.QueryEntities(context.Background(), "missing", query.Query{}, query.ContinuationToken{})
	assert.False(t, IsTransient(err))
}

func TestNewAzureRejectsBadConnectionString(t *testing.T) {
	_, err := NewAzure("not-a-connection-string", nil)
	assert.Error(t, err)
}
