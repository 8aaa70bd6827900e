// Package tableclient defines the table service collaborator used by the
// extractor, with an Azure Storage Table implementation and an in-memory
// implementation for tests.
package tableclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

// Client reads entities from a table service
type Client interface {
	// QueryTables lists tables, used as a connectivity probe
	QueryTables(ctx context.Context) error
	// QueryEntities reads one page of the table starting at token
	QueryEntities(ctx context.Context, table string, q query.Query, token query.ContinuationToken) (*Page, error)
}

// Page is one response of a paginated read
type Page struct {
	Entities []*entity.Entity
	// Next is nil on the last page
	Next *query.ContinuationToken
}

// HasMore reports whether another page follows
func (p *Page) HasMore() bool {
	return p.Next != nil && !p.Next.IsZero()
}

// IsTransient reports whether a failed read may succeed when re-issued:
// transport failures, timeouts, throttling and server errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return transientStatus(respErr.StatusCode)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// StatusError is a service failure with an HTTP status. The in-memory client
// returns it to simulate service responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return http.StatusText(e.StatusCode) + ": " + e.Message
	}
	return http.StatusText(e.StatusCode)
}
