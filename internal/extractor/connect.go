package extractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/config"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/retry"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
)

// ClientFactory creates a table client from a connection string
type ClientFactory func(connectionString string, logger *zap.Logger) (tableclient.Client, error)

// AzureClientFactory creates clients for the Azure Table service
func AzureClientFactory(connectionString string, logger *zap.Logger) (tableclient.Client, error) {
	c, err := tableclient.NewAzure(connectionString, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Connect creates the table client. Transient failures are retried for the
// run action; connection tests make a single attempt. Errors never contain
// the connection string.
func Connect(ctx context.Context, cfg *config.Config, factory ClientFactory, policy *retry.Policy, logger *zap.Logger) (tableclient.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connStr := cfg.Parameters.DB.ConnectionString

	if policy == nil {
		policy = retry.NewPolicy(cfg.Parameters.Attempts(), tableclient.IsTransient)
	}
	p := policy.WithLogger(logger)
	p.ShouldRetry = tableclient.IsTransient
	if cfg.Action == config.ActionTestConnection {
		p = p.WithoutRetries()
	}

	client, err := retry.Do(ctx, p, func(context.Context) (tableclient.Client, error) {
		return factory(connStr, logger)
	})
	if err != nil {
		return nil, errors.Redact(err, errors.ErrorTypeConnection, "Connection error: ", connStr)
	}
	return client, nil
}
