// Package publish mirrors the files produced by an extraction to object
// storage. Objects are keyed <prefix>/<run id>/<file name> so repeated runs
// never overwrite each other.
package publish

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/compression"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

const (
	// TypeS3 publishes to Amazon S3
	TypeS3 = "s3"
	// TypeGCS publishes to Google Cloud Storage
	TypeGCS = "gcs"
)

// Bucket stores one object
type Bucket interface {
	Put(ctx context.Context, key string, body io.Reader, info ObjectInfo) error
	Close() error
}

// Publisher uploads a set of local files to a bucket
type Publisher struct {
	bucket Bucket
	prefix string
	runID  string
	logger *zap.Logger
}

// New creates a publisher. An empty runID is replaced with a random UUID.
func New(bucket Bucket, prefix, runID string, logger *zap.Logger) *Publisher {
	if runID == "" {
		runID = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		runID:  runID,
		logger: logger,
	}
}

// RunID returns the run segment of the object keys
func (p *Publisher) RunID() string {
	return p.runID
}

// Key returns the object key of a local file
func (p *Publisher) Key(file string) string {
	if p.prefix == "" {
		return path.Join(p.runID, filepath.Base(file))
	}
	return path.Join(p.prefix, p.runID, filepath.Base(file))
}

// Publish uploads the files in order and returns their keys
func (p *Publisher) Publish(ctx context.Context, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := p.Key(file)
		if err := p.upload(ctx, file, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	p.logger.Info("published output files",
		zap.Int("files", len(keys)),
		zap.String("run_id", p.runID))
	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file) //nolint:gosec // G304: files produced by this run
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open output file").WithDetail("path", file)
	}
	defer f.Close()

	if err := p.bucket.Put(ctx, key, f, Describe(file)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish output file").
			WithDetail("path", file).
			WithDetail("key", key)
	}
	p.logger.Debug("object uploaded", zap.String("key", key))
	return nil
}

// Close releases the bucket client
func (p *Publisher) Close() error {
	return p.bucket.Close()
}

// ObjectInfo is the HTTP metadata of an uploaded object
type ObjectInfo struct {
	ContentType     string
	ContentEncoding string
}

// Describe derives the object metadata of an output file from its name.
// Gzip and zstd CSV files are served as text/csv with a content encoding;
// the other codecs have no registered encoding and get their own type.
func Describe(file string) ObjectInfo {
	if strings.HasSuffix(file, ".manifest") {
		return ObjectInfo{ContentType: "application/json"}
	}

	algo, base := compression.FromFileName(file)
	if !strings.HasSuffix(base, ".csv") {
		return ObjectInfo{ContentType: "application/octet-stream"}
	}

	switch algo {
	case compression.None:
		return ObjectInfo{ContentType: "text/csv"}
	case compression.Gzip:
		return ObjectInfo{ContentType: "text/csv", ContentEncoding: "gzip"}
	case compression.Zstd:
		return ObjectInfo{ContentType: "text/csv", ContentEncoding: "zstd"}
	case compression.LZ4:
		return ObjectInfo{ContentType: "application/x-lz4"}
	case compression.Snappy:
		return ObjectInfo{ContentType: "application/x-snappy-framed"}
	default:
		return ObjectInfo{ContentType: "application/x-" + string(algo)}
	}
}

// Open creates the bucket client of a publish target
func Open(ctx context.Context, typ, bucket, region string) (Bucket, error) {
	var (
		b   Bucket
		err error
	)
	switch typ {
	case TypeS3:
		b, err = NewS3(ctx, bucket, region)
	case TypeGCS:
		b, err = NewGCS(ctx, bucket)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported publish type %q", typ)
	}
	if err != nil {
		return nil, errors.Redact(err, errors.ErrorTypeConnection, "Publish target error: ")
	}
	return b, nil
}
