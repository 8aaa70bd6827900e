package publish

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBucket uploads objects to Google Cloud Storage
type GCSBucket struct {
	client *storage.Client
	handle *storage.BucketHandle
}

// NewGCS creates a GCS bucket client. Without options the application
// default credentials are used.
func NewGCS(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSBucket, error) {
	opts = append([]option.ClientOption{option.WithUserAgent("aztable-extractor")}, opts...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSBucket{client: client, handle: client.Bucket(bucket)}, nil
}

// Put implements Bucket
func (b *GCSBucket) Put(ctx context.Context, key string, body io.Reader, info ObjectInfo) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = info.ContentType
	w.ContentEncoding = info.ContentEncoding

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close implements Bucket
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
