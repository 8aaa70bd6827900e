package publish

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Bucket uploads objects with the S3 multipart upload manager
type S3Bucket struct {
	name     string
	uploader *manager.Uploader
}

// NewS3 creates an S3 bucket client using the default AWS credential chain
func NewS3(ctx context.Context, bucket, region string) (*S3Bucket, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	uploader := manager.NewUploader(s3.NewFromConfig(cfg), func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
		u.Concurrency = 4
	})
	return &S3Bucket{name: bucket, uploader: uploader}, nil
}

// Put implements Bucket
func (b *S3Bucket) Put(ctx context.Context, key string, body io.Reader, info ObjectInfo) error {
	_, err := b.uploader.Upload(ctx, putObjectInput(b.name, key, body, info))
	return err
}

func putObjectInput(bucket, key string, body io.Reader, info ObjectInfo) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(info.ContentType),
	}
	if info.ContentEncoding != "" {
		in.ContentEncoding = aws.String(info.ContentEncoding)
	}
	return in
}

// Close implements Bucket
func (b *S3Bucket) Close() error {
	return nil
}
