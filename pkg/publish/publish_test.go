package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

type memoryBucket struct {
	objects map[string]string
	infos   map[string]ObjectInfo
	failOn  string
	closed  bool
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: map[string]string{}, infos: map[string]ObjectInfo{}}
}

func (b *memoryBucket) Put(_ context.Context, key string, body io.Reader, info ObjectInfo) error {
	if key == b.failOn {
		return fmt.Errorf("access denied")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.objects[key] = string(data)
	b.infos[key] = info
	return nil
}

func (b *memoryBucket) Close() error {
	b.closed = true
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "people.csv", "\"p\",\"r\"\n")
	manifestPath := writeFile(t, dir, "people.csv.manifest", "{}")

	bucket := newMemoryBucket()
	p := New(bucket, "/exports/azure/", "run-1", zaptest.NewLogger(t))

	keys, err := p.Publish(context.Background(), []string{csvPath, manifestPath})
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/azure/run-1/people.csv", "exports/azure/run-1/people.csv.manifest"}, keys)
	assert.Equal(t, "\"p\",\"r\"\n", bucket.objects["exports/azure/run-1/people.csv"])
	assert.Equal(t, ObjectInfo{ContentType: "text/csv"}, bucket.infos["exports/azure/run-1/people.csv"])
	assert.Equal(t, ObjectInfo{ContentType: "application/json"}, bucket.infos["exports/azure/run-1/people.csv.manifest"])

	require.NoError(t, p.Close())
	assert.True(t, bucket.closed)
}

func TestPublishGeneratesRunID(t *testing.T) {
	p := New(newMemoryBucket(), "", "", nil)
	assert.Len(t, p.RunID(), 36)
	assert.Equal(t, p.RunID()+"/t.csv.gz", p.Key("/tmp/out/t.csv.gz"))
}

func TestPublishErrors(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "a.csv", "x")

	bucket := newMemoryBucket()
	bucket.failOn = "run/a.csv"
	p := New(bucket, "", "run", zaptest.NewLogger(t))

	keys, err := p.Publish(context.Background(), []string{csvPath})
	require.Error(t, err)
	assert.Empty(t, keys)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	_, err = p.Publish(context.Background(), []string{filepath.Join(dir, "missing.csv")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestPublishCompressed(t *testing.T) {
	dir := t.TempDir()
	gz := writeFile(t, dir, "people.csv.gz", "x")
	zst := writeFile(t, dir, "orders.csv.zst", "y")

	bucket := newMemoryBucket()
	p := New(bucket, "", "run", zaptest.NewLogger(t))
	_, err := p.Publish(context.Background(), []string{gz, zst})
	require.NoError(t, err)

	assert.Equal(t, ObjectInfo{ContentType: "text/csv", ContentEncoding: "gzip"}, bucket.infos["run/people.csv.gz"])
	assert.Equal(t, ObjectInfo{ContentType: "text/csv", ContentEncoding: "zstd"}, bucket.infos["run/orders.csv.zst"])
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		file string
		want ObjectInfo
	}{
		{"a.csv", ObjectInfo{ContentType: "text/csv"}},
		{"a.csv.zst.manifest", ObjectInfo{ContentType: "application/json"}},
		{"a.csv.gz", ObjectInfo{ContentType: "text/csv", ContentEncoding: "gzip"}},
		{"a.csv.zst", ObjectInfo{ContentType: "text/csv", ContentEncoding: "zstd"}},
		{"a.csv.lz4", ObjectInfo{ContentType: "application/x-lz4"}},
		{"a.csv.sz", ObjectInfo{ContentType: "application/x-snappy-framed"}},
		{"a.csv.s2", ObjectInfo{ContentType: "application/x-s2"}},
		{"a.bin", ObjectInfo{ContentType: "application/octet-stream"}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.file))
		})
	}
}

func TestS3PutObjectInput(t *testing.T) {
	in := putObjectInput("bucket", "run/a.csv.gz", strings.NewReader("x"), Describe("a.csv.gz"))
	assert.Equal(t, "bucket", *in.Bucket)
	assert.Equal(t, "run/a.csv.gz", *in.Key)
	assert.Equal(t, "text/csv", *in.ContentType)
	assert.Equal(t, "gzip", *in.ContentEncoding)

	in = putObjectInput("bucket", "run/a.csv", strings.NewReader("x"), Describe("a.csv"))
	assert.Nil(t, in.ContentEncoding)
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(context.Background(), "ftp", "b", "")
	require.Error(t, err)
	assert.True(t, errors.IsUser(err))
}
