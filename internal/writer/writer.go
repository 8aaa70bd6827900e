// Package writer turns extracted rows into CSV tables with manifests.
//
// Two variants exist. The raw writer emits one table with the partition
// key, the row key and the whole row as JSON. The mapping writer flattens
// rows into any number of tables following a csvmap mapping. Both write
// files under <data-dir>/out/tables and a "<file>.manifest" next to every
// non-empty table; empty tables leave nothing behind.
package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/compression"
	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/metrics"
)

const (
	// ModeRaw selects the raw writer
	ModeRaw = "raw"
	// ModeMapping selects the mapping writer
	ModeMapping = "mapping"
)

// Writer consumes rows and produces the output tables
type Writer interface {
	// WriteItem writes one row
	WriteItem(ctx context.Context, e *entity.Entity) error
	// Finalize completes the output and writes manifests
	Finalize(ctx context.Context) error
	// Artifacts lists the files produced by Finalize
	Artifacts() []string
	// Abort discards the output of a failed run, including files already
	// written by Finalize
	Abort() error
}

// Options configure a writer
type Options struct {
	DataDir     string
	Output      string
	Incremental bool
	// Select is the configured field selection, used in error messages
	Select      []string
	Mapping     *entity.Object
	Compression compression.Algorithm
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// New creates the writer for mode
func New(mode string, opts Options) (Writer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Compression == "" {
		opts.Compression = compression.None
	}

	var (
		w   Writer
		err error
	)
	switch mode {
	case ModeRaw:
		w, err = newRaw(opts)
	case ModeMapping:
		w, err = newMapping(opts)
	default:
		return nil, errors.Newf(errors.ErrorTypeInternal, "Unexpected mode \"%s\".", mode)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// TablesDir returns the output directory for tables
func TablesDir(dataDir string) string {
	return filepath.Join(dataDir, "out", "tables")
}

// Manifest describes one output table
type Manifest struct {
	Columns     []string `json:"columns"`
	PrimaryKey  []string `json:"primary_key"`
	Incremental bool     `json:"incremental"`
}

// ManifestPath returns the manifest path of a table file
func ManifestPath(csvPath string) string {
	return csvPath + ".manifest"
}

func writeManifest(csvPath string, m Manifest) (string, error) {
	if m.PrimaryKey == nil {
		m.PrimaryKey = []string{}
	}
	data, err := gojson.MarshalIndent(m, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode manifest")
	}

	path := ManifestPath(csvPath)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write manifest").
			WithDetail("path", path)
	}
	return path, nil
}

// ReadManifest loads a manifest file
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = gojson.Unmarshal(data, &m)
	return m, err
}

// removeAll deletes the given files, ignoring the ones already gone
func removeAll(paths []string) error {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove output file").WithDetail("path", path)
		}
	}
	return nil
}

// tableFile is an output CSV file behind an optional compressor
type tableFile struct {
	path string
	file *os.File
	zw   io.WriteCloser
	csv  *csv.Writer
}

func createTableFile(dataDir, name string, algo compression.Algorithm) (*tableFile, error) {
	dir := TablesDir(dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("path", dir)
	}

	path := filepath.Join(dir, name+".csv"+algo.Extension())
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", path)
	}

	zw, err := compression.NewWriter(f, algo, compression.Default)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("invalid compression \"%s\"", algo))
	}

	return &tableFile{path: path, file: f, zw: zw, csv: csv.NewWriter(zw)}, nil
}

// close flushes the CSV writer, the compressor and the file, in that order
func (t *tableFile) close() error {
	if t.file == nil {
		return nil
	}
	defer func() { t.file = nil }()

	t.csv.Flush()
	if err := t.csv.Error(); err != nil {
		t.file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output file").WithDetail("path", t.path)
	}
	if err := t.zw.Close(); err != nil {
		t.file.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed output").WithDetail("path", t.path)
	}
	if err := t.file.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file").WithDetail("path", t.path)
	}
	return nil
}
