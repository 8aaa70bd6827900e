package writer

import (
	"context"
	"os"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

// DataColumn holds the JSON encoded row in raw mode
const DataColumn = "data"

// Raw writes {PartitionKey, RowKey, data} rows into a single table
type Raw struct {
	opts      Options
	out       *tableFile
	rows      int
	artifacts []string
	logger    *zap.Logger
}

func newRaw(opts Options) (*Raw, error) {
	out, err := createTableFile(opts.DataDir, opts.Output, opts.Compression)
	if err != nil {
		return nil, err
	}
	return &Raw{
		opts:   opts,
		out:    out,
		logger: opts.Logger.With(zap.String("component", "raw_writer"), zap.String("output", opts.Output)),
	}, nil
}

// WriteItem writes one row
func (w *Raw) WriteItem(ctx context.Context, e *entity.Entity) error {
	e.StripMetadata()

	keys := make([]string, 0, 2)
	for _, name := range []string{entity.PartitionKey, entity.RowKey} {
		if !e.Has(name) {
			return w.missingKey(name)
		}
		v, _ := e.String(name)
		keys = append(keys, v)
	}

	data, err := gojson.Marshal(e)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode row")
	}

	if err := w.out.csv.Write([]string{keys[0], keys[1], string(data)}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write row").WithDetail("path", w.out.path)
	}
	w.rows++
	if w.opts.Metrics != nil {
		w.opts.Metrics.RowsWritten.WithLabelValues(w.opts.Output).Inc()
	}
	return nil
}

func (w *Raw) missingKey(name string) error {
	if len(w.opts.Select) > 0 {
		return errors.Newf(errors.ErrorTypeData,
			"Missing \"%s\" key in the query results. "+
				"Please modify the \"select\" value in the configuration "+
				"or use the \"mapping\" mode instead of the \"raw\".", name)
	}
	return errors.Newf(errors.ErrorTypeInternal, "Missing \"%s\" key in the query results.", name)
}

// Finalize closes the file and writes the manifest. Without rows the file
// is removed and no manifest is written.
func (w *Raw) Finalize(ctx context.Context) error {
	if err := w.out.close(); err != nil {
		return err
	}

	if w.rows == 0 {
		if err := os.Remove(w.out.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove empty output file")
		}
		w.logger.Debug("no rows written, output removed")
		return nil
	}

	manifest, err := writeManifest(w.out.path, Manifest{
		Columns:     []string{entity.PartitionKey, entity.RowKey, DataColumn},
		PrimaryKey:  []string{entity.PartitionKey, entity.RowKey},
		Incremental: w.opts.Incremental,
	})
	if err != nil {
		return err
	}

	w.artifacts = []string{w.out.path, manifest}
	w.logger.Debug("output written", zap.Int("rows", w.rows), zap.String("path", w.out.path))
	return nil
}

// Artifacts lists the files written by Finalize
func (w *Raw) Artifacts() []string {
	return w.artifacts
}

// Abort closes the file and removes it together with its manifest
func (w *Raw) Abort() error {
	closeErr := w.out.close()
	if err := removeAll(append([]string{w.out.path}, w.artifacts...)); err != nil {
		return err
	}
	w.artifacts = nil
	w.logger.Debug("output discarded", zap.String("path", w.out.path))
	return closeErr
}
