package writer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/csvmap"
	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

// ParentIDKey is the user data key holding the hash of the parent row
const ParentIDKey = "parentId"

// Mapping flattens rows into the tables of a csvmap mapping
type Mapping struct {
	opts      Options
	mapper    *csvmap.Mapper
	tempDir   string
	artifacts []string
	logger    *zap.Logger
}

func newMapping(opts Options) (*Mapping, error) {
	if opts.Mapping == nil {
		return nil, errors.New(errors.ErrorTypeConfig,
			"Invalid configuration, missing \"mapping\" key, mode is set to \"mapping\".")
	}

	tempDir, err := os.MkdirTemp("", "aztable-mapping-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary directory")
	}

	mapper, err := csvmap.New(opts.Mapping, opts.Output, tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	return &Mapping{
		opts:    opts,
		mapper:  mapper,
		tempDir: tempDir,
		logger:  opts.Logger.With(zap.String("component", "mapping_writer"), zap.String("output", opts.Output)),
	}, nil
}

// WriteItem maps one row. The hash of the row is passed as the "parentId"
// user data so nested rows of different parents never share a key.
func (w *Mapping) WriteItem(ctx context.Context, e *entity.Entity) error {
	e.StripMetadata()

	parentID, err := hashRow(e)
	if err != nil {
		return err
	}

	return w.mapper.ParseRow(e.Object, map[string]string{ParentIDKey: parentID})
}

func hashRow(e *entity.Entity) (string, error) {
	data, err := gojson.Marshal(e)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode row")
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Finalize copies every non-empty table to the output directory and writes
// its manifest
func (w *Mapping) Finalize(ctx context.Context) error {
	defer os.RemoveAll(w.tempDir)

	if err := w.mapper.Close(); err != nil {
		return err
	}

	for _, table := range w.mapper.Tables() {
		if table.Rows() == 0 {
			w.logger.Debug("table is empty, skipped", zap.String("table", table.Name))
			continue
		}

		out, err := w.copyTable(table)
		if err != nil {
			return err
		}

		manifest, err := writeManifest(out, Manifest{
			Columns:     table.Header,
			PrimaryKey:  table.PrimaryKey,
			Incremental: w.opts.Incremental,
		})
		if err != nil {
			return err
		}

		if w.opts.Metrics != nil {
			w.opts.Metrics.RowsWritten.WithLabelValues(table.Name).Add(float64(table.Rows()))
		}
		w.artifacts = append(w.artifacts, out, manifest)
		w.logger.Debug("table written", zap.String("table", table.Name), zap.Int("rows", table.Rows()))
	}

	return nil
}

func (w *Mapping) copyTable(table *csvmap.Table) (string, error) {
	src, err := os.Open(table.Path())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to open mapped table").
			WithDetail("table", table.Name)
	}
	defer src.Close()

	out, err := createTableFile(w.opts.DataDir, table.Name, w.opts.Compression)
	if err != nil {
		return "", err
	}

	// Rows are already CSV encoded, bypass the CSV writer
	if _, err := io.Copy(out.zw, src); err != nil {
		out.close()
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to copy mapped table").
			WithDetail("table", table.Name)
	}
	if err := out.close(); err != nil {
		return "", err
	}
	return out.path, nil
}

// Artifacts lists the files written by Finalize
func (w *Mapping) Artifacts() []string {
	return w.artifacts
}

// Abort drops the temporary tables and every file already copied to the
// output directory
func (w *Mapping) Abort() error {
	closeErr := w.mapper.Close()
	if err := os.RemoveAll(w.tempDir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to remove temporary directory").
			WithDetail("path", w.tempDir)
	}
	if err := removeAll(w.artifacts); err != nil {
		return err
	}
	w.artifacts = nil
	w.logger.Debug("output discarded")
	return closeErr
}
