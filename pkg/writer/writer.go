// Package writer persists one cluster batch, an Arrow schema plus its
// equal-length columns, as a single-row-group compressed Parquet file.
//
// Files are created or truncated; there is no append across runs. A
// failure writing one cluster's file leaves files already written for
// earlier clusters valid on disk. Nothing is retried.
package writer

import (
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/config"
	"github.com/parqsnap/parqsnap/pkg/diag"
	"github.com/parqsnap/parqsnap/pkg/snaperrors"
)

// Ext is the file extension appended to every output file.
const Ext = ".parquet"

// Writer writes cluster batches to Parquet files.
type Writer struct {
	cfg config.WriterConfig
	log *zap.Logger
}

// New creates a writer with the given tuning.
func New(cfg config.WriterConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{cfg: cfg, log: log}
}

// Write creates or truncates path and writes the batch as one row group.
// It returns the number of rows written. Columns must all have the same
// length and match the schema one to one.
func (w *Writer) Write(path string, sc *arrow.Schema, cols []arrow.Array) (int64, error) {
	rows, err := batchRows(sc, cols)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path) //nolint:gosec // G304: destination is operator-configured
	if err != nil {
		return 0, snaperrors.Wrap(err, snaperrors.ErrorTypeIO, "failed to create output file").
			WithDetail("path", path)
	}

	props := w.writerProperties()
	fw, err := pqarrow.NewFileWriter(sc, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		diag.Hope(f.Close())
		return 0, snaperrors.Wrap(err, snaperrors.ErrorTypeWrite, "failed to create parquet writer").
			WithDetail("path", path)
	}

	rec := array.NewRecord(sc, cols, rows)
	defer rec.Release()

	if err := fw.Write(rec); err != nil {
		diag.Hope(fw.Close())
		return 0, snaperrors.Wrap(err, snaperrors.ErrorTypeWrite, "failed to write record batch").
			WithDetail("path", path)
	}

	// Close finalizes the footer and metadata, and closes the underlying
	// file as well.
	if err := fw.Close(); err != nil {
		return 0, snaperrors.Wrap(err, snaperrors.ErrorTypeWrite, "failed to finalize parquet file").
			WithDetail("path", path)
	}

	w.log.Info("wrote cluster file",
		zap.String("path", path),
		zap.Int64("rows", rows),
		zap.Int("columns", len(cols)))

	return rows, nil
}

func (w *Writer) writerProperties() *parquet.WriterProperties {
	opts := []parquet.WriterProperty{
		parquet.WithCompression(codecFor(w.cfg.Compression)),
		parquet.WithDictionaryDefault(w.cfg.DictionaryEncoding),
	}
	if w.cfg.DataPageSize > 0 {
		opts = append(opts, parquet.WithDataPageSize(w.cfg.DataPageSize))
	}
	return parquet.NewWriterProperties(opts...)
}

func codecFor(name string) compress.Compression {
	switch name {
	case "zstd":
		return compress.Codecs.Zstd
	case "gzip":
		return compress.Codecs.Gzip
	case "lz4":
		return compress.Codecs.Lz4Raw
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// batchRows validates schema/column agreement and returns the row count.
func batchRows(sc *arrow.Schema, cols []arrow.Array) (int64, error) {
	if len(cols) != sc.NumFields() {
		return 0, snaperrors.Newf(snaperrors.ErrorTypeWrite,
			"column count %d does not match schema field count %d", len(cols), sc.NumFields())
	}
	if len(cols) == 0 {
		return 0, nil
	}
	rows := cols[0].Len()
	for i, col := range cols {
		if col.Len() != rows {
			return 0, snaperrors.Newf(snaperrors.ErrorTypeWrite,
				"column %q has %d rows, expected %d", sc.Field(i).Name, col.Len(), rows)
		}
	}
	return int64(rows), nil
}

// FileName assembles the destination path for one cluster:
// "<outputPath>_<name><Ext>". The name is the override when set,
// otherwise the attribute short names joined by "_" and hard-truncated to
// the budget. The auto-derived portion never exceeds the budget.
func FileName(outputPath string, shortNames []string, override string, budget int) string {
	name := override
	if name == "" {
		name = deriveName(shortNames, budget)
	}
	return outputPath + "_" + name + Ext
}

func deriveName(shortNames []string, budget int) string {
	name := strings.Join(shortNames, "_")
	if budget > 0 && len(name) > budget {
		name = name[:budget]
	}
	return name
}
