// Package config defines the export configuration consumed by the
// snapshot exporter and a YAML loader with environment variable
// substitution.
//
// Example:
//
//	cfg := config.DefaultExportConfig()
//	cfg.OutputPath = "./snapshots/world"
//	cfg.Writer.Compression = "zstd"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/parqsnap/parqsnap/pkg/snaperrors"
)

// DefaultFileNameBudget is the hard truncation budget for auto-derived
// file names, excluding the fixed extension suffix.
const DefaultFileNameBudget = 20

// ExportConfig configures one export invocation.
type ExportConfig struct {
	// OutputPath is the destination path prefix. The cluster name and
	// ".parquet" extension are appended per file.
	OutputPath string `yaml:"output_path" json:"output_path"`

	// FileName, when set, replaces the auto-derived cluster file name
	// entirely.
	FileName string `yaml:"file_name,omitempty" json:"file_name,omitempty"`

	// FileNameBudget caps the length of auto-derived file names. Zero
	// means DefaultFileNameBudget.
	FileNameBudget int `yaml:"file_name_budget,omitempty" json:"file_name_budget,omitempty"`

	// IncludeEntityID adds an "entity_id" utf8 column to every file.
	IncludeEntityID bool `yaml:"include_entity_id,omitempty" json:"include_entity_id,omitempty"`

	// Clusters manually specifies attribute clusters by fully-qualified
	// attribute name, bypassing detection when non-empty.
	Clusters [][]string `yaml:"clusters,omitempty" json:"clusters,omitempty"`

	// Clustering tunes automatic cluster detection.
	Clustering ClusteringConfig `yaml:"clustering" json:"clustering"`

	// Writer tunes the Parquet output.
	Writer WriterConfig `yaml:"writer" json:"writer"`

	// Parallelism bounds concurrent per-cluster exports. Values <= 1
	// select the sequential path.
	Parallelism int `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`
}

// ClusteringConfig tunes cluster detection.
type ClusteringConfig struct {
	// SimilarityThreshold is the strict Jaccard lower bound for merging
	// signatures. Zero selects the default of 0.80.
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty" json:"similarity_threshold,omitempty"`

	// Deterministic disables the legacy order-dependent mid-scan seed
	// narrowing in favor of order-insensitive clustering.
	Deterministic bool `yaml:"deterministic,omitempty" json:"deterministic,omitempty"`
}

// WriterConfig tunes the Parquet writer.
type WriterConfig struct {
	// Compression selects the codec: snappy, zstd, gzip, lz4 or none.
	Compression string `yaml:"compression" json:"compression"`

	// DictionaryEncoding toggles dictionary encoding for all columns.
	DictionaryEncoding bool `yaml:"dictionary_encoding" json:"dictionary_encoding"`

	// DataPageSize sets the Parquet data page size in bytes. Zero keeps
	// the writer default.
	DataPageSize int64 `yaml:"data_page_size,omitempty" json:"data_page_size,omitempty"`
}

// DefaultExportConfig returns an ExportConfig with production defaults.
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		OutputPath:     "./",
		FileNameBudget: DefaultFileNameBudget,
		Writer: WriterConfig{
			Compression:        "snappy",
			DictionaryEncoding: true,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *ExportConfig) Validate() error {
	if c.OutputPath == "" {
		return snaperrors.New(snaperrors.ErrorTypeConfig, "output_path is required")
	}
	if c.FileNameBudget < 0 {
		return snaperrors.New(snaperrors.ErrorTypeConfig, "file_name_budget must not be negative")
	}
	if c.Clustering.SimilarityThreshold < 0 || c.Clustering.SimilarityThreshold >= 1 {
		if c.Clustering.SimilarityThreshold != 0 {
			return snaperrors.Newf(snaperrors.ErrorTypeConfig,
				"similarity_threshold must be in (0, 1), got %v", c.Clustering.SimilarityThreshold)
		}
	}
	for i, names := range c.Clusters {
		if len(names) == 0 {
			return snaperrors.Newf(snaperrors.ErrorTypeConfig, "manual cluster %d is empty", i)
		}
	}
	switch c.Writer.Compression {
	case "", "snappy", "zstd", "gzip", "lz4", "none":
	default:
		return snaperrors.Newf(snaperrors.ErrorTypeConfig,
			"unsupported compression codec %q", c.Writer.Compression)
	}
	if c.Writer.DataPageSize < 0 {
		return snaperrors.New(snaperrors.ErrorTypeConfig, "data_page_size must not be negative")
	}
	return nil
}

// NameBudget returns the effective file name truncation budget.
func (c *ExportConfig) NameBudget() int {
	if c.FileNameBudget == 0 {
		return DefaultFileNameBudget
	}
	return c.FileNameBudget
}
