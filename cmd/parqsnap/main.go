// Command parqsnap exports an entity snapshot to per-cluster Parquet
// files. The snapshot is loaded from a JSON document; the export is
// tuned through an optional YAML configuration file and flags.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/config"
	"github.com/parqsnap/parqsnap/pkg/diag"
	"github.com/parqsnap/parqsnap/pkg/export"
	"github.com/parqsnap/parqsnap/pkg/logger"
	"github.com/parqsnap/parqsnap/pkg/store"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "parqsnap",
		Short: "Parqsnap - columnar snapshot exporter",
		Long: `Parqsnap exports entity/attribute snapshots to compressed Parquet files.
Entities are grouped into clusters by attribute-signature similarity and each
cluster becomes one single-row-group Parquet file.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Parqsnap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var (
		configFile  string
		outputPath  string
		fileName    string
		parallelism int
		entityID    bool
		logLevel    string
		timeout     time.Duration
	)

	exportCmd := &cobra.Command{
		Use:   "export <snapshot.json>",
		Short: "Export a snapshot to Parquet files",
		Long: `Export a JSON snapshot document to per-cluster Parquet files.

Example:
  parqsnap export world.json --output ./snapshots/world --config export.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], configFile, exportOverrides{
				outputPath:  outputPath,
				fileName:    fileName,
				parallelism: parallelism,
				entityID:    entityID,
				logLevel:    logLevel,
				timeout:     timeout,
			})
		},
	}
	exportCmd.Flags().StringVarP(&configFile, "config", "c", "", "export configuration file (YAML)")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output path prefix for Parquet files")
	exportCmd.Flags().StringVar(&fileName, "file-name", "", "override the derived file name")
	exportCmd.Flags().IntVar(&parallelism, "parallel", 0, "export clusters concurrently with this many workers")
	exportCmd.Flags().BoolVar(&entityID, "entity-id", false, "include an entity_id column in every file")
	exportCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	exportCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "export timeout")
	root.AddCommand(exportCmd)

	root.AddCommand(&cobra.Command{
		Use:   "init-config <file>",
		Short: "Write a default export configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], config.DefaultExportConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote default configuration to %s\n", args[0])
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type exportOverrides struct {
	outputPath  string
	fileName    string
	parallelism int
	entityID    bool
	logLevel    string
	timeout     time.Duration
}

func runExport(snapshotFile, configFile string, ov exportOverrides) error {
	if err := logger.Init(logger.Config{Level: ov.logLevel}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { diag.Hope(logger.Sync()) }()
	log := logger.Get()

	cfg := config.DefaultExportConfig()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return diag.ComplainMsg(err, "failed to load configuration")
		}
	}
	if ov.outputPath != "" {
		cfg.OutputPath = ov.outputPath
	}
	if ov.fileName != "" {
		cfg.FileName = ov.fileName
	}
	if ov.parallelism > 0 {
		cfg.Parallelism = ov.parallelism
	}
	if ov.entityID {
		cfg.IncludeEntityID = true
	}

	snap, err := store.LoadSnapshotFile(snapshotFile)
	if err != nil {
		return diag.ComplainMsg(err, "failed to load snapshot")
	}
	log.Info("loaded snapshot",
		zap.String("file", snapshotFile),
		zap.Int("entities", len(snap.Entities())),
		zap.Int("types", snap.Registry().Len()))

	exp, err := export.New(cfg, snap, snap.Registry(), log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ov.timeout)
	defer cancel()

	report, exportErr := exp.Export(ctx)
	if report != nil {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return exportErr
}
