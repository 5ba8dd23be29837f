// Package parqsnap exports entity/attribute snapshots to columnar Parquet
// files.
//
// A snapshot is a read-only view over a set of entities, each carrying a
// set of typed attributes. Parqsnap groups entities into clusters by
// attribute-signature similarity, infers one Arrow schema per cluster
// from the attribute type descriptors, materializes Arrow columns over
// the qualifying entities, and writes each cluster as one compressed
// single-row-group Parquet file.
//
// # Pipeline
//
// An export runs in four stages:
//
// 1. Cluster detection (pkg/cluster): a greedy single-pass scan groups
// entities whose attribute signatures exceed a Jaccard similarity
// threshold (0.80 by default), intersecting the cluster signature down to
// the attributes every member shares. Clusters can also be specified
// manually, bypassing detection.
//
// 2. Marker filtering: clusters that contain no marker attribute are
// dropped. Markers act as opt-in persistence flags and never become
// columns.
//
// 3. Schema inference and materialization (pkg/schema, pkg/materialize):
// each non-marker attribute becomes one column whose Arrow type is
// derived from its type descriptor. Values that cannot be read or do not
// conform to the inferred type are skipped rather than written as null.
//
// 4. Writing (pkg/writer): each cluster is written as one Parquet file
// with a single row group, named after the cluster's attribute short
// names.
//
// # Usage
//
// Build a snapshot in memory or load one from JSON, then export:
//
//	snap, err := store.LoadSnapshotFile("world.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := config.DefaultExportConfig()
//	cfg.OutputPath = "./snapshots/world"
//
//	exp, err := export.New(cfg, snap, snap.Registry(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := exp.Export(context.Background())
//
// The returned report lists every file written with its row count and
// the number of values skipped.
//
// The parqsnap command wraps the same pipeline for use from the shell:
//
//	parqsnap export world.json --output ./snapshots/world --config export.yaml
package parqsnap
