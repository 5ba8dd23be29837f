// Package export drives one snapshot export invocation: detect attribute
// clusters, drop clusters lacking a marker attribute, and per surviving
// cluster infer a schema, materialize columns over the qualifying
// entities, and persist one compressed Parquet file.
//
// The sequential path stops at the first IO or write failure; files
// already written for earlier clusters remain valid on disk. The parallel
// path instead attempts every cluster and reports the full error set, a
// deliberate divergence from the sequential stop-at-first behavior.
package export

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parqsnap/parqsnap/pkg/cluster"
	"github.com/parqsnap/parqsnap/pkg/config"
	"github.com/parqsnap/parqsnap/pkg/materialize"
	"github.com/parqsnap/parqsnap/pkg/metrics"
	"github.com/parqsnap/parqsnap/pkg/schema"
	"github.com/parqsnap/parqsnap/pkg/snaperrors"
	"github.com/parqsnap/parqsnap/pkg/store"
	"github.com/parqsnap/parqsnap/pkg/writer"
)

// Exporter exports one snapshot to per-cluster Parquet files. It holds
// only read-only views; the caller must guarantee the snapshot is not
// mutated for the duration of an Export call.
type Exporter struct {
	cfg  *config.ExportConfig
	snap store.Snapshot
	reg  *store.TypeRegistry
	log  *zap.Logger

	detector *cluster.Detector
	builder  *schema.Builder
	mat      *materialize.Materializer
	writer   *writer.Writer
}

// New creates an exporter for one snapshot. The configuration is
// validated up front.
func New(cfg *config.ExportConfig, snap store.Snapshot, reg *store.TypeRegistry, log *zap.Logger) (*Exporter, error) {
	if cfg == nil {
		cfg = config.DefaultExportConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Exporter{
		cfg:  cfg,
		snap: snap,
		reg:  reg,
		log:  log,
		detector: cluster.NewDetector(cluster.Options{
			SimilarityThreshold: cfg.Clustering.SimilarityThreshold,
			Deterministic:       cfg.Clustering.Deterministic,
		}, log),
		builder: schema.NewBuilder(reg, log),
		mat:     materialize.New(snap, reg, log),
		writer:  writer.New(cfg.Writer, log),
	}, nil
}

// Export runs one full invocation and returns a report of what was
// written. Per-entity serialization failures are recovered locally and
// only surface as skipped-value counts; IO and write failures abort the
// cluster they occur in.
func (e *Exporter) Export(ctx context.Context) (*Report, error) {
	timer := metrics.NewTimer()

	clusters, err := e.clusters()
	if err != nil {
		return nil, err
	}

	kept := clusters[:0:0]
	dropped := 0
	for _, c := range clusters {
		if c.ContainsMarker(e.snap, e.reg) {
			kept = append(kept, c)
			continue
		}
		dropped++
		metrics.ClustersDropped.Inc()
		e.log.Info("dropping cluster without marker attribute",
			zap.Uint64("signature", c.Hash()),
			zap.Strings("attributes", c.Names()))
	}

	report := &Report{ClustersDropped: dropped}

	if e.cfg.Parallelism > 1 {
		err = e.exportParallel(ctx, kept, report)
	} else {
		err = e.exportSequential(ctx, kept, report)
	}

	report.Duration = timer.Stop()
	return report, err
}

// clusters returns the manually-configured clusters when present,
// otherwise runs detection.
func (e *Exporter) clusters() ([]cluster.Cluster, error) {
	if len(e.cfg.Clusters) == 0 {
		return e.detector.Detect(e.snap, e.reg), nil
	}

	manual := make([]cluster.Cluster, 0, len(e.cfg.Clusters))
	for _, names := range e.cfg.Clusters {
		c, err := cluster.FromNames(e.snap, names)
		if err != nil {
			return nil, err
		}
		manual = append(manual, c)
	}
	e.log.Info("using manually specified clusters", zap.Int("clusters", len(manual)))
	return manual, nil
}

// exportSequential processes clusters in order, stopping at the first
// hard failure. Clusters after the failing one are not attempted.
func (e *Exporter) exportSequential(ctx context.Context, clusters []cluster.Cluster, report *Report) error {
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return err
		}
		cr, err := e.exportCluster(c)
		if err != nil {
			metrics.ClusterErrors.WithLabelValues(string(snaperrors.GetType(err))).Inc()
			return err
		}
		report.add(cr)
	}
	return nil
}

// exportParallel attempts every cluster with bounded concurrency and
// reports the joined error set. Filename derivation stays deterministic
// per cluster and each column is materialized in strict entity order, so
// output is independent of scheduling.
func (e *Exporter) exportParallel(ctx context.Context, clusters []cluster.Cluster, report *Report) error {
	var (
		g       errgroup.Group
		errs    = make([]error, len(clusters))
		reports = make([]*ClusterReport, len(clusters))
	)
	g.SetLimit(e.cfg.Parallelism)

	for i, c := range clusters {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			cr, err := e.exportCluster(c)
			if err != nil {
				metrics.ClusterErrors.WithLabelValues(string(snaperrors.GetType(err))).Inc()
				errs[i] = err
				return nil
			}
			reports[i] = cr
			return nil
		})
	}
	_ = g.Wait()

	for _, cr := range reports {
		if cr != nil {
			report.add(cr)
		}
	}
	return errors.Join(errs...)
}

// exportCluster writes one cluster: schema, qualifying entities, one
// column per non-marker attribute, one file.
func (e *Exporter) exportCluster(c cluster.Cluster) (*ClusterReport, error) {
	sc, attrs, err := e.builder.Build(e.snap, c)
	if err != nil {
		return nil, err
	}

	// Rows are the entities carrying every cluster attribute, marker
	// included; markers filter rows but contribute no column.
	qualifying := e.mat.QualifyingEntities(c)
	e.log.Debug("materializing cluster",
		zap.Uint64("signature", c.Hash()),
		zap.Strings("attributes", c.Names()),
		zap.Int("qualifying_entities", len(qualifying)))

	var (
		cols    []arrow.Array
		skipped int
	)
	defer func() {
		for _, col := range cols {
			col.Release()
		}
	}()

	if e.cfg.IncludeEntityID {
		sc = withEntityIDField(sc)
		cols = append(cols, e.mat.EntityIDColumn(qualifying))
	}

	for i, attr := range attrs {
		fieldIdx := i
		if e.cfg.IncludeEntityID {
			fieldIdx++
		}
		col, colSkipped := e.mat.Column(attr, qualifying, sc.Field(fieldIdx).Type)
		cols = append(cols, col)
		skipped += colSkipped
	}
	if skipped > 0 {
		metrics.ValuesSkipped.Add(float64(skipped))
	}

	path := writer.FileName(e.cfg.OutputPath, shortNames(c), e.cfg.FileName, e.cfg.NameBudget())

	rows, err := e.writer.Write(path, sc, cols)
	if err != nil {
		return nil, err
	}

	metrics.FilesWritten.Inc()
	metrics.RowsWritten.Add(float64(rows))

	return &ClusterReport{
		File:          path,
		Attributes:    c.Names(),
		Rows:          rows,
		ValuesSkipped: skipped,
	}, nil
}

// shortNames derives the filename components from the full cluster,
// marker attributes included.
func shortNames(c cluster.Cluster) []string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = store.ShortName(a.Name)
	}
	return names
}

func withEntityIDField(sc *arrow.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, sc.NumFields()+1)
	fields = append(fields, arrow.Field{
		Name:     "entity_id",
		Type:     arrow.BinaryTypes.String,
		Nullable: false,
	})
	fields = append(fields, sc.Fields()...)
	return arrow.NewSchema(fields, nil)
}
