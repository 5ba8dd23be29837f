package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parqsnap/parqsnap/pkg/config"
	"github.com/parqsnap/parqsnap/pkg/snaperrors"
	"github.com/parqsnap/parqsnap/pkg/store"
)

type world struct {
	snap    *store.MemSnapshot
	pos     store.AttributeID
	health  store.AttributeID
	label   store.AttributeID
	persist store.AttributeID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	snap := store.NewMemSnapshot()

	f32 := &store.Descriptor{Name: "f32", Kind: store.KindFloat32}
	posType := snap.RegisterType(&store.Descriptor{
		Name: "demo::Position",
		Kind: store.KindStruct,
		Fields: []store.FieldDescriptor{
			{Name: "x", Type: f32},
			{Name: "y", Type: f32},
			{Name: "z", Type: f32},
		},
	})
	healthType := snap.RegisterType(&store.Descriptor{
		Name: "demo::Health",
		Kind: store.KindStruct,
		Fields: []store.FieldDescriptor{
			{Name: "output", Type: &store.Descriptor{Name: "i32", Kind: store.KindInt32}},
		},
	})
	labelType := snap.RegisterType(&store.Descriptor{
		Name: "demo::Label",
		Kind: store.KindString,
	})
	persistType := snap.RegisterType(&store.Descriptor{
		Name:   "demo::PersistMarker",
		Kind:   store.KindStruct,
		Marker: true,
	})

	return &world{
		snap:    snap,
		pos:     snap.RegisterAttribute("demo::Position", posType),
		health:  snap.RegisterAttribute("demo::Health", healthType),
		label:   snap.RegisterAttribute("demo::Label", labelType),
		persist: snap.RegisterAttribute("demo::PersistMarker", persistType),
	}
}

func posValue(x, y, z float32) store.Value {
	return store.StructValue(
		store.Field("x", store.Float32Value(x)),
		store.Field("y", store.Float32Value(y)),
		store.Field("z", store.Float32Value(z)),
	)
}

func healthValue(n int32) store.Value {
	return store.StructValue(store.Field("output", store.Int32Value(n)))
}

func testConfig(dir string) *config.ExportConfig {
	cfg := config.DefaultExportConfig()
	cfg.OutputPath = filepath.Join(dir, "snap")
	return cfg
}

func runExport(t *testing.T, w *world, cfg *config.ExportConfig) (*Report, error) {
	t.Helper()
	exp, err := New(cfg, w.snap, w.snap.Registry(), nil)
	require.NoError(t, err)
	return exp.Export(context.Background())
}

func readBack(t *testing.T, path string) arrow.Table {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec
	require.NoError(t, err)

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	require.NoError(t, err)

	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)

	table, err := ar.ReadTable(context.Background())
	require.NoError(t, err)
	return table
}

func chunk(t *testing.T, table arrow.Table, col int) arrow.Array {
	t.Helper()
	chunks := table.Column(col).Data().Chunks()
	require.Len(t, chunks, 1)
	return chunks[0]
}

func TestClustersWithoutMarkerAreDropped(t *testing.T) {
	w := newWorld(t)
	for i := 0; i < 3; i++ {
		e := w.snap.Spawn()
		w.snap.Attach(e, w.pos, posValue(float32(i), 0, 0))
	}
	for i := 0; i < 2; i++ {
		e := w.snap.Spawn()
		w.snap.Attach(e, w.pos, posValue(float32(i), 1, 1))
		w.snap.Attach(e, w.persist, store.StructValue())
	}

	cfg := testConfig(t.TempDir())
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesWritten)
	assert.Equal(t, 1, report.ClustersDropped)
	require.Len(t, report.Clusters, 1)

	cr := report.Clusters[0]
	assert.Equal(t, []string{"demo::PersistMarker", "demo::Position"}, cr.Attributes)
	assert.Equal(t, int64(2), cr.Rows)

	// Short names joined and truncated to the default budget.
	assert.Equal(t, cfg.OutputPath+"_PersistMarker_Positi.parquet", cr.File)

	table := readBack(t, cr.File)
	defer table.Release()

	// The marker contributes no column.
	require.Equal(t, int64(1), table.NumCols())
	assert.Equal(t, "Position", table.Schema().Field(0).Name)
	assert.Equal(t, int64(2), table.NumRows())
}

func TestExportRoundTrip(t *testing.T) {
	w := newWorld(t)
	healths := []int32{100, 75, 50, 25}
	ids := make([]store.EntityID, 0, len(healths))
	for i, h := range healths {
		e := w.snap.Spawn()
		w.snap.Attach(e, w.pos, posValue(float32(i), float32(i)*2, 0))
		w.snap.Attach(e, w.health, healthValue(h))
		w.snap.Attach(e, w.persist, store.StructValue())
		ids = append(ids, e)
	}

	cfg := testConfig(t.TempDir())
	cfg.IncludeEntityID = true
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	require.Equal(t, 1, report.FilesWritten)
	assert.Equal(t, int64(4), report.RowsWritten)
	assert.Equal(t, 0, report.ValuesSkipped)

	table := readBack(t, report.Clusters[0].File)
	defer table.Release()

	require.Equal(t, int64(3), table.NumCols())
	require.Equal(t, int64(4), table.NumRows())

	sc := table.Schema()
	assert.Equal(t, "entity_id", sc.Field(0).Name)
	assert.Equal(t, "Health", sc.Field(1).Name)
	assert.Equal(t, "Position", sc.Field(2).Name)

	eids := chunk(t, table, 0).(*array.String)
	for i, e := range ids {
		assert.Equal(t, strconv.FormatUint(uint64(e), 10), eids.Value(i))
	}

	hc := chunk(t, table, 1).(*array.Int32)
	for i, h := range healths {
		assert.Equal(t, h, hc.Value(i))
	}

	pc := chunk(t, table, 2).(*array.Struct)
	xs := pc.Field(0).(*array.Float32)
	for i := range healths {
		assert.Equal(t, float32(i), xs.Value(i))
	}
}

func TestUnreadableValueIsOmitted(t *testing.T) {
	w := newWorld(t)
	e1 := w.snap.Spawn()
	w.snap.Attach(e1, w.health, healthValue(42))
	w.snap.Attach(e1, w.persist, store.StructValue())
	e2 := w.snap.Spawn()
	w.snap.AttachOpaque(e2, w.health)
	w.snap.Attach(e2, w.persist, store.StructValue())

	cfg := testConfig(t.TempDir())
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	require.Equal(t, 1, report.FilesWritten)
	assert.Equal(t, 1, report.ValuesSkipped)

	table := readBack(t, report.Clusters[0].File)
	defer table.Release()

	// The unreadable value is absent rather than null, so the single
	// data column carries one row.
	require.Equal(t, int64(1), table.NumRows())
	hc := chunk(t, table, 0).(*array.Int32)
	assert.Equal(t, int32(42), hc.Value(0))
	assert.Zero(t, hc.NullN())
}

func TestMarkerRestrictsRows(t *testing.T) {
	w := newWorld(t)
	marked := w.snap.Spawn()
	w.snap.Attach(marked, w.health, healthValue(7))
	w.snap.Attach(marked, w.persist, store.StructValue())
	unmarked := w.snap.Spawn()
	w.snap.Attach(unmarked, w.health, healthValue(8))

	cfg := testConfig(t.TempDir())
	cfg.Clusters = [][]string{{"demo::Health", "demo::PersistMarker"}}
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	// The unmarked entity carries Health but not the marker, so it
	// contributes no row.
	require.Len(t, report.Clusters, 1)
	assert.Equal(t, int64(1), report.Clusters[0].Rows)

	table := readBack(t, report.Clusters[0].File)
	defer table.Release()
	require.Equal(t, int64(1), table.NumRows())
	hc := chunk(t, table, 0).(*array.Int32)
	assert.Equal(t, int32(7), hc.Value(0))
}

func TestManualClusters(t *testing.T) {
	w := newWorld(t)
	e := w.snap.Spawn()
	w.snap.Attach(e, w.pos, posValue(1, 2, 3))
	w.snap.Attach(e, w.health, healthValue(9))
	w.snap.Attach(e, w.persist, store.StructValue())

	cfg := testConfig(t.TempDir())
	cfg.Clusters = [][]string{{"demo::Position", "demo::PersistMarker"}}
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, []string{"demo::PersistMarker", "demo::Position"}, report.Clusters[0].Attributes)

	table := readBack(t, report.Clusters[0].File)
	defer table.Release()
	require.Equal(t, int64(1), table.NumCols())
	assert.Equal(t, "Position", table.Schema().Field(0).Name)
}

func TestManualClusterUnknownAttribute(t *testing.T) {
	w := newWorld(t)
	cfg := testConfig(t.TempDir())
	cfg.Clusters = [][]string{{"demo::DoesNotExist"}}

	_, err := runExport(t, w, cfg)
	require.Error(t, err)
	assert.True(t, snaperrors.IsType(err, snaperrors.ErrorTypeConfig))
}

func TestFileNameOverride(t *testing.T) {
	w := newWorld(t)
	e := w.snap.Spawn()
	w.snap.Attach(e, w.pos, posValue(0, 0, 0))
	w.snap.Attach(e, w.persist, store.StructValue())

	cfg := testConfig(t.TempDir())
	cfg.FileName = "world_snapshot"
	report, err := runExport(t, w, cfg)
	require.NoError(t, err)

	require.Len(t, report.Clusters, 1)
	assert.Equal(t, cfg.OutputPath+"_world_snapshot.parquet", report.Clusters[0].File)
	_, statErr := os.Stat(report.Clusters[0].File)
	assert.NoError(t, statErr)
}

// twoClusterWorld spawns entities so the failing cluster is detected
// first: the Position/Health cluster has a column length mismatch from a
// skipped value, the Label cluster is healthy.
func twoClusterWorld(t *testing.T) *world {
	t.Helper()
	w := newWorld(t)

	good := w.snap.Spawn()
	w.snap.Attach(good, w.pos, posValue(1, 1, 1))
	w.snap.Attach(good, w.health, healthValue(10))
	w.snap.Attach(good, w.persist, store.StructValue())

	bad := w.snap.Spawn()
	w.snap.Attach(bad, w.pos, posValue(2, 2, 2))
	w.snap.AttachOpaque(bad, w.health)
	w.snap.Attach(bad, w.persist, store.StructValue())

	labeled := w.snap.Spawn()
	w.snap.Attach(labeled, w.label, store.StringValue("keep"))
	w.snap.Attach(labeled, w.persist, store.StructValue())

	return w
}

func TestSequentialStopsAtFirstFailure(t *testing.T) {
	w := twoClusterWorld(t)
	cfg := testConfig(t.TempDir())

	report, err := runExport(t, w, cfg)
	require.Error(t, err)
	assert.True(t, snaperrors.IsType(err, snaperrors.ErrorTypeWrite))

	// The second cluster was never attempted.
	assert.Equal(t, 0, report.FilesWritten)
	assert.Empty(t, report.Clusters)
}

func TestParallelCollectsAllErrors(t *testing.T) {
	w := twoClusterWorld(t)
	cfg := testConfig(t.TempDir())
	cfg.Parallelism = 4

	report, err := runExport(t, w, cfg)
	require.Error(t, err)

	// The healthy cluster still exports.
	require.Equal(t, 1, report.FilesWritten)
	assert.Equal(t, []string{"demo::Label", "demo::PersistMarker"}, report.Clusters[0].Attributes)

	var joined interface{ Unwrap() []error }
	require.ErrorAs(t, err, &joined)
	require.Len(t, joined.Unwrap(), 1)
	assert.True(t, snaperrors.IsType(joined.Unwrap()[0], snaperrors.ErrorTypeWrite))
}

func TestOutputPathFailureIsIOError(t *testing.T) {
	w := newWorld(t)
	e := w.snap.Spawn()
	w.snap.Attach(e, w.pos, posValue(0, 0, 0))
	w.snap.Attach(e, w.persist, store.StructValue())

	cfg := config.DefaultExportConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "missing", "snap")

	report, err := runExport(t, w, cfg)
	require.Error(t, err)
	assert.True(t, snaperrors.IsType(err, snaperrors.ErrorTypeIO))
	assert.Equal(t, 0, report.FilesWritten)
}

func TestContextCancellation(t *testing.T) {
	w := newWorld(t)
	e := w.snap.Spawn()
	w.snap.Attach(e, w.pos, posValue(0, 0, 0))
	w.snap.Attach(e, w.persist, store.StructValue())

	exp, err := New(testConfig(t.TempDir()), w.snap, w.snap.Registry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := exp.Export(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.FilesWritten)
}
