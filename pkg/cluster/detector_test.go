package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parqsnap/parqsnap/pkg/store"
)

// buildSnapshot spawns one entity per signature, registering every named
// attribute as a float scalar type.
func buildSnapshot(t *testing.T, signatures [][]string) *store.MemSnapshot {
	t.Helper()
	snap := store.NewMemSnapshot()
	attrs := make(map[string]store.AttributeID)

	for _, sig := range signatures {
		e := snap.Spawn()
		for _, name := range sig {
			id, ok := attrs[name]
			if !ok {
				tid := snap.RegisterType(&store.Descriptor{Name: name, Kind: store.KindFloat32})
				id = snap.RegisterAttribute(name, tid)
				attrs[name] = id
			}
			snap.Attach(e, id, store.Float32Value(1))
		}
	}
	return snap
}

func attrNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("demo::%s%d", prefix, i)
	}
	return names
}

func clusterNameSets(clusters []Cluster) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.Names()
	}
	return out
}

func TestIdenticalSignaturesShareCluster(t *testing.T) {
	sig := []string{"demo::Position", "demo::Velocity"}
	snap := buildSnapshot(t, [][]string{sig, sig, sig})

	d := NewDetector(Options{}, nil)
	clusters := d.Detect(snap, snap.Registry())

	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, sig, clusters[0].Names())
}

func TestSimilarityThresholdIsStrict(t *testing.T) {
	base := attrNames("a", 5)

	t.Run("exactly 0.80 does not merge", func(t *testing.T) {
		// |∩| = 4, |∪| = 5 → 0.80 exactly.
		snap := buildSnapshot(t, [][]string{base, base[:4]})
		clusters := NewDetector(Options{}, nil).Detect(snap, snap.Registry())
		assert.Len(t, clusters, 2)
	})

	t.Run("above 0.80 merges", func(t *testing.T) {
		// |∩| = 5, |∪| = 6 → ≈0.833.
		six := attrNames("a", 6)
		snap := buildSnapshot(t, [][]string{six, six[:5]})
		clusters := NewDetector(Options{}, nil).Detect(snap, snap.Registry())
		require.Len(t, clusters, 1)
		// Seed narrows to the intersection.
		assert.ElementsMatch(t, six[:5], clusters[0].Names())
	})
}

func TestUnknownAttributesExcluded(t *testing.T) {
	snap := store.NewMemSnapshot()
	tid := snap.RegisterType(&store.Descriptor{Name: "demo::Known", Kind: store.KindInt32})
	known := snap.RegisterAttribute("demo::Known", tid)
	untyped := snap.RegisterUntypedAttribute("demo::Untyped")

	e1 := snap.Spawn()
	snap.Attach(e1, known, store.Int32Value(1))
	snap.Attach(e1, untyped, store.Int32Value(2))

	// e2 carries only the untyped attribute and must be excluded entirely.
	e2 := snap.Spawn()
	snap.Attach(e2, untyped, store.Int32Value(3))

	clusters := NewDetector(Options{}, nil).Detect(snap, snap.Registry())
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"demo::Known"}, clusters[0].Names())
}

// divergentSignatures is a trio where the legacy mid-scan narrowing
// produces different clusters depending on entity enumeration order.
func divergentSignatures() [][]string {
	a := attrNames("a", 10)
	e1 := a                                             // a0..a9
	e2 := append(append([]string{}, a[:9]...), "demo::b0") // a0..a8 + b0
	e3 := append(append([]string{}, a[:8]...), a[9], "demo::c0")
	return [][]string{e1, e2, e3}
}

func reversed(sigs [][]string) [][]string {
	out := make([][]string, len(sigs))
	for i, s := range sigs {
		out[len(sigs)-1-i] = s
	}
	return out
}

func TestLegacyNarrowingIsOrderDependent(t *testing.T) {
	sigs := divergentSignatures()

	forward := buildSnapshot(t, sigs)
	backward := buildSnapshot(t, reversed(sigs))

	d := NewDetector(Options{}, nil)
	fc := clusterNameSets(d.Detect(forward, forward.Registry()))
	bc := clusterNameSets(d.Detect(backward, backward.Registry()))

	// The narrowed seed rejects an entity the original seed would have
	// accepted, so the two enumeration orders disagree.
	assert.NotEqual(t, fc, bc)

	// Forward order: e1 seeds a0..a9, e2 merges (9/11 ≈ 0.818) narrowing
	// the seed to a0..a8, e3 then misses the narrowed seed (8/11).
	require.Len(t, fc, 2)
	assert.ElementsMatch(t, attrNames("a", 9), fc[0])
}

func TestDeterministicModeIsOrderInsensitive(t *testing.T) {
	sigs := divergentSignatures()

	forward := buildSnapshot(t, sigs)
	backward := buildSnapshot(t, reversed(sigs))

	d := NewDetector(Options{Deterministic: true}, nil)
	fc := clusterNameSets(d.Detect(forward, forward.Registry()))
	bc := clusterNameSets(d.Detect(backward, backward.Registry()))

	assert.Equal(t, fc, bc)
}

func TestCustomThreshold(t *testing.T) {
	// 3/4 = 0.75: merges at threshold 0.7, not at the default 0.8.
	four := attrNames("a", 4)
	snap := buildSnapshot(t, [][]string{four, four[:3]})

	loose := NewDetector(Options{SimilarityThreshold: 0.7}, nil)
	assert.Len(t, loose.Detect(snap, snap.Registry()), 1)

	strict := NewDetector(Options{}, nil)
	assert.Len(t, strict.Detect(snap, snap.Registry()), 2)
}

func TestFromNames(t *testing.T) {
	snap := buildSnapshot(t, [][]string{{"demo::Position", "demo::Velocity"}})

	c, err := FromNames(snap, []string{"demo::Velocity", "demo::Position"})
	require.NoError(t, err)
	assert.Equal(t, []string{"demo::Position", "demo::Velocity"}, c.Names())

	_, err = FromNames(snap, []string{"demo::Missing"})
	assert.Error(t, err)
}

func TestClusterMarkerHelpers(t *testing.T) {
	snap := store.NewMemSnapshot()
	posType := snap.RegisterType(&store.Descriptor{Name: "demo::Position", Kind: store.KindFloat32})
	markType := snap.RegisterType(&store.Descriptor{Name: "demo::PersistMarker", Kind: store.KindStruct, Marker: true})
	pos := snap.RegisterAttribute("demo::Position", posType)
	mark := snap.RegisterAttribute("demo::PersistMarker", markType)

	e := snap.Spawn()
	snap.Attach(e, pos, store.Float32Value(1))
	snap.Attach(e, mark, store.StructValue())

	reg := snap.Registry()
	clusters := NewDetector(Options{}, nil).Detect(snap, reg)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.True(t, c.ContainsMarker(snap, reg))

	nonMarker := c.NonMarker(snap, reg)
	require.Len(t, nonMarker, 1)
	assert.Equal(t, "demo::Position", nonMarker[0].Name)

	assert.NotZero(t, c.Hash())
}
