package cluster

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/store"
)

// DefaultSimilarityThreshold is the Jaccard similarity an entity's
// signature must strictly exceed to join the current seed.
const DefaultSimilarityThreshold = 0.80

// Options tunes cluster detection.
type Options struct {
	// SimilarityThreshold is the strict Jaccard lower bound for merging.
	// Zero means DefaultSimilarityThreshold.
	SimilarityThreshold float64

	// Deterministic disables the legacy mid-scan seed narrowing and
	// pre-sorts entities by a stable signature hash. In the legacy mode
	// (default), the seed narrows while the scan is still running, so
	// later comparisons use the already-narrowed signature and the
	// outcome depends on entity enumeration order. Deterministic mode
	// compares every candidate against the entity's original signature
	// instead and is insensitive to enumeration order.
	Deterministic bool
}

// Detector groups snapshot entities into attribute-signature clusters.
type Detector struct {
	opts Options
	log  *zap.Logger
}

// NewDetector creates a detector with the given options.
func NewDetector(opts Options, log *zap.Logger) *Detector {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{opts: opts, log: log}
}

type signature map[AttrRef]struct{}

// Detect runs the greedy clustering pass over all snapshot entities.
// Attribute signatures are restricted to types on the registry
// allow-list; entities contributing no allowed attribute are excluded
// before clustering.
func (d *Detector) Detect(snap store.Snapshot, reg *store.TypeRegistry) []Cluster {
	entities, signatures := d.collectSignatures(snap, reg)

	if d.opts.Deterministic {
		sortBySignatureHash(entities, signatures)
	}

	assigned := make(map[store.EntityID]struct{}, len(entities))
	var clusters []Cluster

	for _, e := range entities {
		if _, done := assigned[e]; done {
			continue
		}

		seed := cloneSignature(signatures[e])
		assigned[e] = struct{}{}

		// base is what candidates are compared against. Legacy mode
		// compares against the narrowing seed; deterministic mode pins
		// the comparison to the original signature.
		base := seed
		if d.opts.Deterministic {
			base = cloneSignature(seed)
		}

		for _, other := range entities {
			if _, done := assigned[other]; done {
				continue
			}
			if jaccard(base, signatures[other]) > d.opts.SimilarityThreshold {
				seed = intersect(seed, signatures[other])
				if !d.opts.Deterministic {
					base = seed
				}
				assigned[other] = struct{}{}
			}
		}

		if len(seed) > 0 {
			clusters = append(clusters, signatureToCluster(seed))
		}
	}

	d.log.Info("detected attribute clusters",
		zap.Int("clusters", len(clusters)),
		zap.Int("entities", len(entities)))
	for i, c := range clusters {
		d.log.Debug("cluster signature",
			zap.Int("cluster", i),
			zap.Strings("attributes", c.Names()))
	}

	return clusters
}

// collectSignatures builds the allow-listed attribute signature of every
// entity, dropping entities whose signature comes up empty.
func (d *Detector) collectSignatures(snap store.Snapshot, reg *store.TypeRegistry) ([]store.EntityID, map[store.EntityID]signature) {
	all := snap.Entities()
	entities := make([]store.EntityID, 0, len(all))
	signatures := make(map[store.EntityID]signature, len(all))

	for _, e := range all {
		sig := make(signature)
		for _, id := range snap.AttributeIDs(e) {
			info, ok := snap.ResolveAttribute(id)
			if !ok || !info.HasTypeID {
				continue
			}
			if !reg.IsKnown(info.TypeID) {
				continue
			}
			sig[AttrRef{Name: info.Name, ID: id}] = struct{}{}
		}
		if len(sig) == 0 {
			continue
		}
		entities = append(entities, e)
		signatures[e] = sig
	}

	return entities, signatures
}

// jaccard computes |a ∩ b| / |a ∪ b|.
func jaccard(a, b signature) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for ref := range a {
		if _, ok := b[ref]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func intersect(a, b signature) signature {
	out := make(signature, len(a))
	for ref := range a {
		if _, ok := b[ref]; ok {
			out[ref] = struct{}{}
		}
	}
	return out
}

func cloneSignature(s signature) signature {
	out := make(signature, len(s))
	for ref := range s {
		out[ref] = struct{}{}
	}
	return out
}

func signatureToCluster(s signature) Cluster {
	c := make(Cluster, 0, len(s))
	for ref := range s {
		c = append(c, ref)
	}
	sortCluster(c)
	return c
}

// sortBySignatureHash orders entities by the xxhash of their sorted
// signature, breaking ties by entity id. This makes deterministic mode
// independent of snapshot enumeration order.
func sortBySignatureHash(entities []store.EntityID, signatures map[store.EntityID]signature) {
	hashes := make(map[store.EntityID]uint64, len(entities))
	for _, e := range entities {
		hashes[e] = signatureHash(signatures[e])
	}
	sort.Slice(entities, func(i, j int) bool {
		hi, hj := hashes[entities[i]], hashes[entities[j]]
		if hi != hj {
			return hi < hj
		}
		return entities[i] < entities[j]
	})
}

func signatureHash(s signature) uint64 {
	names := make([]string, 0, len(s))
	for ref := range s {
		names = append(names, ref.Name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, n := range names {
		_, _ = h.WriteString(n)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
