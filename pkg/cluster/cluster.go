// Package cluster groups entities into attribute-signature cohorts.
//
// Clustering is a greedy single pass: an unassigned entity seeds a
// cluster with its signature, then every remaining unassigned entity
// whose Jaccard similarity to the seed strictly exceeds the threshold is
// folded in and the seed narrows to the intersection. Entities are
// assigned to at most one cluster, so clusters are entity-disjoint but
// not guaranteed optimal or symmetric. The pass is O(n²) in entity
// count and intended for offline batch use.
package cluster

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/parqsnap/parqsnap/pkg/snaperrors"
	"github.com/parqsnap/parqsnap/pkg/store"
)

// AttrRef identifies one attribute of a cluster signature: the
// fully-qualified attribute name and its snapshot-stable id.
type AttrRef struct {
	Name string
	ID   store.AttributeID
}

// Cluster is a set of attributes shared by one or more entities, kept
// sorted by attribute name so downstream schema order is stable.
type Cluster []AttrRef

// Names returns the attribute names in cluster order.
func (c Cluster) Names() []string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = a.Name
	}
	return names
}

// ContainsMarker reports whether any attribute of the cluster resolves to
// a marker type. Clusters without a marker are dropped before export.
func (c Cluster) ContainsMarker(snap store.Snapshot, reg *store.TypeRegistry) bool {
	for _, a := range c {
		if isMarker(a, snap, reg) {
			return true
		}
	}
	return false
}

// NonMarker returns the cluster's attributes with marker attributes
// removed, preserving cluster order.
func (c Cluster) NonMarker(snap store.Snapshot, reg *store.TypeRegistry) []AttrRef {
	out := make([]AttrRef, 0, len(c))
	for _, a := range c {
		if !isMarker(a, snap, reg) {
			out = append(out, a)
		}
	}
	return out
}

func isMarker(a AttrRef, snap store.Snapshot, reg *store.TypeRegistry) bool {
	info, ok := snap.ResolveAttribute(a.ID)
	if !ok || !info.HasTypeID {
		return false
	}
	d, ok := reg.Lookup(info.TypeID)
	return ok && d.Marker
}

// Hash returns a stable 64-bit hash of the cluster signature.
func (c Cluster) Hash() uint64 {
	h := xxhash.New()
	for _, a := range c {
		_, _ = h.WriteString(a.Name)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// FromNames resolves attribute names against a snapshot into a Cluster.
// Used for manually-specified clusters that bypass detection.
func FromNames(snap store.Snapshot, names []string) (Cluster, error) {
	resolver, ok := snap.(interface {
		AttributeIDByName(string) (store.AttributeID, bool)
	})

	var c Cluster
	for _, name := range names {
		if ok {
			if id, found := resolver.AttributeIDByName(name); found {
				c = append(c, AttrRef{Name: name, ID: id})
				continue
			}
			return nil, snaperrors.Newf(snaperrors.ErrorTypeConfig,
				"manual cluster references unknown attribute %q", name)
		}
		id, found := findAttributeByName(snap, name)
		if !found {
			return nil, snaperrors.Newf(snaperrors.ErrorTypeConfig,
				"manual cluster references unknown attribute %q", name)
		}
		c = append(c, AttrRef{Name: name, ID: id})
	}
	sortCluster(c)
	return c, nil
}

// findAttributeByName scans entity attribute ids for a name match. Slow
// path for Snapshot implementations without a name index.
func findAttributeByName(snap store.Snapshot, name string) (store.AttributeID, bool) {
	seen := make(map[store.AttributeID]struct{})
	for _, e := range snap.Entities() {
		for _, id := range snap.AttributeIDs(e) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if info, ok := snap.ResolveAttribute(id); ok && info.Name == name {
				return id, true
			}
		}
	}
	return 0, false
}

func sortCluster(c Cluster) {
	sort.Slice(c, func(i, j int) bool { return c[i].Name < c[j].Name })
}
