package schema

import (
	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/cluster"
	"github.com/parqsnap/parqsnap/pkg/snaperrors"
	"github.com/parqsnap/parqsnap/pkg/store"
)

// Builder maps a cluster's attribute type descriptors to an Arrow schema.
type Builder struct {
	reg *store.TypeRegistry
	log *zap.Logger
}

// NewBuilder creates a schema builder over the given type registry.
func NewBuilder(reg *store.TypeRegistry, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{reg: reg, log: log}
}

// Build produces the schema for one cluster: one nullable field per
// non-marker attribute, in cluster order, with the short attribute name
// (namespace path stripped). It also returns the non-marker attributes in
// field order so the materializer operates in lockstep with the schema.
//
// Build fails only when an attribute cannot be resolved at all. An
// attribute whose type id is missing or not in the registry still gets a
// field; its type degrades to utf8.
func (b *Builder) Build(snap store.Snapshot, c cluster.Cluster) (*arrow.Schema, []cluster.AttrRef, error) {
	fields := make([]arrow.Field, 0, len(c))
	attrs := make([]cluster.AttrRef, 0, len(c))

	for _, ref := range c {
		info, ok := snap.ResolveAttribute(ref.ID)
		if !ok {
			return nil, nil, snaperrors.Newf(snaperrors.ErrorTypeRegistry,
				"attribute %q (id %d) is not registered in the snapshot", ref.Name, ref.ID)
		}

		var desc *store.Descriptor
		if info.HasTypeID {
			if d, found := b.reg.Lookup(info.TypeID); found {
				desc = d
			}
		}

		if desc != nil && desc.Marker {
			continue
		}

		dt := DataTypeFor(desc)
		if desc == nil {
			b.log.Debug("attribute type unresolvable, falling back to utf8",
				zap.String("attribute", ref.Name))
		}

		fields = append(fields, arrow.Field{
			Name:     store.ShortName(info.Name),
			Type:     dt,
			Nullable: true,
		})
		attrs = append(attrs, ref)
	}

	return arrow.NewSchema(fields, nil), attrs, nil
}
