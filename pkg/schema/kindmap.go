// Package schema infers a columnar Arrow schema for a cluster of
// attributes from their registered type descriptors.
//
// The per-kind mapping lives in a single table (DataTypeFor) consulted by
// both this package and the column materializer, so the schema path and
// the data path cannot drift apart. The mapping never fails: every kind
// resolves to some Arrow type, with utf8 as the fallback for shapes that
// have no typed representation.
package schema

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/parqsnap/parqsnap/pkg/store"
)

// DataTypeFor maps a type descriptor to its Arrow data type. It always
// resolves to some type; unmappable shapes degrade to utf8.
//
// The table:
//   - fixed-width scalars map to the matching Arrow scalar
//   - string scalars map to utf8
//   - a vector struct (all-float fields, 2 to 4 components) maps to a
//     struct of named float fields
//   - a struct with a field literally named "output" maps to that
//     field's recursively-mapped type
//   - any other struct, enum, tuple or opaque type maps to utf8
//   - lists and arrays wrap the recursively-mapped item type
func DataTypeFor(d *store.Descriptor) arrow.DataType {
	if d == nil {
		return arrow.BinaryTypes.String
	}

	switch d.Kind {
	case store.KindBool:
		return arrow.FixedWidthTypes.Boolean
	case store.KindInt32:
		return arrow.PrimitiveTypes.Int32
	case store.KindInt64:
		return arrow.PrimitiveTypes.Int64
	case store.KindUint32:
		return arrow.PrimitiveTypes.Uint32
	case store.KindUint64:
		return arrow.PrimitiveTypes.Uint64
	case store.KindFloat32:
		return arrow.PrimitiveTypes.Float32
	case store.KindFloat64:
		return arrow.PrimitiveTypes.Float64
	case store.KindString:
		return arrow.BinaryTypes.String
	case store.KindStruct:
		if IsVectorStruct(d) {
			fields := make([]arrow.Field, len(d.Fields))
			for i, f := range d.Fields {
				fields[i] = arrow.Field{
					Name:     f.Name,
					Type:     DataTypeFor(f.Type),
					Nullable: false,
				}
			}
			return arrow.StructOf(fields...)
		}
		if out, ok := d.FieldNamed("output"); ok {
			return DataTypeFor(out.Type)
		}
		return arrow.BinaryTypes.String
	case store.KindList:
		return arrow.ListOf(DataTypeFor(d.Elem))
	case store.KindArray:
		return arrow.FixedSizeListOf(int32(d.ArrayLen), DataTypeFor(d.Elem))
	case store.KindEnum, store.KindTuple, store.KindOpaque:
		return arrow.BinaryTypes.String
	default:
		return arrow.BinaryTypes.String
	}
}

// IsVectorStruct reports whether the descriptor is a small all-float
// component vector (Vec2/Vec3/Vec4 shaped), which gets a typed struct
// column instead of the string fallback.
func IsVectorStruct(d *store.Descriptor) bool {
	if d.Kind != store.KindStruct || len(d.Fields) < 2 || len(d.Fields) > 4 {
		return false
	}
	for _, f := range d.Fields {
		if f.Type == nil {
			return false
		}
		if f.Type.Kind != store.KindFloat32 && f.Type.Kind != store.KindFloat64 {
			return false
		}
	}
	return true
}
