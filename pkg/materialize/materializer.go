// Package materialize converts the reflected attribute values of a
// cluster's qualifying entities into Arrow columnar arrays.
//
// Columns are typed whenever the schema resolved a concrete Arrow type;
// the string fallback path debug-formats values for utf8 columns. A
// per-entity reflection failure never aborts a cluster: the value is
// omitted from its column (not null-padded), logged at warning level, and
// processing continues. A column can therefore legitimately end up
// shorter than the qualifying-entity count.
package materialize

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/parqsnap/parqsnap/pkg/cluster"
	"github.com/parqsnap/parqsnap/pkg/store"
)

// Materializer builds per-attribute Arrow arrays from snapshot values.
type Materializer struct {
	snap store.Snapshot
	reg  *store.TypeRegistry
	mem  memory.Allocator
	log  *zap.Logger
}

// New creates a materializer over one snapshot and its type registry.
func New(snap store.Snapshot, reg *store.TypeRegistry, log *zap.Logger) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Materializer{
		snap: snap,
		reg:  reg,
		mem:  memory.NewGoAllocator(),
		log:  log,
	}
}

// QualifyingEntities returns the entities possessing every attribute in
// attrs, in snapshot enumeration order. Pass the full cluster, marker
// attributes included, to get the row set for its columns.
func (m *Materializer) QualifyingEntities(attrs []cluster.AttrRef) []store.EntityID {
	var out []store.EntityID
	for _, e := range m.snap.Entities() {
		qualified := true
		for _, a := range attrs {
			if !m.snap.HasAttribute(e, a.ID) {
				qualified = false
				break
			}
		}
		if qualified {
			out = append(out, e)
		}
	}
	return out
}

// Column materializes one attribute over the given entities, in strict
// entity order, into an array of the given Arrow type. It returns the
// array and the number of entities skipped due to reflection failures or
// value/type mismatches. The caller owns the returned array and must
// Release it.
func (m *Materializer) Column(attr cluster.AttrRef, entities []store.EntityID, dt arrow.DataType) (arrow.Array, int) {
	builder := array.NewBuilder(m.mem, dt)
	defer builder.Release()

	skipped := 0
	for _, e := range entities {
		v, err := m.snap.Value(e, attr.ID)
		if err != nil {
			m.log.Warn("skipping entity value",
				zap.String("attribute", attr.Name),
				zap.Uint64("entity", uint64(e)),
				zap.Error(err))
			skipped++
			continue
		}

		v = normalize(v, dt)
		if !conforms(v, dt) {
			m.log.Warn("value does not match resolved column type, skipping",
				zap.String("attribute", attr.Name),
				zap.Uint64("entity", uint64(e)),
				zap.String("value_kind", v.Kind.String()),
				zap.String("column_type", dt.String()))
			skipped++
			continue
		}

		appendValue(builder, v)
	}

	return builder.NewArray(), skipped
}

// EntityIDColumn builds the optional utf8 entity-id column for the given
// entities. The caller owns the returned array.
func (m *Materializer) EntityIDColumn(entities []store.EntityID) arrow.Array {
	builder := array.NewStringBuilder(m.mem)
	defer builder.Release()
	for _, e := range entities {
		builder.Append(strconv.FormatUint(uint64(e), 10))
	}
	return builder.NewArray()
}

// FallbackString renders a value for a utf8 fallback column:
//   - a struct with an "output" field formats that field, otherwise the
//     whole struct
//   - a tuple formats its first field
//   - lists and arrays format as "[v1, v2, ...]"
//   - everything else debug-formats the whole value
func FallbackString(v store.Value) string {
	switch v.Kind {
	case store.KindStruct:
		if out, ok := v.Field("output"); ok {
			return out.DebugString()
		}
		return v.DebugString()
	case store.KindTuple:
		if len(v.Fields) > 0 {
			return v.Fields[0].Value.DebugString()
		}
		return v.DebugString()
	default:
		return v.DebugString()
	}
}

// normalize applies the same struct unwrapping the schema's kind map
// performs: a struct with an "output" field materializes as that field,
// whatever column type the field resolved to. The only struct that keeps
// its "output" field is one whose column type carries that field itself
// (a vector struct that happens to name a component "output"). Applied
// recursively to list and array items.
func normalize(v store.Value, dt arrow.DataType) store.Value {
	if v.Kind == store.KindStruct {
		if out, ok := v.Field("output"); ok && !structFieldNamed(dt, "output") {
			return normalize(out, dt)
		}
	}

	switch t := dt.(type) {
	case *arrow.ListType:
		if v.Kind == store.KindList || v.Kind == store.KindArray {
			items := make([]store.Value, len(v.Items))
			for i, item := range v.Items {
				items[i] = normalize(item, t.Elem())
			}
			return store.Value{Kind: v.Kind, Items: items}
		}
		return v
	case *arrow.FixedSizeListType:
		if v.Kind == store.KindList || v.Kind == store.KindArray {
			items := make([]store.Value, len(v.Items))
			for i, item := range v.Items {
				items[i] = normalize(item, t.Elem())
			}
			return store.Value{Kind: v.Kind, Items: items}
		}
		return v
	default:
		return v
	}
}

// structFieldNamed reports whether dt is a struct type carrying a field
// with the given name.
func structFieldNamed(dt arrow.DataType, name string) bool {
	st, ok := dt.(*arrow.StructType)
	if !ok {
		return false
	}
	for i := 0; i < st.NumFields(); i++ {
		if st.Field(i).Name == name {
			return true
		}
	}
	return false
}

// conforms reports whether v can be appended to a column of type dt
// without loss of structure. Checked before any append so a rejected
// value never leaves a partially-written composite in the builder.
func conforms(v store.Value, dt arrow.DataType) bool {
	switch t := dt.(type) {
	case *arrow.BooleanType:
		return v.Kind == store.KindBool
	case *arrow.Int32Type:
		return v.Kind == store.KindInt32
	case *arrow.Int64Type:
		return v.Kind == store.KindInt32 || v.Kind == store.KindInt64
	case *arrow.Uint32Type:
		return v.Kind == store.KindUint32
	case *arrow.Uint64Type:
		return v.Kind == store.KindUint32 || v.Kind == store.KindUint64
	case *arrow.Float32Type:
		return v.Kind == store.KindFloat32
	case *arrow.Float64Type:
		return v.Kind == store.KindFloat32 || v.Kind == store.KindFloat64
	case *arrow.StringType:
		// The fallback path formats any value.
		return true
	case *arrow.StructType:
		// Typed struct columns come from vector structs or "output"
		// struct unwrapping; require a struct value carrying every field.
		if v.Kind != store.KindStruct {
			return false
		}
		for i := 0; i < t.NumFields(); i++ {
			fv, ok := v.Field(t.Field(i).Name)
			if !ok || !conforms(fv, t.Field(i).Type) {
				return false
			}
		}
		return true
	case *arrow.ListType:
		if v.Kind != store.KindList && v.Kind != store.KindArray {
			return false
		}
		for _, item := range v.Items {
			if !conforms(item, t.Elem()) {
				return false
			}
		}
		return true
	case *arrow.FixedSizeListType:
		if v.Kind != store.KindList && v.Kind != store.KindArray {
			return false
		}
		if len(v.Items) != int(t.Len()) {
			return false
		}
		for _, item := range v.Items {
			if !conforms(item, t.Elem()) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// appendValue appends a conforming value to the builder. The value must
// have passed conforms for the builder's type.
func appendValue(b array.Builder, v store.Value) {
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		builder.Append(v.Bool)
	case *array.Int32Builder:
		builder.Append(int32(v.Int))
	case *array.Int64Builder:
		builder.Append(v.Int)
	case *array.Uint32Builder:
		builder.Append(uint32(v.Uint))
	case *array.Uint64Builder:
		builder.Append(v.Uint)
	case *array.Float32Builder:
		builder.Append(float32(v.Float))
	case *array.Float64Builder:
		builder.Append(v.Float)
	case *array.StringBuilder:
		builder.Append(FallbackString(v))
	case *array.StructBuilder:
		builder.Append(true)
		st := builder.Type().(*arrow.StructType)
		for i := 0; i < builder.NumField(); i++ {
			fv, _ := v.Field(st.Field(i).Name)
			appendValue(builder.FieldBuilder(i), fv)
		}
	case *array.ListBuilder:
		builder.Append(true)
		for _, item := range v.Items {
			appendValue(builder.ValueBuilder(), item)
		}
	case *array.FixedSizeListBuilder:
		builder.Append(true)
		for _, item := range v.Items {
			appendValue(builder.ValueBuilder(), item)
		}
	default:
		// conforms rejects types without a builder case.
		b.AppendNull()
	}
}
